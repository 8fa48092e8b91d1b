// Package summary は議事録サマリーサービスの内部実装を提供する。
//
// 認証済みの利用者が議事録を送信すると、外部LLMプロバイダでサマリーを生成して
// 所有者単位で保存する。保存したサマリーはタイトルの変更、削除、メールでの共有ができる。
//
// 構成要素は次のとおり。
//   - Store: SQLiteへの永続化。すべての操作が所有者IDを必須引数に取る
//   - Engine: LLMプロバイダへの単発の生成リクエスト
//   - SharingService: 宛先の検証とSMTPでの一括送信
//   - Service: 上記を組み合わせたユースケースとエラー分類
//   - Server: GinによるHTTPの入出力
package summary
