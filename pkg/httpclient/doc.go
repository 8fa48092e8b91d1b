// Package httpclient は外部APIとJSONで通信するHTTPクライアントを提供する。
//
// LLMプロバイダへのリクエスト送信に使用する。タイムアウト・認証ヘッダー・
// 非2xxレスポンスのエラー化を共通化する。
package httpclient
