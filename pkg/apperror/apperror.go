// Package apperror はサービス全体で共通のエラー分類を提供する。
//
// 各コンポーネントの失敗を認証・検証・未検出・上流・永続化の5種類に分類し、
// HTTPハンドラが一貫したステータスコードとメッセージで応答できるようにする。
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind はエラーの分類を表す。
type Kind string

const (
	// KindAuthentication は資格情報の欠落・不正・期限切れを表す。
	KindAuthentication Kind = "unauthorized"
	// KindValidation は入力値の検証エラーを表す。
	KindValidation Kind = "validation_error"
	// KindNotFound は対象が存在しない、または呼び出し元が所有していないことを表す。
	KindNotFound Kind = "not_found"
	// KindUpstream はLLMプロバイダやメール送信など外部依存の失敗を表す。
	KindUpstream Kind = "upstream_error"
	// KindPersistence はデータストアの失敗を表す。
	KindPersistence Kind = "persistence_error"
	// KindInternal は分類できない内部エラーを表す。
	KindInternal Kind = "internal_error"
)

// Error は分類付きのアプリケーションエラー。
// Message は呼び出し元にそのまま返してよい文言、Err は内部ログ用の原因。
type Error struct {
	// Kind はエラーの分類。
	Kind Kind
	// Field は検証エラーの対象フィールド名。検証エラー以外では空。
	Field string
	// Message は利用者向けのメッセージ。
	Message string
	// Err は原因となったエラー。
	Err error
}

// Error は error インターフェースを実装する。
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap は原因のエラーを返す。
func (e *Error) Unwrap() error {
	return e.Err
}

// Authentication は認証エラーを生成する。利用者には "unauthorized" 以上の情報を返さない。
func Authentication(err error) *Error {
	return &Error{Kind: KindAuthentication, Message: "unauthorized", Err: err}
}

// Validation はフィールド単位の検証エラーを生成する。
func Validation(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

// NotFound は未検出エラーを生成する。他の所有者のレコードの存在は区別しない。
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Upstream は外部依存の失敗を生成する。
func Upstream(message string, err error) *Error {
	return &Error{Kind: KindUpstream, Message: message, Err: err}
}

// Persistence はデータストアの失敗を生成する。
func Persistence(message string, err error) *Error {
	return &Error{Kind: KindPersistence, Message: message, Err: err}
}

// Internal は分類できない内部エラーを生成する。
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// Body はレスポンスボディの表現を返す。原因のエラーは含めない。
func (e *Error) Body() map[string]string {
	body := map[string]string{
		"error": e.Message,
		"code":  string(e.Kind),
	}
	if e.Field != "" {
		body["field"] = e.Field
	}
	return body
}

// KindOf はエラーチェーンから分類を取り出す。*Error を含まない場合は KindInternal。
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// As はエラーチェーンから *Error を取り出す。
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HTTPStatus は分類に対応するHTTPステータスコードを返す。
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
