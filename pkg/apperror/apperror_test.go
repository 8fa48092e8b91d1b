package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "検証エラー", err: Validation("transcript", "必須です"), want: KindValidation},
		{name: "未検出エラー", err: NotFound("見つかりません"), want: KindNotFound},
		{name: "上流エラー", err: Upstream("再試行してください", cause), want: KindUpstream},
		{name: "永続化エラー", err: Persistence("保存に失敗しました", cause), want: KindPersistence},
		{name: "認証エラー", err: Authentication(cause), want: KindAuthentication},
		{name: "ラップされたエラーも分類できる", err: fmt.Errorf("生成に失敗: %w", NotFound("x")), want: KindNotFound},
		{name: "分類なしのエラーは内部エラー", err: cause, want: KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind Kind
		want int
	}{
		{KindAuthentication, http.StatusUnauthorized},
		{KindValidation, http.StatusBadRequest},
		{KindNotFound, http.StatusNotFound},
		{KindUpstream, http.StatusBadGateway},
		{KindPersistence, http.StatusInternalServerError},
		{KindInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := HTTPStatus(tt.kind); got != tt.want {
			t.Errorf("HTTPStatus(%q) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestError_Unwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("disk I/O error")
	err := Persistence("保存に失敗しました", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is() で原因のエラーを辿れない")
	}

	appErr, ok := As(fmt.Errorf("wrap: %w", err))
	if !ok {
		t.Fatal("As() が *Error を取り出せない")
	}
	if appErr.Message != "保存に失敗しました" {
		t.Errorf("Message = %q, want %q", appErr.Message, "保存に失敗しました")
	}
}

func TestError_Body(t *testing.T) {
	t.Parallel()

	t.Run("フィールド付きの検証エラー", func(t *testing.T) {
		t.Parallel()

		body := Validation("recipients", "invalid email address: bob@").Body()
		if body["error"] != "invalid email address: bob@" || body["code"] != "validation_error" || body["field"] != "recipients" {
			t.Errorf("Body() = %v", body)
		}
	})

	t.Run("原因のエラーを含まないこと", func(t *testing.T) {
		t.Parallel()

		body := Internal("internal server error", errors.New("panic: nil map")).Body()
		if len(body) != 2 {
			t.Errorf("Body() = %v, want error と code のみ", body)
		}
		if body["code"] != "internal_error" {
			t.Errorf("code = %q, want %q", body["code"], "internal_error")
		}
	})
}
