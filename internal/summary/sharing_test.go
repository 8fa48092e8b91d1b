package summary

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/minutes/pkg/apperror"
	"github.com/nao1215/minutes/pkg/mailer"
)

// fakeMailer はテスト用のMailer。送信したメッセージを記録する。
type fakeMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) messages() []mailer.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.sent)
}

func TestParseRecipients(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{name: "カンマ区切りを分割して空白を除去する", input: []string{" a@x.com , b@y.com "}, want: []string{"a@x.com", "b@y.com"}},
		{name: "配列の各要素も分割する", input: []string{"a@x.com", "b@y.com, c@z.com"}, want: []string{"a@x.com", "b@y.com", "c@z.com"}},
		{name: "空要素を捨てる", input: []string{"a@x.com,, ,", ""}, want: []string{"a@x.com"}},
		{name: "入力がない場合は空", input: nil, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ParseRecipients(tt.input); !slices.Equal(got, tt.want) {
				t.Errorf("ParseRecipients() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSharingService_Share(t *testing.T) {
	t.Parallel()

	t.Run("全宛先に1回で送信すること", func(t *testing.T) {
		t.Parallel()

		m := &fakeMailer{}
		svc := NewSharingService(m, time.Second)

		sent, err := svc.Share(t.Context(), ShareRequest{
			Content:    "summary body",
			Recipients: []string{"a@x.com, b@y.com"},
			Subject:    "Sprint Planning",
		})
		if err != nil {
			t.Fatalf("Share()でエラーが発生: %v", err)
		}
		if !slices.Equal(sent, []string{"a@x.com", "b@y.com"}) {
			t.Errorf("sent = %q", sent)
		}

		msgs := m.messages()
		if len(msgs) != 1 {
			t.Fatalf("送信回数 = %d, want 1", len(msgs))
		}
		if msgs[0].Subject != "Sprint Planning" || msgs[0].Body != "summary body" {
			t.Errorf("メッセージ = %+v", msgs[0])
		}
	})

	t.Run("件名が空なら既定のタイトルを使うこと", func(t *testing.T) {
		t.Parallel()

		m := &fakeMailer{}
		svc := NewSharingService(m, time.Second)
		if _, err := svc.Share(t.Context(), ShareRequest{Content: "body", Recipients: []string{"a@x.com"}}); err != nil {
			t.Fatalf("Share()でエラーが発生: %v", err)
		}
		if got := m.messages()[0].Subject; got != DefaultTitle {
			t.Errorf("Subject = %q, want %q", got, DefaultTitle)
		}
	})

	validation := []struct {
		name      string
		req       ShareRequest
		wantField string
	}{
		{
			name:      "1件でも不正なアドレスがあれば誰にも送らない",
			req:       ShareRequest{Content: "body", Recipients: []string{"a@x.com", "not-an-email"}},
			wantField: "recipients",
		},
		{
			name:      "宛先がなければ検証エラー",
			req:       ShareRequest{Content: "body", Recipients: []string{" , "}},
			wantField: "recipients",
		},
		{
			name:      "本文が空なら検証エラー",
			req:       ShareRequest{Content: "  ", Recipients: []string{"a@x.com"}},
			wantField: "summary",
		},
	}

	for _, tt := range validation {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := &fakeMailer{}
			svc := NewSharingService(m, time.Second)

			_, err := svc.Share(t.Context(), tt.req)
			appErr, ok := apperror.As(err)
			if !ok || appErr.Kind != apperror.KindValidation {
				t.Fatalf("Share() error = %v, want validation error", err)
			}
			if appErr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", appErr.Field, tt.wantField)
			}
			if len(m.messages()) != 0 {
				t.Error("検証エラーなのに送信された")
			}
		})
	}

	t.Run("送信失敗は上流エラー", func(t *testing.T) {
		t.Parallel()

		cause := errors.New("550 mailbox unavailable")
		svc := NewSharingService(&fakeMailer{err: cause}, time.Second)

		_, err := svc.Share(t.Context(), ShareRequest{Content: "body", Recipients: []string{"a@x.com"}})
		if apperror.KindOf(err) != apperror.KindUpstream {
			t.Fatalf("Share() error = %v, want upstream error", err)
		}
		if !errors.Is(err, cause) {
			t.Error("原因のエラーを辿れない")
		}
		appErr, _ := apperror.As(err)
		if appErr.Message == cause.Error() {
			t.Error("トランスポートのエラー文言が利用者向けメッセージに含まれている")
		}
	})
}
