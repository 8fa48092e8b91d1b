package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// newJSONServer は固定のステータスとボディを返すテスト用サーバーを生成する。
// 受け取ったリクエストボディとヘッダーはコールバックに渡す。
func newJSONServer(t *testing.T, status int, body string, inspect func(r *http.Request, body []byte)) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqBody, _ := io.ReadAll(r.Body)
		if inspect != nil {
			inspect(r, reqBody)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("APIキーがない場合はエラー", func(t *testing.T) {
		t.Parallel()
		if _, err := New(Config{Provider: ProviderGroq}); err == nil {
			t.Fatal("APIキーなしでエラーが返るべき")
		}
	})

	t.Run("未知のプロバイダはエラー", func(t *testing.T) {
		t.Parallel()
		if _, err := New(Config{Provider: "unknown", APIKey: "k"}); err == nil {
			t.Fatal("未知のプロバイダでエラーが返るべき")
		}
	})

	t.Run("プロバイダ種別に応じた実装が返ること", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			provider ProviderType
			want     string
		}{
			{ProviderGroq, "groq"},
			{"", "groq"},
			{ProviderGemini, "gemini"},
		}
		for _, tt := range tests {
			p, err := New(Config{Provider: tt.provider, APIKey: "k"})
			if err != nil {
				t.Fatalf("New(%q)でエラーが発生: %v", tt.provider, err)
			}
			if p.Name() != tt.want {
				t.Errorf("Name() = %q, want %q", p.Name(), tt.want)
			}
		}
	})
}

func TestGroq_Complete(t *testing.T) {
	t.Parallel()

	t.Run("正常にテキストを生成できること", func(t *testing.T) {
		t.Parallel()

		var sent chatCompletionRequest
		var auth string
		ts := newJSONServer(t, http.StatusOK, `{
			"model": "llama-3.3-70b-versatile",
			"choices": [{"message": {"role": "assistant", "content": "  決定事項: v2をリリースする  "}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 42, "completion_tokens": 7}
		}`, func(r *http.Request, body []byte) {
			auth = r.Header.Get("Authorization")
			if r.URL.Path != "/chat/completions" {
				t.Errorf("Path = %q, want /chat/completions", r.URL.Path)
			}
			_ = json.Unmarshal(body, &sent)
		})

		p := NewGroq(Config{APIKey: "groq-key", BaseURL: ts.URL})
		resp, err := p.Complete(context.Background(), Request{SystemPrompt: "sys", Prompt: "要約して"})
		if err != nil {
			t.Fatalf("Complete()でエラーが発生: %v", err)
		}

		if resp.Text != "決定事項: v2をリリースする" {
			t.Errorf("Text = %q", resp.Text)
		}
		if resp.PromptTokens != 42 || resp.OutputTokens != 7 {
			t.Errorf("トークン数 = %d/%d, want 42/7", resp.PromptTokens, resp.OutputTokens)
		}
		if auth != "Bearer groq-key" {
			t.Errorf("Authorization = %q, want %q", auth, "Bearer groq-key")
		}
		if sent.Model != groqDefaultModel {
			t.Errorf("Model = %q, want %q", sent.Model, groqDefaultModel)
		}
		if sent.Stream {
			t.Error("ストリーミングは無効であるべき")
		}
		if len(sent.Messages) != 2 || sent.Messages[0].Role != "system" || sent.Messages[1].Content != "要約して" {
			t.Errorf("Messages = %+v", sent.Messages)
		}
	})

	errorCases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{name: "429はレート制限", status: http.StatusTooManyRequests, body: `{"error":{"message":"rate limit"}}`, want: ErrRateLimited},
		{name: "503は利用不可", status: http.StatusServiceUnavailable, body: `{}`, want: ErrUnavailable},
		{name: "401は拒否", status: http.StatusUnauthorized, body: `{}`, want: ErrRejected},
		{name: "choicesが空なら空応答", status: http.StatusOK, body: `{"choices": []}`, want: ErrEmptyResponse},
		{name: "本文が空白のみなら空応答", status: http.StatusOK, body: `{"choices": [{"message": {"content": "   "}}]}`, want: ErrEmptyResponse},
		{name: "壊れたJSONは空応答", status: http.StatusOK, body: `{"choices": [`, want: ErrEmptyResponse},
	}

	for _, tt := range errorCases {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ts := newJSONServer(t, tt.status, tt.body, nil)
			_, err := NewGroq(Config{APIKey: "k", BaseURL: ts.URL}).Complete(context.Background(), Request{Prompt: "p"})
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}

	t.Run("接続できない場合は利用不可", func(t *testing.T) {
		t.Parallel()

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("リスナーの作成に失敗: %v", err)
		}
		addr := ln.Addr().String()
		ln.Close()

		_, err = NewGroq(Config{APIKey: "k", BaseURL: "http://" + addr}).Complete(context.Background(), Request{Prompt: "p"})
		if !errors.Is(err, ErrUnavailable) {
			t.Errorf("error = %v, want %v", err, ErrUnavailable)
		}
	})

	t.Run("タイムアウトは利用不可", func(t *testing.T) {
		t.Parallel()

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		t.Cleanup(ts.Close)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := NewGroq(Config{APIKey: "k", BaseURL: ts.URL}).Complete(ctx, Request{Prompt: "p"})
		if !errors.Is(err, ErrUnavailable) {
			t.Errorf("error = %v, want %v", err, ErrUnavailable)
		}
	})
}

func TestGemini_Complete(t *testing.T) {
	t.Parallel()

	t.Run("正常にテキストを生成できること", func(t *testing.T) {
		t.Parallel()

		var sent geminiRequest
		var apiKey, path string
		ts := newJSONServer(t, http.StatusOK, `{
			"candidates": [{"content": {"parts": [{"text": "要点1"}, {"text": "、要点2"}]}, "finishReason": "STOP"}],
			"usageMetadata": {"promptTokenCount": 10, "candidatesTokenCount": 4}
		}`, func(r *http.Request, body []byte) {
			apiKey = r.Header.Get("x-goog-api-key")
			path = r.URL.Path
			_ = json.Unmarshal(body, &sent)
		})

		resp, err := NewGemini(Config{APIKey: "gemini-key", BaseURL: ts.URL}).Complete(context.Background(), Request{Prompt: "要約して"})
		if err != nil {
			t.Fatalf("Complete()でエラーが発生: %v", err)
		}

		if resp.Text != "要点1、要点2" {
			t.Errorf("Text = %q, want %q", resp.Text, "要点1、要点2")
		}
		if resp.Model != geminiDefaultModel {
			t.Errorf("Model = %q, want %q", resp.Model, geminiDefaultModel)
		}
		if apiKey != "gemini-key" {
			t.Errorf("x-goog-api-key = %q, want %q", apiKey, "gemini-key")
		}
		if path != "/models/"+geminiDefaultModel+":generateContent" {
			t.Errorf("Path = %q", path)
		}
		if sent.SystemInstruction != nil {
			t.Error("システム指示が空の場合は送らないべき")
		}
		if len(sent.Contents) != 1 || sent.Contents[0].Parts[0].Text != "要約して" {
			t.Errorf("Contents = %+v", sent.Contents)
		}
	})

	t.Run("候補が空なら空応答", func(t *testing.T) {
		t.Parallel()

		ts := newJSONServer(t, http.StatusOK, `{"candidates": []}`, nil)
		_, err := NewGemini(Config{APIKey: "k", BaseURL: ts.URL}).Complete(context.Background(), Request{Prompt: "p"})
		if !errors.Is(err, ErrEmptyResponse) {
			t.Errorf("error = %v, want %v", err, ErrEmptyResponse)
		}
	})

	t.Run("429はレート制限", func(t *testing.T) {
		t.Parallel()

		ts := newJSONServer(t, http.StatusTooManyRequests, `{"error":{"status":"RESOURCE_EXHAUSTED"}}`, nil)
		_, err := NewGemini(Config{APIKey: "k", BaseURL: ts.URL}).Complete(context.Background(), Request{Prompt: "p"})
		if !errors.Is(err, ErrRateLimited) {
			t.Errorf("error = %v, want %v", err, ErrRateLimited)
		}
	})
}
