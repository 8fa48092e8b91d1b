package summary

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nao1215/minutes/pkg/llm"
)

// defaultGenerateTimeout はEngineに上限が指定されなかった場合の生成タイムアウト。
const defaultGenerateTimeout = 60 * time.Second

// Engine はLLMプロバイダに議事録と指示文を送り、サマリー本文を生成する。
type Engine struct {
	// provider はテキスト生成を行うLLMプロバイダ。
	provider llm.Provider
	// timeout は1回の生成リクエストの上限時間。
	timeout time.Duration
}

// NewEngine は新しいEngineを生成する。timeout が0以下の場合は60秒を使う。
func NewEngine(provider llm.Provider, timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = defaultGenerateTimeout
	}
	return &Engine{provider: provider, timeout: timeout}
}

// Generate はサマリー本文を生成する。
// 議事録が空白のみの場合はプロバイダを呼ばずに ErrEmptyTranscript を返す。
// 指示文が空の場合は DefaultPrompt を使う。プロバイダの失敗は llm パッケージの分類済みエラーで返す。
func (e *Engine) Generate(ctx context.Context, transcript, prompt string) (string, error) {
	if strings.TrimSpace(transcript) == "" {
		return "", ErrEmptyTranscript
	}
	if strings.TrimSpace(prompt) == "" {
		prompt = DefaultPrompt
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	resp, err := e.provider.Complete(ctx, llm.Request{
		Prompt: composePrompt(prompt, transcript),
	})
	if err != nil {
		log.Printf("[LLM] %s: サマリー生成に失敗 (%s): %v", e.provider.Name(), time.Since(start).Round(time.Millisecond), err)
		return "", err
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", fmt.Errorf("%s: %w", e.provider.Name(), llm.ErrEmptyResponse)
	}

	log.Printf("[LLM] %s: サマリーを生成しました model=%s tokens=%d/%d (%s)",
		e.provider.Name(), resp.Model, resp.PromptTokens, resp.OutputTokens, time.Since(start).Round(time.Millisecond))
	return text, nil
}

// composePrompt は指示文と議事録を1つのユーザーメッセージにまとめる。
func composePrompt(prompt, transcript string) string {
	return prompt + "\n\nTranscript:\n" + transcript
}
