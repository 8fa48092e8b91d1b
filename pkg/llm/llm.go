// Package llm は外部LLMプロバイダへの単発のテキスト生成リクエストを抽象化する。
//
// プロバイダごとのAPI差異を Provider インターフェースの背後に隠し、
// 失敗を「利用不可」「レート制限」「空応答」の3種類に分類して返す。
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nao1215/minutes/pkg/httpclient"
)

var (
	// ErrUnavailable はプロバイダに到達できない、タイムアウトした、または5xxを返したことを表す。
	ErrUnavailable = errors.New("llm provider unavailable")
	// ErrRateLimited はレート制限またはクォータ超過を表す。
	ErrRateLimited = errors.New("llm provider rate limited")
	// ErrEmptyResponse は応答が空または解釈できないことを表す。
	ErrEmptyResponse = errors.New("llm provider returned empty response")
	// ErrRejected はプロバイダがリクエストを拒否したこと（4xx）を表す。
	ErrRejected = errors.New("llm provider rejected request")
)

// Request はテキスト生成リクエスト。
type Request struct {
	// SystemPrompt はシステム指示。空の場合は送らない。
	SystemPrompt string
	// Prompt はユーザーメッセージ本文。
	Prompt string
	// MaxTokens は生成トークン数の上限。0の場合はプロバイダの既定値。
	MaxTokens int
	// Temperature はサンプリング温度。
	Temperature float64
}

// Response はテキスト生成の結果。
type Response struct {
	// Text は生成されたテキスト。
	Text string
	// Model は実際に使用されたモデル名。
	Model string
	// FinishReason は生成終了理由。
	FinishReason string
	// PromptTokens は入力トークン数。
	PromptTokens int
	// OutputTokens は出力トークン数。
	OutputTokens int
}

// Provider はLLMプロバイダが実装するインターフェース。
type Provider interface {
	// Name はプロバイダ名を返す。
	Name() string
	// Complete は1回の同期リクエストでテキストを生成する。
	Complete(ctx context.Context, req Request) (*Response, error)
}

// ProviderType はプロバイダの種類。
type ProviderType string

const (
	// ProviderGroq はGroq（OpenAI互換Chat Completions API）。
	ProviderGroq ProviderType = "groq"
	// ProviderGemini はGoogle Gemini（generateContent API）。
	ProviderGemini ProviderType = "gemini"
)

// Config はプロバイダの設定。
type Config struct {
	// Provider はプロバイダの種類。
	Provider ProviderType
	// APIKey はプロバイダのAPIキー。
	APIKey string
	// Model は使用するモデル名。空の場合はプロバイダの既定値。
	Model string
	// BaseURL はAPIのベースURL。空の場合はプロバイダの既定値。
	BaseURL string
	// Timeout はHTTPリクエストのタイムアウト。
	Timeout time.Duration
}

// New は設定に応じたProviderを生成する。
func New(cfg Config) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%sのAPIキーが設定されていません", cfg.Provider)
	}

	switch cfg.Provider {
	case ProviderGroq, "":
		return NewGroq(cfg), nil
	case ProviderGemini:
		return NewGemini(cfg), nil
	default:
		return nil, fmt.Errorf("未知のLLMプロバイダです: %s", cfg.Provider)
	}
}

// classify はHTTP通信のエラーを分類済みエラーに変換する。
// 元のエラーはラップして保持するため、ログには詳細が残る。
func classify(provider string, err error) error {
	var statusErr *httpclient.StatusError
	switch {
	case errors.As(err, &statusErr):
		switch {
		case statusErr.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%s: %w: %w", provider, ErrRateLimited, err)
		case statusErr.StatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("%s: %w: %w", provider, ErrUnavailable, err)
		default:
			return fmt.Errorf("%s: %w: %w", provider, ErrRejected, err)
		}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w: %w", provider, ErrUnavailable, err)
	default:
		// 接続拒否・名前解決失敗などのネットワークエラー、または壊れたJSON
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) {
			return fmt.Errorf("%s: %w: %w", provider, ErrUnavailable, err)
		}
		return fmt.Errorf("%s: %w: %w", provider, ErrEmptyResponse, err)
	}
}
