package llm

import (
	"context"
	"strings"

	"github.com/nao1215/minutes/pkg/httpclient"
)

const (
	// groqBaseURL はGroqのOpenAI互換APIのベースURL。
	groqBaseURL = "https://api.groq.com/openai/v1"
	// groqDefaultModel はGroqで既定に使うモデル。
	groqDefaultModel = "llama-3.3-70b-versatile"
)

// chatMessage はChat Completions APIのメッセージ。
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatCompletionRequest はChat Completions APIのリクエストボディ。
type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream"`
}

// chatCompletionResponse はChat Completions APIのレスポンスボディ。
type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Groq はGroqのChat Completions APIを呼び出すProvider。
// OpenAI互換のため、BaseURLを変えれば他の互換APIにも使える。
type Groq struct {
	client *httpclient.Client
	model  string
}

// NewGroq は新しいGroqプロバイダを生成する。
func NewGroq(cfg Config) *Groq {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = groqBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = groqDefaultModel
	}
	return &Groq{
		client: httpclient.New(strings.TrimRight(baseURL, "/"),
			httpclient.WithTimeout(cfg.Timeout),
			httpclient.WithHeader("Authorization", "Bearer "+cfg.APIKey),
		),
		model: model,
	}
}

// Name はプロバイダ名を返す。
func (g *Groq) Name() string {
	return string(ProviderGroq)
}

// Complete はChat Completions APIを1回呼び出してテキストを生成する。
func (g *Groq) Complete(ctx context.Context, req Request) (*Response, error) {
	messages := make([]chatMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body := chatCompletionRequest{
		Model:       g.model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	var resp chatCompletionResponse
	if err := g.client.PostJSON(ctx, "/chat/completions", body, &resp); err != nil {
		return nil, classify(g.Name(), err)
	}

	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return nil, ErrEmptyResponse
	}

	return &Response{
		Text:         text,
		Model:        resp.Model,
		FinishReason: resp.Choices[0].FinishReason,
		PromptTokens: resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}
