package llm

import (
	"context"
	"net/url"
	"strings"

	"github.com/nao1215/minutes/pkg/httpclient"
)

const (
	// geminiBaseURL はGemini APIのベースURL。
	geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	// geminiDefaultModel はGeminiで既定に使うモデル。
	geminiDefaultModel = "gemini-2.5-flash"
)

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
}

// geminiRequest はgenerateContent APIのリクエストボディ。
type geminiRequest struct {
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

// geminiResponse はgenerateContent APIのレスポンスボディ。
type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
}

// Gemini はGoogle Geminiのテキスト生成APIを呼び出すProvider。
type Gemini struct {
	client *httpclient.Client
	model  string
}

// NewGemini は新しいGeminiプロバイダを生成する。
func NewGemini(cfg Config) *Gemini {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = geminiBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = geminiDefaultModel
	}
	return &Gemini{
		client: httpclient.New(strings.TrimRight(baseURL, "/"),
			httpclient.WithTimeout(cfg.Timeout),
			httpclient.WithHeader("x-goog-api-key", cfg.APIKey),
		),
		model: model,
	}
}

// Name はプロバイダ名を返す。
func (g *Gemini) Name() string {
	return string(ProviderGemini)
}

// Complete はgenerateContent APIを1回呼び出してテキストを生成する。
func (g *Gemini) Complete(ctx context.Context, req Request) (*Response, error) {
	body := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}},
		},
		GenerationConfig: geminiGenerationConfig{
			MaxOutputTokens: req.MaxTokens,
			Temperature:     req.Temperature,
		},
	}
	if req.SystemPrompt != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.SystemPrompt}}}
	}

	path := "/models/" + url.PathEscape(g.model) + ":generateContent"
	var resp geminiResponse
	if err := g.client.PostJSON(ctx, path, body, &resp); err != nil {
		return nil, classify(g.Name(), err)
	}

	if len(resp.Candidates) == 0 {
		return nil, ErrEmptyResponse
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return nil, ErrEmptyResponse
	}

	model := resp.ModelVersion
	if model == "" {
		model = g.model
	}
	return &Response{
		Text:         text,
		Model:        model,
		FinishReason: resp.Candidates[0].FinishReason,
		PromptTokens: resp.UsageMetadata.PromptTokenCount,
		OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
	}, nil
}
