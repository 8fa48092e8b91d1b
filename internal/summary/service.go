package summary

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/nao1215/minutes/pkg/apperror"
	"github.com/nao1215/minutes/pkg/event"
	"github.com/nao1215/minutes/pkg/llm"
)

// Repository はサマリーの永続化を担う。*Store が実装する。
type Repository interface {
	Create(ctx context.Context, p CreateParams) (*Summary, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Summary, error)
	GetByID(ctx context.Context, ownerID, id string) (*Summary, error)
	UpdateTitle(ctx context.Context, ownerID, id, title string) (*Summary, error)
	DeleteByID(ctx context.Context, ownerID, id string) error
	RecordEvent(ctx context.Context, ownerID, summaryID string, eventType event.Type, data any) error
}

// Summarizer はサマリー本文を生成する。*Engine が実装する。
type Summarizer interface {
	Generate(ctx context.Context, transcript, prompt string) (string, error)
}

// Sharer はサマリーをメールで共有する。*SharingService が実装する。
type Sharer interface {
	ValidateRecipients(inputs []string) ([]string, error)
	Share(ctx context.Context, req ShareRequest) ([]string, error)
}

// GenerateInput はサマリー生成の入力。
type GenerateInput struct {
	Title      string
	Transcript string
	Prompt     string
}

// ShareInput はサマリー共有の入力。
type ShareInput struct {
	// Content は送信するサマリー本文。SummaryID がある場合、空なら保存済みの本文を使う。
	Content string
	// Recipients は宛先の入力。
	Recipients []string
	// SummaryID は共有元のサマリーID。任意。
	SummaryID string
}

// Service はサマリーのユースケースを提供する。
// 返すエラーはすべて apperror で分類済み。
type Service struct {
	repo   Repository
	engine Summarizer
	sharer Sharer
}

// NewService は新しいServiceを生成する。
func NewService(repo Repository, engine Summarizer, sharer Sharer) *Service {
	return &Service{repo: repo, engine: engine, sharer: sharer}
}

// Generate は議事録からサマリーを生成して保存する。
// どの段階で失敗しても何も保存しない。
func (s *Service) Generate(ctx context.Context, ownerID string, in GenerateInput) (*Summary, error) {
	if strings.TrimSpace(in.Transcript) == "" {
		return nil, apperror.Validation("transcript", "transcript is required")
	}
	prompt := in.Prompt
	if strings.TrimSpace(prompt) == "" {
		prompt = DefaultPrompt
	}

	content, err := s.engine.Generate(ctx, in.Transcript, prompt)
	if err != nil {
		return nil, generationError(err)
	}

	sm, err := s.repo.Create(ctx, CreateParams{
		OwnerID:    ownerID,
		Title:      in.Title,
		Transcript: in.Transcript,
		Prompt:     prompt,
		Content:    content,
	})
	if err != nil {
		return nil, storeError("failed to save summary", err)
	}

	log.Printf("[Summary] サマリーを作成しました owner=%s id=%s", ownerID, sm.ID)
	return sm, nil
}

// List は所有者のサマリー一覧を返す。
func (s *Service) List(ctx context.Context, ownerID string) ([]Summary, error) {
	summaries, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, storeError("failed to load summaries", err)
	}
	return summaries, nil
}

// UpdateTitle はサマリーのタイトルを変更する。
func (s *Service) UpdateTitle(ctx context.Context, ownerID, id, title string) (*Summary, error) {
	if strings.TrimSpace(title) == "" {
		return nil, apperror.Validation("title", "title is required")
	}
	sm, err := s.repo.UpdateTitle(ctx, ownerID, id, title)
	if err != nil {
		return nil, storeError("failed to update summary", err)
	}
	return sm, nil
}

// Delete はサマリーを削除する。
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	if err := s.repo.DeleteByID(ctx, ownerID, id); err != nil {
		return storeError("failed to delete summary", err)
	}
	log.Printf("[Summary] サマリーを削除しました owner=%s id=%s", ownerID, id)
	return nil
}

// Share はサマリーをメールで共有し、送信した宛先を返す。
// 宛先の検証を最初に行う。SummaryID がある場合は呼び出し元が所有している必要があり、
// そのタイトルを件名に使う。送信成功後の監査イベントの記録失敗は共有の失敗にしない。
func (s *Service) Share(ctx context.Context, ownerID string, in ShareInput) ([]string, error) {
	recipients, err := s.sharer.ValidateRecipients(in.Recipients)
	if err != nil {
		return nil, err
	}

	content := in.Content
	subject := DefaultTitle
	if in.SummaryID != "" {
		sm, err := s.repo.GetByID(ctx, ownerID, in.SummaryID)
		if err != nil {
			return nil, storeError("failed to load summary", err)
		}
		subject = sm.Title
		if strings.TrimSpace(content) == "" {
			content = sm.Content
		}
	}

	sent, err := s.sharer.Share(ctx, ShareRequest{
		Content:    content,
		Recipients: recipients,
		Subject:    subject,
		SummaryID:  in.SummaryID,
	})
	if err != nil {
		return nil, err
	}

	if in.SummaryID != "" {
		if err := s.repo.RecordEvent(ctx, ownerID, in.SummaryID, event.TypeSummaryShared, event.SummarySharedData{
			RecipientCount: len(sent),
			Subject:        subject,
		}); err != nil {
			log.Printf("[Summary] 共有イベントの記録に失敗 owner=%s id=%s: %v", ownerID, in.SummaryID, err)
		}
	}
	return sent, nil
}

// generationError はサマリー生成の失敗を分類する。プロバイダの応答内容は利用者に返さない。
func generationError(err error) error {
	if _, ok := apperror.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, ErrEmptyTranscript):
		return apperror.Validation("transcript", "transcript is required")
	case errors.Is(err, llm.ErrRateLimited):
		return apperror.Upstream("summary provider rate limit exceeded, please retry later", err)
	case errors.Is(err, llm.ErrUnavailable):
		return apperror.Upstream("summary provider is unavailable, please retry later", err)
	case errors.Is(err, llm.ErrRejected):
		return apperror.Upstream("summary provider rejected the request", err)
	default:
		return apperror.Upstream("summary provider returned an invalid response", err)
	}
}

// storeError はStoreの失敗を分類する。分類できない失敗はログに残して永続化エラーにする。
func storeError(message string, err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return apperror.NotFound("summary not found")
	case errors.Is(err, ErrEmptyTranscript):
		return apperror.Validation("transcript", "transcript is required")
	case errors.Is(err, ErrEmptyPrompt):
		return apperror.Validation("prompt", "prompt is required")
	case errors.Is(err, ErrEmptyContent):
		return apperror.Validation("summary", "summary content is required")
	case errors.Is(err, ErrEmptyTitle):
		return apperror.Validation("title", "title is required")
	default:
		log.Printf("[Summary] %s: %v", message, err)
		return apperror.Persistence(message, err)
	}
}
