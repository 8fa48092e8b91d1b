package summary

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/nao1215/minutes/pkg/apperror"
	"github.com/nao1215/minutes/pkg/mailer"
)

// defaultShareTimeout はSharingServiceに上限が指定されなかった場合の送信タイムアウト。
const defaultShareTimeout = 30 * time.Second

// Mailer はメールを送信するトランスポート。
// 全宛先への送信を1回の呼び出しで行い、一部だけ配信された状態で成功を返してはならない。
type Mailer interface {
	Send(ctx context.Context, msg mailer.Message) error
}

// ShareRequest はサマリー共有の入力。
type ShareRequest struct {
	// Content は送信するサマリー本文。
	Content string
	// Recipients は宛先。各要素はカンマ区切りの複数アドレスでもよい。
	Recipients []string
	// Subject は件名。空の場合は DefaultTitle。
	Subject string
	// SummaryID は共有元のサマリーID。送信には影響しない。
	SummaryID string
}

// SharingService は宛先を検証し、サマリーをメールで一括送信する。
type SharingService struct {
	mailer   Mailer
	timeout  time.Duration
	validate *validator.Validate
}

// NewSharingService は新しいSharingServiceを生成する。timeout が0以下の場合は30秒を使う。
func NewSharingService(m Mailer, timeout time.Duration) *SharingService {
	if timeout <= 0 {
		timeout = defaultShareTimeout
	}
	return &SharingService{
		mailer:   m,
		timeout:  timeout,
		validate: validator.New(),
	}
}

// ParseRecipients は宛先入力をカンマで分割し、前後の空白を除去して空要素を捨てる。
// 入力の順序は保持する。
func ParseRecipients(inputs []string) []string {
	recipients := make([]string, 0, len(inputs))
	for _, input := range inputs {
		for part := range strings.SplitSeq(input, ",") {
			if addr := strings.TrimSpace(part); addr != "" {
				recipients = append(recipients, addr)
			}
		}
	}
	return recipients
}

// ValidateRecipients は宛先を解析し、すべてのアドレスの形式を検証する。
// 1件でも不正なアドレスがあれば検証エラーを返す。
func (s *SharingService) ValidateRecipients(inputs []string) ([]string, error) {
	recipients := ParseRecipients(inputs)
	if len(recipients) == 0 {
		return nil, apperror.Validation("recipients", "at least one recipient is required")
	}
	for _, addr := range recipients {
		if err := s.validate.Var(addr, "required,email"); err != nil {
			return nil, apperror.Validation("recipients", fmt.Sprintf("invalid email address: %s", addr))
		}
	}
	return recipients, nil
}

// Share はサマリーを全宛先に送信し、送信した宛先を返す。
// 宛先をすべて検証してから1回だけ送信するため、検証に失敗した場合は誰にも送られない。
func (s *SharingService) Share(ctx context.Context, req ShareRequest) ([]string, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, apperror.Validation("summary", "summary content is required")
	}
	recipients, err := s.ValidateRecipients(req.Recipients)
	if err != nil {
		return nil, err
	}

	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		subject = DefaultTitle
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.mailer.Send(ctx, mailer.Message{
		To:      recipients,
		Subject: subject,
		Body:    req.Content,
	}); err != nil {
		log.Printf("[Mail] サマリーの送信に失敗 summary=%q recipients=%d: %v", req.SummaryID, len(recipients), err)
		return nil, apperror.Upstream("failed to send email", err)
	}

	log.Printf("[Mail] サマリーを送信しました summary=%q recipients=%d", req.SummaryID, len(recipients))
	return recipients, nil
}
