// Package config はプロセス起動時に環境変数から設定を読み込む。
//
// .env ファイルがあれば先に読み込み、必須の値が欠けている場合は
// すべての不足をまとめて起動時にエラーとして返す。
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/nao1215/minutes/pkg/llm"
	"github.com/nao1215/minutes/pkg/mailer"
)

const (
	defaultPort            = "5000"
	defaultDatabaseURL     = "file:data/minutes.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	defaultFrontendURL     = "http://localhost:5173"
	defaultSMTPHost        = "smtp.gmail.com"
	defaultSMTPPort        = 587
	defaultMailFromName    = "Meeting Summarizer"
	defaultLLMTimeout      = 60 * time.Second
	defaultMailTimeout     = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultBodyLimit       = 10 << 20
)

// Config はサマリーサービス全体の設定。
type Config struct {
	// Port はHTTPサーバーのリッスンポート。
	Port string
	// JWTSecret はBearerトークンの検証に使う共有シークレット。
	JWTSecret string
	// DatabaseURL はSQLiteのDSN。
	DatabaseURL string

	// LLM はLLMプロバイダの設定。
	LLM llm.Config
	// LLMTimeout は1回の生成リクエストの上限時間。
	LLMTimeout time.Duration

	// CORSOrigins はクロスオリジンリクエストを許可するオリジン。
	CORSOrigins []string

	// Mail はSMTP送信の設定。
	Mail mailer.Config
	// MailTimeout は1回の送信の上限時間。
	MailTimeout time.Duration

	// BodyLimit はリクエストボディの最大バイト数。
	BodyLimit int64
	// ShutdownTimeout はグレースフルシャットダウンの上限時間。
	ShutdownTimeout time.Duration
}

// LookupFunc は環境変数の値を返す。os.LookupEnv と同じ形。
type LookupFunc func(key string) (string, bool)

// Load は .env ファイルとプロセスの環境変数から設定を読み込む。
func Load() (*Config, error) {
	// .env ファイルは任意。既に設定済みの環境変数は上書きしない
	_ = godotenv.Load()
	return FromLookup(os.LookupEnv)
}

// FromLookup は lookup から設定を読み込んで検証する。
// 不足や不正な値はすべてまとめて1つのエラーとして返す。
func FromLookup(lookup LookupFunc) (*Config, error) {
	r := &reader{lookup: lookup}

	cfg := &Config{
		Port:            r.str("PORT", defaultPort),
		JWTSecret:       r.required("JWT_SECRET"),
		DatabaseURL:     r.str("DATABASE_URL", defaultDatabaseURL),
		LLMTimeout:      r.duration("LLM_TIMEOUT", defaultLLMTimeout),
		MailTimeout:     r.duration("MAIL_TIMEOUT", defaultMailTimeout),
		BodyLimit:       int64(r.integer("BODY_LIMIT_BYTES", defaultBodyLimit)),
		ShutdownTimeout: r.duration("SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
	}

	provider := llm.ProviderType(strings.ToLower(r.str("LLM_PROVIDER", string(llm.ProviderGroq))))
	cfg.LLM = llm.Config{
		Provider: provider,
		Model:    r.str("LLM_MODEL", ""),
		BaseURL:  r.str("LLM_BASE_URL", ""),
		Timeout:  cfg.LLMTimeout,
	}
	switch provider {
	case llm.ProviderGroq:
		cfg.LLM.APIKey = r.required("GROQ_API_KEY")
	case llm.ProviderGemini:
		cfg.LLM.APIKey = r.required("GEMINI_API_KEY")
	default:
		r.fail(fmt.Errorf("LLM_PROVIDER: 未知のプロバイダです: %q", provider))
	}

	cfg.CORSOrigins = corsOrigins(r.str("FRONTEND_URL", ""), r.str("CORS_ORIGINS", ""))

	user := r.required("EMAIL_USER")
	cfg.Mail = mailer.Config{
		Host:       r.str("SMTP_HOST", defaultSMTPHost),
		Port:       r.integer("SMTP_PORT", defaultSMTPPort),
		Username:   user,
		Password:   r.required("EMAIL_PASS"),
		From:       r.str("MAIL_FROM", user),
		FromName:   r.str("MAIL_FROM_NAME", defaultMailFromName),
		Encryption: mailer.Encryption(strings.ToLower(r.str("SMTP_ENCRYPTION", ""))),
	}
	if cfg.Mail.From != "" {
		if err := validator.New().Var(cfg.Mail.From, "email"); err != nil {
			r.fail(fmt.Errorf("MAIL_FROM: メールアドレスの形式が不正です: %q", cfg.Mail.From))
		}
	}
	switch cfg.Mail.Encryption {
	case "", mailer.EncryptionSTARTTLS, mailer.EncryptionTLS, mailer.EncryptionNone:
	default:
		r.fail(fmt.Errorf("SMTP_ENCRYPTION: 未知の暗号化方式です: %q", cfg.Mail.Encryption))
	}

	if err := errors.Join(r.errs...); err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}
	return cfg, nil
}

// corsOrigins は既定のフロントエンドURL、FRONTEND_URL、CORS_ORIGINS（カンマ区切り）を
// 末尾のスラッシュを除いて重複なく並べる。
func corsOrigins(frontendURL, extra string) []string {
	candidates := []string{defaultFrontendURL, frontendURL}
	candidates = append(candidates, strings.Split(extra, ",")...)

	seen := make(map[string]struct{}, len(candidates))
	origins := make([]string, 0, len(candidates))
	for _, c := range candidates {
		o := strings.TrimRight(strings.TrimSpace(c), "/")
		if o == "" {
			continue
		}
		if _, ok := seen[o]; ok {
			continue
		}
		seen[o] = struct{}{}
		origins = append(origins, o)
	}
	return origins
}

// reader は環境変数を読み込み、エラーを蓄積する。
type reader struct {
	lookup LookupFunc
	errs   []error
}

func (r *reader) fail(err error) {
	r.errs = append(r.errs, err)
}

func (r *reader) str(key, def string) string {
	if v, ok := r.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (r *reader) required(key string) string {
	v := r.str(key, "")
	if v == "" {
		r.fail(fmt.Errorf("%s: 必須の環境変数が設定されていません", key))
	}
	return v
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		r.fail(fmt.Errorf("%s: 正の期間を指定してください: %q", key, v))
		return def
	}
	return d
}

func (r *reader) integer(key string, def int) int {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		r.fail(fmt.Errorf("%s: 正の整数を指定してください: %q", key, v))
		return def
	}
	return n
}
