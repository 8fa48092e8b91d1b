// 議事録サマリーサービスのエントリポイント。
// 議事録からLLMでサマリーを生成して所有者単位で保存し、メールで共有する。
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/nao1215/minutes/internal/summary"
	"github.com/nao1215/minutes/pkg/config"
	"github.com/nao1215/minutes/pkg/llm"
	"github.com/nao1215/minutes/pkg/mailer"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("サマリーサービスの実行に失敗: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := ensureDataDir(cfg.DatabaseURL); err != nil {
		return err
	}
	store, err := summary.OpenStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("データベースのクローズに失敗: %v", err)
		}
	}()

	provider, err := llm.New(cfg.LLM)
	if err != nil {
		return err
	}

	service := summary.NewService(
		store,
		summary.NewEngine(provider, cfg.LLMTimeout),
		summary.NewSharingService(mailer.NewSMTPMailer(cfg.Mail), cfg.MailTimeout),
	)

	server := summary.NewServer(summary.ServerConfig{
		Port:            cfg.Port,
		JWTSecret:       cfg.JWTSecret,
		CORSOrigins:     cfg.CORSOrigins,
		BodyLimit:       cfg.BodyLimit,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, service)

	log.Printf("LLMプロバイダ: %s / SMTP: %s:%d", provider.Name(), cfg.Mail.Host, cfg.Mail.Port)
	return server.Run(ctx)
}

// ensureDataDir はファイルDSNの保存先ディレクトリを作成する。
func ensureDataDir(dsn string) error {
	path, _, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")
	if path == "" || strings.Contains(path, ":memory:") {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o750)
}
