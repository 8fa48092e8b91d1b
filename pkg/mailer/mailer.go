// Package mailer はSMTPでメールを送信するトランスポートを提供する。
//
// メッセージはemersion/go-messageでRFC 5322形式に組み立て、
// 全宛先を1回のSMTPトランザクションで送信する。いずれかの宛先が
// RCPTで拒否された場合はDATAを送らずに中断するため、一部の宛先だけに
// 配信されることはない。
package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/emersion/go-message/mail"
)

// Encryption はSMTP接続の暗号化方式。
type Encryption string

const (
	// EncryptionSTARTTLS はサーバーが対応していればSTARTTLSで昇格する。
	EncryptionSTARTTLS Encryption = "starttls"
	// EncryptionTLS は接続開始時からTLSを使う（通常はポート465）。
	EncryptionTLS Encryption = "tls"
	// EncryptionNone は暗号化しない。ローカルの中継サーバー向け。
	EncryptionNone Encryption = "none"
)

// Config はSMTP送信の設定。
type Config struct {
	// Host はSMTPサーバーのホスト名。
	Host string
	// Port はSMTPサーバーのポート番号。
	Port int
	// Username はSMTP認証のユーザー名。
	Username string
	// Password はSMTP認証のパスワード。
	Password string
	// From は送信元メールアドレス。
	From string
	// FromName は送信元の表示名。
	FromName string
	// Encryption は接続の暗号化方式。空の場合はポート465ならTLS、それ以外はSTARTTLS。
	Encryption Encryption
}

// Message は送信するプレーンテキストのメール。
type Message struct {
	// To は宛先メールアドレスの一覧。
	To []string
	// Subject は件名。
	Subject string
	// Body は本文（プレーンテキスト）。
	Body string
}

// ErrNoRecipients は宛先が1件もないことを表す。
var ErrNoRecipients = errors.New("宛先がありません")

// SMTPMailer はSMTPでメールを送信する。
type SMTPMailer struct {
	config Config
	// now はDateヘッダーに使う現在時刻を返す。
	now func() time.Time
}

// NewSMTPMailer は新しいSMTPMailerを生成する。
func NewSMTPMailer(cfg Config) *SMTPMailer {
	if cfg.Encryption == "" {
		cfg.Encryption = EncryptionSTARTTLS
		if cfg.Port == 465 {
			cfg.Encryption = EncryptionTLS
		}
	}
	return &SMTPMailer{config: cfg, now: time.Now}
}

// Send はメッセージを全宛先に1回のSMTPトランザクションで送信する。
// ctxのデッドラインは接続全体の読み書きデッドラインとして適用される。
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}

	raw, err := m.buildMessage(msg)
	if err != nil {
		return fmt.Errorf("メッセージの組み立てに失敗: %w", err)
	}

	client, err := m.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := m.authenticate(client); err != nil {
		return err
	}

	if err := client.Mail(m.config.From); err != nil {
		return fmt.Errorf("送信元の設定に失敗: %w", err)
	}
	for _, to := range msg.To {
		if err := client.Rcpt(to); err != nil {
			_ = client.Reset()
			return fmt.Errorf("宛先 %s が拒否されました: %w", to, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATAの開始に失敗: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("本文の送信に失敗: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("本文の確定に失敗: %w", err)
	}

	if err := client.Quit(); err != nil {
		return fmt.Errorf("QUITに失敗: %w", err)
	}
	return nil
}

// dial はSMTPサーバーに接続し、必要に応じてTLSへ昇格したクライアントを返す。
func (m *SMTPMailer) dial(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(m.config.Host, strconv.Itoa(m.config.Port))
	tlsConfig := &tls.Config{ServerName: m.config.Host, MinVersion: tls.VersionTLS12}

	var conn net.Conn
	var err error
	if m.config.Encryption == EncryptionTLS {
		dialer := &tls.Dialer{Config: tlsConfig}
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	} else {
		var d net.Dialer
		conn, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("SMTPサーバーへの接続に失敗: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, m.config.Host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("SMTPクライアントの作成に失敗: %w", err)
	}

	if m.config.Encryption == EncryptionSTARTTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				client.Close()
				return nil, fmt.Errorf("STARTTLSに失敗: %w", err)
			}
		}
	}
	return client, nil
}

// authenticate はユーザー名が設定されていればSASL認証を行う。
// サーバーが提示した方式のうちPLAINを優先し、なければLOGINを使う。
func (m *SMTPMailer) authenticate(client *smtp.Client) error {
	if m.config.Username == "" {
		return nil
	}
	ok, mechanisms := client.Extension("AUTH")
	if !ok {
		return errors.New("SMTPサーバーが認証に対応していません")
	}
	saslClient, err := newSASLClient(mechanisms, m.config.Username, m.config.Password)
	if err != nil {
		return err
	}
	if err := client.Auth(&saslAuth{client: saslClient}); err != nil {
		return fmt.Errorf("SMTP認証に失敗: %w", err)
	}
	return nil
}

// buildMessage はRFC 5322形式のメッセージを組み立てる。
func (m *SMTPMailer) buildMessage(msg Message) ([]byte, error) {
	var h mail.Header
	h.SetDate(m.now())
	h.SetAddressList("From", []*mail.Address{{Name: m.config.FromName, Address: m.config.From}})

	to := make([]*mail.Address, 0, len(msg.To))
	for _, addr := range msg.To {
		to = append(to, &mail.Address{Address: addr})
	}
	h.SetAddressList("To", to)
	h.SetSubject(msg.Subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("Message-IDの生成に失敗: %w", err)
	}
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(w, msg.Body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
