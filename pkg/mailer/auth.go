package mailer

import (
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"github.com/emersion/go-sasl"
)

// ErrInsecureAuth は暗号化されていない接続で認証しようとしたことを表す。
var ErrInsecureAuth = errors.New("暗号化されていない接続では認証情報を送信しません")

// saslAuth はSASLクライアントを smtp.Auth として使うアダプタ。
type saslAuth struct {
	client sasl.Client
}

// Start は smtp.Auth を実装する。TLSでない接続ではローカルホスト以外への送信を拒否する。
func (a *saslAuth) Start(server *smtp.ServerInfo) (string, []byte, error) {
	if !server.TLS && !isLocalhost(server.Name) {
		return "", nil, ErrInsecureAuth
	}
	return a.client.Start()
}

// Next は smtp.Auth を実装する。
func (a *saslAuth) Next(fromServer []byte, more bool) ([]byte, error) {
	if !more {
		return nil, nil
	}
	return a.client.Next(fromServer)
}

// newSASLClient はサーバーが提示した認証方式からPLAIN、なければLOGINを選ぶ。
func newSASLClient(mechanisms, username, password string) (sasl.Client, error) {
	offered := strings.Fields(strings.ToUpper(mechanisms))
	has := func(mech string) bool {
		for _, m := range offered {
			if m == mech {
				return true
			}
		}
		return false
	}

	switch {
	case has("PLAIN"):
		return sasl.NewPlainClient("", username, password), nil
	case has("LOGIN"):
		return sasl.NewLoginClient(username, password), nil
	default:
		return nil, fmt.Errorf("対応する認証方式がありません: %q", mechanisms)
	}
}

func isLocalhost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
