// 開発用のBearerトークンを発行するコマンド。
// 本番のトークン発行は認証基盤が担う。ローカルでAPIを試すときに使う。
//
//	JWT_SECRET=... go run ./cmd/devtoken -user user-1 -email alice@example.com
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/nao1215/minutes/pkg/middleware"
)

func main() {
	userID := flag.String("user", "dev-user", "トークンに含めるユーザーID")
	email := flag.String("email", "dev@example.com", "トークンに含めるメールアドレス")
	ttl := flag.Duration("ttl", 24*time.Hour, "トークンの有効期間")
	flag.Parse()

	_ = godotenv.Load()
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET が設定されていません")
	}

	token, err := middleware.GenerateJWT(secret, *userID, *email, *ttl)
	if err != nil {
		log.Fatalf("トークンの生成に失敗: %v", err)
	}
	fmt.Println(token)
}
