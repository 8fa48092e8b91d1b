package middleware

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/nao1215/minutes/pkg/apperror"
)

// JWTClaims はJWTトークンのクレーム（ペイロード）を表す。
type JWTClaims struct {
	jwt.RegisteredClaims
	// UserID は認証済みユーザーの一意識別子。空の場合は sub クレームを使う。
	UserID string `json:"user_id"`
	// Email はユーザーのメールアドレス。
	Email string `json:"email"`
}

// identity はクレームから利用者IDを解決する。
func (c *JWTClaims) identity() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

var (
	// ErrCredentialAbsent はBearerトークンが提示されていないことを表す。
	ErrCredentialAbsent = errors.New("credential absent")
	// ErrCredentialInvalid はトークンの形式・署名・クレームが不正であることを表す。
	ErrCredentialInvalid = errors.New("credential invalid")
	// ErrCredentialExpired はトークンの有効期限が切れていることを表す。
	ErrCredentialExpired = errors.New("credential expired")
)

// tokenIssuer はこのサービスが発行するトークンの発行者名。
const tokenIssuer = "minutes"

// GenerateJWT はユーザー情報から有効期限 ttl のJWTトークンを生成する。
// 本番のトークン発行は認証基盤が担う。テストと開発用トークンの発行に使う。
func GenerateJWT(secret, userID, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
		UserID: userID,
		Email:  email,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// VerifyToken はBearerトークン文字列の署名と有効期限を検証し、クレームを返す。
// 失敗時は ErrCredentialAbsent / ErrCredentialInvalid / ErrCredentialExpired のいずれかを返す。
func VerifyToken(secret, tokenString string) (*JWTClaims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, ErrCredentialAbsent
	}

	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, fmt.Errorf("%w: %w", ErrCredentialExpired, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCredentialInvalid, err)
	}
	if !token.Valid || claims.identity() == "" {
		return nil, ErrCredentialInvalid
	}
	return claims, nil
}

// bearerToken はAuthorizationヘッダーからトークン部分を取り出す。
func bearerToken(header string) string {
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		return ""
	}
	return strings.TrimSpace(token)
}

// JWTAuth はJWTトークンを検証するGinミドルウェアを返す。
// 検証に成功した場合、コンテキストに "user_id" と "email" を設定する。
// 失敗理由はログにのみ記録し、レスポンスは常に "unauthorized" とする。
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := VerifyToken(secret, bearerToken(c.GetHeader("Authorization")))
		if err != nil {
			log.Printf("[Auth] %s %s: 認証に失敗: %v", c.Request.Method, c.Request.URL.Path, err)
			appErr := apperror.Authentication(err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": appErr.Message,
				"code":  string(appErr.Kind),
			})
			return
		}

		c.Set("user_id", claims.identity())
		c.Set("email", claims.Email)
		c.Next()
	}
}

// GetUserID はGinコンテキストからユーザーIDを取得する。
// JWTAuthミドルウェアが事前に適用されている必要がある。
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}
