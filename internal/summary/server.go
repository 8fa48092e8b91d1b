package summary

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/minutes/pkg/apperror"
	"github.com/nao1215/minutes/pkg/middleware"
	"golang.org/x/sync/errgroup"
)

// ServerConfig はHTTPサーバーの設定。
type ServerConfig struct {
	// Port はリッスンポート。
	Port string
	// JWTSecret はBearerトークンの検証に使う共有シークレット。
	JWTSecret string
	// CORSOrigins はクロスオリジンリクエストを許可するオリジン。
	CORSOrigins []string
	// BodyLimit はリクエストボディの最大バイト数。0以下なら無制限。
	BodyLimit int64
	// ShutdownTimeout はグレースフルシャットダウンの上限時間。
	ShutdownTimeout time.Duration
}

// Server は議事録サマリーサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// httpServer はrouterを公開するHTTPサーバー。
	httpServer *http.Server
	// service はサマリーのユースケース。
	service *Service
	// jwtSecret はBearerトークンの検証に使う共有シークレット。
	jwtSecret string
	// shutdownTimeout はグレースフルシャットダウンの上限時間。
	shutdownTimeout time.Duration
	// now は現在時刻を返す。ヘルスチェックで使う。
	now func() time.Time
}

// NewServer は新しいサマリーサーバーを生成する。
func NewServer(cfg ServerConfig, service *Service) *Server {
	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORS(cfg.CORSOrigins))
	router.Use(middleware.BodyLimit(cfg.BodyLimit))

	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	s := &Server{
		router: router,
		httpServer: &http.Server{
			Addr:              net.JoinHostPort("", cfg.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		service:         service,
		jwtSecret:       cfg.JWTSecret,
		shutdownTimeout: shutdownTimeout,
		now:             time.Now,
	}
	s.setupRoutes()

	return s
}

// Handler はルーティング済みのHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctx がキャンセルされるとグレースフルシャットダウンする。
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("サマリーサービスを起動します addr=%s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Printf("サマリーサービスを停止します")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	api := s.router.Group("/api")
	{
		summaries := api.Group("/summaries")
		summaries.Use(middleware.JWTAuth(s.jwtSecret))
		{
			// サマリーの生成と保存
			summaries.POST("/generate", s.handleGenerate())
			// 所有者のサマリー一覧
			summaries.GET("", s.handleList())
			// タイトルの変更
			summaries.PUT("/:id", s.handleUpdateTitle())
			// メールでの共有
			summaries.POST("/share", s.handleShare())
			// サマリーの削除
			summaries.DELETE("/:id", s.handleDelete())
		}

		// ヘルスチェック（認証不要）
		api.GET("/health", s.handleHealth())
	}
}

// summaryResponse はサマリーのJSONレスポンス構造。
type summaryResponse struct {
	ID              string `json:"id"`
	OwnerID         string `json:"ownerId"`
	Title           string `json:"title"`
	Transcript      string `json:"transcript"`
	Prompt          string `json:"prompt"`
	Content         string `json:"content"`
	OriginalSummary string `json:"originalSummary"`
	CreatedAt       string `json:"createdAt"`
	UpdatedAt       string `json:"updatedAt"`
}

// toSummaryResponse は保存済みのサマリーを外部レスポンス形式に変換する。
func toSummaryResponse(sm *Summary) summaryResponse {
	return summaryResponse{
		ID:              sm.ID,
		OwnerID:         sm.OwnerID,
		Title:           sm.Title,
		Transcript:      sm.Transcript,
		Prompt:          sm.Prompt,
		Content:         sm.Content,
		OriginalSummary: sm.OriginalSummary,
		CreatedAt:       sm.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:       sm.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// generateRequest はサマリー生成リクエストのボディ。
type generateRequest struct {
	Title      string `json:"title"`
	Transcript string `json:"transcript"`
	Prompt     string `json:"prompt"`
}

// handleGenerate は議事録からサマリーを生成して保存するハンドラ。
func (s *Server) handleGenerate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req generateRequest
		if !bindJSON(c, &req) {
			return
		}

		sm, err := s.service.Generate(c.Request.Context(), middleware.GetUserID(c), GenerateInput{
			Title:      req.Title,
			Transcript: req.Transcript,
			Prompt:     req.Prompt,
		})
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"summary": sm.Content,
			"record":  toSummaryResponse(sm),
		})
	}
}

// handleList は認証済みユーザーのサマリー一覧を返すハンドラ。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		summaries, err := s.service.List(c.Request.Context(), middleware.GetUserID(c))
		if err != nil {
			respondError(c, err)
			return
		}

		resp := make([]summaryResponse, 0, len(summaries))
		for i := range summaries {
			resp = append(resp, toSummaryResponse(&summaries[i]))
		}
		c.JSON(http.StatusOK, resp)
	}
}

// updateTitleRequest はタイトル変更リクエストのボディ。
type updateTitleRequest struct {
	Title string `json:"title"`
}

// handleUpdateTitle はサマリーのタイトルを変更するハンドラ。
func (s *Server) handleUpdateTitle() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateTitleRequest
		if !bindJSON(c, &req) {
			return
		}

		sm, err := s.service.UpdateTitle(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), req.Title)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, toSummaryResponse(sm))
	}
}

// recipientList は宛先の入力。JSON配列とカンマ区切りの文字列の両方を受け付ける。
type recipientList []string

// UnmarshalJSON は json.Unmarshaler を実装する。
func (r *recipientList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*r = list
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err != nil {
		return errors.New("recipients must be a string or an array of strings")
	}
	*r = recipientList{single}
	return nil
}

// shareRequest はサマリー共有リクエストのボディ。
type shareRequest struct {
	Summary    string        `json:"summary"`
	Recipients recipientList `json:"recipients"`
	SummaryID  string        `json:"summaryId"`
}

// handleShare はサマリーをメールで共有するハンドラ。
func (s *Server) handleShare() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req shareRequest
		if !bindJSON(c, &req) {
			return
		}

		sent, err := s.service.Share(c.Request.Context(), middleware.GetUserID(c), ShareInput{
			Content:    req.Summary,
			Recipients: req.Recipients,
			SummaryID:  req.SummaryID,
		})
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message":    "Summary shared successfully",
			"recipients": sent,
		})
	}
}

// handleDelete はサマリーを削除するハンドラ。
func (s *Server) handleDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.service.Delete(c.Request.Context(), middleware.GetUserID(c), c.Param("id")); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Summary deleted successfully"})
	}
}

// handleHealth はヘルスチェックのハンドラ。
func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "Server is running",
			"timestamp": s.now().UTC().Format(time.RFC3339),
		})
	}
}

// bindJSON はリクエストボディをJSONとして読み込む。失敗時はエラーを返して false を返す。
func bindJSON(c *gin.Context, dst any) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return true
	}

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": "request body too large",
			"code":  string(apperror.KindValidation),
		})
		return false
	}
	c.JSON(http.StatusBadRequest, gin.H{
		"error": "invalid request body",
		"code":  string(apperror.KindValidation),
		"field": "body",
	})
	return false
}

// respondError は分類済みエラーをHTTPレスポンスに変換する。
// 上流や永続化の失敗の詳細はログにのみ残し、レスポンスには含めない。
func respondError(c *gin.Context, err error) {
	appErr, ok := apperror.As(err)
	if !ok {
		log.Printf("[Summary] %s %s: 内部エラー: %v", c.Request.Method, c.Request.URL.Path, err)
		appErr = apperror.Internal("internal server error", err)
	} else if appErr.Kind == apperror.KindUpstream || appErr.Kind == apperror.KindPersistence {
		log.Printf("[Summary] %s %s: %v", c.Request.Method, c.Request.URL.Path, appErr)
	}
	c.JSON(apperror.HTTPStatus(appErr.Kind), appErr.Body())
}
