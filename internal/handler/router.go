package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/mp3transcriber/internal/metrics"
	"github.com/hitoshi/mp3transcriber/internal/middleware"
)

// HealthChecker はDB接続の疎通確認に必要なインターフェース。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenParser       middleware.TokenParser
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	TrustProxy        bool // X-Forwarded-For等からクライアントIPを取得する
	Logger            *slog.Logger

	// 監視
	HealthChecker HealthChecker
	Metrics       metrics.MetricsCollector
	Gatherer      prometheus.Gatherer

	// サービス
	PublicAccessService PublicAccessServiceInterface
	AuthService         AuthServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP(TrustProxy時) → Recovery → Logging → Metrics → SecurityHeaders → CORS → OptionalAuth
//
// /api 配下にはAPI全般のレート制限、verifyとloginには専用のレート制限を追加で適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	if deps.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.NewRecoveryMiddleware())
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}
	if deps.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewOptionalAuthMiddleware(deps.TokenParser))

	publicHandler := NewPublicHandler(deps.PublicAccessService)
	authHandler := NewAuthHandler(deps.AuthService)

	// --- 監視用のルート（レート制限なし） ---
	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(deps.RateLimiter.Middleware(middleware.PolicyAPI))

		// 公開アクセス（短縮ID + 所有者の名）
		r.Route("/public", func(r chi.Router) {
			r.Get("/check/{id}", publicHandler.Check)
			r.With(deps.RateLimiter.Middleware(middleware.PolicyVerify)).Post("/verify/{id}", publicHandler.Verify)
			r.Get("/user/{id}", publicHandler.ListOwned)
			r.Get("/mp3/{id}", publicHandler.FetchResource)
		})

		// アカウント認証
		r.Route("/auth", func(r chi.Router) {
			r.With(deps.RateLimiter.Middleware(middleware.PolicyLogin)).Post("/login", authHandler.Login)
			r.Post("/logout", authHandler.Logout)
			r.Get("/check", authHandler.Check)
			r.With(middleware.NewRequireAuthMiddleware(deps.TokenParser)).Get("/me", authHandler.Me)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, messageResponse{Success: false, Message: "Nicht gefunden."})
	})

	return r
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// healthHandler はDB疎通を含むヘルスチェック結果を返す。
// GET /health
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker == nil {
			writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Database: "unknown"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.PingContext(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Database: "down"})
			return
		}
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Database: "up"})
	}
}
