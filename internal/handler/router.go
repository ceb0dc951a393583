package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/socialgraph/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	StatusRecorder    middleware.StatusRecorder // nilの場合はステータス別メトリクスを記録しない

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler // nilの場合は /metrics を公開しない

	// ユーザー
	Reconciler  ReconcilerInterface
	UserService UserServiceInterface

	// フォロー
	SocialService SocialServiceInterface

	// 通知
	NotificationService   NotificationServiceInterface
	NotificationListLimit int
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → Metrics → SecurityHeaders → CORS → (認証ルートのみ) Identity → RateLimit(General)
//
// フォロー操作にはさらにフォロー専用のレート制限を適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.StatusRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.StatusRecorder))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	userHandler := NewUserHandler(deps.Reconciler, deps.UserService)
	followHandler := NewFollowHandler(deps.UserService, deps.SocialService)
	notificationHandler := NewNotificationHandler(deps.UserService, deps.NotificationService, deps.NotificationListLimit)

	// --- 認証不要のルート ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Get("/api/users/profile/{username}", userHandler.GetProfile)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Identity → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewIdentityMiddleware())
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Post("/api/users/sync", userHandler.Sync)
		r.Get("/api/users/me", userHandler.Me)
		r.Put("/api/users/profile", userHandler.UpdateProfile)

		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.FollowMiddleware())

			r.Post("/api/users/follow/{targetUserId}", followHandler.Toggle)
			r.Post("/api/users/{targetUserId}/follow", followHandler.Follow)
			r.Delete("/api/users/{targetUserId}/follow", followHandler.Unfollow)
		})

		r.Get("/api/notifications", notificationHandler.List)
	})

	return r
}
