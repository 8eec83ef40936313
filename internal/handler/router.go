package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/formbridge/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	AccountFinder     middleware.AccountFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// フォーム
	FormService FormServiceInterface

	// 回答
	ResponseService ResponseServiceInterface

	// Webhook
	Reconciler    ReconcilerInterface
	WebhookSecret string

	Logger *slog.Logger
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// 回答者向けの公開ルート（フォーム取得・回答送信・Webhook）は
// アカウントミドルウェアの外に置き、オペレーター向けの管理ルートは
// アカウント認証と管理APIレート制限の内側に置く。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	formHandler := NewFormHandler(deps.FormService)
	responseHandler := NewResponseHandler(deps.ResponseService)
	webhookHandler := NewWebhookHandler(deps.Reconciler, deps.WebhookSecret, deps.Logger)

	// --- 認証不要のルート ---

	// 認証ルート（OAuthフロー・PATログイン）
	r.Route("/auth/airtable", func(r chi.Router) {
		r.Get("/login", authHandler.Login)
		r.Get("/callback", authHandler.Callback)
		r.Post("/token", authHandler.TokenLogin)
	})

	// 回答者向けの公開ルート
	r.Get("/api/forms/{formID}", formHandler.GetForm)
	r.With(deps.RateLimiter.SubmissionMiddleware()).
		Post("/api/forms/{formID}/responses", responseHandler.Submit)

	// Airtableからの変更通知
	r.Route("/webhooks/airtable", func(r chi.Router) {
		r.Post("/", webhookHandler.Receive)
		r.Get("/ping", webhookHandler.Ping)
	})

	// --- 認証が必要な管理ルート ---
	// ミドルウェアスタック: Account → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAccountMiddleware(deps.AccountFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/auth/me", authHandler.Me)

		// フォーム管理
		r.Post("/api/forms", formHandler.CreateForm)
		r.Get("/api/forms", formHandler.ListForms)

		// 回答閲覧
		r.Get("/api/forms/{formID}/responses", responseHandler.List)
		r.Get("/api/responses/{id}", responseHandler.Get)

		// Airtableメタデータ
		r.Route("/api/airtable/bases", func(r chi.Router) {
			r.Get("/", formHandler.ListBases)
			r.Get("/{baseID}/schema", formHandler.BaseSchema)
		})
	})

	return r
}
