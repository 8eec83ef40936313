// Package app はアプリケーションの初期化と起動モードの制御を提供する。
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/formbridge/internal/airtable"
	"github.com/hitoshi/formbridge/internal/auth"
	"github.com/hitoshi/formbridge/internal/config"
	"github.com/hitoshi/formbridge/internal/database"
	"github.com/hitoshi/formbridge/internal/form"
	"github.com/hitoshi/formbridge/internal/handler"
	"github.com/hitoshi/formbridge/internal/logger"
	"github.com/hitoshi/formbridge/internal/metrics"
	"github.com/hitoshi/formbridge/internal/middleware"
	"github.com/hitoshi/formbridge/internal/repository"
	"github.com/hitoshi/formbridge/internal/response"
	"github.com/hitoshi/formbridge/internal/webhook"
	"github.com/hitoshi/formbridge/internal/worker/cleanup"
	"github.com/hitoshi/formbridge/internal/worker/webhookkeeper"
)

// Init はアプリケーションの初期化を行う。
// .envファイルがあれば読み込み、環境変数からConfigを読み込み、
// JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// .envはローカル開発用。本番では環境変数を直接渡すため、なくてよい
	_ = godotenv.Load()

	// ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("frontend_url", cfg.FrontendURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// tokenSourceProxy は構築順序の循環を断つためのTokenSource。
// airtable.Clientはauth.Serviceをトークン供給源とし、auth.Serviceは
// 同じClientをプロフィール取得に使う。先にClientへ本プロキシを渡し、
// auth.Serviceの構築後にinnerを差し込む。
type tokenSourceProxy struct {
	inner airtable.TokenSource
}

func (p *tokenSourceProxy) AccessToken(ctx context.Context, accountID string) (string, error) {
	return p.inner.AccessToken(ctx, accountID)
}

func (p *tokenSourceProxy) ForceRefresh(ctx context.Context, accountID string) (string, error) {
	return p.inner.ForceRefresh(ctx, accountID)
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. リポジトリの初期化
	accountRepo := repository.NewPostgresAccountRepo(db)
	formRepo := repository.NewPostgresFormRepo(db)
	responseRepo := repository.NewPostgresResponseRepo(db)
	eventRepo := repository.NewPostgresEventRepo(db)

	// 4. Airtableクライアントと認証サービスの初期化
	httpClient := &http.Client{Timeout: 15 * time.Second}

	oauthProvider := auth.NewAirtableOAuthProvider(auth.AirtableOAuthConfig{
		ClientID:     cfg.AirtableClientID,
		ClientSecret: cfg.AirtableClientSecret,
		RedirectURL:  cfg.AirtableRedirectURL,
		Scope:        cfg.AirtableScope,
	}, httpClient)

	tokens := &tokenSourceProxy{}
	airtableClient := airtable.NewClient(httpClient, tokens, slog.Default(), collector)
	authService := auth.NewService(oauthProvider, auth.NewHandshakeStore(), accountRepo, airtableClient)
	tokens.inner = authService

	// 5. ドメインサービスの初期化
	formService := form.NewService(formRepo, airtableClient)
	responseService := response.NewService(
		formRepo, responseRepo, eventRepo, airtableClient,
		slog.Default(), collector,
	)
	reconciler := webhook.NewReconciler(responseRepo, eventRepo, slog.Default(), collector)

	// 6. ルーターの構築
	// configのレート値はreq/min単位なのでreq/secに変換する
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.SubmissionRate = rate.Limit(float64(cfg.RateLimitSubmission) / 60.0)
	rateLimiterCfg.SubmissionBurst = cfg.RateLimitSubmission

	deps := &handler.RouterDeps{
		AccountFinder:     accountRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       middleware.NewRateLimiter(rateLimiterCfg),

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			FrontendURL: cfg.FrontendURL,
		},

		FormService:     formService,
		ResponseService: responseService,

		Reconciler:    reconciler,
		WebhookSecret: cfg.WebhookSecret,

		Logger: slog.Default(),
	}

	router := handler.NewRouter(deps)

	// /health と /metrics はミドルウェアチェーンの外に置く
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(registry))
	mux.HandleFunc("/health", newHealthHandler(db))
	mux.Handle("/", router)

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、Webhookキープアライブとイベントクリーンアップを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. リポジトリの初期化
	accountRepo := repository.NewPostgresAccountRepo(db)
	formRepo := repository.NewPostgresFormRepo(db)

	// 3. Airtableクライアントと認証サービスの初期化
	httpClient := &http.Client{Timeout: 15 * time.Second}

	oauthProvider := auth.NewAirtableOAuthProvider(auth.AirtableOAuthConfig{
		ClientID:     cfg.AirtableClientID,
		ClientSecret: cfg.AirtableClientSecret,
		RedirectURL:  cfg.AirtableRedirectURL,
		Scope:        cfg.AirtableScope,
	}, httpClient)

	tokens := &tokenSourceProxy{}
	airtableClient := airtable.NewClient(httpClient, tokens, slog.Default(), nil)
	authService := auth.NewService(oauthProvider, auth.NewHandshakeStore(), accountRepo, airtableClient)
	tokens.inner = authService

	// 4. Webhookキープアライブの初期化
	keeper := webhookkeeper.NewKeeper(
		formRepo, airtableClient, slog.Default(), cfg.WebhookMaxConcurrent,
	)

	// 5. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(db, slog.Default())
	cleanupJob.RetentionDays = cfg.EventRetentionDays

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("webhook_refresh_interval", cfg.WebhookRefreshInterval),
		slog.Int("max_concurrent", cfg.WebhookMaxConcurrent),
		slog.Int("event_retention_days", cfg.EventRetentionDays),
	)

	// クリーンアップジョブを日次でバックグラウンド実行
	go func() {
		// 起動直後に1回実行
		if err := cleanupJob.Run(ctx); err != nil {
			slog.Error("cleanup job failed", slog.String("error", err.Error()))
		}

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := cleanupJob.Run(ctx); err != nil {
					slog.Error("cleanup job failed", slog.String("error", err.Error()))
				}
			}
		}
	}()

	// Webhookキープアライブをメインgoroutineで実行（ブロッキング）
	keeper.Start(ctx, cfg.WebhookRefreshInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// pinger はDB疎通確認のインターフェース。*sql.DBが満たす。
type pinger interface {
	PingContext(ctx context.Context) error
}

// newHealthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
func newHealthHandler(db pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
			return
		}

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
