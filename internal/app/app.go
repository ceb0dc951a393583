package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hitoshi/socialgraph/internal/config"
	"github.com/hitoshi/socialgraph/internal/database"
	"github.com/hitoshi/socialgraph/internal/handler"
	"github.com/hitoshi/socialgraph/internal/identity"
	"github.com/hitoshi/socialgraph/internal/logger"
	"github.com/hitoshi/socialgraph/internal/metrics"
	"github.com/hitoshi/socialgraph/internal/middleware"
	"github.com/hitoshi/socialgraph/internal/notification"
	"github.com/hitoshi/socialgraph/internal/repository"
	"github.com/hitoshi/socialgraph/internal/security"
	"github.com/hitoshi/socialgraph/internal/social"
	"github.com/hitoshi/socialgraph/internal/tracing"
	"github.com/hitoshi/socialgraph/internal/user"
	"github.com/hitoshi/socialgraph/internal/worker/repair"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再初期化する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

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
		slog.String("app_env", cfg.AppEnv),
		slog.String("identity_provider", cfg.IdentityProvider),
		slog.String("notification_publisher", cfg.NotificationPublisher),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandRepair:
		return runRepair(cfg)
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続プールを開き、疎通を確認する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)
	return db, nil
}

// newIdentityProvider は設定に応じたIdPクライアントを生成する。
func newIdentityProvider(ctx context.Context, cfg *config.Config, guard *security.URLGuard) (identity.Provider, error) {
	var provider identity.Provider
	switch cfg.IdentityProvider {
	case config.IdentityProviderFirebase:
		p, err := identity.NewFirebaseProvider(ctx, []byte(cfg.FirebaseCredentialsJSON))
		if err != nil {
			return nil, err
		}
		provider = p
	case config.IdentityProviderClerk:
		provider = identity.NewClerkProvider(identity.ClerkConfig{
			SecretKey:  cfg.ClerkSecretKey,
			APIURL:     cfg.ClerkAPIURL,
			HTTPClient: guard.NewSafeClient(cfg.IdentityFetchTimeout),
		})
	default:
		return nil, fmt.Errorf("unsupported identity provider: %q", cfg.IdentityProvider)
	}
	return identity.WithTimeout(provider, cfg.IdentityFetchTimeout), nil
}

// newPublisher は設定に応じた通知パブリッシャーを生成する。
func newPublisher(cfg *config.Config) notification.Publisher {
	switch cfg.NotificationPublisher {
	case config.PublisherKafka:
		return notification.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaNotificationTopic)
	case config.PublisherRedis:
		return notification.NewRedisPublisher(cfg.RedisAddr, cfg.RedisNotificationChannel)
	default:
		return notification.NopPublisher{}
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx := context.Background()

	// 1. DB接続
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. トレースの初期化
	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: cfg.OTelServiceName,
		SampleRatio: cfg.OTelSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			slog.Warn("tracing shutdown failed", slog.String("error", err.Error()))
		}
	}()

	// 3. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 4. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	followRepo := repository.NewPostgresFollowRepo(db)
	notificationRepo := repository.NewPostgresNotificationRepo(db)

	// 5. セキュリティサービスの初期化
	urlGuard := security.NewURLGuard()
	sanitizer := security.NewProfileSanitizer()

	// 6. ドメインサービスの初期化
	provider, err := newIdentityProvider(ctx, cfg, urlGuard)
	if err != nil {
		return fmt.Errorf("failed to init identity provider: %w", err)
	}
	reconciler := identity.NewReconciler(userRepo, provider, collector)
	userService := user.NewService(userRepo, sanitizer, urlGuard)

	publisher := newPublisher(cfg)
	defer func() {
		if err := publisher.Close(); err != nil {
			slog.Warn("notification publisher close failed", slog.String("error", err.Error()))
		}
	}()
	notificationService := notification.NewService(notificationRepo, publisher, collector)
	socialService := social.NewService(userRepo, followRepo, notificationService, collector)

	// 7. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitFollow),
	)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		StatusRecorder:    collector,

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(registry),

		Reconciler:  reconciler,
		UserService: userService,

		SocialService: socialService,

		NotificationService:   notificationService,
		NotificationListLimit: cfg.NotificationListLimit,
	})

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      otelhttp.NewHandler(router, "http.server"),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	serveErr := make(chan error, 1)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
			slog.String("publisher", publisher.Name()),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serveErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runRepair はfollowingを正としてfollowersを再構築する。
// SIGINTまたはSIGTERMで中断した場合はトランザクション単位でロールバックされる。
func runRepair(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin repair transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := repair.NewRepairJob(tx, slog.Default()).Run(ctx); err != nil {
		return fmt.Errorf("repair failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit repair: %w", err)
	}
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

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
// 解析できない場合は全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	if _, hasPassword := u.User.Password(); hasPassword {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	u.RawQuery = ""
	return u.String()
}
