// Package app はアプリケーションの初期化と起動モードの振り分けを行う。
package app

import (
	"context"
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
	"golang.org/x/time/rate"

	"github.com/hitoshi/pantryman/internal/catalog"
	"github.com/hitoshi/pantryman/internal/config"
	"github.com/hitoshi/pantryman/internal/crawl"
	"github.com/hitoshi/pantryman/internal/database"
	"github.com/hitoshi/pantryman/internal/handler"
	"github.com/hitoshi/pantryman/internal/inventory"
	"github.com/hitoshi/pantryman/internal/logger"
	"github.com/hitoshi/pantryman/internal/match"
	"github.com/hitoshi/pantryman/internal/metrics"
	"github.com/hitoshi/pantryman/internal/middleware"
	"github.com/hitoshi/pantryman/internal/reasoning"
	"github.com/hitoshi/pantryman/internal/repository"
	"github.com/hitoshi/pantryman/internal/security"
	"github.com/hitoshi/pantryman/internal/store"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
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

// newTrigger は設定に応じたクロールトリガーを構築する。
// TRIGGER_URLが設定されていればSSRF検証つきのHTTPトリガー、
// 未設定であればローカルキューへの直接エンキューを使用する。
// HTTPトリガーの接続先は設定されたエンドポイントのホストだけに固定する。
func newTrigger(cfg *config.Config, jobRepo repository.CrawlJobRepository) (crawl.Trigger, error) {
	if cfg.TriggerURL == "" {
		return crawl.NewQueueTrigger(jobRepo, slog.Default()), nil
	}
	parsed, err := url.Parse(cfg.TriggerURL)
	if err != nil {
		return nil, fmt.Errorf("トリガーURLの解析に失敗しました: %w", err)
	}
	guard := security.NewSSRFGuard(parsed.Hostname())
	return crawl.NewHTTPTrigger(guard, cfg.TriggerURL, cfg.CatalogTimeout, slog.Default())
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

	// 2. リポジトリの初期化
	invRepo := repository.NewPostgresInventoryRepo(db)
	crawlStatusRepo := repository.NewPostgresCrawlStatusRepo(db)
	crawlJobRepo := repository.NewPostgresCrawlJobRepo(db)
	storeRepo := repository.NewPostgresStoreRepo(db)
	matchRepo := repository.NewPostgresMatchRepo(db)
	matchJobRepo := repository.NewPostgresMatchJobRepo(db)

	// 3. メトリクスと外部サービスクライアントの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	catalogClient := catalog.NewClient(catalog.Config{
		BaseURL:   cfg.CatalogBaseURL,
		APIKey:    cfg.CatalogAPIKey,
		Timeout:   cfg.CatalogTimeout,
		Rate:      cfg.CatalogRate,
		Burst:     cfg.CatalogBurst,
		Collector: collector,
	}, slog.Default())

	// 4. ドメインサービスの初期化
	trigger, err := newTrigger(cfg, crawlJobRepo)
	if err != nil {
		return fmt.Errorf("failed to build crawl trigger: %w", err)
	}
	tracker := crawl.NewTracker(crawlStatusRepo, trigger, slog.Default(), cfg.CrawlCooldown)

	cacheService := store.NewCacheService(
		storeRepo, catalogClient, slog.Default(),
		cfg.StoreBoxDegree, cfg.StoreFreshness,
	)
	searchService := inventory.NewSearchService(invRepo)

	// 5. ルーターの構築
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		// configのRateLimitGeneralはreq/min単位なのでreq/secに変換する
		rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
		rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	}
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Logger:           slog.Default(),
		RateLimiter:      rateLimiter,
		CrawlService:     tracker,
		StoreService:     cacheService,
		InventoryService: searchService,
		MatchEnqueuer:    matchJobRepo,
		MatchReader:      matchRepo,
		DB:               db,
		Gatherer:         registry,
	}

	router := handler.NewRouter(deps)

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
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
// DB接続を開き、クロールワーカーとマッチワーカーを起動する。
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
	invRepo := repository.NewPostgresInventoryRepo(db)
	crawlStatusRepo := repository.NewPostgresCrawlStatusRepo(db)
	crawlJobRepo := repository.NewPostgresCrawlJobRepo(db)
	matchRepo := repository.NewPostgresMatchRepo(db)
	matchJobRepo := repository.NewPostgresMatchJobRepo(db)

	// 3. メトリクスと外部サービスクライアントの初期化
	collector := metrics.NewCollector(prometheus.NewRegistry())

	catalogClient := catalog.NewClient(catalog.Config{
		BaseURL:   cfg.CatalogBaseURL,
		APIKey:    cfg.CatalogAPIKey,
		Timeout:   cfg.CatalogTimeout,
		Rate:      cfg.CatalogRate,
		Burst:     cfg.CatalogBurst,
		Collector: collector,
	}, slog.Default())

	reasoningClient := reasoning.NewClient(reasoning.Config{
		BaseURL: cfg.ReasoningBaseURL,
		APIKey:  cfg.ReasoningAPIKey,
		Model:   cfg.ReasoningModel,
		Timeout: cfg.ReasoningTimeout,
	}, slog.Default())

	// 4. クロールパイプラインの初期化
	sanitizer := security.NewContentSanitizer()
	upsertSvc := inventory.NewUpsertService(invRepo, sanitizer)
	crawler := crawl.NewCrawler(crawlJobRepo, catalogClient, upsertSvc, slog.Default())

	trigger, err := newTrigger(cfg, crawlJobRepo)
	if err != nil {
		return fmt.Errorf("failed to build crawl trigger: %w", err)
	}
	tracker := crawl.NewTracker(crawlStatusRepo, trigger, slog.Default(), cfg.CrawlCooldown)
	crawlWorker := crawl.NewWorker(
		crawlJobRepo, crawler, tracker, collector,
		slog.Default(), cfg.CrawlMaxConcurrent, cfg.CrawlMaxAttempts,
	)

	// 5. マッチパイプラインの初期化
	matchService := match.NewService(
		invRepo, matchRepo, reasoningClient, collector,
		slog.Default(), cfg.MatchChunkSize, cfg.MatchCandidateLimit,
	)
	matchWorker := match.NewWorker(
		matchJobRepo, matchService, slog.Default(),
		cfg.CrawlMaxConcurrent, cfg.CrawlMaxAttempts,
	)

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
		slog.Duration("poll_interval", cfg.CrawlPollInterval),
		slog.Int("max_concurrent", cfg.CrawlMaxConcurrent),
	)

	// マッチワーカーをバックグラウンドで起動
	go matchWorker.Start(ctx, cfg.CrawlPollInterval)

	// クロールワーカーをメインgoroutineで実行（ブロッキング）
	crawlWorker.Start(ctx, cfg.CrawlPollInterval)

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

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
