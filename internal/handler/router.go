package handler

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/pantryman/internal/metrics"
	"github.com/hitoshi/pantryman/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger      *slog.Logger
	RateLimiter *middleware.RateLimiter

	// クロール
	CrawlService CrawlServiceInterface

	// 店舗検索
	StoreService StoreServiceInterface

	// 在庫検索
	InventoryService InventoryServiceInterface

	// マッチング
	MatchEnqueuer MatchJobEnqueuer
	MatchReader   MatchReader

	// ヘルスチェック用DB
	DB *sql.DB

	// メトリクス
	Gatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RecoveryMiddleware → LoggingMiddleware → RateLimitMiddleware
//
// /healthと/metricsはレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	crawlHandler := NewCrawlHandler(deps.CrawlService)
	storeHandler := NewStoreHandler(deps.StoreService)
	inventoryHandler := NewInventoryHandler(deps.InventoryService)
	matchHandler := NewMatchHandler(deps.MatchEnqueuer, deps.MatchReader)

	// --- 運用系ルート（レート制限なし） ---

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if deps.DB != nil {
			if err := deps.DB.PingContext(req.Context()); err != nil {
				writeJSONResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
				return
			}
		}
		writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- APIルート ---
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.Middleware())

		r.Route("/api/grocery", func(r chi.Router) {
			r.Post("/process-inventory", crawlHandler.ProcessInventory)
			r.Get("/search/stores", storeHandler.SearchStores)
		})

		r.Get("/api/inventory/search", inventoryHandler.SearchInventory)

		r.Route("/api/match", func(r chi.Router) {
			r.Post("/", matchHandler.EnqueueMatch)
			r.Get("/", matchHandler.GetMatch)
		})
	})

	return r
}
