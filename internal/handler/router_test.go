package handler

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/pantryman/internal/middleware"
	"github.com/hitoshi/pantryman/internal/model"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralRate:     100,
		GeneralBurst:    100,
		CleanupInterval: 1 * time.Minute,
	})
	t.Cleanup(rl.Stop)
	return NewRouter(&RouterDeps{
		Logger:      slog.Default(),
		RateLimiter: rl,
		CrawlService: &mockCrawlService{
			requestFn: func(ctx context.Context, req model.CrawlRequest) (model.AdmissionDecision, error) {
				return model.AdmissionDecision{Result: model.AdmissionProceed}, nil
			},
		},
		StoreService:     &mockStoreService{},
		InventoryService: &mockInventoryService{},
		MatchEnqueuer:    &mockMatchEnqueuer{},
		MatchReader:      &mockMatchReader{},
		Gatherer:         prometheus.NewRegistry(),
	})
}

func TestRouter_RouteRegistration(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"クロール開始", http.MethodPost, "/api/grocery/process-inventory", `{"store_id": "s1", "latitude": 1, "longitude": 1}`, http.StatusAccepted},
		{"店舗検索", http.MethodGet, "/api/grocery/search/stores?latitude=1&longitude=1", "", http.StatusOK},
		{"在庫検索", http.MethodGet, "/api/inventory/search?store_id=s1&query=milk", "", http.StatusOK},
		{"マッチ登録", http.MethodPost, "/api/match", `{"store_id": "s1", "influencer_id": "i1", "items": [{"name": "milk"}]}`, http.StatusAccepted},
		{"マッチ取得（未解決）", http.MethodGet, "/api/match?store_id=s1&influencer_id=i1", "", http.StatusNotFound},
		{"ヘルスチェック", http.MethodGet, "/health", "", http.StatusOK},
		{"メトリクス", http.MethodGet, "/metrics", "", http.StatusOK},
		{"未登録ルート", http.MethodGet, "/api/unknown", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req *http.Request
			if tt.body != "" {
				req = httptest.NewRequest(tt.method, tt.path, bytes.NewBufferString(tt.body))
				req.Header.Set("Content-Type", "application/json")
			} else {
				req = httptest.NewRequest(tt.method, tt.path, nil)
			}
			req.RemoteAddr = "10.1.0.1:40000"
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("%s %s status = %d, want %d", tt.method, tt.path, w.Code, tt.wantStatus)
			}
		})
	}
}
