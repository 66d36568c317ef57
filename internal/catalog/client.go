// Package catalog はカタログプロバイダAPIのクライアントを提供する。
// カテゴリツリーの取得と店舗近接検索を含む。
// プロバイダはレート制限があり、時折エラーを返す前提で扱う。
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/pantryman/internal/metrics"
	"github.com/hitoshi/pantryman/internal/model"
)

// CategoryPage はカテゴリツリー1ページ分のレスポンスを表す。
type CategoryPage struct {
	Categories []Category `json:"categories"`
}

// Category はカテゴリツリーの1ノードを表す。
// アイテムを持つカテゴリは葉、アイテムが0件でsubcategory_idを持つカテゴリは
// 展開が必要な内部ノード。
type Category struct {
	Name          string        `json:"name"`
	SubcategoryID string        `json:"subcategory_id"`
	Items         []ProductItem `json:"menu_item_list"`
}

// ProductItem はプロバイダが返す商品1件を表す。価格はマイナー単位（セント）。
type ProductItem struct {
	ProductID         string `json:"product_id"`
	Name              string `json:"name"`
	Price             int    `json:"price"`
	UnitSize          string `json:"unit_size"`
	UnitOfMeasurement string `json:"unit_of_measurement"`
	Description       string `json:"description"`
	Image             string `json:"image"`
	IsAvailable       bool   `json:"is_available"`
	UPC               string `json:"upc"`
}

// StoreResult は店舗検索レスポンスを表す。
type StoreResult struct {
	Stores []StoreEntry `json:"stores"`
}

// StoreEntry はプロバイダが返す店舗1件を表す。
type StoreEntry struct {
	ID      string  `json:"_id"`
	Name    string  `json:"name"`
	Type    string  `json:"type"`
	IsOpen  bool    `json:"is_open"`
	Miles   float64 `json:"miles"`
	Address struct {
		StreetNum  string  `json:"street_num"`
		StreetName string  `json:"street_name"`
		City       string  `json:"city"`
		State      string  `json:"state"`
		ZipCode    string  `json:"zip_code"`
		Country    string  `json:"country"`
		Latitude   float64 `json:"latitude"`
		Longitude  float64 `json:"longitude"`
	} `json:"address"`
}

// Client はカタログプロバイダAPIのクライアント。
// rate.Limiterで呼び出しレートを制御し、プロバイダ側の制限超過を避ける。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	limiter    *rate.Limiter
	collector  metrics.MetricsCollector // nilの場合は記録しない
	baseURL    string                   // テスト用にエンドポイントを差し替え可能
	apiKey     string
}

// Config はClientの設定を保持する。
type Config struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	Rate      float64 // req/sec
	Burst     int
	Collector metrics.MetricsCollector
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Rate <= 0 {
		cfg.Rate = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		limiter:    rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
		collector:  cfg.Collector,
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
	}
}

// FetchCategories は(store_id, subcategory_id)のカテゴリ1ページを取得する。
// subcategoryIDが空文字列の場合はトップレベルカテゴリを返す。
func (c *Client) FetchCategories(ctx context.Context, storeID, subcategoryID string, loc model.GeoPoint, addr model.Address) (*CategoryPage, error) {
	q := url.Values{}
	q.Set("store_id", storeID)
	if subcategoryID != "" {
		q.Set("subcategory_id", subcategoryID)
	}
	q.Set("user_latitude", strconv.FormatFloat(loc.Latitude, 'f', -1, 64))
	q.Set("user_longitude", strconv.FormatFloat(loc.Longitude, 'f', -1, 64))
	q.Set("user_street_num", addr.StreetNum)
	q.Set("user_street_name", addr.StreetName)
	q.Set("user_city", addr.City)
	q.Set("user_state", addr.State)
	q.Set("user_zipcode", addr.ZipCode)
	q.Set("user_country", addr.Country)
	q.Set("pickup", "false")
	q.Set("fetch_quotes", "false")

	var page CategoryPage
	if err := c.getJSON(ctx, "/inventory/details", q, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// SearchStores は座標周辺の店舗を検索する。
func (c *Client) SearchStores(ctx context.Context, query model.StoreSearchQuery) ([]StoreEntry, error) {
	q := url.Values{}
	q.Set("query", query.Query)
	q.Set("latitude", strconv.FormatFloat(query.Location.Latitude, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(query.Location.Longitude, 'f', -1, 64))
	q.Set("maximum_miles", strconv.FormatFloat(query.MaximumMiles, 'f', -1, 64))
	q.Set("store_type", "grocery")
	q.Set("search_focus", "store")
	q.Set("sort", "relevance")
	q.Set("pickup", "false")
	q.Set("fetch_quotes", "false")

	var result StoreResult
	if err := c.getJSON(ctx, "/search/store", q, &result); err != nil {
		return nil, err
	}
	return result.Stores, nil
}

// getJSON はレート制限を待ってからGETリクエストを実行し、JSONをデコードする。
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("レート制限の待機が中断されました: %w", err)
	}

	reqURL, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("エンドポイントURLのパースに失敗しました: %w", err)
	}
	reqURL.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("カタログプロバイダの呼び出しに失敗しました",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return model.NewProviderUnavailableError(err.Error())
	}
	defer resp.Body.Close()

	if c.collector != nil {
		c.collector.RecordProviderStatus(resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("カタログプロバイダがエラーステータスを返しました",
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
		)
		return model.NewProviderUnavailableError(fmt.Sprintf("status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		c.logger.Error("カタログプロバイダのレスポンスのパースに失敗しました",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	return nil
}
