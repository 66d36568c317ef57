package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Catalog Provider
	CatalogBaseURL string
	CatalogAPIKey  string
	CatalogTimeout time.Duration
	CatalogRate    float64 // プロバイダ呼び出しのレート（req/sec）
	CatalogBurst   int

	// Reasoning
	ReasoningBaseURL string
	ReasoningAPIKey  string
	ReasoningModel   string
	ReasoningTimeout time.Duration

	// Crawl
	CrawlCooldown      time.Duration // 完了後の再クロール抑止期間
	CrawlMaxConcurrent int
	CrawlPollInterval  time.Duration
	CrawlMaxAttempts   int
	TriggerURL         string // 空の場合はローカルキュー直結で起動する

	// Store cache
	StoreFreshness time.Duration // キャッシュエントリの鮮度ウィンドウ
	StoreBoxDegree float64       // バウンディングボックスの緯度経度幅（度）

	// Match
	MatchChunkSize      int
	MatchCandidateLimit int

	// Rate Limit
	RateLimitGeneral int // req/min

	// Server
	ServerPort string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.CatalogBaseURL = os.Getenv("CATALOG_BASE_URL")
	if cfg.CatalogBaseURL == "" {
		missing = append(missing, "CATALOG_BASE_URL")
	}

	cfg.CatalogAPIKey = os.Getenv("CATALOG_API_KEY")
	if cfg.CatalogAPIKey == "" {
		missing = append(missing, "CATALOG_API_KEY")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.CatalogTimeout = getEnvDuration("CATALOG_TIMEOUT", 15*time.Second)
	cfg.CatalogRate = getEnvFloat("CATALOG_RATE", 5)
	cfg.CatalogBurst = getEnvInt("CATALOG_BURST", 10)

	cfg.ReasoningBaseURL = getEnvString("REASONING_BASE_URL", "https://api.openai.com/v1")
	cfg.ReasoningAPIKey = os.Getenv("REASONING_API_KEY")
	cfg.ReasoningModel = getEnvString("REASONING_MODEL", "gpt-4o")
	cfg.ReasoningTimeout = getEnvDuration("REASONING_TIMEOUT", 60*time.Second)

	cfg.CrawlCooldown = getEnvDuration("CRAWL_COOLDOWN", 24*time.Hour)
	cfg.CrawlMaxConcurrent = getEnvInt("CRAWL_MAX_CONCURRENT", 10)
	cfg.CrawlPollInterval = getEnvDuration("CRAWL_POLL_INTERVAL", 5*time.Second)
	cfg.CrawlMaxAttempts = getEnvInt("CRAWL_MAX_ATTEMPTS", 3)
	cfg.TriggerURL = getEnvString("TRIGGER_URL", "")

	cfg.StoreFreshness = getEnvDuration("STORE_FRESHNESS", 7*24*time.Hour)
	cfg.StoreBoxDegree = getEnvFloat("STORE_BOX_DEGREE", 0.5)

	cfg.MatchChunkSize = getEnvInt("MATCH_CHUNK_SIZE", 15)
	cfg.MatchCandidateLimit = getEnvInt("MATCH_CANDIDATE_LIMIT", 200)

	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
