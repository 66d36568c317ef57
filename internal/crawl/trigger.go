package crawl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/pantryman/internal/model"
	"github.com/hitoshi/pantryman/internal/repository"
	"github.com/hitoshi/pantryman/internal/security"
)

// QueueTrigger はローカルのジョブキューへルートジョブを直接エンキューするTrigger実装。
// トリガーエンドポイントが設定されていない構成で使用する。
type QueueTrigger struct {
	jobRepo repository.CrawlJobRepository
	logger  *slog.Logger
}

// NewQueueTrigger はQueueTriggerの新しいインスタンスを生成する。
func NewQueueTrigger(jobRepo repository.CrawlJobRepository, logger *slog.Logger) *QueueTrigger {
	return &QueueTrigger{jobRepo: jobRepo, logger: logger}
}

// Start は新しいクロール実行IDを発行し、ルートジョブ（subcategory_id空）を登録する。
func (t *QueueTrigger) Start(ctx context.Context, req model.CrawlRequest) error {
	job := &model.CrawlJob{
		ID:            uuid.NewString(),
		CrawlID:       uuid.NewString(),
		StoreID:       req.StoreID,
		SubcategoryID: "",
		Location:      req.Location,
		Address:       req.Address,
		Status:        model.CrawlJobStatusPending,
	}
	inserted, err := t.jobRepo.Enqueue(ctx, job)
	if err != nil {
		return fmt.Errorf("ルートジョブの登録に失敗しました: %w", err)
	}
	if !inserted {
		// 同一crawl_idは新規発行済みのため通常到達しない
		return fmt.Errorf("ルートジョブが重複と判定されました: store_id=%s", req.StoreID)
	}
	t.logger.Info("クロールのルートジョブを登録しました",
		slog.String("store_id", req.StoreID),
		slog.String("crawl_id", job.CrawlID),
	)
	return nil
}

// HTTPTrigger は運用者が設定した外部トリガーエンドポイントを呼び出すTrigger実装。
// エンドポイントURLは起動時に1回検証し、呼び出しにはSSRF防止付きクライアントを使用する。
type HTTPTrigger struct {
	client     *http.Client
	logger     *slog.Logger
	triggerURL string
}

// NewHTTPTrigger はHTTPTriggerの新しいインスタンスを生成する。
// triggerURLが検証に失敗した場合はエラーを返す。
func NewHTTPTrigger(guard security.SSRFGuardService, triggerURL string, timeout time.Duration, logger *slog.Logger) (*HTTPTrigger, error) {
	if err := guard.ValidateURL(triggerURL); err != nil {
		return nil, fmt.Errorf("トリガーURLの検証に失敗しました: %w", err)
	}
	return &HTTPTrigger{
		client:     guard.NewSafeClient(timeout, 1<<20),
		logger:     logger,
		triggerURL: triggerURL,
	}, nil
}

// triggerPayload はトリガーエンドポイントへ送信するリクエストボディ。
type triggerPayload struct {
	StoreID   string  `json:"store_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   struct {
		StreetNum  string `json:"street_num"`
		StreetName string `json:"street_name"`
		City       string `json:"city"`
		State      string `json:"state"`
		ZipCode    string `json:"zip_code"`
		Country    string `json:"country"`
	} `json:"address"`
}

// Start はトリガーエンドポイントへクロール開始要求をPOSTする。
// 2xx以外のステータスは起動失敗として扱う。
func (t *HTTPTrigger) Start(ctx context.Context, req model.CrawlRequest) error {
	payload := triggerPayload{
		StoreID:   req.StoreID,
		Latitude:  req.Location.Latitude,
		Longitude: req.Location.Longitude,
	}
	payload.Address.StreetNum = req.Address.StreetNum
	payload.Address.StreetName = req.Address.StreetName
	payload.Address.City = req.Address.City
	payload.Address.State = req.Address.State
	payload.Address.ZipCode = req.Address.ZipCode
	payload.Address.Country = req.Address.Country

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("トリガーリクエストのエンコードに失敗しました: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.triggerURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("トリガーリクエストの作成に失敗しました: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("トリガーエンドポイントの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("トリガーエンドポイントがエラーステータスを返しました: status %d", resp.StatusCode)
	}

	t.logger.Info("クロールトリガーを起動しました",
		slog.String("store_id", req.StoreID),
	)
	return nil
}
