package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/hitoshi/pantryman/internal/model"
)

// MatchJobEnqueuer はマッチジョブの登録インターフェース。
type MatchJobEnqueuer interface {
	Enqueue(ctx context.Context, job *model.MatchJob) error
}

// MatchReader はマッチ結果の読み取りインターフェース。
type MatchReader interface {
	FindByStoreAndInfluencer(ctx context.Context, storeID, influencerID string) (*model.MatchSet, error)
}

// MatchHandler はマッチングのHTTPハンドラー。
// 解決はワーカーが非同期に行うため、POSTはジョブの登録のみを行う。
type MatchHandler struct {
	enqueuer MatchJobEnqueuer
	reader   MatchReader
}

// NewMatchHandler はMatchHandlerを生成する。
func NewMatchHandler(enqueuer MatchJobEnqueuer, reader MatchReader) *MatchHandler {
	return &MatchHandler{
		enqueuer: enqueuer,
		reader:   reader,
	}
}

// desiredItemRequest は希望アイテム1件のリクエスト表現。
type desiredItemRequest struct {
	Name                string   `json:"name"`
	Quantity            int      `json:"quantity"`
	UnitSize            string   `json:"unit_size"`
	UnitOfMeasurement   string   `json:"unit_of_measurement"`
	PositiveDescriptors []string `json:"positiveDescriptors"`
	NegativeDescriptors []string `json:"negativeDescriptors"`
}

// enqueueMatchRequest はマッチジョブ登録リクエストのボディ。
type enqueueMatchRequest struct {
	StoreID      string               `json:"store_id"`
	InfluencerID string               `json:"influencer_id"`
	Items        []desiredItemRequest `json:"items"`
}

// enqueueMatchResponse はマッチジョブ登録レスポンス。
type enqueueMatchResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// matchSetResponse はマッチ結果のAPIレスポンス。
type matchSetResponse struct {
	StoreID      string              `json:"store_id"`
	InfluencerID string              `json:"influencer_id"`
	Matches      []model.MatchedItem `json:"matches"`
}

// EnqueueMatch はマッチジョブの登録を処理する。
// POST /api/match
func (h *MatchHandler) EnqueueMatch(w http.ResponseWriter, r *http.Request) {
	var req enqueueMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBodyResponse(w)
		return
	}

	if req.StoreID == "" || req.InfluencerID == "" || len(req.Items) == 0 {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "store_id、influencer_id、itemsはすべて必須です。",
			Category: "validation",
			Action:   "必須フィールドを指定してください。",
		})
		return
	}

	items := make([]model.DesiredItem, 0, len(req.Items))
	for _, it := range req.Items {
		if it.Name == "" {
			continue
		}
		items = append(items, model.DesiredItem{
			Name:                it.Name,
			Quantity:            it.Quantity,
			UnitSize:            it.UnitSize,
			UnitOfMeasurement:   it.UnitOfMeasurement,
			PositiveDescriptors: it.PositiveDescriptors,
			NegativeDescriptors: it.NegativeDescriptors,
		})
	}

	job := &model.MatchJob{
		ID:           uuid.NewString(),
		StoreID:      req.StoreID,
		InfluencerID: req.InfluencerID,
		Items:        items,
		Status:       model.CrawlJobStatusPending,
	}
	if err := h.enqueuer.Enqueue(r.Context(), job); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusAccepted, enqueueMatchResponse{
		JobID:  job.ID,
		Status: "queued",
	})
}

// GetMatch はマッチ結果の取得を処理する。
// GET /api/match?store_id=...&influencer_id=...
func (h *MatchHandler) GetMatch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	storeID := q.Get("store_id")
	influencerID := q.Get("influencer_id")
	if storeID == "" || influencerID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "store_idとinfluencer_idは必須です。",
			Category: "validation",
			Action:   "store_idとinfluencer_idを指定してください。",
		})
		return
	}

	set, err := h.reader.FindByStoreAndInfluencer(r.Context(), storeID, influencerID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if set == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewMatchNotFoundError(storeID, influencerID))
		return
	}

	matches := set.Matches
	if matches == nil {
		matches = []model.MatchedItem{}
	}
	writeJSONResponse(w, http.StatusOK, matchSetResponse{
		StoreID:      set.StoreID,
		InfluencerID: set.InfluencerID,
		Matches:      matches,
	})
}
