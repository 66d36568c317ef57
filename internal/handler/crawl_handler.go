package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/pantryman/internal/model"
)

// CrawlServiceInterface はクロールハンドラーが必要とするサービスインターフェース。
type CrawlServiceInterface interface {
	// Request はクロール開始要求を処理し、許可判定の結果を返す。
	Request(ctx context.Context, req model.CrawlRequest) (model.AdmissionDecision, error)
}

// CrawlHandler は在庫クロールのHTTPハンドラー。
type CrawlHandler struct {
	service CrawlServiceInterface
}

// NewCrawlHandler はCrawlHandlerを生成する。
func NewCrawlHandler(service CrawlServiceInterface) *CrawlHandler {
	return &CrawlHandler{service: service}
}

// processInventoryRequest は在庫処理開始リクエストのボディ。
type processInventoryRequest struct {
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

// processInventoryResponse は在庫処理開始レスポンス。
type processInventoryResponse struct {
	StoreID string `json:"store_id"`
	Status  string `json:"status"`
}

// ProcessInventory は店舗の在庫クロール開始を処理する。
// POST /api/grocery/process-inventory
// 処理中・クールダウン期間内のスキップは409で該当エラーコードを返す。
func (h *CrawlHandler) ProcessInventory(w http.ResponseWriter, r *http.Request) {
	var req processInventoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBodyResponse(w)
		return
	}

	if req.StoreID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "store_idが指定されていません。",
			Category: "validation",
			Action:   "store_idを指定してください。",
		})
		return
	}

	crawlReq := model.CrawlRequest{
		StoreID: req.StoreID,
		Location: model.GeoPoint{
			Latitude:  req.Latitude,
			Longitude: req.Longitude,
		},
		Address: model.Address{
			StreetNum:  req.Address.StreetNum,
			StreetName: req.Address.StreetName,
			City:       req.Address.City,
			State:      req.Address.State,
			ZipCode:    req.Address.ZipCode,
			Country:    req.Address.Country,
		},
	}

	decision, err := h.service.Request(r.Context(), crawlReq)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	switch decision.Result {
	case model.AdmissionSkipInProgress:
		writeAPIErrorResponse(w, http.StatusConflict, model.NewCrawlInProgressError(req.StoreID))
	case model.AdmissionSkipRecentlyProcessed:
		writeAPIErrorResponse(w, http.StatusConflict, model.NewCrawlRecentlyCompletedError(req.StoreID, *decision.LastProcessed))
	default:
		writeJSONResponse(w, http.StatusAccepted, processInventoryResponse{
			StoreID: req.StoreID,
			Status:  "processing",
		})
	}
}
