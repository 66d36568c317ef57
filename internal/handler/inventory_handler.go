package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/pantryman/internal/model"
)

// InventoryServiceInterface は在庫検索ハンドラーが必要とするサービスインターフェース。
type InventoryServiceInterface interface {
	// Search は店舗内の在庫を名前の部分一致で検索する。
	Search(ctx context.Context, storeID, query string) ([]model.InventoryRecord, error)
}

// InventoryHandler は在庫検索のHTTPハンドラー。
type InventoryHandler struct {
	service InventoryServiceInterface
}

// NewInventoryHandler はInventoryHandlerを生成する。
func NewInventoryHandler(service InventoryServiceInterface) *InventoryHandler {
	return &InventoryHandler{service: service}
}

// inventoryItemResponse は在庫レコード1件のAPIレスポンス。
type inventoryItemResponse struct {
	StoreID           string  `json:"store_id"`
	ProductID         string  `json:"product_id"`
	Name              string  `json:"name"`
	Price             float64 `json:"price"`
	UnitSize          string  `json:"unit_size"`
	UnitOfMeasurement string  `json:"unit_of_measurement"`
	Description       string  `json:"description"`
	Image             string  `json:"image"`
	IsAvailable       bool    `json:"is_available"`
	UPC               string  `json:"upc,omitempty"`
}

// inventorySearchResponse は在庫検索のAPIレスポンス。
type inventorySearchResponse struct {
	Items []inventoryItemResponse `json:"items"`
}

// SearchInventory は店舗内の在庫検索を処理する。
// GET /api/inventory/search?store_id=...&query=...
func (h *InventoryHandler) SearchInventory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	storeID := q.Get("store_id")
	if storeID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "store_idが指定されていません。",
			Category: "validation",
			Action:   "store_idを指定してください。",
		})
		return
	}

	records, err := h.service.Search(r.Context(), storeID, q.Get("query"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := inventorySearchResponse{Items: make([]inventoryItemResponse, 0, len(records))}
	for _, rec := range records {
		resp.Items = append(resp.Items, inventoryItemResponse{
			StoreID:           rec.StoreID,
			ProductID:         rec.ProductID,
			Name:              rec.Name,
			Price:             rec.Price,
			UnitSize:          rec.UnitSize,
			UnitOfMeasurement: rec.UnitOfMeasurement,
			Description:       rec.Description,
			Image:             rec.ImageURL,
			IsAvailable:       rec.IsAvailable,
			UPC:               rec.UPC,
		})
	}

	writeJSONResponse(w, http.StatusOK, resp)
}
