package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/hitoshi/pantryman/internal/model"
)

// StoreServiceInterface は店舗検索ハンドラーが必要とするサービスインターフェース。
type StoreServiceInterface interface {
	// Search は座標周辺の店舗をキャッシュ優先で検索する。
	Search(ctx context.Context, query model.StoreSearchQuery) ([]model.StoreSummary, error)
}

// StoreHandler は店舗近接検索のHTTPハンドラー。
type StoreHandler struct {
	service StoreServiceInterface
}

// NewStoreHandler はStoreHandlerを生成する。
func NewStoreHandler(service StoreServiceInterface) *StoreHandler {
	return &StoreHandler{service: service}
}

// storeResponse は店舗1件のAPIレスポンス。
type storeResponse struct {
	StoreID string  `json:"store_id"`
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

// storeSearchResponse は店舗検索のAPIレスポンス。
type storeSearchResponse struct {
	Stores []storeResponse `json:"stores"`
}

// SearchStores は店舗近接検索を処理する。
// GET /api/grocery/search/stores?query=...&latitude=...&longitude=...&maximum_miles=...
func (h *StoreHandler) SearchStores(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	latitude, _ := strconv.ParseFloat(q.Get("latitude"), 64)
	longitude, _ := strconv.ParseFloat(q.Get("longitude"), 64)
	maximumMiles, err := strconv.ParseFloat(q.Get("maximum_miles"), 64)
	if err != nil || maximumMiles <= 0 {
		maximumMiles = 10
	}

	query := model.StoreSearchQuery{
		Query: q.Get("query"),
		Location: model.GeoPoint{
			Latitude:  latitude,
			Longitude: longitude,
		},
		MaximumMiles: maximumMiles,
	}

	stores, err := h.service.Search(r.Context(), query)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := storeSearchResponse{Stores: make([]storeResponse, 0, len(stores))}
	for _, s := range stores {
		var sr storeResponse
		sr.StoreID = s.StoreID
		sr.Name = s.Name
		sr.Type = s.Type
		sr.IsOpen = s.IsOpen
		sr.Miles = s.Miles
		sr.Address.StreetNum = s.Address.StreetNum
		sr.Address.StreetName = s.Address.StreetName
		sr.Address.City = s.Address.City
		sr.Address.State = s.Address.State
		sr.Address.ZipCode = s.Address.ZipCode
		sr.Address.Country = s.Address.Country
		sr.Address.Latitude = s.Address.Latitude
		sr.Address.Longitude = s.Address.Longitude
		resp.Stores = append(resp.Stores, sr)
	}

	writeJSONResponse(w, http.StatusOK, resp)
}
