package store

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/pantryman/internal/catalog"
	"github.com/hitoshi/pantryman/internal/model"
)

// --- モック定義 ---

// mockStoreRepo はStoreRepositoryのテスト用モック。
type mockStoreRepo struct {
	findInBoxFunc  func(ctx context.Context, center model.GeoPoint, boxDegree float64, freshAfter time.Time) ([]model.StoreSummary, error)
	bulkUpsertFunc func(ctx context.Context, stores []model.StoreSummary, now time.Time) error
	upserted       []model.StoreSummary
}

func (m *mockStoreRepo) FindInBox(ctx context.Context, center model.GeoPoint, boxDegree float64, freshAfter time.Time) ([]model.StoreSummary, error) {
	if m.findInBoxFunc != nil {
		return m.findInBoxFunc(ctx, center, boxDegree, freshAfter)
	}
	return nil, nil
}

func (m *mockStoreRepo) BulkUpsert(ctx context.Context, stores []model.StoreSummary, now time.Time) error {
	m.upserted = append(m.upserted, stores...)
	if m.bulkUpsertFunc != nil {
		return m.bulkUpsertFunc(ctx, stores, now)
	}
	return nil
}

// mockSearcher はStoreSearcherのテスト用モック。
type mockSearcher struct {
	searchFunc func(ctx context.Context, query model.StoreSearchQuery) ([]catalog.StoreEntry, error)
	calls      int
}

func (m *mockSearcher) SearchStores(ctx context.Context, query model.StoreSearchQuery) ([]catalog.StoreEntry, error) {
	m.calls++
	if m.searchFunc != nil {
		return m.searchFunc(ctx, query)
	}
	return nil, nil
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func entry(id, name, storeType string) catalog.StoreEntry {
	e := catalog.StoreEntry{ID: id, Name: name, Type: storeType, IsOpen: true}
	e.Address.City = "Nashville"
	e.Address.State = "TN"
	return e
}

func validQuery() model.StoreSearchQuery {
	return model.StoreSearchQuery{
		Location:     model.GeoPoint{Latitude: 36.16, Longitude: -86.78},
		MaximumMiles: 10,
	}
}

// --- キャッシュサービスのテスト ---

// ゼロ値座標はキャッシュ参照前に拒否される
func TestSearch_ZeroCoordinatesRejected(t *testing.T) {
	var buf bytes.Buffer
	repo := &mockStoreRepo{
		findInBoxFunc: func(ctx context.Context, center model.GeoPoint, boxDegree float64, freshAfter time.Time) ([]model.StoreSummary, error) {
			t.Error("座標なしでキャッシュを参照してはならない")
			return nil, nil
		},
	}
	searcher := &mockSearcher{}
	svc := NewCacheService(repo, searcher, newTestLogger(&buf), 0, 0)

	_, err := svc.Search(context.Background(), model.StoreSearchQuery{})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeMissingCoordinates {
		t.Fatalf("err = %v, want MISSING_COORDINATES", err)
	}
	if searcher.calls != 0 {
		t.Error("座標なしでプロバイダを呼び出してはならない")
	}
}

// キャッシュヒット時はプロバイダを呼ばない
func TestSearch_CacheHitSkipsProvider(t *testing.T) {
	var buf bytes.Buffer
	repo := &mockStoreRepo{
		findInBoxFunc: func(ctx context.Context, center model.GeoPoint, boxDegree float64, freshAfter time.Time) ([]model.StoreSummary, error) {
			if boxDegree != 0.5 {
				t.Errorf("boxDegree = %v, want 0.5", boxDegree)
			}
			return []model.StoreSummary{{StoreID: "s1", Name: "Kroger"}}, nil
		},
	}
	searcher := &mockSearcher{}
	svc := NewCacheService(repo, searcher, newTestLogger(&buf), 0, 0)

	stores, err := svc.Search(context.Background(), validQuery())
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if len(stores) != 1 || stores[0].StoreID != "s1" {
		t.Errorf("stores = %+v", stores)
	}
	if searcher.calls != 0 {
		t.Errorf("キャッシュヒット時にプロバイダを%d回呼び出した", searcher.calls)
	}
}

// キャッシュミス時はプロバイダ検索→食料品店フィルタ→UPSERTの順に処理する
func TestSearch_CacheMissFetchesFiltersAndUpserts(t *testing.T) {
	var buf bytes.Buffer
	repo := &mockStoreRepo{}
	searcher := &mockSearcher{
		searchFunc: func(ctx context.Context, query model.StoreSearchQuery) ([]catalog.StoreEntry, error) {
			return []catalog.StoreEntry{
				entry("s1", "Kroger", "Grocery Store"),
				entry("s2", "CVS Pharmacy", "Pharmacy"),
				entry("s3", "Publix", "Supermarket"),
			}, nil
		},
	}
	svc := NewCacheService(repo, searcher, newTestLogger(&buf), 0, 0)

	stores, err := svc.Search(context.Background(), validQuery())
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}

	if len(stores) != 2 {
		t.Fatalf("stores = %d件, want 2件（薬局は除外）", len(stores))
	}
	if stores[0].StoreID != "s1" || stores[1].StoreID != "s3" {
		t.Errorf("stores = %+v", stores)
	}
	if len(repo.upserted) != 2 {
		t.Errorf("upserted = %d件, want 2件", len(repo.upserted))
	}
	if repo.upserted[0].Address.City != "Nashville" {
		t.Errorf("住所が引き継がれていない: %+v", repo.upserted[0].Address)
	}
}

// キャッシュ書き込みの失敗は検索結果の返却を妨げない
func TestSearch_UpsertFailureStillReturnsResults(t *testing.T) {
	var buf bytes.Buffer
	repo := &mockStoreRepo{
		bulkUpsertFunc: func(ctx context.Context, stores []model.StoreSummary, now time.Time) error {
			return errors.New("db down")
		},
	}
	searcher := &mockSearcher{
		searchFunc: func(ctx context.Context, query model.StoreSearchQuery) ([]catalog.StoreEntry, error) {
			return []catalog.StoreEntry{entry("s1", "Kroger", "Grocery Store")}, nil
		},
	}
	svc := NewCacheService(repo, searcher, newTestLogger(&buf), 0, 0)

	stores, err := svc.Search(context.Background(), validQuery())
	if err != nil {
		t.Fatalf("UPSERT失敗は結果返却を妨げてはならない: %v", err)
	}
	if len(stores) != 1 {
		t.Errorf("stores = %d件, want 1件", len(stores))
	}
}

// プロバイダの失敗はそのまま伝播する
func TestSearch_ProviderErrorPropagates(t *testing.T) {
	var buf bytes.Buffer
	searcher := &mockSearcher{
		searchFunc: func(ctx context.Context, query model.StoreSearchQuery) ([]catalog.StoreEntry, error) {
			return nil, model.NewProviderUnavailableError("status 503")
		},
	}
	svc := NewCacheService(&mockStoreRepo{}, searcher, newTestLogger(&buf), 0, 0)

	_, err := svc.Search(context.Background(), validQuery())

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeProviderUnavailable {
		t.Fatalf("err = %v, want PROVIDER_UNAVAILABLE", err)
	}
}
