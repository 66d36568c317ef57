package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/pantryman/internal/catalog"
	"github.com/hitoshi/pantryman/internal/model"
	"github.com/hitoshi/pantryman/internal/repository"
)

// StoreSearcher はカタログプロバイダの店舗近接検索インターフェース。
type StoreSearcher interface {
	SearchStores(ctx context.Context, query model.StoreSearchQuery) ([]catalog.StoreEntry, error)
}

// CacheService は店舗サマリーの時間制限付きキャッシュを提供する。
// ローカルヒット時はプロバイダを呼ばず、ミス時のみプロバイダ検索・
// フィルタ・UPSERTを行う（結果のマージはしない）。
type CacheService struct {
	storeRepo repository.StoreRepository
	searcher  StoreSearcher
	logger    *slog.Logger
	boxDegree float64       // バウンディングボックスの片側の度数
	freshness time.Duration // キャッシュエントリの鮮度ウィンドウ
	now       func() time.Time
}

// NewCacheService はCacheServiceの新しいインスタンスを生成する。
// boxDegreeが0以下の場合は0.5度、freshnessが0以下の場合は7日を使用する。
func NewCacheService(
	storeRepo repository.StoreRepository,
	searcher StoreSearcher,
	logger *slog.Logger,
	boxDegree float64,
	freshness time.Duration,
) *CacheService {
	if boxDegree <= 0 {
		boxDegree = 0.5
	}
	if freshness <= 0 {
		freshness = 7 * 24 * time.Hour
	}
	return &CacheService{
		storeRepo: storeRepo,
		searcher:  searcher,
		logger:    logger,
		boxDegree: boxDegree,
		freshness: freshness,
		now:       time.Now,
	}
}

// Search は座標周辺の店舗を検索する。
// 座標が未設定またはゼロ値の場合は検索前に拒否する。
// ローカルキャッシュのバウンディングボックス検索が非空であればそのまま返し、
// 空の場合のみプロバイダを呼び出して食料品店以外を除外し、
// 結果をUPSERTしてから返す。
func (s *CacheService) Search(ctx context.Context, query model.StoreSearchQuery) ([]model.StoreSummary, error) {
	if query.Location.IsZero() {
		return nil, model.NewMissingCoordinatesError()
	}

	freshAfter := s.now().Add(-s.freshness)
	cached, err := s.storeRepo.FindInBox(ctx, query.Location, s.boxDegree, freshAfter)
	if err != nil {
		return nil, fmt.Errorf("店舗キャッシュの検索に失敗しました: %w", err)
	}
	if len(cached) > 0 {
		s.logger.Info("店舗キャッシュにヒットしました",
			slog.Int("store_count", len(cached)),
		)
		return cached, nil
	}

	entries, err := s.searcher.SearchStores(ctx, query)
	if err != nil {
		return nil, err
	}

	summaries := make([]model.StoreSummary, 0, len(entries))
	for _, e := range entries {
		if !IsGrocery(e.Name, e.Type) {
			continue
		}
		summaries = append(summaries, model.StoreSummary{
			StoreID: e.ID,
			Name:    e.Name,
			Type:    e.Type,
			Address: model.StoreAddress{
				StreetNum:  e.Address.StreetNum,
				StreetName: e.Address.StreetName,
				City:       e.Address.City,
				State:      e.Address.State,
				ZipCode:    e.Address.ZipCode,
				Country:    e.Address.Country,
				Latitude:   e.Address.Latitude,
				Longitude:  e.Address.Longitude,
			},
			IsOpen: e.IsOpen,
			Miles:  e.Miles,
		})
	}

	if len(summaries) > 0 {
		if err := s.storeRepo.BulkUpsert(ctx, summaries, s.now().UTC()); err != nil {
			// キャッシュ書き込みの失敗は検索結果の返却を妨げない
			s.logger.Error("店舗キャッシュのUPSERTに失敗しました",
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.Info("プロバイダから店舗を取得しました",
		slog.Int("fetched_count", len(entries)),
		slog.Int("grocery_count", len(summaries)),
	)
	return summaries, nil
}
