package inventory

import (
	"context"
	"fmt"

	"github.com/hitoshi/pantryman/internal/model"
	"github.com/hitoshi/pantryman/internal/repository"
)

// searchLimit は在庫検索の最大件数。
const searchLimit = 100

// SearchService は在庫レコードの検索機能を提供する。
type SearchService struct {
	invRepo repository.InventoryRepository
}

// NewSearchService はSearchServiceの新しいインスタンスを生成する。
func NewSearchService(invRepo repository.InventoryRepository) *SearchService {
	return &SearchService{invRepo: invRepo}
}

// Search は店舗内で商品名の大文字小文字を区別しない部分一致検索を行う。
// queryは必須で、結果は最大100件。
func (s *SearchService) Search(ctx context.Context, storeID, query string) ([]model.InventoryRecord, error) {
	if query == "" {
		return nil, model.NewQueryRequiredError()
	}

	records, err := s.invRepo.SearchByName(ctx, storeID, query, searchLimit)
	if err != nil {
		return nil, fmt.Errorf("在庫検索に失敗しました: %w", err)
	}
	return records, nil
}
