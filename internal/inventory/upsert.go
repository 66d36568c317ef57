// Package inventory は在庫レコードの管理機能を提供する。
package inventory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/pantryman/internal/catalog"
	"github.com/hitoshi/pantryman/internal/model"
	"github.com/hitoshi/pantryman/internal/repository"
	"github.com/hitoshi/pantryman/internal/security"
)

// UpsertService は商品の正規化と冪等UPSERT処理を提供する。
// (store_id, product_id)を一意キーとした上書き更新により、
// 再クロールや並行する兄弟ジョブの書き込みで重複を生成しない。
type UpsertService struct {
	invRepo   repository.InventoryRepository
	sanitizer security.ContentSanitizerService
}

// NewUpsertService はUpsertServiceの新しいインスタンスを生成する。
func NewUpsertService(
	invRepo repository.InventoryRepository,
	sanitizer security.ContentSanitizerService,
) *UpsertService {
	return &UpsertService{
		invRepo:   invRepo,
		sanitizer: sanitizer,
	}
}

// UpsertProducts はプロバイダから取得した商品を正規化して一括UPSERTする。
// 正規化の内容:
//   - 価格をマイナー単位（セント）からメジャー単位（ドル）に変換する
//   - 商品名と商品説明をサニタイズする
//
// 戻り値はUPSERTされた件数とエラー。
func (s *UpsertService) UpsertProducts(
	ctx context.Context,
	storeID string,
	products []catalog.ProductItem,
) (int, error) {
	if len(products) == 0 {
		return 0, nil
	}

	records := make([]model.InventoryRecord, 0, len(products))
	for _, p := range products {
		if p.ProductID == "" {
			continue
		}
		records = append(records, model.InventoryRecord{
			StoreID:           storeID,
			ProductID:         p.ProductID,
			Name:              s.sanitizer.Sanitize(p.Name),
			Price:             NormalizePrice(p.Price),
			UnitSize:          p.UnitSize,
			UnitOfMeasurement: p.UnitOfMeasurement,
			Description:       s.sanitizer.Sanitize(p.Description),
			ImageURL:          p.Image,
			IsAvailable:       p.IsAvailable,
			UPC:               p.UPC,
		})
	}

	if err := s.invRepo.BulkUpsert(ctx, records); err != nil {
		slog.Error("在庫レコードのUPSERTでエラー",
			"store_id", storeID,
			"count", len(records),
			"error", err,
		)
		return 0, fmt.Errorf("在庫レコードのUPSERTに失敗しました: %w", err)
	}

	slog.Info("在庫レコードUPSERT完了",
		"store_id", storeID,
		"count", len(records),
	)
	return len(records), nil
}

// NormalizePrice はマイナー単位（セント）の価格をメジャー単位（ドル）に変換する。
// 例: 1050 → 10.50
func NormalizePrice(priceMinor int) float64 {
	return float64(priceMinor) / 100
}
