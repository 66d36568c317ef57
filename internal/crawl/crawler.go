package crawl

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hitoshi/pantryman/internal/catalog"
	"github.com/hitoshi/pantryman/internal/model"
	"github.com/hitoshi/pantryman/internal/repository"
)

// CategoryFetcher はカタログプロバイダからのカテゴリページ取得インターフェース。
type CategoryFetcher interface {
	FetchCategories(ctx context.Context, storeID, subcategoryID string, loc model.GeoPoint, addr model.Address) (*catalog.CategoryPage, error)
}

// ProductUpserter は商品の正規化とUPSERT処理のインターフェース。
type ProductUpserter interface {
	UpsertProducts(ctx context.Context, storeID string, products []catalog.ProductItem) (int, error)
}

// Crawler はカテゴリツリーの1ノード（ジョブ1件）を処理する。
// アイテムを持つカテゴリは在庫としてUPSERTし、アイテム0件で
// subcategory_idを持つカテゴリは子ジョブとしてエンキューする。
type Crawler struct {
	jobRepo   repository.CrawlJobRepository
	fetcher   CategoryFetcher
	upsertSvc ProductUpserter
	logger    *slog.Logger
}

// NewCrawler はCrawlerの新しいインスタンスを生成する。
func NewCrawler(
	jobRepo repository.CrawlJobRepository,
	fetcher CategoryFetcher,
	upsertSvc ProductUpserter,
	logger *slog.Logger,
) *Crawler {
	return &Crawler{
		jobRepo:   jobRepo,
		fetcher:   fetcher,
		upsertSvc: upsertSvc,
		logger:    logger,
	}
}

// ProcessJob はジョブ1件を処理する。
// プロバイダからカテゴリページを取得し、各カテゴリを以下のように扱う:
//   - アイテムを持つカテゴリ: 葉として商品を収集しUPSERTする
//   - アイテム0件かつsubcategory_idあり: 子ジョブをエンキューする。
//     ただし自ジョブと同一のsubcategory_idは終端の葉として扱う
//     （自己参照ノードによる無限再帰の防止）
//   - アイテム0件かつsubcategory_idなし: 空の葉としてスキップする
//
// 訪問済みノードの再エンキューはキューの一意制約によりno-opとなる。
// エラーを返した場合、ジョブはリトライ対象として扱われる。
func (c *Crawler) ProcessJob(ctx context.Context, job *model.CrawlJob) (int, error) {
	page, err := c.fetcher.FetchCategories(ctx, job.StoreID, job.SubcategoryID, job.Location, job.Address)
	if err != nil {
		return 0, fmt.Errorf("カテゴリページの取得に失敗しました: %w", err)
	}

	var products []catalog.ProductItem
	var enqueued int

	for _, cat := range page.Categories {
		if len(cat.Items) > 0 {
			products = append(products, cat.Items...)
			continue
		}

		if cat.SubcategoryID == "" {
			// アイテムも子カテゴリもない空ノード
			continue
		}

		if cat.SubcategoryID == job.SubcategoryID {
			// 自ジョブと同一のsubcategory_idを指す自己参照ノードは終端として扱う
			c.logger.Warn("自己参照カテゴリを検出しました",
				slog.String("store_id", job.StoreID),
				slog.String("subcategory_id", cat.SubcategoryID),
			)
			continue
		}

		child := &model.CrawlJob{
			ID:            uuid.NewString(),
			CrawlID:       job.CrawlID,
			StoreID:       job.StoreID,
			SubcategoryID: cat.SubcategoryID,
			Location:      job.Location,
			Address:       job.Address,
			Status:        model.CrawlJobStatusPending,
		}
		inserted, err := c.jobRepo.Enqueue(ctx, child)
		if err != nil {
			return 0, fmt.Errorf("子ジョブの登録に失敗しました: %w", err)
		}
		if inserted {
			enqueued++
		}
	}

	upserted, err := c.upsertSvc.UpsertProducts(ctx, job.StoreID, products)
	if err != nil {
		return 0, err
	}

	c.logger.Info("クロールジョブを処理しました",
		slog.String("store_id", job.StoreID),
		slog.String("crawl_id", job.CrawlID),
		slog.String("subcategory_id", job.SubcategoryID),
		slog.Int("category_count", len(page.Categories)),
		slog.Int("items_upserted", upserted),
		slog.Int("children_enqueued", enqueued),
	)
	return upserted, nil
}
