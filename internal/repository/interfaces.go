// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/pantryman/internal/model"
)

// InventoryRepository は在庫レコードの永続化インターフェース。
// (store_id, product_id) を一意キーとした冪等UPSERTを提供する。
type InventoryRepository interface {
	// BulkUpsert は在庫レコードを一括で冪等にUPSERTする。
	// 既存レコードはフィールドを上書き更新し、重複行を生成しない。
	// 並行するジョブが同一キーに書き込んでも安全。
	BulkUpsert(ctx context.Context, records []model.InventoryRecord) error

	// SearchByName は店舗内で名前の大文字小文字を区別しない部分一致検索を行う。
	SearchByName(ctx context.Context, storeID, query string, limit int) ([]model.InventoryRecord, error)

	// ListCandidates は希望アイテムに対する候補を検索する。
	// 名前の部分一致に加え、unitSize/unitOfMeasurementが空でなければ等値制約を適用する。
	// 挿入順で最大limit件返す（フィルタ順以外のランキングは行わない）。
	ListCandidates(ctx context.Context, storeID, nameQuery, unitSize, unitOfMeasurement string, limit int) ([]model.InventoryRecord, error)

	// FindByIDs は在庫レコードをIDリストで取得する。存在しないIDは結果に含めない。
	FindByIDs(ctx context.Context, storeID string, productIDs []string) (map[string]model.InventoryRecord, error)
}

// CrawlStatusRepository は店舗ごとのクロール状態の永続化インターフェース。
type CrawlStatusRepository interface {
	// FindByStoreID は店舗のクロール状態を取得する。見つからない場合はnilを返す。
	FindByStoreID(ctx context.Context, storeID string) (*model.CrawlStatus, error)

	// Begin は処理中状態をUPSERTする。{is_processing: true, time_start: now, time_end: null}
	Begin(ctx context.Context, storeID string, now time.Time) error

	// Complete は処理完了を記録する。{is_processing: false, time_end: now}
	Complete(ctx context.Context, storeID string, now time.Time) error

	// Release はトリガー起動失敗時の補償として処理中フラグのみを解除する。
	// time_endには触れないため、クールダウンを発生させずに即座に再試行できる。
	Release(ctx context.Context, storeID string) error
}

// CrawlJobRepository はクロールジョブキューの永続化インターフェース。
// at-least-once配信の耐久キューとして機能する。
type CrawlJobRepository interface {
	// Enqueue はジョブを登録する。
	// UNIQUE(crawl_id, store_id, subcategory_id)制約により、同一クロール実行内で
	// 訪問済みのノードの再エンキューはno-opとなる。戻り値は実際に登録されたかどうか。
	Enqueue(ctx context.Context, job *model.CrawlJob) (bool, error)

	// DequeuePending は未処理ジョブをFOR UPDATE SKIP LOCKEDで排他的に取得し、
	// runningに遷移させて返す。
	DequeuePending(ctx context.Context, limit int) ([]*model.CrawlJob, error)

	// MarkDone はジョブを完了状態にする。
	MarkDone(ctx context.Context, jobID string) error

	// MarkFailed はジョブの失敗を記録する。
	// attemptsがmaxAttempts未満の場合はpendingに戻してキューインフラのリトライに委ねる。
	MarkFailed(ctx context.Context, jobID string, reason string, maxAttempts int) error

	// CountActiveByCrawlID はクロール実行内の未完了（pending/running）ジョブ数を返す。
	// 0になった時点でそのクロール実行は完了とみなす。
	CountActiveByCrawlID(ctx context.Context, crawlID string) (int, error)
}

// StoreRepository は店舗サマリーキャッシュの永続化インターフェース。
type StoreRepository interface {
	// FindInBox は座標を中心としたバウンディングボックス内で、
	// last_updatedが鮮度ウィンドウ内の店舗を返す。
	FindInBox(ctx context.Context, center model.GeoPoint, boxDegree float64, freshAfter time.Time) ([]model.StoreSummary, error)

	// BulkUpsert は店舗サマリーを一括UPSERTする。last_updatedを現在時刻に更新する。
	BulkUpsert(ctx context.Context, stores []model.StoreSummary, now time.Time) error
}

// MatchRepository はマッチ結果の永続化インターフェース。
type MatchRepository interface {
	// FindByStoreAndInfluencer はマッチ結果を取得する。見つからない場合はnilを返す。
	FindByStoreAndInfluencer(ctx context.Context, storeID, influencerID string) (*model.MatchSet, error)

	// Replace はマッチ結果をUPSERTする。
	// UNIQUE(store_id, influencer_id)制約により前回の結果を丸ごと置き換える（追記ではない）。
	Replace(ctx context.Context, set *model.MatchSet) error
}

// MatchJobRepository はマッチジョブキューの永続化インターフェース。
type MatchJobRepository interface {
	// Enqueue はマッチジョブを登録する。
	Enqueue(ctx context.Context, job *model.MatchJob) error

	// DequeuePending は未処理ジョブをFOR UPDATE SKIP LOCKEDで排他的に取得する。
	DequeuePending(ctx context.Context, limit int) ([]*model.MatchJob, error)

	// MarkDone はジョブを完了状態にする。
	MarkDone(ctx context.Context, jobID string) error

	// MarkFailed はジョブの失敗を記録する。attemptsが上限未満ならpendingに戻す。
	MarkFailed(ctx context.Context, jobID string, reason string, maxAttempts int) error
}
