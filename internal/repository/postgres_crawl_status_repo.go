package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/pantryman/internal/model"
)

// PostgresCrawlStatusRepo はPostgreSQLを使用したクロール状態リポジトリ。
type PostgresCrawlStatusRepo struct {
	db *sql.DB
}

// NewPostgresCrawlStatusRepo はPostgresCrawlStatusRepoを生成する。
func NewPostgresCrawlStatusRepo(db *sql.DB) *PostgresCrawlStatusRepo {
	return &PostgresCrawlStatusRepo{db: db}
}

// FindByStoreID は店舗のクロール状態を取得する。見つからない場合はnilを返す。
func (r *PostgresCrawlStatusRepo) FindByStoreID(ctx context.Context, storeID string) (*model.CrawlStatus, error) {
	status := &model.CrawlStatus{}
	var timeEnd sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT store_id, is_processing, time_start, time_end
		 FROM crawl_status WHERE store_id = $1`,
		storeID,
	).Scan(&status.StoreID, &status.IsProcessing, &status.TimeStart, &timeEnd)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("クロール状態の取得に失敗しました: %w", err)
	}

	if timeEnd.Valid {
		status.TimeEnd = &timeEnd.Time
	}
	return status, nil
}

// Begin は処理中状態をUPSERTする。
// 店舗の初回クロールでは行を作成し、2回目以降は既存行を処理中に遷移させる。
// time_endはNULLに戻す（処理中はtime_endなしという不変条件を維持）。
func (r *PostgresCrawlStatusRepo) Begin(ctx context.Context, storeID string, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO crawl_status (store_id, is_processing, time_start, time_end)
		 VALUES ($1, TRUE, $2, NULL)
		 ON CONFLICT (store_id) DO UPDATE SET
		     is_processing = TRUE,
		     time_start = EXCLUDED.time_start,
		     time_end = NULL`,
		storeID, now,
	)
	if err != nil {
		return fmt.Errorf("クロール開始の記録に失敗しました: %w", err)
	}
	return nil
}

// Complete は処理完了を記録する。
func (r *PostgresCrawlStatusRepo) Complete(ctx context.Context, storeID string, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE crawl_status SET is_processing = FALSE, time_end = $2
		 WHERE store_id = $1`,
		storeID, now,
	)
	if err != nil {
		return fmt.Errorf("クロール完了の記録に失敗しました: %w", err)
	}
	return nil
}

// Release は処理中フラグのみを解除する。
// トリガー起動失敗時の補償処理であり、time_endは更新しない。
func (r *PostgresCrawlStatusRepo) Release(ctx context.Context, storeID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE crawl_status SET is_processing = FALSE
		 WHERE store_id = $1`,
		storeID,
	)
	if err != nil {
		return fmt.Errorf("クロール状態の解除に失敗しました: %w", err)
	}
	return nil
}
