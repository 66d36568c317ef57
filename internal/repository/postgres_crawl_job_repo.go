package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/pantryman/internal/model"
)

// PostgresCrawlJobRepo はPostgreSQLを使用したクロールジョブキュー。
// FOR UPDATE SKIP LOCKEDによる排他取得で、複数ワーカーの並行消費に対応する。
type PostgresCrawlJobRepo struct {
	db *sql.DB
}

// NewPostgresCrawlJobRepo はPostgresCrawlJobRepoを生成する。
func NewPostgresCrawlJobRepo(db *sql.DB) *PostgresCrawlJobRepo {
	return &PostgresCrawlJobRepo{db: db}
}

// Enqueue はジョブを登録する。
// ON CONFLICT DO NOTHINGにより、同一クロール実行内で訪問済みの
// (store_id, subcategory_id)の再エンキューはno-opとなる。
func (r *PostgresCrawlJobRepo) Enqueue(ctx context.Context, job *model.CrawlJob) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO crawl_jobs
		     (id, crawl_id, store_id, subcategory_id, latitude, longitude,
		      street_num, street_name, city, state, zip_code, country,
		      status, attempts, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 'pending', 0, $13, $13)
		 ON CONFLICT (crawl_id, store_id, subcategory_id) DO NOTHING`,
		job.ID, job.CrawlID, job.StoreID, job.SubcategoryID,
		job.Location.Latitude, job.Location.Longitude,
		job.Address.StreetNum, job.Address.StreetName, job.Address.City,
		job.Address.State, job.Address.ZipCode, job.Address.Country,
		time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("クロールジョブの登録に失敗しました: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("クロールジョブの登録結果の確認に失敗しました: %w", err)
	}
	return n > 0, nil
}

// DequeuePending は未処理ジョブを排他的に取得しrunningに遷移させる。
// SKIP LOCKEDにより他ワーカーが取得中の行はスキップされる。
func (r *PostgresCrawlJobRepo) DequeuePending(ctx context.Context, limit int) ([]*model.CrawlJob, error) {
	rows, err := r.db.QueryContext(ctx,
		`UPDATE crawl_jobs SET status = 'running', updated_at = now()
		 WHERE id IN (
		     SELECT id FROM crawl_jobs
		     WHERE status = 'pending'
		     ORDER BY created_at
		     FOR UPDATE SKIP LOCKED
		     LIMIT $1
		 )
		 RETURNING id, crawl_id, store_id, subcategory_id, latitude, longitude,
		           street_num, street_name, city, state, zip_code, country,
		           status, attempts, last_error, created_at, updated_at`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("クロールジョブの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var jobs []*model.CrawlJob
	for rows.Next() {
		job := &model.CrawlJob{}
		err := rows.Scan(
			&job.ID, &job.CrawlID, &job.StoreID, &job.SubcategoryID,
			&job.Location.Latitude, &job.Location.Longitude,
			&job.Address.StreetNum, &job.Address.StreetName, &job.Address.City,
			&job.Address.State, &job.Address.ZipCode, &job.Address.Country,
			&job.Status, &job.Attempts, &job.LastError,
			&job.CreatedAt, &job.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("クロールジョブの読み取りに失敗しました: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("クロールジョブの読み取りに失敗しました: %w", err)
	}
	return jobs, nil
}

// MarkDone はジョブを完了状態にする。
func (r *PostgresCrawlJobRepo) MarkDone(ctx context.Context, jobID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE crawl_jobs SET status = 'done', updated_at = now() WHERE id = $1`,
		jobID,
	)
	if err != nil {
		return fmt.Errorf("クロールジョブの完了記録に失敗しました: %w", err)
	}
	return nil
}

// MarkFailed はジョブの失敗を記録する。
// attemptsをインクリメントし、maxAttempts未満であればpendingに戻して再配信させる。
// 上限に達したジョブはfailedで終端する（兄弟ジョブには影響しない）。
func (r *PostgresCrawlJobRepo) MarkFailed(ctx context.Context, jobID string, reason string, maxAttempts int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE crawl_jobs SET
		     attempts = attempts + 1,
		     last_error = $2,
		     status = CASE WHEN attempts + 1 >= $3 THEN 'failed' ELSE 'pending' END,
		     updated_at = now()
		 WHERE id = $1`,
		jobID, reason, maxAttempts,
	)
	if err != nil {
		return fmt.Errorf("クロールジョブの失敗記録に失敗しました: %w", err)
	}
	return nil
}

// CountActiveByCrawlID はクロール実行内の未完了ジョブ数を返す。
func (r *PostgresCrawlJobRepo) CountActiveByCrawlID(ctx context.Context, crawlID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM crawl_jobs
		 WHERE crawl_id = $1 AND status IN ('pending', 'running')`,
		crawlID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("未完了ジョブ数の取得に失敗しました: %w", err)
	}
	return count, nil
}
