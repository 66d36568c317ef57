package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hitoshi/pantryman/internal/model"
)

// PostgresMatchJobRepo はPostgreSQLを使用したマッチジョブキュー。
type PostgresMatchJobRepo struct {
	db *sql.DB
}

// NewPostgresMatchJobRepo はPostgresMatchJobRepoを生成する。
func NewPostgresMatchJobRepo(db *sql.DB) *PostgresMatchJobRepo {
	return &PostgresMatchJobRepo{db: db}
}

// Enqueue はマッチジョブを登録する。希望アイテムはJSONBで保持する。
func (r *PostgresMatchJobRepo) Enqueue(ctx context.Context, job *model.MatchJob) error {
	itemsJSON, err := json.Marshal(job.Items)
	if err != nil {
		return fmt.Errorf("希望アイテムのエンコードに失敗しました: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO match_jobs (id, store_id, influencer_id, items, status, attempts, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, 'pending', 0, $5, $5)`,
		job.ID, job.StoreID, job.InfluencerID, itemsJSON, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("マッチジョブの登録に失敗しました: %w", err)
	}
	return nil
}

// DequeuePending は未処理ジョブをFOR UPDATE SKIP LOCKEDで排他的に取得する。
func (r *PostgresMatchJobRepo) DequeuePending(ctx context.Context, limit int) ([]*model.MatchJob, error) {
	rows, err := r.db.QueryContext(ctx,
		`UPDATE match_jobs SET status = 'running', updated_at = now()
		 WHERE id IN (
		     SELECT id FROM match_jobs
		     WHERE status = 'pending'
		     ORDER BY created_at
		     FOR UPDATE SKIP LOCKED
		     LIMIT $1
		 )
		 RETURNING id, store_id, influencer_id, items, status, attempts, last_error, created_at, updated_at`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("マッチジョブの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var jobs []*model.MatchJob
	for rows.Next() {
		job := &model.MatchJob{}
		var itemsJSON []byte
		err := rows.Scan(
			&job.ID, &job.StoreID, &job.InfluencerID, &itemsJSON,
			&job.Status, &job.Attempts, &job.LastError,
			&job.CreatedAt, &job.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("マッチジョブの読み取りに失敗しました: %w", err)
		}
		if err := json.Unmarshal(itemsJSON, &job.Items); err != nil {
			return nil, fmt.Errorf("希望アイテムのデコードに失敗しました: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("マッチジョブの読み取りに失敗しました: %w", err)
	}
	return jobs, nil
}

// MarkDone はジョブを完了状態にする。
func (r *PostgresMatchJobRepo) MarkDone(ctx context.Context, jobID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE match_jobs SET status = 'done', updated_at = now() WHERE id = $1`,
		jobID,
	)
	if err != nil {
		return fmt.Errorf("マッチジョブの完了記録に失敗しました: %w", err)
	}
	return nil
}

// MarkFailed はジョブの失敗を記録する。attemptsが上限未満ならpendingに戻す。
func (r *PostgresMatchJobRepo) MarkFailed(ctx context.Context, jobID string, reason string, maxAttempts int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE match_jobs SET
		     attempts = attempts + 1,
		     last_error = $2,
		     status = CASE WHEN attempts + 1 >= $3 THEN 'failed' ELSE 'pending' END,
		     updated_at = now()
		 WHERE id = $1`,
		jobID, reason, maxAttempts,
	)
	if err != nil {
		return fmt.Errorf("マッチジョブの失敗記録に失敗しました: %w", err)
	}
	return nil
}
