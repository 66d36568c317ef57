package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hitoshi/pantryman/internal/model"
)

// PostgresMatchRepo はPostgreSQLを使用したマッチ結果リポジトリ。
// マッチのリストはJSONBカラムに保存する。
type PostgresMatchRepo struct {
	db *sql.DB
}

// NewPostgresMatchRepo はPostgresMatchRepoを生成する。
func NewPostgresMatchRepo(db *sql.DB) *PostgresMatchRepo {
	return &PostgresMatchRepo{db: db}
}

// FindByStoreAndInfluencer はマッチ結果を取得する。見つからない場合はnilを返す。
func (r *PostgresMatchRepo) FindByStoreAndInfluencer(ctx context.Context, storeID, influencerID string) (*model.MatchSet, error) {
	set := &model.MatchSet{}
	var matchesJSON []byte

	err := r.db.QueryRowContext(ctx,
		`SELECT id, store_id, influencer_id, matches, created_at, updated_at
		 FROM match_sets WHERE store_id = $1 AND influencer_id = $2`,
		storeID, influencerID,
	).Scan(&set.ID, &set.StoreID, &set.InfluencerID, &matchesJSON, &set.CreatedAt, &set.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("マッチ結果の取得に失敗しました: %w", err)
	}

	if err := json.Unmarshal(matchesJSON, &set.Matches); err != nil {
		return nil, fmt.Errorf("マッチ結果のデコードに失敗しました: %w", err)
	}
	return set, nil
}

// Replace はマッチ結果をUPSERTする。
// UNIQUE(store_id, influencer_id)制約により前回の結果を丸ごと置き換える。
// 並行する置き換えはlast-writer-winsとなる。
func (r *PostgresMatchRepo) Replace(ctx context.Context, set *model.MatchSet) error {
	matches := set.Matches
	if matches == nil {
		matches = []model.MatchedItem{}
	}
	matchesJSON, err := json.Marshal(matches)
	if err != nil {
		return fmt.Errorf("マッチ結果のエンコードに失敗しました: %w", err)
	}

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO match_sets (id, store_id, influencer_id, matches, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 ON CONFLICT (store_id, influencer_id) DO UPDATE SET
		     matches = EXCLUDED.matches,
		     updated_at = EXCLUDED.updated_at`,
		set.ID, set.StoreID, set.InfluencerID, matchesJSON, now,
	)
	if err != nil {
		return fmt.Errorf("マッチ結果のUPSERTに失敗しました: %w", err)
	}
	return nil
}
