package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/pantryman/internal/model"
)

// PostgresStoreRepo はPostgreSQLを使用した店舗サマリーキャッシュ。
type PostgresStoreRepo struct {
	db *sql.DB
}

// NewPostgresStoreRepo はPostgresStoreRepoを生成する。
func NewPostgresStoreRepo(db *sql.DB) *PostgresStoreRepo {
	return &PostgresStoreRepo{db: db}
}

// FindInBox は座標を中心としたバウンディングボックス内で、
// last_updatedがfreshAfter以降の店舗を返す。
// ボックス検索は真の大円距離ではなく近似であり、ボックス幅は設定で調整する。
func (r *PostgresStoreRepo) FindInBox(ctx context.Context, center model.GeoPoint, boxDegree float64, freshAfter time.Time) ([]model.StoreSummary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT store_id, name, type, street_num, street_name, city, state,
		        zip_code, country, latitude, longitude, is_open, miles, last_updated
		 FROM store_summaries
		 WHERE latitude BETWEEN $1 - $3 AND $1 + $3
		   AND longitude BETWEEN $2 - $3 AND $2 + $3
		   AND last_updated >= $4
		 ORDER BY miles`,
		center.Latitude, center.Longitude, boxDegree, freshAfter,
	)
	if err != nil {
		return nil, fmt.Errorf("店舗サマリーの検索に失敗しました: %w", err)
	}
	defer rows.Close()

	var stores []model.StoreSummary
	for rows.Next() {
		var s model.StoreSummary
		err := rows.Scan(
			&s.StoreID, &s.Name, &s.Type,
			&s.Address.StreetNum, &s.Address.StreetName, &s.Address.City,
			&s.Address.State, &s.Address.ZipCode, &s.Address.Country,
			&s.Address.Latitude, &s.Address.Longitude,
			&s.IsOpen, &s.Miles, &s.LastUpdated,
		)
		if err != nil {
			return nil, fmt.Errorf("店舗サマリーの読み取りに失敗しました: %w", err)
		}
		stores = append(stores, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("店舗サマリーの読み取りに失敗しました: %w", err)
	}
	return stores, nil
}

// BulkUpsert は店舗サマリーを一括UPSERTする。
// エントリは削除されず、鮮度ウィンドウ外になることで無効化される。
func (r *PostgresStoreRepo) BulkUpsert(ctx context.Context, stores []model.StoreSummary, now time.Time) error {
	if len(stores) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	for _, s := range stores {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO store_summaries
			     (store_id, name, type, street_num, street_name, city, state,
			      zip_code, country, latitude, longitude, is_open, miles, last_updated)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			 ON CONFLICT (store_id) DO UPDATE SET
			     name = EXCLUDED.name,
			     type = EXCLUDED.type,
			     street_num = EXCLUDED.street_num,
			     street_name = EXCLUDED.street_name,
			     city = EXCLUDED.city,
			     state = EXCLUDED.state,
			     zip_code = EXCLUDED.zip_code,
			     country = EXCLUDED.country,
			     latitude = EXCLUDED.latitude,
			     longitude = EXCLUDED.longitude,
			     is_open = EXCLUDED.is_open,
			     miles = EXCLUDED.miles,
			     last_updated = EXCLUDED.last_updated`,
			s.StoreID, s.Name, s.Type,
			s.Address.StreetNum, s.Address.StreetName, s.Address.City,
			s.Address.State, s.Address.ZipCode, s.Address.Country,
			s.Address.Latitude, s.Address.Longitude,
			s.IsOpen, s.Miles, now,
		)
		if err != nil {
			return fmt.Errorf("店舗サマリーのUPSERTに失敗しました (store_id=%s): %w", s.StoreID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}
