package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/pantryman/internal/model"
)

// PostgresInventoryRepo はPostgreSQLを使用した在庫リポジトリ。
type PostgresInventoryRepo struct {
	db *sql.DB
}

// NewPostgresInventoryRepo はPostgresInventoryRepoを生成する。
func NewPostgresInventoryRepo(db *sql.DB) *PostgresInventoryRepo {
	return &PostgresInventoryRepo{db: db}
}

const inventoryColumns = `store_id, product_id, name, price, unit_size, unit_of_measurement,
	        description, image_url, is_available, upc, created_at, updated_at`

// scanInventoryRecord は1行を読み取りInventoryRecordに変換する。
func scanInventoryRecord(scan func(dest ...any) error) (*model.InventoryRecord, error) {
	rec := &model.InventoryRecord{}
	var upc sql.NullString

	err := scan(
		&rec.StoreID, &rec.ProductID, &rec.Name, &rec.Price,
		&rec.UnitSize, &rec.UnitOfMeasurement, &rec.Description,
		&rec.ImageURL, &rec.IsAvailable, &upc,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if upc.Valid {
		rec.UPC = upc.String
	}
	return rec, nil
}

// BulkUpsert は在庫レコードを一括で冪等にUPSERTする。
// ON CONFLICT (store_id, product_id) による上書き更新で、並行ジョブの
// 同一キー書き込みに対しても重複行を生成しない。
func (r *PostgresInventoryRepo) BulkUpsert(ctx context.Context, records []model.InventoryRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, rec := range records {
		var upc any
		if rec.UPC != "" {
			upc = rec.UPC
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO inventory_records
			     (store_id, product_id, name, price, unit_size, unit_of_measurement,
			      description, image_url, is_available, upc, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
			 ON CONFLICT (store_id, product_id) DO UPDATE SET
			     name = EXCLUDED.name,
			     price = EXCLUDED.price,
			     unit_size = EXCLUDED.unit_size,
			     unit_of_measurement = EXCLUDED.unit_of_measurement,
			     description = EXCLUDED.description,
			     image_url = EXCLUDED.image_url,
			     is_available = EXCLUDED.is_available,
			     upc = COALESCE(EXCLUDED.upc, inventory_records.upc),
			     updated_at = EXCLUDED.updated_at`,
			rec.StoreID, rec.ProductID, rec.Name, rec.Price,
			rec.UnitSize, rec.UnitOfMeasurement, rec.Description,
			rec.ImageURL, rec.IsAvailable, upc, now,
		)
		if err != nil {
			return fmt.Errorf("在庫レコードのUPSERTに失敗しました (product_id=%s): %w", rec.ProductID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// SearchByName は店舗内で名前の大文字小文字を区別しない部分一致検索を行う。
func (r *PostgresInventoryRepo) SearchByName(ctx context.Context, storeID, query string, limit int) ([]model.InventoryRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+inventoryColumns+`
		 FROM inventory_records
		 WHERE store_id = $1 AND name ILIKE '%' || $2 || '%'
		 ORDER BY created_at
		 LIMIT $3`,
		storeID, query, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("在庫レコードの検索に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectInventoryRows(rows)
}

// ListCandidates は希望アイテムに対する候補を検索する。
// 単位制約は指定された場合のみ等値条件として追加する。
func (r *PostgresInventoryRepo) ListCandidates(ctx context.Context, storeID, nameQuery, unitSize, unitOfMeasurement string, limit int) ([]model.InventoryRecord, error) {
	query := `SELECT ` + inventoryColumns + `
	 FROM inventory_records
	 WHERE store_id = $1 AND name ILIKE '%' || $2 || '%'`
	args := []any{storeID, nameQuery}

	if unitSize != "" {
		args = append(args, unitSize)
		query += fmt.Sprintf(" AND unit_size = $%d", len(args))
	}
	if unitOfMeasurement != "" {
		args = append(args, unitOfMeasurement)
		query += fmt.Sprintf(" AND unit_of_measurement = $%d", len(args))
	}

	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at LIMIT $%d", len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("マッチ候補の検索に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectInventoryRows(rows)
}

// FindByIDs は在庫レコードをIDリストで取得する。存在しないIDは結果に含めない。
func (r *PostgresInventoryRepo) FindByIDs(ctx context.Context, storeID string, productIDs []string) (map[string]model.InventoryRecord, error) {
	if len(productIDs) == 0 {
		return map[string]model.InventoryRecord{}, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+inventoryColumns+`
		 FROM inventory_records
		 WHERE store_id = $1 AND product_id = ANY($2)`,
		storeID, pq.Array(productIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("在庫レコードの一括取得に失敗しました: %w", err)
	}
	defer rows.Close()

	records, err := collectInventoryRows(rows)
	if err != nil {
		return nil, err
	}

	result := make(map[string]model.InventoryRecord, len(records))
	for _, rec := range records {
		result[rec.ProductID] = rec
	}
	return result, nil
}

// collectInventoryRows は結果セットをInventoryRecordのスライスに変換する。
func collectInventoryRows(rows *sql.Rows) ([]model.InventoryRecord, error) {
	var records []model.InventoryRecord
	for rows.Next() {
		rec, err := scanInventoryRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("在庫レコードの読み取りに失敗しました: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("在庫レコードの読み取りに失敗しました: %w", err)
	}
	return records, nil
}
