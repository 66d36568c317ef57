// Package model はドメインモデルを定義する。
package model

import "time"

// InventoryRecord は1店舗が提供する1商品を表す。
// (store_id, product_id) で一意であり、再クロール時は上書き更新される。
type InventoryRecord struct {
	StoreID           string
	ProductID         string
	Name              string
	Price             float64 // メジャー単位（ドル）に正規化済み
	UnitSize          string
	UnitOfMeasurement string
	Description       string // サニタイズ済みテキスト
	ImageURL          string
	IsAvailable       bool
	UPC               string // 任意。未取得の場合は空文字列
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
