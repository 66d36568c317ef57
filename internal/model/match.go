// Package model はドメインモデルを定義する。
package model

import "time"

// DesiredItem は買い物リストの1エントリ（解決前）を表す。
// 肯定・否定ディスクリプタは曖昧性解決時のヒントとして使われる。
type DesiredItem struct {
	Name                string
	Quantity            int
	UnitSize            string
	UnitOfMeasurement   string
	PositiveDescriptors []string
	NegativeDescriptors []string
}

// Candidate は曖昧性解決前の暫定マッチ候補を表す。
// 決定的フィルタ（名前の部分一致＋単位制約）の出力。
type Candidate struct {
	InventoryID string
	Name        string
}

// ResolvedMatch は推論サービスが返した1件のマッチを表す。
// InventoryIDの再解決に失敗したマッチは再結合時に破棄される。
type ResolvedMatch struct {
	InventoryID      string
	Name             string
	AdjustedQuantity int
}

// MatchedItem はMatchSetに含まれる解決済みの1件を表す。
type MatchedItem struct {
	SourceItemName   string  `json:"source_item_name"`
	InventoryID      string  `json:"inventory_id"`
	Name             string  `json:"name"`
	AdjustedQuantity int     `json:"adjusted_quantity"`
	Price            float64 `json:"price"`
	Image            string  `json:"image"`
	IsAvailable      bool    `json:"is_available"`
}

// MatchSet は(store_id, influencer_id)ごとに一意な解決結果を表す。
// マッチパイプラインの再実行は前回の結果を丸ごと置き換える（追記ではない）。
type MatchSet struct {
	ID           string
	StoreID      string
	InfluencerID string
	Matches      []MatchedItem
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MatchJob はマッチングパイプライン実行の1単位を表す。
type MatchJob struct {
	ID           string
	StoreID      string
	InfluencerID string
	Items        []DesiredItem
	Status       CrawlJobStatus // クロールジョブと同じ状態遷移を共有する
	Attempts     int
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
