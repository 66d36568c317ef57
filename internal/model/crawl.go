// Package model はドメインモデルを定義する。
package model

import "time"

// CrawlStatus は店舗ごとのクロール処理状態を表す。
// idle → in_progress → idle(time_end) と遷移し、削除されることはない。
type CrawlStatus struct {
	StoreID      string
	IsProcessing bool
	TimeStart    time.Time
	TimeEnd      *time.Time // 処理中はnil
}

// CrawlJobStatus はクロールジョブの処理状態を表す。
type CrawlJobStatus string

const (
	// CrawlJobStatusPending は未処理のジョブを示す。
	CrawlJobStatusPending CrawlJobStatus = "pending"
	// CrawlJobStatusRunning は処理中のジョブを示す。
	CrawlJobStatusRunning CrawlJobStatus = "running"
	// CrawlJobStatusDone は処理完了したジョブを示す。
	CrawlJobStatusDone CrawlJobStatus = "done"
	// CrawlJobStatusFailed はリトライ上限に達して失敗したジョブを示す。
	CrawlJobStatusFailed CrawlJobStatus = "failed"
)

// CrawlJob はカテゴリツリー走査の1単位を表す。
// SubcategoryIDが空文字列のジョブはルートジョブ（トップレベルカテゴリの取得）。
// UNIQUE(crawl_id, store_id, subcategory_id) 制約が訪問済みノードの
// 再エンキューを抑止する（訪問済みセットの役割）。
type CrawlJob struct {
	ID            string
	CrawlID       string // 1回のクロール実行を識別するID
	StoreID       string
	SubcategoryID string
	Location      GeoPoint
	Address       Address
	Status        CrawlJobStatus
	Attempts      int
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CrawlRequest はクロール開始要求を表す。
type CrawlRequest struct {
	StoreID  string
	Location GeoPoint
	Address  Address
}

// AdmissionResult はクロール許可判定の結果種別を表す。
type AdmissionResult string

const (
	// AdmissionProceed はクロールを開始してよいことを示す。
	AdmissionProceed AdmissionResult = "proceed"
	// AdmissionSkipInProgress は同一店舗のクロールが処理中のためスキップすることを示す。
	AdmissionSkipInProgress AdmissionResult = "in_progress"
	// AdmissionSkipRecentlyProcessed はクールダウン期間内のためスキップすることを示す。
	AdmissionSkipRecentlyProcessed AdmissionResult = "recently_processed"
)

// AdmissionDecision はクロール許可判定の結果を表す。
// スキップはエラーではなく、呼び出し元に文脈付きで返す正常な終端結果。
type AdmissionDecision struct {
	Result        AdmissionResult
	LastProcessed *time.Time // recently_processedの場合のみ設定される
}

// GeoPoint は緯度経度の座標を表す。
type GeoPoint struct {
	Latitude  float64
	Longitude float64
}

// IsZero は座標が未設定またはゼロ値かを返す。
// ゼロ値の座標は検索・クロール要求の受付前に拒否される。
func (p GeoPoint) IsZero() bool {
	return p.Latitude == 0 || p.Longitude == 0
}

// Address は配達先・検索基準の住所を表す。
type Address struct {
	StreetNum  string
	StreetName string
	City       string
	State      string
	ZipCode    string
	Country    string
}
