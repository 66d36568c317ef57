// Package model はドメインモデルを定義する。
package model

import "time"

// StoreSummary は近接検索に使う店舗エントリを表す。
// 時間制限付きキャッシュとして扱われ、鮮度ウィンドウを超えたエントリは
// 読み取り時に無視される（削除はされない）。
type StoreSummary struct {
	StoreID     string
	Name        string
	Type        string
	Address     StoreAddress
	IsOpen      bool
	Miles       float64 // 検索基準点からの距離（マイル）
	LastUpdated time.Time
}

// StoreAddress は店舗の所在地を表す。
type StoreAddress struct {
	StreetNum  string
	StreetName string
	City       string
	State      string
	ZipCode    string
	Country    string
	Latitude   float64
	Longitude  float64
}

// StoreSearchQuery は店舗近接検索の条件を表す。
type StoreSearchQuery struct {
	Query        string // 任意のフリーテキスト
	Location     GeoPoint
	MaximumMiles float64
}
