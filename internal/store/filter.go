// Package store は店舗サマリーの時間制限付きキャッシュを提供する。
// ローカルキャッシュの近接検索と、キャッシュミス時のプロバイダ検索・
// フィルタ・UPSERTを含む。
package store

import "strings"

// nonGroceryMarkers は食料品店以外の業態を示す店舗名・タイプの部分文字列。
// プロバイダの検索結果はstore_type=groceryを指定しても異業態が混入するため、
// 名前と業態の部分一致ヒューリスティックで除外する。
var nonGroceryMarkers = []string{
	"pharmacy",
	"drug",
	"liquor",
	"wine",
	"spirits",
	"tobacco",
	"smoke",
	"vape",
	"gas station",
	"fuel",
	"convenience",
	"dollar",
	"hardware",
	"pet store",
	"pet sup",
	"petco",
	"petsmart",
	"office",
	"electronics",
}

// IsGrocery は店舗が食料品店とみなせるかを判定する。
// 店舗名と業態を小文字化し、除外マーカーのいずれかを含む場合はfalseを返す。
func IsGrocery(name, storeType string) bool {
	target := strings.ToLower(name) + " " + strings.ToLower(storeType)
	for _, marker := range nonGroceryMarkers {
		if strings.Contains(target, marker) {
			return false
		}
	}
	return true
}
