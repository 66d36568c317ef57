// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"time"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, crawl, match, provider, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeProviderUnavailable   = "PROVIDER_UNAVAILABLE"
	ErrCodeReasoningUnavailable  = "REASONING_UNAVAILABLE"
	ErrCodeReasoningMalformed    = "REASONING_MALFORMED"
	ErrCodeCrawlInProgress       = "CRAWL_IN_PROGRESS"
	ErrCodeCrawlRecentlyComplete = "CRAWL_RECENTLY_COMPLETED"
	ErrCodeMissingCoordinates    = "MISSING_COORDINATES"
	ErrCodeMatchingFailed        = "MATCHING_FAILED"
	ErrCodeMatchNotFound         = "MATCH_NOT_FOUND"
	ErrCodeQueryRequired         = "QUERY_REQUIRED"
)

// NewProviderUnavailableError はカタログプロバイダ呼び出し失敗エラーを生成する。
// ジョブレベルのリトライで回復可能なエラー。
func NewProviderUnavailableError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeProviderUnavailable,
		Message:  fmt.Sprintf("カタログプロバイダの呼び出しに失敗しました: %s", reason),
		Category: "provider",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewReasoningUnavailableError は推論サービス呼び出し失敗エラーを生成する。
func NewReasoningUnavailableError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeReasoningUnavailable,
		Message:  fmt.Sprintf("推論サービスの呼び出しに失敗しました: %s", reason),
		Category: "match",
		Action:   "部分的な結果で続行します。必要に応じて再実行してください。",
	}
}

// NewReasoningMalformedError は推論サービスの応答がパース不能な場合のエラーを生成する。
// パイプラインはこのエラーを呼び出し元に伝播せず、空のマッチ結果に縮退する。
func NewReasoningMalformedError() *APIError {
	return &APIError{
		Code:     ErrCodeReasoningMalformed,
		Message:  "推論サービスの応答を解析できませんでした。",
		Category: "match",
		Action:   "部分的な結果で続行します。必要に応じて再実行してください。",
	}
}

// NewCrawlInProgressError は同一店舗のクロールが処理中であることを示す応答を生成する。
// エラーではなく許可制御の正常な終端結果として扱う。
func NewCrawlInProgressError(storeID string) *APIError {
	return &APIError{
		Code:     ErrCodeCrawlInProgress,
		Message:  fmt.Sprintf("店舗 %s の在庫処理は既に実行中です。", storeID),
		Category: "crawl",
		Action:   "処理完了を待ってから再度お試しください。",
	}
}

// NewCrawlRecentlyCompletedError はクールダウン期間内であることを示す応答を生成する。
func NewCrawlRecentlyCompletedError(storeID string, lastProcessed time.Time) *APIError {
	return &APIError{
		Code:     ErrCodeCrawlRecentlyComplete,
		Message:  fmt.Sprintf("店舗 %s の在庫は %s に処理済みです。", storeID, lastProcessed.Format(time.RFC3339)),
		Category: "crawl",
		Action:   "クールダウン期間の経過後に再度お試しください。",
	}
}

// NewMissingCoordinatesError は座標未指定エラーを生成する。
// latitudeとlongitudeは両方必須で、ゼロ値は未指定として扱う。
func NewMissingCoordinatesError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingCoordinates,
		Message:  "latitudeとlongitudeの両方を指定してください（ゼロ値は不可）。",
		Category: "validation",
		Action:   "有効な座標を指定して再度お試しください。",
	}
}

// NewMatchingFailedError はマッチングパイプライン失敗エラーを生成する。
// 在庫クエリ失敗と推論サービス失敗の両方をこの1種類に集約する。
func NewMatchingFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeMatchingFailed,
		Message:  fmt.Sprintf("アイテムのマッチングに失敗しました: %s", reason),
		Category: "match",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewMatchNotFoundError はマッチ結果未検出エラーを生成する。
func NewMatchNotFoundError(storeID, influencerID string) *APIError {
	return &APIError{
		Code:     ErrCodeMatchNotFound,
		Message:  fmt.Sprintf("店舗 %s とインフルエンサー %s のマッチ結果が見つかりません。", storeID, influencerID),
		Category: "match",
		Action:   "マッチングパイプラインを先に実行してください。",
	}
}

// NewQueryRequiredError は検索クエリ未指定エラーを生成する。
func NewQueryRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeQueryRequired,
		Message:  "検索クエリを指定してください。",
		Category: "validation",
		Action:   "queryパラメータを指定して再度お試しください。",
	}
}
