// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService はカタログプロバイダが返す商品名・商品説明を
// サニタイズし、マークアップ混入によるセキュリティリスクからユーザーを保護する。
// プロバイダのレスポンスは信頼できない外部入力として扱い、
// bluemondayのStrictPolicyで全タグを除去したプレーンテキストのみを永続化する。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService は商品テキストのサニタイズ機能のインターフェースを定義する。
// 在庫レコードの保存前に使用される。
type ContentSanitizerService interface {
	// Sanitize はテキストから全てのHTMLタグを除去したプレーンテキストを返す。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// 商品名・商品説明は表示用のプレーンテキストとして扱うため、
// タグを一切許可しないStrictPolicyを使用する。
func NewContentSanitizer() *contentSanitizer {
	return &contentSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はテキストから全てのHTMLタグを除去したプレーンテキストを返す。
func (s *contentSanitizer) Sanitize(raw string) string {
	return strings.TrimSpace(s.policy.Sanitize(raw))
}
