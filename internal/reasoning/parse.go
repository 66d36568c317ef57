package reasoning

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hitoshi/pantryman/internal/model"
)

// matchesEnvelope は推論サービスに要求するJSON出力契約。
type matchesEnvelope struct {
	Matches []struct {
		ID               string `json:"id"`
		Name             string `json:"name"`
		AdjustedQuantity int    `json:"adjusted_quantity"`
	} `json:"matches"`
}

// ParseMatches は推論サービスのテキスト応答をマッチリストに変換する。
// 応答がMarkdownのコードフェンスで包まれている場合は除去してからパースする。
// 出力契約は強制されないため、JSONとして不正な応答はエラーを返す
// （呼び出し元が空結果への縮退を判断する）。
func ParseMatches(content string) ([]model.ResolvedMatch, error) {
	content = StripCodeFence(content)

	var envelope matchesEnvelope
	if err := json.Unmarshal([]byte(content), &envelope); err != nil {
		return nil, fmt.Errorf("%w: %s", model.NewReasoningMalformedError(), err.Error())
	}

	matches := make([]model.ResolvedMatch, 0, len(envelope.Matches))
	for _, m := range envelope.Matches {
		if m.ID == "" {
			continue
		}
		qty := m.AdjustedQuantity
		if qty <= 0 {
			qty = 1
		}
		matches = append(matches, model.ResolvedMatch{
			InventoryID:      m.ID,
			Name:             m.Name,
			AdjustedQuantity: qty,
		})
	}
	return matches, nil
}

// StripCodeFence はMarkdownコードフェンス（```json ... ``` または ``` ... ```）を除去する。
// フェンスで包まれていないコンテンツはそのまま返す。
func StripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	// 先頭フェンス行（```json等の言語タグを含む）を除去
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	} else {
		return trimmed
	}

	// 末尾フェンスを除去
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}
