// Package match は買い物リストを在庫レコードへ解決するマッチングパイプラインを提供する。
// 決定的な候補フィルタと、外部推論サービスによる曖昧性解決の2段構成。
package match

import (
	"encoding/json"
	"fmt"

	"github.com/hitoshi/pantryman/internal/model"
)

// promptItem は推論サービスに送る希望アイテムの縮約表現。
type promptItem struct {
	Name                string   `json:"name"`
	PositiveDescriptors []string `json:"positiveDescriptors,omitempty"`
	NegativeDescriptors []string `json:"negativeDescriptors,omitempty"`
	Quantity            int      `json:"quantity"`
}

// promptCandidate は推論サービスに送る候補の縮約表現（idと名前のみ）。
type promptCandidate struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// promptData は推論サービスに送る構造化データ。
type promptData struct {
	SearchItems    []promptItem      `json:"searchItems"`
	InventoryItems []promptCandidate `json:"inventoryItems"`
}

// promptInstruction は推論サービスへの指示文。
// 出力契約（JSON形式、アイテムごとに最大1件）を明示するが、
// 契約は強制されないため応答側で防御的にパースする。
const promptInstruction = `You are a helpful assistant that matches grocery items based on names and attributes. Match the following search items with the best inventory items and determine the appropriate quantity for each item.
Only return 1 match for each search item. The search items have positive and negative descriptors that you should use to match the inventory items.
Do not include items that have matching negative descriptors. Include items that have matching positive descriptors.
Return the best matches in the following JSON format:
{
  "matches": [
    {
      "id": "inventory item id from data",
      "name": "inventory item name from data",
      "adjusted_quantity": 1
    }
  ]
}
`

// BuildPrompt は希望アイテムと候補から推論サービスへのプロンプトを構築する。
// 候補はidと名前のみに縮約する（価格や説明は送らない）。
func BuildPrompt(items []model.DesiredItem, candidates []model.Candidate) (string, error) {
	data := promptData{
		SearchItems:    make([]promptItem, 0, len(items)),
		InventoryItems: make([]promptCandidate, 0, len(candidates)),
	}
	for _, item := range items {
		data.SearchItems = append(data.SearchItems, promptItem{
			Name:                item.Name,
			PositiveDescriptors: item.PositiveDescriptors,
			NegativeDescriptors: item.NegativeDescriptors,
			Quantity:            item.Quantity,
		})
	}
	for _, c := range candidates {
		data.InventoryItems = append(data.InventoryItems, promptCandidate{
			ID:   c.InventoryID,
			Name: c.Name,
		})
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("プロンプトデータのエンコードに失敗しました: %w", err)
	}
	return promptInstruction + string(encoded), nil
}
