package match

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/pantryman/internal/metrics"
	"github.com/hitoshi/pantryman/internal/model"
	"github.com/hitoshi/pantryman/internal/reasoning"
	"github.com/hitoshi/pantryman/internal/repository"
)

const (
	defaultChunkSize      = 15
	defaultCandidateLimit = 200
)

// Service は買い物リストの解決パイプラインを実行する。
// 段階1: 在庫に対する決定的な候補フィルタ（名前の部分一致＋単位制約）。
// 段階2: 候補が1件のアイテムは直接解決し、曖昧なアイテムは
// チャンク単位で推論サービスに送って曖昧性を解決する。
// 推論の失敗は部分結果への縮退として扱い、リクエスト全体は失敗させない。
type Service struct {
	invRepo        repository.InventoryRepository
	matchRepo      repository.MatchRepository
	resolver       reasoning.Resolver
	collector      metrics.MetricsCollector
	logger         *slog.Logger
	chunkSize      int
	candidateLimit int
}

// NewService はServiceの新しいインスタンスを生成する。
// chunkSizeが0以下の場合は15、candidateLimitが0以下の場合は200を使用する。
func NewService(
	invRepo repository.InventoryRepository,
	matchRepo repository.MatchRepository,
	resolver reasoning.Resolver,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	chunkSize int,
	candidateLimit int,
) *Service {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if candidateLimit <= 0 {
		candidateLimit = defaultCandidateLimit
	}
	return &Service{
		invRepo:        invRepo,
		matchRepo:      matchRepo,
		resolver:       resolver,
		collector:      collector,
		logger:         logger,
		chunkSize:      chunkSize,
		candidateLimit: candidateLimit,
	}
}

// itemCandidates は希望アイテム1件とその候補リストの対。
type itemCandidates struct {
	item       model.DesiredItem
	candidates []model.Candidate
}

// Resolve は希望アイテムリストを在庫レコードへ解決し、
// (store_id, influencer_id)のマッチ結果を丸ごと置き換えて返す。
// 在庫クエリと永続化の失敗はMATCHING_FAILEDとして報告し、
// 推論サービスの失敗は該当チャンクの空結果として縮退する。
func (s *Service) Resolve(ctx context.Context, storeID, influencerID string, items []model.DesiredItem) (*model.MatchSet, error) {
	start := time.Now()

	staged, err := s.collectCandidates(ctx, storeID, items)
	if err != nil {
		s.collector.RecordMatchFailure("candidate_query")
		return nil, err
	}

	resolved, sourceByID := s.disambiguate(ctx, staged)

	matched, err := s.reassemble(ctx, storeID, resolved, sourceByID)
	if err != nil {
		s.collector.RecordMatchFailure("reassembly")
		return nil, err
	}

	set := &model.MatchSet{
		ID:           uuid.NewString(),
		StoreID:      storeID,
		InfluencerID: influencerID,
		Matches:      matched,
	}
	if err := s.matchRepo.Replace(ctx, set); err != nil {
		s.collector.RecordMatchFailure("persist")
		return nil, model.NewMatchingFailedError(fmt.Sprintf("マッチ結果の保存に失敗しました: %s", err.Error()))
	}

	duration := time.Since(start)
	s.collector.RecordMatchSuccess()
	s.collector.RecordMatchLatency(duration)
	s.logger.Info("マッチングが完了しました",
		slog.String("store_id", storeID),
		slog.String("influencer_id", influencerID),
		slog.Int("desired_count", len(items)),
		slog.Int("matched_count", len(matched)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
	return set, nil
}

// collectCandidates は希望アイテムごとに決定的フィルタで候補を収集する。
// 同名の希望アイテムは最初の1件のみ処理する。
func (s *Service) collectCandidates(ctx context.Context, storeID string, items []model.DesiredItem) ([]itemCandidates, error) {
	seen := make(map[string]bool, len(items))
	staged := make([]itemCandidates, 0, len(items))

	for _, item := range items {
		if item.Name == "" || seen[item.Name] {
			continue
		}
		seen[item.Name] = true

		records, err := s.invRepo.ListCandidates(ctx, storeID, item.Name, item.UnitSize, item.UnitOfMeasurement, s.candidateLimit)
		if err != nil {
			return nil, model.NewMatchingFailedError(fmt.Sprintf("候補の検索に失敗しました: %s", err.Error()))
		}

		candidates := make([]model.Candidate, 0, len(records))
		for _, r := range records {
			candidates = append(candidates, model.Candidate{
				InventoryID: r.ProductID,
				Name:        r.Name,
			})
		}
		staged = append(staged, itemCandidates{item: item, candidates: candidates})
	}
	return staged, nil
}

// disambiguate は候補つきアイテムをマッチに解決する。
// 候補0件のアイテムはスキップ、候補1件のアイテムは直接解決し、
// 候補が複数のアイテムはチャンク単位で推論サービスに委ねる。
// 推論呼び出しの失敗は該当チャンクの空結果に縮退する。
// 戻り値のマップは在庫id→由来の希望アイテム名（最初に候補に含んだもの）。
func (s *Service) disambiguate(ctx context.Context, staged []itemCandidates) ([]model.ResolvedMatch, map[string]string) {
	var resolved []model.ResolvedMatch
	var ambiguous []itemCandidates
	sourceByID := make(map[string]string)

	for _, ic := range staged {
		for _, c := range ic.candidates {
			if _, ok := sourceByID[c.InventoryID]; !ok {
				sourceByID[c.InventoryID] = ic.item.Name
			}
		}

		switch len(ic.candidates) {
		case 0:
			// 候補なし: 結果から除外
		case 1:
			qty := ic.item.Quantity
			if qty <= 0 {
				qty = 1
			}
			resolved = append(resolved, model.ResolvedMatch{
				InventoryID:      ic.candidates[0].InventoryID,
				Name:             ic.candidates[0].Name,
				AdjustedQuantity: qty,
			})
		default:
			ambiguous = append(ambiguous, ic)
		}
	}

	for i := 0; i < len(ambiguous); i += s.chunkSize {
		end := i + s.chunkSize
		if end > len(ambiguous) {
			end = len(ambiguous)
		}
		chunk := ambiguous[i:end]

		items := make([]model.DesiredItem, 0, len(chunk))
		var candidates []model.Candidate
		for _, ic := range chunk {
			items = append(items, ic.item)
			candidates = append(candidates, ic.candidates...)
		}

		prompt, err := BuildPrompt(items, candidates)
		if err != nil {
			s.logger.Error("プロンプトの構築に失敗しました",
				slog.String("error", err.Error()),
			)
			continue
		}

		matches, err := s.resolver.Resolve(ctx, prompt)
		if err != nil {
			// 推論サービスの失敗はチャンクの空結果として縮退する
			s.collector.RecordReasoningFallback()
			s.logger.Warn("推論サービスの呼び出しに失敗したため空の結果に縮退します",
				slog.Int("chunk_item_count", len(chunk)),
				slog.String("error", err.Error()),
			)
			continue
		}
		resolved = append(resolved, matches...)
	}

	return resolved, sourceByID
}

// reassemble は解決済みマッチをidで完全な在庫レコードに再結合する。
// 在庫から消えたidのマッチは破棄し、同一idの重複は最初の1件のみ残す。
// 可能であればどの希望アイテム由来かを候補リストから逆引きして付与する。
func (s *Service) reassemble(ctx context.Context, storeID string, resolved []model.ResolvedMatch, sourceByID map[string]string) ([]model.MatchedItem, error) {
	if len(resolved) == 0 {
		return []model.MatchedItem{}, nil
	}

	seen := make(map[string]bool, len(resolved))
	ids := make([]string, 0, len(resolved))
	deduped := make([]model.ResolvedMatch, 0, len(resolved))
	for _, m := range resolved {
		if m.InventoryID == "" || seen[m.InventoryID] {
			continue
		}
		seen[m.InventoryID] = true
		ids = append(ids, m.InventoryID)
		deduped = append(deduped, m)
	}

	records, err := s.invRepo.FindByIDs(ctx, storeID, ids)
	if err != nil {
		return nil, model.NewMatchingFailedError(fmt.Sprintf("在庫レコードの再取得に失敗しました: %s", err.Error()))
	}

	matched := make([]model.MatchedItem, 0, len(deduped))
	for _, m := range deduped {
		record, ok := records[m.InventoryID]
		if !ok {
			// 候補生成から応答までの間に在庫から消えたidは破棄する
			continue
		}
		matched = append(matched, model.MatchedItem{
			SourceItemName:   sourceByID[m.InventoryID],
			InventoryID:      record.ProductID,
			Name:             record.Name,
			AdjustedQuantity: m.AdjustedQuantity,
			Price:            record.Price,
			Image:            record.ImageURL,
			IsAvailable:      record.IsAvailable,
		})
	}
	return matched, nil
}
