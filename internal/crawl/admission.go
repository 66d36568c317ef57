// Package crawl は店舗カテゴリツリーのクロール機能を提供する。
// 許可制御（重複・クールダウン判定）、再帰的なカテゴリ走査、
// ジョブキューを消費するワーカーを含む。
package crawl

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/pantryman/internal/model"
	"github.com/hitoshi/pantryman/internal/repository"
)

// defaultCooldown は完了後の再クロール抑止期間のデフォルト値。
const defaultCooldown = 24 * time.Hour

// Trigger はクロール処理の起動インターフェース。
// 外部のトリガーエンドポイントへのHTTP呼び出し、またはローカルキューへの
// 直接エンキューのいずれかで実装される。起動はBegin記録の後に行う。
type Trigger interface {
	Start(ctx context.Context, req model.CrawlRequest) error
}

// Tracker は店舗ごとのクロール許可制御と状態遷移を行う。
// 同一店舗の処理中クロールとクールダウン期間内の再クロールを抑止する。
type Tracker struct {
	statusRepo repository.CrawlStatusRepository
	trigger    Trigger
	logger     *slog.Logger
	cooldown   time.Duration
	now        func() time.Time
}

// NewTracker はTrackerの新しいインスタンスを生成する。
// cooldownが0以下の場合はデフォルト値24時間を使用する。
func NewTracker(
	statusRepo repository.CrawlStatusRepository,
	trigger Trigger,
	logger *slog.Logger,
	cooldown time.Duration,
) *Tracker {
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	return &Tracker{
		statusRepo: statusRepo,
		trigger:    trigger,
		logger:     logger,
		cooldown:   cooldown,
		now:        time.Now,
	}
}

// Admit は店舗のクロールを開始してよいかを判定する。
// 処理中の場合はin_progress、time_endがクールダウン期間内の場合は
// recently_processedのスキップ判定を返す。スキップはエラーではない。
func (t *Tracker) Admit(ctx context.Context, storeID string) (model.AdmissionDecision, error) {
	status, err := t.statusRepo.FindByStoreID(ctx, storeID)
	if err != nil {
		return model.AdmissionDecision{}, fmt.Errorf("クロール状態の確認に失敗しました: %w", err)
	}

	if status == nil {
		return model.AdmissionDecision{Result: model.AdmissionProceed}, nil
	}

	if status.IsProcessing {
		return model.AdmissionDecision{Result: model.AdmissionSkipInProgress}, nil
	}

	if status.TimeEnd != nil && t.now().Sub(*status.TimeEnd) < t.cooldown {
		return model.AdmissionDecision{
			Result:        model.AdmissionSkipRecentlyProcessed,
			LastProcessed: status.TimeEnd,
		}, nil
	}

	return model.AdmissionDecision{Result: model.AdmissionProceed}, nil
}

// Request はクロール開始要求を処理する。
// フロー: 座標検証 → 許可判定 → Begin記録 → トリガー起動。
// Begin記録はトリガー起動より先にコミットする。先にトリガーを起動すると、
// ワーカーが即座にジョブを消化してCompleteを発行した後にBeginが走り、
// in_progressで固着する競合が起こりうる。トリガー起動に失敗した場合は
// Releaseで処理中フラグを解除し、即座に再試行できる状態へ戻す。
func (t *Tracker) Request(ctx context.Context, req model.CrawlRequest) (model.AdmissionDecision, error) {
	if req.Location.IsZero() {
		return model.AdmissionDecision{}, model.NewMissingCoordinatesError()
	}

	decision, err := t.Admit(ctx, req.StoreID)
	if err != nil {
		return model.AdmissionDecision{}, err
	}
	if decision.Result != model.AdmissionProceed {
		t.logger.Info("クロール要求をスキップしました",
			slog.String("store_id", req.StoreID),
			slog.String("reason", string(decision.Result)),
		)
		return decision, nil
	}

	if err := t.statusRepo.Begin(ctx, req.StoreID, t.now().UTC()); err != nil {
		return model.AdmissionDecision{}, err
	}

	if err := t.trigger.Start(ctx, req); err != nil {
		t.logger.Error("クロールトリガーの起動に失敗しました",
			slog.String("store_id", req.StoreID),
			slog.String("error", err.Error()),
		)
		if relErr := t.statusRepo.Release(ctx, req.StoreID); relErr != nil {
			t.logger.Error("クロール状態の解除に失敗しました",
				slog.String("store_id", req.StoreID),
				slog.String("error", relErr.Error()),
			)
		}
		return model.AdmissionDecision{}, fmt.Errorf("クロールトリガーの起動に失敗しました: %w", err)
	}

	t.logger.Info("クロールを開始しました",
		slog.String("store_id", req.StoreID),
	)
	return decision, nil
}

// Complete は店舗のクロール完了を記録する。
// ワーカーがクロール実行内の全ジョブを消化した時点で呼び出される。
func (t *Tracker) Complete(ctx context.Context, storeID string) error {
	if err := t.statusRepo.Complete(ctx, storeID, t.now().UTC()); err != nil {
		return err
	}
	t.logger.Info("クロールが完了しました",
		slog.String("store_id", storeID),
	)
	return nil
}
