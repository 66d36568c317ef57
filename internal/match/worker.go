package match

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/pantryman/internal/model"
	"github.com/hitoshi/pantryman/internal/repository"
)

// MatchResolver はマッチングパイプラインの実行インターフェース。
type MatchResolver interface {
	Resolve(ctx context.Context, storeID, influencerID string, items []model.DesiredItem) (*model.MatchSet, error)
}

// Worker はマッチジョブキューを消費するワーカー。
// クロールワーカーと同じポーリング＋semaphoreの構成を取る。
type Worker struct {
	jobRepo        repository.MatchJobRepository
	resolver       MatchResolver
	logger         *slog.Logger
	maxConcurrency int
	maxAttempts    int
}

// NewWorker はWorkerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値5、
// maxAttemptsが0以下の場合はデフォルト値3を使用する。
func NewWorker(
	jobRepo repository.MatchJobRepository,
	resolver MatchResolver,
	logger *slog.Logger,
	maxConcurrency int,
	maxAttempts int,
) *Worker {
	if maxConcurrency <= 0 {
		maxConcurrency = 5
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Worker{
		jobRepo:        jobRepo,
		resolver:       resolver,
		logger:         logger,
		maxConcurrency: maxConcurrency,
		maxAttempts:    maxAttempts,
	}
}

// Start は指定間隔のティッカーでワーカーを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (w *Worker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.logger.Info("マッチワーカーを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", w.maxConcurrency),
	)

	if err := w.RunOnce(ctx); err != nil {
		w.logger.Error("マッチサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("マッチワーカーを停止しました")
			return
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil {
				w.logger.Error("マッチサイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は未処理のマッチジョブを1回取得し、並列で処理する。
func (w *Worker) RunOnce(ctx context.Context) error {
	jobs, err := w.jobRepo.DequeuePending(ctx, w.maxConcurrency*2)
	if err != nil {
		return err
	}

	if len(jobs) == 0 {
		return nil
	}

	sem := make(chan struct{}, w.maxConcurrency)
	var wg sync.WaitGroup

	for _, job := range jobs {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(j *model.MatchJob) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			w.processOne(ctx, j)
		}(job)
	}

	wg.Wait()
	return nil
}

// processOne はマッチジョブ1件の処理と結果記録を行う。
func (w *Worker) processOne(ctx context.Context, job *model.MatchJob) {
	if _, err := w.resolver.Resolve(ctx, job.StoreID, job.InfluencerID, job.Items); err != nil {
		w.logger.Error("マッチジョブの処理に失敗しました",
			slog.String("job_id", job.ID),
			slog.String("store_id", job.StoreID),
			slog.String("influencer_id", job.InfluencerID),
			slog.Int("attempts", job.Attempts),
			slog.String("error", err.Error()),
		)
		if markErr := w.jobRepo.MarkFailed(ctx, job.ID, err.Error(), w.maxAttempts); markErr != nil {
			w.logger.Error("ジョブ失敗の記録に失敗しました",
				slog.String("job_id", job.ID),
				slog.String("error", markErr.Error()),
			)
		}
		return
	}

	if err := w.jobRepo.MarkDone(ctx, job.ID); err != nil {
		w.logger.Error("ジョブ完了の記録に失敗しました",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
}
