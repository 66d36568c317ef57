package crawl

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/pantryman/internal/metrics"
	"github.com/hitoshi/pantryman/internal/model"
	"github.com/hitoshi/pantryman/internal/repository"
)

// JobProcessor はクロールジョブ1件の処理インターフェース。
type JobProcessor interface {
	ProcessJob(ctx context.Context, job *model.CrawlJob) (int, error)
}

// Worker はクロールジョブキューを消費するワーカー。
// ポーリング間隔ごとに未処理ジョブを取得し、semaphoreパターンで
// 最大並列数を制御しながら処理する。
// 1回のクロール実行内の全ジョブが消化された時点でクロール完了を記録する。
type Worker struct {
	jobRepo        repository.CrawlJobRepository
	processor      JobProcessor
	tracker        *Tracker
	collector      metrics.MetricsCollector
	logger         *slog.Logger
	maxConcurrency int
	maxAttempts    int
}

// NewWorker はWorkerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値10、
// maxAttemptsが0以下の場合はデフォルト値3を使用する。
func NewWorker(
	jobRepo repository.CrawlJobRepository,
	processor JobProcessor,
	tracker *Tracker,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	maxConcurrency int,
	maxAttempts int,
) *Worker {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Worker{
		jobRepo:        jobRepo,
		processor:      processor,
		tracker:        tracker,
		collector:      collector,
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

	w.logger.Info("クロールワーカーを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", w.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := w.RunOnce(ctx); err != nil {
		w.logger.Error("クロールサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("クロールワーカーを停止しました")
			return
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil {
				w.logger.Error("クロールサイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は未処理ジョブを1回取得し、並列で処理する。
func (w *Worker) RunOnce(ctx context.Context) error {
	start := time.Now()

	jobs, err := w.jobRepo.DequeuePending(ctx, w.maxConcurrency*2)
	if err != nil {
		return err
	}

	if len(jobs) == 0 {
		return nil
	}

	w.logger.Info("クロールサイクルを開始します",
		slog.Int("job_count", len(jobs)),
	)

	sem := make(chan struct{}, w.maxConcurrency)
	var wg sync.WaitGroup

	for _, job := range jobs {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(j *model.CrawlJob) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			w.processOne(ctx, j)
		}(job)
	}

	wg.Wait()

	duration := time.Since(start)
	w.logger.Info("クロールサイクルが完了しました",
		slog.Int("job_count", len(jobs)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// processOne はジョブ1件の処理と結果記録を行う。
// 処理後、同一クロール実行内の未完了ジョブが0件であれば完了を記録する。
// 完了記録はUPDATEの冪等性により、並行して終了したジョブが
// 同時に0件を観測しても二重記録にならない。
func (w *Worker) processOne(ctx context.Context, job *model.CrawlJob) {
	upserted, err := w.processor.ProcessJob(ctx, job)
	if err != nil {
		w.logger.Error("クロールジョブの処理に失敗しました",
			slog.String("job_id", job.ID),
			slog.String("store_id", job.StoreID),
			slog.String("subcategory_id", job.SubcategoryID),
			slog.Int("attempts", job.Attempts),
			slog.String("error", err.Error()),
		)
		w.collector.RecordCrawlJobFailure("process_error")
		if markErr := w.jobRepo.MarkFailed(ctx, job.ID, err.Error(), w.maxAttempts); markErr != nil {
			w.logger.Error("ジョブ失敗の記録に失敗しました",
				slog.String("job_id", job.ID),
				slog.String("error", markErr.Error()),
			)
		}
	} else {
		w.collector.RecordCrawlJobSuccess()
		w.collector.RecordItemsUpserted(upserted)
		if markErr := w.jobRepo.MarkDone(ctx, job.ID); markErr != nil {
			w.logger.Error("ジョブ完了の記録に失敗しました",
				slog.String("job_id", job.ID),
				slog.String("error", markErr.Error()),
			)
			return
		}
	}

	// リトライ上限到達による失敗もキューから消えるため、
	// 成否にかかわらず完了判定を行う
	active, err := w.jobRepo.CountActiveByCrawlID(ctx, job.CrawlID)
	if err != nil {
		w.logger.Error("未完了ジョブ数の取得に失敗しました",
			slog.String("crawl_id", job.CrawlID),
			slog.String("error", err.Error()),
		)
		return
	}
	if active == 0 {
		if err := w.tracker.Complete(ctx, job.StoreID); err != nil {
			w.logger.Error("クロール完了の記録に失敗しました",
				slog.String("store_id", job.StoreID),
				slog.String("error", err.Error()),
			)
			return
		}
		w.collector.RecordCrawlCompleted(job.StoreID)
	}
}
