package crawl

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/pantryman/internal/model"
)

// --- モック定義 ---

// mockProcessor はJobProcessorのテスト用モック。
type mockProcessor struct {
	processFunc func(ctx context.Context, job *model.CrawlJob) (int, error)
	calls       int32
}

func (m *mockProcessor) ProcessJob(ctx context.Context, job *model.CrawlJob) (int, error) {
	atomic.AddInt32(&m.calls, 1)
	if m.processFunc != nil {
		return m.processFunc(ctx, job)
	}
	return 0, nil
}

// mockCollector はMetricsCollectorのテスト用モック。
type mockCollector struct {
	mu             sync.Mutex
	jobSuccess     int
	jobFailure     int
	crawlCompleted int
	itemsUpserted  int
}

func (m *mockCollector) RecordCrawlJobSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobSuccess++
}

func (m *mockCollector) RecordCrawlJobFailure(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobFailure++
}

func (m *mockCollector) RecordCrawlCompleted(storeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.crawlCompleted++
}

func (m *mockCollector) RecordProviderStatus(statusCode int) {}

func (m *mockCollector) RecordItemsUpserted(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.itemsUpserted += count
}

func (m *mockCollector) RecordMatchSuccess()                       {}
func (m *mockCollector) RecordMatchFailure(reason string)          {}
func (m *mockCollector) RecordMatchLatency(duration time.Duration) {}
func (m *mockCollector) RecordReasoningFallback()                  {}

// --- ワーカーのテスト ---

func TestWorkerRunOnce_ProcessesAndCompletes(t *testing.T) {
	var buf bytes.Buffer
	repo := &fakeCrawlJobRepo{}
	completed := make([]string, 0)
	statusRepo := &mockCrawlStatusRepo{
		completeFunc: func(ctx context.Context, storeID string, now time.Time) error {
			completed = append(completed, storeID)
			return nil
		},
	}
	tracker := NewTracker(statusRepo, &mockTrigger{}, newTestLogger(&buf), 24*time.Hour)
	processor := &mockProcessor{
		processFunc: func(ctx context.Context, job *model.CrawlJob) (int, error) {
			return 5, nil
		},
	}
	collector := &mockCollector{}
	worker := NewWorker(repo, processor, tracker, collector, newTestLogger(&buf), 2, 3)

	job := &model.CrawlJob{ID: "j1", CrawlID: "c1", StoreID: "store-1"}
	if _, err := repo.Enqueue(context.Background(), job); err != nil {
		t.Fatalf("Enqueueに失敗: %v", err)
	}

	if err := worker.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnceに失敗: %v", err)
	}

	if processor.calls != 1 {
		t.Errorf("processor.calls = %d, want 1", processor.calls)
	}
	if collector.jobSuccess != 1 {
		t.Errorf("jobSuccess = %d, want 1", collector.jobSuccess)
	}
	if collector.itemsUpserted != 5 {
		t.Errorf("itemsUpserted = %d, want 5", collector.itemsUpserted)
	}

	// 最後のジョブだったためクロール完了が記録される
	if len(completed) != 1 || completed[0] != "store-1" {
		t.Errorf("completed = %v, want [store-1]", completed)
	}
	if collector.crawlCompleted != 1 {
		t.Errorf("crawlCompleted = %d, want 1", collector.crawlCompleted)
	}
}

func TestWorkerRunOnce_NoCompletionWhileJobsRemain(t *testing.T) {
	var buf bytes.Buffer
	repo := &fakeCrawlJobRepo{}
	completeCalls := 0
	statusRepo := &mockCrawlStatusRepo{
		completeFunc: func(ctx context.Context, storeID string, now time.Time) error {
			completeCalls++
			return nil
		},
	}
	tracker := NewTracker(statusRepo, &mockTrigger{}, newTestLogger(&buf), 24*time.Hour)

	// 処理中に追加の子ジョブをエンキューするプロセッサ
	processor := &mockProcessor{
		processFunc: func(ctx context.Context, job *model.CrawlJob) (int, error) {
			if job.SubcategoryID == "" {
				child := &model.CrawlJob{
					ID:            "j2",
					CrawlID:       job.CrawlID,
					StoreID:       job.StoreID,
					SubcategoryID: "sub-1",
				}
				if _, err := repo.Enqueue(ctx, child); err != nil {
					return 0, err
				}
			}
			return 0, nil
		},
	}
	worker := NewWorker(repo, processor, tracker, &mockCollector{}, newTestLogger(&buf), 1, 3)

	root := &model.CrawlJob{ID: "j1", CrawlID: "c1", StoreID: "store-1"}
	if _, err := repo.Enqueue(context.Background(), root); err != nil {
		t.Fatalf("Enqueueに失敗: %v", err)
	}

	// 1回目: ルートを処理、子が残るため完了は記録されない
	if err := worker.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnceに失敗: %v", err)
	}
	if completeCalls != 0 {
		t.Errorf("completeCalls = %d, want 0 (子ジョブが残っている)", completeCalls)
	}

	// 2回目: 子を処理、全ジョブ消化で完了が記録される
	if err := worker.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnceに失敗: %v", err)
	}
	if completeCalls != 1 {
		t.Errorf("completeCalls = %d, want 1", completeCalls)
	}
}

func TestWorkerRunOnce_FailureRetriesUntilCap(t *testing.T) {
	var buf bytes.Buffer
	repo := &fakeCrawlJobRepo{}
	tracker := NewTracker(&mockCrawlStatusRepo{}, &mockTrigger{}, newTestLogger(&buf), 24*time.Hour)
	processor := &mockProcessor{
		processFunc: func(ctx context.Context, job *model.CrawlJob) (int, error) {
			return 0, errors.New("provider down")
		},
	}
	collector := &mockCollector{}
	maxAttempts := 3
	worker := NewWorker(repo, processor, tracker, collector, newTestLogger(&buf), 1, maxAttempts)

	job := &model.CrawlJob{ID: "j1", CrawlID: "c1", StoreID: "store-1"}
	if _, err := repo.Enqueue(context.Background(), job); err != nil {
		t.Fatalf("Enqueueに失敗: %v", err)
	}

	// リトライ上限に達するまでpendingに戻り続ける
	for i := 0; i < maxAttempts; i++ {
		if err := worker.RunOnce(context.Background()); err != nil {
			t.Fatalf("RunOnceに失敗: %v", err)
		}
	}

	if processor.calls != int32(maxAttempts) {
		t.Errorf("processor.calls = %d, want %d", processor.calls, maxAttempts)
	}
	if repo.jobs[0].Status != model.CrawlJobStatusFailed {
		t.Errorf("status = %s, want %s", repo.jobs[0].Status, model.CrawlJobStatusFailed)
	}
	if collector.jobFailure != maxAttempts {
		t.Errorf("jobFailure = %d, want %d", collector.jobFailure, maxAttempts)
	}
}
