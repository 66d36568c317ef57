package crawl

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/pantryman/internal/model"
)

// --- モック定義 ---

// mockCrawlStatusRepo はCrawlStatusRepositoryのテスト用モック。
type mockCrawlStatusRepo struct {
	findByStoreIDFunc func(ctx context.Context, storeID string) (*model.CrawlStatus, error)
	beginFunc         func(ctx context.Context, storeID string, now time.Time) error
	completeFunc      func(ctx context.Context, storeID string, now time.Time) error
	releaseFunc       func(ctx context.Context, storeID string) error
}

func (m *mockCrawlStatusRepo) FindByStoreID(ctx context.Context, storeID string) (*model.CrawlStatus, error) {
	if m.findByStoreIDFunc != nil {
		return m.findByStoreIDFunc(ctx, storeID)
	}
	return nil, nil
}

func (m *mockCrawlStatusRepo) Begin(ctx context.Context, storeID string, now time.Time) error {
	if m.beginFunc != nil {
		return m.beginFunc(ctx, storeID, now)
	}
	return nil
}

func (m *mockCrawlStatusRepo) Complete(ctx context.Context, storeID string, now time.Time) error {
	if m.completeFunc != nil {
		return m.completeFunc(ctx, storeID, now)
	}
	return nil
}

func (m *mockCrawlStatusRepo) Release(ctx context.Context, storeID string) error {
	if m.releaseFunc != nil {
		return m.releaseFunc(ctx, storeID)
	}
	return nil
}

// mockTrigger はTriggerのテスト用モック。
type mockTrigger struct {
	startFunc func(ctx context.Context, req model.CrawlRequest) error
	calls     int
}

func (m *mockTrigger) Start(ctx context.Context, req model.CrawlRequest) error {
	m.calls++
	if m.startFunc != nil {
		return m.startFunc(ctx, req)
	}
	return nil
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func validRequest() model.CrawlRequest {
	return model.CrawlRequest{
		StoreID:  "store-1",
		Location: model.GeoPoint{Latitude: 35.68, Longitude: 139.76},
	}
}

// --- 許可判定のテスト ---

func TestAdmit_NoStatusReturnsProceed(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewTracker(&mockCrawlStatusRepo{}, &mockTrigger{}, newTestLogger(&buf), 24*time.Hour)

	decision, err := tracker.Admit(context.Background(), "store-1")
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if decision.Result != model.AdmissionProceed {
		t.Errorf("Result = %s, want %s", decision.Result, model.AdmissionProceed)
	}
}

func TestAdmit_InProgressReturnsSkip(t *testing.T) {
	var buf bytes.Buffer
	repo := &mockCrawlStatusRepo{
		findByStoreIDFunc: func(ctx context.Context, storeID string) (*model.CrawlStatus, error) {
			return &model.CrawlStatus{
				StoreID:      storeID,
				IsProcessing: true,
				TimeStart:    time.Now().Add(-time.Hour),
			}, nil
		},
	}
	tracker := NewTracker(repo, &mockTrigger{}, newTestLogger(&buf), 24*time.Hour)

	decision, err := tracker.Admit(context.Background(), "store-1")
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if decision.Result != model.AdmissionSkipInProgress {
		t.Errorf("Result = %s, want %s", decision.Result, model.AdmissionSkipInProgress)
	}
}

// クールダウン境界: 完了から23時間後はスキップ、25時間後は許可（24時間クールダウン）
func TestAdmit_CooldownBoundary(t *testing.T) {
	completedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		elapsed time.Duration
		want    model.AdmissionResult
	}{
		{"完了から23時間後はrecently_processed", 23 * time.Hour, model.AdmissionSkipRecentlyProcessed},
		{"完了から25時間後はproceed", 25 * time.Hour, model.AdmissionProceed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			repo := &mockCrawlStatusRepo{
				findByStoreIDFunc: func(ctx context.Context, storeID string) (*model.CrawlStatus, error) {
					end := completedAt
					return &model.CrawlStatus{
						StoreID:      storeID,
						IsProcessing: false,
						TimeStart:    completedAt.Add(-time.Hour),
						TimeEnd:      &end,
					}, nil
				},
			}
			tracker := NewTracker(repo, &mockTrigger{}, newTestLogger(&buf), 24*time.Hour)
			tracker.now = func() time.Time { return completedAt.Add(tt.elapsed) }

			decision, err := tracker.Admit(context.Background(), "store-1")
			if err != nil {
				t.Fatalf("予期しないエラー: %v", err)
			}
			if decision.Result != tt.want {
				t.Errorf("Result = %s, want %s", decision.Result, tt.want)
			}
			if tt.want == model.AdmissionSkipRecentlyProcessed {
				if decision.LastProcessed == nil || !decision.LastProcessed.Equal(completedAt) {
					t.Errorf("LastProcessed = %v, want %v", decision.LastProcessed, completedAt)
				}
			}
		})
	}
}

func TestAdmit_RepoErrorPropagates(t *testing.T) {
	var buf bytes.Buffer
	repo := &mockCrawlStatusRepo{
		findByStoreIDFunc: func(ctx context.Context, storeID string) (*model.CrawlStatus, error) {
			return nil, errors.New("db down")
		},
	}
	tracker := NewTracker(repo, &mockTrigger{}, newTestLogger(&buf), 24*time.Hour)

	if _, err := tracker.Admit(context.Background(), "store-1"); err == nil {
		t.Fatal("リポジトリエラー時はエラーを返さなければならない")
	}
}

// --- クロール要求のテスト ---

func TestRequest_ZeroCoordinatesRejected(t *testing.T) {
	var buf bytes.Buffer
	trigger := &mockTrigger{}
	tracker := NewTracker(&mockCrawlStatusRepo{}, trigger, newTestLogger(&buf), 24*time.Hour)

	req := model.CrawlRequest{StoreID: "store-1"}
	_, err := tracker.Request(context.Background(), req)

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeMissingCoordinates {
		t.Fatalf("err = %v, want MISSING_COORDINATES", err)
	}
	if trigger.calls != 0 {
		t.Error("座標が無効な場合はトリガーを起動してはならない")
	}
}

// トリガー起動が失敗した場合はReleaseで処理中フラグを解除する（in_progressで固着させない）
func TestRequest_TriggerFailureReleasesProcessing(t *testing.T) {
	var buf bytes.Buffer
	beginCalled := false
	releaseCalled := false
	repo := &mockCrawlStatusRepo{
		beginFunc: func(ctx context.Context, storeID string, now time.Time) error {
			beginCalled = true
			return nil
		},
		releaseFunc: func(ctx context.Context, storeID string) error {
			releaseCalled = true
			if storeID != "store-1" {
				t.Errorf("storeID = %s, want store-1", storeID)
			}
			return nil
		},
	}
	trigger := &mockTrigger{
		startFunc: func(ctx context.Context, req model.CrawlRequest) error {
			return errors.New("trigger unreachable")
		},
	}
	tracker := NewTracker(repo, trigger, newTestLogger(&buf), 24*time.Hour)

	if _, err := tracker.Request(context.Background(), validRequest()); err == nil {
		t.Fatal("トリガー起動失敗時はエラーを返さなければならない")
	}
	if !beginCalled {
		t.Error("トリガー起動前にBeginを記録しなければならない")
	}
	if !releaseCalled {
		t.Error("トリガー起動失敗時はReleaseで処理中フラグを解除しなければならない")
	}
}

// Begin記録がトリガー起動より先にコミットされることを順序で検証する
func TestRequest_BeginCommitsBeforeTrigger(t *testing.T) {
	var buf bytes.Buffer
	var order []string
	repo := &mockCrawlStatusRepo{
		beginFunc: func(ctx context.Context, storeID string, now time.Time) error {
			order = append(order, "begin")
			return nil
		},
	}
	trigger := &mockTrigger{
		startFunc: func(ctx context.Context, req model.CrawlRequest) error {
			order = append(order, "trigger")
			return nil
		},
	}
	tracker := NewTracker(repo, trigger, newTestLogger(&buf), 24*time.Hour)

	decision, err := tracker.Request(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if decision.Result != model.AdmissionProceed {
		t.Errorf("Result = %s, want %s", decision.Result, model.AdmissionProceed)
	}
	if len(order) != 2 || order[0] != "begin" || order[1] != "trigger" {
		t.Errorf("呼び出し順 = %v, want [begin trigger]", order)
	}
}

// fakeStatusStore は実リポジトリのSQLの振る舞いを模倣するインメモリ実装。
// BeginはUPSERT、Completeは既存行のみ更新（行がなければ何も起こらない）。
type fakeStatusStore struct {
	rows map[string]*model.CrawlStatus
}

func newFakeStatusStore() *fakeStatusStore {
	return &fakeStatusStore{rows: map[string]*model.CrawlStatus{}}
}

func (f *fakeStatusStore) FindByStoreID(ctx context.Context, storeID string) (*model.CrawlStatus, error) {
	row, ok := f.rows[storeID]
	if !ok {
		return nil, nil
	}
	copied := *row
	return &copied, nil
}

func (f *fakeStatusStore) Begin(ctx context.Context, storeID string, now time.Time) error {
	f.rows[storeID] = &model.CrawlStatus{
		StoreID:      storeID,
		IsProcessing: true,
		TimeStart:    now,
		TimeEnd:      nil,
	}
	return nil
}

func (f *fakeStatusStore) Complete(ctx context.Context, storeID string, now time.Time) error {
	row, ok := f.rows[storeID]
	if !ok {
		return nil
	}
	row.IsProcessing = false
	end := now
	row.TimeEnd = &end
	return nil
}

func (f *fakeStatusStore) Release(ctx context.Context, storeID string) error {
	if row, ok := f.rows[storeID]; ok {
		row.IsProcessing = false
	}
	return nil
}

// ワーカーがトリガー起動の直後にクロールを消化し切っても、
// Begin記録が先行しているためin_progressで固着しないことを検証する。
func TestRequest_ImmediateWorkerDrainDoesNotStickInProgress(t *testing.T) {
	var buf bytes.Buffer
	store := newFakeStatusStore()
	completedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	// トリガー起動の時点でワーカーが全ジョブを消化済みの最速パターンを再現
	trigger := &mockTrigger{
		startFunc: func(ctx context.Context, req model.CrawlRequest) error {
			return store.Complete(ctx, req.StoreID, completedAt)
		},
	}
	tracker := NewTracker(store, trigger, newTestLogger(&buf), 24*time.Hour)

	if _, err := tracker.Request(context.Background(), validRequest()); err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}

	status, err := store.FindByStoreID(context.Background(), "store-1")
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if status == nil {
		t.Fatal("クロール状態の行が存在しなければならない")
	}
	if status.IsProcessing {
		t.Error("ワーカー完了後にis_processingがtrueのまま残ってはならない")
	}
	if status.TimeEnd == nil || !status.TimeEnd.Equal(completedAt) {
		t.Errorf("TimeEnd = %v, want %v", status.TimeEnd, completedAt)
	}
}

// トリガー起動失敗後は再試行が即座に許可される（補償でクールダウンが発生しない）
func TestRequest_TriggerFailureAllowsImmediateRetry(t *testing.T) {
	var buf bytes.Buffer
	store := newFakeStatusStore()
	failing := true
	trigger := &mockTrigger{
		startFunc: func(ctx context.Context, req model.CrawlRequest) error {
			if failing {
				return errors.New("trigger unreachable")
			}
			return nil
		},
	}
	tracker := NewTracker(store, trigger, newTestLogger(&buf), 24*time.Hour)

	if _, err := tracker.Request(context.Background(), validRequest()); err == nil {
		t.Fatal("トリガー起動失敗時はエラーを返さなければならない")
	}

	failing = false
	decision, err := tracker.Request(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("再試行は成功しなければならない: %v", err)
	}
	if decision.Result != model.AdmissionProceed {
		t.Errorf("Result = %s, want %s", decision.Result, model.AdmissionProceed)
	}
}

func TestRequest_SkipDoesNotTrigger(t *testing.T) {
	var buf bytes.Buffer
	repo := &mockCrawlStatusRepo{
		findByStoreIDFunc: func(ctx context.Context, storeID string) (*model.CrawlStatus, error) {
			return &model.CrawlStatus{StoreID: storeID, IsProcessing: true}, nil
		},
	}
	trigger := &mockTrigger{}
	tracker := NewTracker(repo, trigger, newTestLogger(&buf), 24*time.Hour)

	decision, err := tracker.Request(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("スキップはエラーではない: %v", err)
	}
	if decision.Result != model.AdmissionSkipInProgress {
		t.Errorf("Result = %s, want %s", decision.Result, model.AdmissionSkipInProgress)
	}
	if trigger.calls != 0 {
		t.Error("スキップ時はトリガーを起動してはならない")
	}
}
