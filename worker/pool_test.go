package worker_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/renderq"
	"github.com/xraph/renderq/backoff"
	"github.com/xraph/renderq/ext"
	"github.com/xraph/renderq/health"
	"github.com/xraph/renderq/id"
	"github.com/xraph/renderq/job"
	"github.com/xraph/renderq/provider"
	"github.com/xraph/renderq/selector"
	"github.com/xraph/renderq/store/memory"
	"github.com/xraph/renderq/worker"
)

func newPoolHarness(t *testing.T, mock *provider.Mock, opts ...worker.PoolOption) (*memory.Store, *worker.Pool) {
	t.Helper()

	s := memory.New()
	reg := provider.NewRegistry()
	if mock != nil {
		if err := reg.Register(mock); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	tracker, err := health.NewTracker(health.DefaultThresholds())
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	sel := selector.New(tracker, selector.WithGate(reg))
	policy := &backoff.Policy{
		Provider:   backoff.NewConstant(0),
		NoProvider: backoff.NewConstant(0),
	}
	extensions := ext.NewRegistry(discardLogger())
	exec := worker.NewExecutor(reg, sel, tracker, s, policy, extensions, discardLogger())

	base := []worker.PoolOption{
		worker.WithPoolConcurrency(2),
		worker.WithPollInterval(5 * time.Millisecond),
	}
	pool := worker.NewPool(s, exec, extensions, discardLogger(), append(base, opts...)...)
	return s, pool
}

func enqueue(t *testing.T, s *memory.Store, lane job.Lane) id.JobID {
	t.Helper()
	j := &job.Job{
		Entity:     renderq.NewEntity(),
		ID:         id.NewJobID(),
		Status:     job.StatusQueued,
		Lane:       lane,
		Prompt:     "a lighthouse at dusk",
		MaxRetries: 3,
	}
	if err := s.CreateJob(context.Background(), j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return j.ID
}

// waitForStatus polls until the job reaches the wanted status or the
// deadline passes.
func waitForStatus(t *testing.T, s *memory.Store, jobID id.JobID, want job.Status) *job.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, err := s.GetJob(context.Background(), jobID)
		if err != nil {
			t.Fatalf("GetJob: %v", err)
		}
		if got.Status == want {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	got, _ := s.GetJob(context.Background(), jobID)
	t.Fatalf("job never reached %q, last status %q", want, got.Status)
	return nil
}

func TestPool_CompletesQueuedJobs(t *testing.T) {
	s, pool := newPoolHarness(t, provider.NewMock("mock"))

	ids := make([]id.JobID, 0, 5)
	for range 5 {
		ids = append(ids, enqueue(t, s, job.LaneDefault))
	}

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = pool.Stop(ctx)
	}()

	for _, jobID := range ids {
		got := waitForStatus(t, s, jobID, job.StatusCompleted)
		if got.UsedProvider != "mock" {
			t.Errorf("UsedProvider = %q", got.UsedProvider)
		}
	}
}

func TestPool_RetriesThroughToCompletion(t *testing.T) {
	mock := provider.NewMock("mock", provider.WithFailures(
		errors.New("transient 1"), errors.New("transient 2"),
	))
	s, pool := newPoolHarness(t, mock)

	jobID := enqueue(t, s, job.LaneDefault)

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = pool.Stop(ctx)
	}()

	got := waitForStatus(t, s, jobID, job.StatusCompleted)
	if got.RetryCount != 2 {
		t.Errorf("RetryCount = %d, want 2", got.RetryCount)
	}
	if got.LastError == "" {
		t.Error("LastError should record the prior attempt failure")
	}
}

func TestPool_LanePriority(t *testing.T) {
	// Single worker and a slow provider force strictly sequential
	// execution, exposing the claim order.
	mock := provider.NewMock("mock", provider.WithLatency(20*time.Millisecond))
	s, pool := newPoolHarness(t, mock, worker.WithPoolConcurrency(1))

	lowID := enqueue(t, s, job.LaneLow)
	highID := enqueue(t, s, job.LaneHigh)

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = pool.Stop(ctx)
	}()

	high := waitForStatus(t, s, highID, job.StatusCompleted)
	low := waitForStatus(t, s, lowID, job.StatusCompleted)

	if high.CompletedAt == nil || low.CompletedAt == nil {
		t.Fatal("missing CompletedAt")
	}
	if high.CompletedAt.After(*low.CompletedAt) {
		t.Error("high lane job should complete before low lane job")
	}
}

func TestPool_StopIsIdempotentAndGraceful(t *testing.T) {
	_, pool := newPoolHarness(t, provider.NewMock("mock"))

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Second Start is a no-op.
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start twice: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("Stop twice: %v", err)
	}
}

func TestPool_ReapsOrphanedJobs(t *testing.T) {
	s, pool := newPoolHarness(t, provider.NewMock("mock"),
		worker.WithStaleJobThreshold(30*time.Millisecond),
	)

	// Simulate a job orphaned by a crashed worker: processing with an
	// ancient heartbeat and no live goroutine.
	jobID := enqueue(t, s, job.LaneDefault)
	ctx := context.Background()
	if claimed, err := s.ClaimJob(ctx, jobID, id.NewWorkerID()); err != nil || !claimed {
		t.Fatalf("ClaimJob: claimed=%v err=%v", claimed, err)
	}
	orphan, err := s.GetJob(ctx, jobID)
	if err != nil {
		t.Fatal(err)
	}
	old := time.Now().UTC().Add(-time.Hour)
	orphan.HeartbeatAt = &old
	if err := s.UpdateJob(ctx, orphan); err != nil {
		t.Fatal(err)
	}

	if err := pool.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = pool.Stop(stopCtx)
	}()

	// The reaper re-queues the orphan and a worker finishes it.
	got := waitForStatus(t, s, jobID, job.StatusCompleted)
	if got.RetryCount != 0 {
		t.Errorf("RetryCount = %d, want 0 (reap is not an attempt failure)", got.RetryCount)
	}
	if got.StartedAt == nil {
		t.Error("StartedAt should survive the re-queue")
	}
}

// slowFinishStore simulates a slow-but-alive worker: immediately after
// every stale scan it persists the terminal result for each job the scan
// returned, before the reaper gets to act on the snapshot.
type slowFinishStore struct {
	*memory.Store
	scans atomic.Int32
}

func (s *slowFinishStore) ReapStaleJobs(ctx context.Context, threshold time.Duration) ([]*job.Job, error) {
	stale, err := s.Store.ReapStaleJobs(ctx, threshold)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	for _, st := range stale {
		fresh, getErr := s.Store.GetJob(ctx, st.ID)
		if getErr != nil {
			return nil, getErr
		}
		if markErr := fresh.MarkCompleted([]byte(`{"video_url":"mock://videos/late.mp4"}`), "mock", "mock-video-v1", 0, time.Millisecond, now); markErr != nil {
			return nil, markErr
		}
		if upErr := s.Store.UpdateJob(ctx, fresh); upErr != nil {
			return nil, upErr
		}
	}
	s.scans.Add(1)
	return stale, nil
}

func TestPool_ReaperPreservesTerminalOutcome(t *testing.T) {
	inner := memory.New()
	s := &slowFinishStore{Store: inner}

	reg := provider.NewRegistry()
	tracker, err := health.NewTracker(health.DefaultThresholds())
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	sel := selector.New(tracker, selector.WithGate(reg))
	policy := &backoff.Policy{
		Provider:   backoff.NewConstant(0),
		NoProvider: backoff.NewConstant(0),
	}
	extensions := ext.NewRegistry(discardLogger())
	exec := worker.NewExecutor(reg, sel, tracker, s, policy, extensions, discardLogger())
	pool := worker.NewPool(s, exec, extensions, discardLogger(),
		worker.WithPoolConcurrency(1),
		worker.WithPollInterval(5*time.Millisecond),
		worker.WithStaleJobThreshold(20*time.Millisecond),
	)

	// A processing job with an ancient heartbeat, owned by no live worker.
	jobID := enqueue(t, inner, job.LaneDefault)
	ctx := context.Background()
	if claimed, claimErr := inner.ClaimJob(ctx, jobID, id.NewWorkerID()); claimErr != nil || !claimed {
		t.Fatalf("ClaimJob: claimed=%v err=%v", claimed, claimErr)
	}
	orphan, err := inner.GetJob(ctx, jobID)
	if err != nil {
		t.Fatal(err)
	}
	old := time.Now().UTC().Add(-time.Hour)
	orphan.HeartbeatAt = &old
	if err := inner.UpdateJob(ctx, orphan); err != nil {
		t.Fatal(err)
	}

	if err := pool.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = pool.Stop(stopCtx)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for s.scans.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if s.scans.Load() == 0 {
		t.Fatal("reaper never scanned for stale jobs")
	}

	// Give the reaper time to act on its stale snapshot.
	time.Sleep(60 * time.Millisecond)

	got, err := inner.GetJob(ctx, jobID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != job.StatusCompleted {
		t.Fatalf("status = %q, want %q: reaper must not clobber a terminal record", got.Status, job.StatusCompleted)
	}
	if len(got.Result) == 0 {
		t.Error("Result should survive the reaper")
	}
}
