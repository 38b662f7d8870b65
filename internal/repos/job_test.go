package repos

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/wembed/benchcoord/internal/logger"
	"github.com/wembed/benchcoord/internal/storeerr"
	"github.com/wembed/benchcoord/internal/types"
)

func TestEnqueueDeduplicates(t *testing.T) {
	gdb := newTestDB(t)
	graph := seedGraph(t, gdb, 1000)
	jobs := NewJobRepo(gdb, logger.Nop())
	ctx := context.Background()

	created, err := jobs.Enqueue(ctx, nil, graph.GraphID, 4, 4, 1000, 42)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if !created {
		t.Fatalf("expected first enqueue to insert")
	}
	created, err = jobs.Enqueue(ctx, nil, graph.GraphID, 4, 4, 1000, 42)
	if err != nil {
		t.Fatalf("duplicate enqueue: %v", err)
	}
	if created {
		t.Fatalf("expected duplicate enqueue to be a no-op")
	}

	stats, err := jobs.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Pending != 1 {
		t.Fatalf("expected 1 pending job, got %d", stats.Pending)
	}
}

func TestEnqueueForGraphFansOutPerDimension(t *testing.T) {
	gdb := newTestDB(t)
	graph := seedGraph(t, gdb, 1000)
	jobs := NewJobRepo(gdb, logger.Nop())
	ctx := context.Background()

	dims := []int{2, 3, 4}
	created, err := jobs.EnqueueForGraph(ctx, nil, graph.GraphID, dims, 1000, 42)
	if err != nil {
		t.Fatalf("enqueue for graph: %v", err)
	}
	if created != 3 {
		t.Fatalf("expected 3 new jobs, got %d", created)
	}
	created, err = jobs.EnqueueForGraph(ctx, nil, graph.GraphID, dims, 1000, 42)
	if err != nil {
		t.Fatalf("second enqueue for graph: %v", err)
	}
	if created != 0 {
		t.Fatalf("expected re-enqueue to insert nothing, got %d", created)
	}
}

func TestClaimNextIsFIFO(t *testing.T) {
	gdb := newTestDB(t)
	graph := seedFinalizedGraph(t, gdb, 1000, "generated/graphs/g1.txt")
	jobs := NewJobRepo(gdb, logger.Nop())
	ctx := context.Background()

	for _, dim := range []int32{8, 2, 5} {
		if _, err := jobs.Enqueue(ctx, nil, graph.GraphID, dim, dim, 1000, 42); err != nil {
			t.Fatalf("enqueue dim %d: %v", dim, err)
		}
	}

	// Claims come back in insertion order, not dimension order.
	for _, want := range []int32{8, 2, 5} {
		job, err := jobs.ClaimNext(ctx, "host-a")
		if err != nil {
			t.Fatalf("claim: %v", err)
		}
		if job == nil {
			t.Fatalf("expected a job for dim %d, got none", want)
		}
		if job.EmbeddingDim != want {
			t.Fatalf("expected dim %d, got %d", want, job.EmbeddingDim)
		}
		if job.GraphFilePath != "generated/graphs/g1.txt" {
			t.Fatalf("unexpected graph file path %q", job.GraphFilePath)
		}
	}

	job, err := jobs.ClaimNext(ctx, "host-a")
	if err != nil {
		t.Fatalf("claim on empty queue: %v", err)
	}
	if job != nil {
		t.Fatalf("expected empty queue, claimed job %d", job.JobID)
	}
}

func TestClaimNextIsExclusiveUnderConcurrentClaimants(t *testing.T) {
	gdb := newTestDB(t)
	graph := seedFinalizedGraph(t, gdb, 1000, "generated/graphs/gc.txt")
	jobs := NewJobRepo(gdb, logger.Nop())
	ctx := context.Background()

	dims := []int{2, 3, 4, 5, 6, 7, 8, 9}
	created, err := jobs.EnqueueForGraph(ctx, nil, graph.GraphID, dims, 1000, 42)
	if err != nil || created != len(dims) {
		t.Fatalf("enqueue: %d jobs, err %v", created, err)
	}

	var (
		mu     sync.Mutex
		claims = make(map[int64]string)
		wg     sync.WaitGroup
	)
	for _, hostname := range []string{"host-a", "host-b", "host-c", "host-d"} {
		wg.Add(1)
		go func(hostname string) {
			defer wg.Done()
			misses := 0
			for attempt := 0; attempt < 500 && misses < 3; attempt++ {
				job, claimErr := jobs.ClaimNext(ctx, hostname)
				if claimErr != nil {
					// The sqlite test store reports busy under concurrent
					// writers; the claim itself stays atomic, so retry.
					continue
				}
				if job == nil {
					misses++
					continue
				}
				misses = 0
				mu.Lock()
				if prev, dup := claims[job.JobID]; dup {
					t.Errorf("job %d claimed by both %s and %s", job.JobID, prev, hostname)
				}
				claims[job.JobID] = hostname
				mu.Unlock()
			}
		}(hostname)
	}
	wg.Wait()

	if len(claims) != len(dims) {
		t.Fatalf("expected every job claimed exactly once, got %d of %d", len(claims), len(dims))
	}
	stats, err := jobs.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Pending != 0 || stats.Running != int64(len(dims)) {
		t.Fatalf("expected all jobs running, got %+v", stats)
	}
}

func TestClaimMarksJobRunning(t *testing.T) {
	gdb := newTestDB(t)
	graph := seedFinalizedGraph(t, gdb, 500, "generated/graphs/g2.txt")
	jobs := NewJobRepo(gdb, logger.Nop())
	ctx := context.Background()

	if _, err := jobs.Enqueue(ctx, nil, graph.GraphID, 4, 4, 1000, 42); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	claimed, err := jobs.ClaimNext(ctx, "host-a")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed == nil {
		t.Fatalf("expected a claim")
	}

	var job types.PositionJob
	if err := gdb.Where("job_id = ?", claimed.JobID).First(&job).Error; err != nil {
		t.Fatalf("load job: %v", err)
	}
	if job.Status != types.JobStatusRunning {
		t.Fatalf("expected running, got %s", job.Status)
	}
	if job.ClaimedByHostname == nil || *job.ClaimedByHostname != "host-a" {
		t.Fatalf("expected claimant host-a, got %v", job.ClaimedByHostname)
	}
	if job.ClaimedAt == nil {
		t.Fatalf("expected claimed_at to be set")
	}

	running, err := jobs.Running(ctx)
	if err != nil {
		t.Fatalf("running: %v", err)
	}
	if len(running) != 1 {
		t.Fatalf("expected 1 running job, got %d", len(running))
	}
	if running[0].Hostname != "host-a" || running[0].N != 500 {
		t.Fatalf("unexpected running row: %+v", running[0])
	}
}

func TestCompleteStoresResultAndFinishesJob(t *testing.T) {
	gdb := newTestDB(t)
	graph := seedFinalizedGraph(t, gdb, 1000, "generated/graphs/g3.txt")
	jobs := NewJobRepo(gdb, logger.Nop())
	ctx := context.Background()

	if _, err := jobs.Enqueue(ctx, nil, graph.GraphID, 4, 4, 1000, 42); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	claimed, err := jobs.ClaimNext(ctx, "host-a")
	if err != nil || claimed == nil {
		t.Fatalf("claim: %v", err)
	}

	actual := int32(873)
	result, err := jobs.Complete(ctx, claimed.JobID, "generated/positions/p3.log", checksumOfLen64(), &actual)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if result.GraphID != graph.GraphID || result.EmbeddingDim != 4 || result.Seed != 42 {
		t.Fatalf("result does not carry the job tuple: %+v", result)
	}
	if result.ActualIterations == nil || *result.ActualIterations != 873 {
		t.Fatalf("expected actual iterations 873, got %v", result.ActualIterations)
	}

	var job types.PositionJob
	if err := gdb.Where("job_id = ?", claimed.JobID).First(&job).Error; err != nil {
		t.Fatalf("load job: %v", err)
	}
	if job.Status != types.JobStatusCompleted {
		t.Fatalf("expected completed, got %s", job.Status)
	}
	if job.CompletedAt == nil {
		t.Fatalf("expected completed_at to be set")
	}

	// Completing twice must not produce a second result.
	if _, err := jobs.Complete(ctx, claimed.JobID, "generated/positions/p3.log", checksumOfLen64(), nil); !storeerr.IsInvalidState(err) {
		t.Fatalf("expected invalid state on double complete, got %v", err)
	}
}

func TestCompleteRejectsPendingJob(t *testing.T) {
	gdb := newTestDB(t)
	graph := seedFinalizedGraph(t, gdb, 1000, "generated/graphs/g4.txt")
	jobs := NewJobRepo(gdb, logger.Nop())
	ctx := context.Background()

	if _, err := jobs.Enqueue(ctx, nil, graph.GraphID, 4, 4, 1000, 42); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	var job types.PositionJob
	if err := gdb.First(&job).Error; err != nil {
		t.Fatalf("load job: %v", err)
	}
	if _, err := jobs.Complete(ctx, job.JobID, "x", checksumOfLen64(), nil); !storeerr.IsInvalidState(err) {
		t.Fatalf("expected invalid state completing a pending job, got %v", err)
	}
	if _, err := jobs.Complete(ctx, job.JobID+999, "x", checksumOfLen64(), nil); !storeerr.IsNotFound(err) {
		t.Fatalf("expected not found for unknown job, got %v", err)
	}
}

func TestFailIsTerminal(t *testing.T) {
	gdb := newTestDB(t)
	graph := seedFinalizedGraph(t, gdb, 1000, "generated/graphs/g5.txt")
	jobs := NewJobRepo(gdb, logger.Nop())
	ctx := context.Background()

	if _, err := jobs.Enqueue(ctx, nil, graph.GraphID, 4, 4, 1000, 42); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	claimed, err := jobs.ClaimNext(ctx, "host-a")
	if err != nil || claimed == nil {
		t.Fatalf("claim: %v", err)
	}
	if err := jobs.Fail(ctx, claimed.JobID, "solver diverged"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	var job types.PositionJob
	if err := gdb.Where("job_id = ?", claimed.JobID).First(&job).Error; err != nil {
		t.Fatalf("load job: %v", err)
	}
	if job.Status != types.JobStatusFailed {
		t.Fatalf("expected failed, got %s", job.Status)
	}
	if job.ErrorMessage == nil || *job.ErrorMessage != "solver diverged" {
		t.Fatalf("expected error message, got %v", job.ErrorMessage)
	}

	if err := jobs.Fail(ctx, claimed.JobID, "again"); !storeerr.IsInvalidState(err) {
		t.Fatalf("expected invalid state failing a failed job, got %v", err)
	}
	if job2, err := jobs.ClaimNext(ctx, "host-b"); err != nil || job2 != nil {
		t.Fatalf("failed job must not be claimable again, got %v, %v", job2, err)
	}
}

func TestRecoverStaleResetsClaim(t *testing.T) {
	gdb := newTestDB(t)
	graph := seedFinalizedGraph(t, gdb, 1000, "generated/graphs/g6.txt")
	jobs := NewJobRepo(gdb, logger.Nop())
	ctx := context.Background()

	if _, err := jobs.Enqueue(ctx, nil, graph.GraphID, 4, 4, 1000, 42); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	claimed, err := jobs.ClaimNext(ctx, "host-a")
	if err != nil || claimed == nil {
		t.Fatalf("claim: %v", err)
	}

	// A fresh claim is not stale for any reasonable timeout.
	count, err := jobs.RecoverStale(ctx, time.Hour)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no stale jobs, recovered %d", count)
	}

	time.Sleep(20 * time.Millisecond)
	count, err = jobs.RecoverStale(ctx, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 recovered job, got %d", count)
	}

	var job types.PositionJob
	if err := gdb.Where("job_id = ?", claimed.JobID).First(&job).Error; err != nil {
		t.Fatalf("load job: %v", err)
	}
	if job.Status != types.JobStatusPending {
		t.Fatalf("expected pending after recovery, got %s", job.Status)
	}
	if job.ClaimedByHostname != nil || job.ClaimedAt != nil {
		t.Fatalf("expected claimant cleared, got %v / %v", job.ClaimedByHostname, job.ClaimedAt)
	}
	if job.ErrorMessage == nil || *job.ErrorMessage != staleRecoveryNote {
		t.Fatalf("expected recovery note, got %v", job.ErrorMessage)
	}

	// A second stale cycle appends instead of overwriting.
	if claimed, err = jobs.ClaimNext(ctx, "host-b"); err != nil || claimed == nil {
		t.Fatalf("re-claim: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err = jobs.RecoverStale(ctx, 10*time.Millisecond); err != nil {
		t.Fatalf("second recover: %v", err)
	}
	if err := gdb.Where("job_id = ?", claimed.JobID).First(&job).Error; err != nil {
		t.Fatalf("load job: %v", err)
	}
	want := staleRecoveryNote + "; " + staleRecoveryNote
	if job.ErrorMessage == nil || *job.ErrorMessage != want {
		t.Fatalf("expected appended note %q, got %v", want, job.ErrorMessage)
	}
}

func TestStatsCountsByStatus(t *testing.T) {
	gdb := newTestDB(t)
	graph := seedFinalizedGraph(t, gdb, 1000, "generated/graphs/g7.txt")
	jobs := NewJobRepo(gdb, logger.Nop())
	ctx := context.Background()

	if _, err := jobs.EnqueueForGraph(ctx, nil, graph.GraphID, []int{2, 3, 4, 5}, 1000, 42); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	first, err := jobs.ClaimNext(ctx, "host-a")
	if err != nil || first == nil {
		t.Fatalf("claim: %v", err)
	}
	second, err := jobs.ClaimNext(ctx, "host-a")
	if err != nil || second == nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := jobs.Complete(ctx, first.JobID, "generated/positions/p7.log", checksumOfLen64(), nil); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := jobs.Fail(ctx, second.JobID, "boom"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	stats, err := jobs.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Pending != 2 || stats.Running != 0 || stats.Completed != 1 || stats.Failed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
