package worker

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/wembed/benchcoord/internal/db"
	"github.com/wembed/benchcoord/internal/logger"
	"github.com/wembed/benchcoord/internal/repos"
	"github.com/wembed/benchcoord/internal/types"
)

const testChecksum = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func setupQueue(t *testing.T) (*gorm.DB, repos.JobRepo) {
	t.Helper()
	service, err := db.NewSQLiteService(filepath.Join(t.TempDir(), "test.db"), logger.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := service.AutoMigrateAll(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	gdb := service.DB()
	ctx := context.Background()

	graphs := repos.NewGraphRepo(gdb, logger.Nop())
	graph, err := graphs.Create(ctx, nil, repos.GraphParams{N: 1000, Deg: 10, Wseed: 1, Pseed: 2, Sseed: 3})
	if err != nil {
		t.Fatalf("create graph: %v", err)
	}
	if err := graphs.Finalize(ctx, nil, graph.GraphID, "generated/graphs/w.txt", testChecksum, 1000, 9.5); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	jobs := repos.NewJobRepo(gdb, logger.Nop())
	if _, err := jobs.Enqueue(ctx, nil, graph.GraphID, 4, 4, 1000, 42); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return gdb, jobs
}

func loadSingleJob(t *testing.T, gdb *gorm.DB) types.PositionJob {
	t.Helper()
	var job types.PositionJob
	if err := gdb.First(&job).Error; err != nil {
		t.Fatalf("load job: %v", err)
	}
	return job
}

func TestProcessJobCompletesOnSuccess(t *testing.T) {
	gdb, jobs := setupQueue(t)
	ctx := context.Background()

	actual := int32(321)
	embed := func(ctx context.Context, job repos.ClaimedJob, dataDirectory string) (*EmbedOutput, error) {
		return &EmbedOutput{
			FilePath:         "generated/positions/w.log",
			Checksum:         testChecksum,
			ActualIterations: &actual,
		}, nil
	}
	w := New(logger.Nop(), jobs, embed, Options{})

	claimed, err := jobs.ClaimNext(ctx, w.Hostname())
	if err != nil || claimed == nil {
		t.Fatalf("claim: %v", err)
	}
	w.processJob(ctx, 1, *claimed)

	job := loadSingleJob(t, gdb)
	if job.Status != types.JobStatusCompleted {
		t.Fatalf("expected completed, got %s", job.Status)
	}
	var result types.PositionResult
	if err := gdb.First(&result).Error; err != nil {
		t.Fatalf("load result: %v", err)
	}
	if result.FilePath != "generated/positions/w.log" || result.ActualIterations == nil || *result.ActualIterations != 321 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestDrainWorksThroughBacklogWithoutWaiting(t *testing.T) {
	service, err := db.NewSQLiteService(filepath.Join(t.TempDir(), "test.db"), logger.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := service.AutoMigrateAll(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	gdb := service.DB()
	ctx := context.Background()

	graphs := repos.NewGraphRepo(gdb, logger.Nop())
	graph, err := graphs.Create(ctx, nil, repos.GraphParams{N: 1000, Deg: 10, Wseed: 1, Pseed: 2, Sseed: 3})
	if err != nil {
		t.Fatalf("create graph: %v", err)
	}
	if err := graphs.Finalize(ctx, nil, graph.GraphID, "generated/graphs/d.txt", testChecksum, 1000, 9.5); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	jobs := repos.NewJobRepo(gdb, logger.Nop())
	if _, err := jobs.EnqueueForGraph(ctx, nil, graph.GraphID, []int{2, 3, 4}, 1000, 42); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	embed := func(ctx context.Context, job repos.ClaimedJob, dataDirectory string) (*EmbedOutput, error) {
		return &EmbedOutput{
			FilePath: fmt.Sprintf("generated/positions/d-%d.log", job.EmbeddingDim),
			Checksum: testChecksum,
		}, nil
	}
	// A huge poll interval: drain must still finish the whole backlog in one
	// pass rather than waiting a tick per job.
	w := New(logger.Nop(), jobs, embed, Options{PollInterval: time.Hour})
	w.drain(ctx, 1)

	stats, err := jobs.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Completed != 3 || stats.Pending != 0 || stats.Running != 0 {
		t.Fatalf("expected the backlog fully completed, got %+v", stats)
	}
}

func TestProcessJobFailsOnError(t *testing.T) {
	gdb, jobs := setupQueue(t)
	ctx := context.Background()

	embed := func(ctx context.Context, job repos.ClaimedJob, dataDirectory string) (*EmbedOutput, error) {
		return nil, errors.New("solver diverged")
	}
	w := New(logger.Nop(), jobs, embed, Options{})

	claimed, err := jobs.ClaimNext(ctx, w.Hostname())
	if err != nil || claimed == nil {
		t.Fatalf("claim: %v", err)
	}
	w.processJob(ctx, 1, *claimed)

	job := loadSingleJob(t, gdb)
	if job.Status != types.JobStatusFailed {
		t.Fatalf("expected failed, got %s", job.Status)
	}
	if job.ErrorMessage == nil || *job.ErrorMessage != "solver diverged" {
		t.Fatalf("expected error message, got %v", job.ErrorMessage)
	}
}

func TestProcessJobFailsOnPanic(t *testing.T) {
	gdb, jobs := setupQueue(t)
	ctx := context.Background()

	embed := func(ctx context.Context, job repos.ClaimedJob, dataDirectory string) (*EmbedOutput, error) {
		panic("index out of range")
	}
	w := New(logger.Nop(), jobs, embed, Options{})

	claimed, err := jobs.ClaimNext(ctx, w.Hostname())
	if err != nil || claimed == nil {
		t.Fatalf("claim: %v", err)
	}
	w.processJob(ctx, 1, *claimed)

	job := loadSingleJob(t, gdb)
	if job.Status != types.JobStatusFailed {
		t.Fatalf("expected failed after panic, got %s", job.Status)
	}
}

func TestProcessJobRejectsEmptyOutput(t *testing.T) {
	gdb, jobs := setupQueue(t)
	ctx := context.Background()

	embed := func(ctx context.Context, job repos.ClaimedJob, dataDirectory string) (*EmbedOutput, error) {
		return &EmbedOutput{}, nil
	}
	w := New(logger.Nop(), jobs, embed, Options{})

	claimed, err := jobs.ClaimNext(ctx, w.Hostname())
	if err != nil || claimed == nil {
		t.Fatalf("claim: %v", err)
	}
	w.processJob(ctx, 1, *claimed)

	if job := loadSingleJob(t, gdb); job.Status != types.JobStatusFailed {
		t.Fatalf("expected failed on empty output, got %s", job.Status)
	}
}
