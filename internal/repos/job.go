package repos

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wembed/benchcoord/internal/logger"
	"github.com/wembed/benchcoord/internal/storeerr"
	"github.com/wembed/benchcoord/internal/types"
)

const staleRecoveryNote = "recovered from stale claim"

// ClaimedJob is everything a worker needs to run one embedding job: the job
// parameters plus the graph file it operates on.
type ClaimedJob struct {
	JobID              int64
	GraphID            int64
	EmbeddingDim       int32
	DimHint            int32
	MaxIterations      int32
	Seed               int32
	GraphFilePath      string
	ProcessedN         int32
	ProcessedAvgDegree float64
}

type JobStats struct {
	Pending   int64 `json:"pending"`
	Running   int64 `json:"running"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// RunningJob is one row of the detailed status display.
type RunningJob struct {
	Hostname     string        `json:"hostname"`
	ClaimedFor   time.Duration `json:"claimed_for_ns"`
	EmbeddingDim int32         `json:"embedding_dim"`
	N            int32         `json:"n"`
	GraphID      int64         `json:"graph_id"`
}

type JobRepo interface {
	// Enqueue inserts a pending job for the parameter tuple. Returns false
	// without error when an identical tuple already exists.
	Enqueue(ctx context.Context, tx *gorm.DB, graphID int64, embeddingDim, dimHint, maxIterations, seed int32) (bool, error)
	// EnqueueForGraph fans one job per embedding dimension out for a graph
	// and returns how many were newly inserted.
	EnqueueForGraph(ctx context.Context, tx *gorm.DB, graphID int64, dims []int, maxIterations, seed int32) (int, error)
	// ClaimNext atomically claims the oldest pending job for hostname.
	// Returns (nil, nil) when nothing is pending. Concurrent claimants skip
	// rows locked by each other instead of waiting.
	ClaimNext(ctx context.Context, hostname string) (*ClaimedJob, error)
	// Complete inserts the position result produced by a running job and
	// marks the job completed, in one transaction. Completing a job that is
	// not running reports storeerr.ErrInvalidState and changes nothing.
	Complete(ctx context.Context, jobID int64, filePath, checksum string, actualIterations *int32) (*types.PositionResult, error)
	// Fail marks a running job failed and records the message. Failed jobs
	// are terminal; they are not retried.
	Fail(ctx context.Context, jobID int64, message string) error
	// RecoverStale resets running jobs claimed longer ago than olderThan back
	// to pending, clearing the claimant and appending a recovery note to the
	// error message. Returns the number of jobs recovered.
	RecoverStale(ctx context.Context, olderThan time.Duration) (int64, error)
	Stats(ctx context.Context) (JobStats, error)
	Running(ctx context.Context) ([]RunningJob, error)
}

type jobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRepo(db *gorm.DB, baseLog *logger.Logger) JobRepo {
	return &jobRepo{
		db:  db,
		log: baseLog.With("repo", "JobRepo"),
	}
}

func (r *jobRepo) Enqueue(ctx context.Context, tx *gorm.DB, graphID int64, embeddingDim, dimHint, maxIterations, seed int32) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	job := &types.PositionJob{
		GraphID:       graphID,
		EmbeddingDim:  embeddingDim,
		DimHint:       dimHint,
		MaxIterations: maxIterations,
		Seed:          seed,
		Status:        types.JobStatusPending,
	}
	res := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(job)
	if res.Error != nil {
		// Belt and braces: some dialect paths surface the conflict as an
		// error instead of a zero rows-affected insert.
		if storeerr.IsDuplicateKey(res.Error) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *jobRepo) EnqueueForGraph(ctx context.Context, tx *gorm.DB, graphID int64, dims []int, maxIterations, seed int32) (int, error) {
	created := 0
	for _, dim := range dims {
		ok, err := r.Enqueue(ctx, tx, graphID, int32(dim), int32(dim), maxIterations, seed)
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}
	return created, nil
}

func (r *jobRepo) ClaimNext(ctx context.Context, hostname string) (*ClaimedJob, error) {
	var claimed *ClaimedJob
	err := r.db.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		var job types.PositionJob
		q := txx.Where("status = ?", types.JobStatusPending).
			Order("created_at ASC, job_id ASC")
		if txx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		qErr := q.First(&job).Error
		if qErr == gorm.ErrRecordNotFound {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		now := time.Now()
		uErr := txx.Model(&types.PositionJob{}).
			Where("job_id = ?", job.JobID).
			Updates(map[string]interface{}{
				"status":              types.JobStatusRunning,
				"claimed_at":          now,
				"claimed_by_hostname": hostname,
			}).Error
		if uErr != nil {
			return uErr
		}
		var graph types.Graph
		if gErr := txx.Where("graph_id = ?", job.GraphID).First(&graph).Error; gErr != nil {
			return gErr
		}
		claimed = &ClaimedJob{
			JobID:              job.JobID,
			GraphID:            job.GraphID,
			EmbeddingDim:       job.EmbeddingDim,
			DimHint:            job.DimHint,
			MaxIterations:      job.MaxIterations,
			Seed:               job.Seed,
			GraphFilePath:      graph.FilePath,
			ProcessedN:         graph.ProcessedN,
			ProcessedAvgDegree: graph.ProcessedAvgDegree,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *jobRepo) Complete(ctx context.Context, jobID int64, filePath, checksum string, actualIterations *int32) (*types.PositionResult, error) {
	var result *types.PositionResult
	err := r.db.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		var job types.PositionJob
		q := txx.Where("job_id = ?", jobID)
		if txx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := q.First(&job).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return fmt.Errorf("job %d: %w", jobID, storeerr.ErrNotFound)
			}
			return err
		}
		if job.Status != types.JobStatusRunning {
			return fmt.Errorf("job %d is %s, not running: %w", jobID, job.Status, storeerr.ErrInvalidState)
		}
		result = &types.PositionResult{
			GraphID:          job.GraphID,
			EmbeddingDim:     job.EmbeddingDim,
			DimHint:          job.DimHint,
			MaxIterations:    job.MaxIterations,
			ActualIterations: actualIterations,
			Seed:             job.Seed,
			FilePath:         filePath,
			Checksum:         checksum,
		}
		if err := txx.Create(result).Error; err != nil {
			if storeerr.IsDuplicateKey(err) {
				return fmt.Errorf("result for job %d already stored: %w", jobID, storeerr.ErrDuplicateKey)
			}
			return err
		}
		now := time.Now()
		return txx.Model(&types.PositionJob{}).
			Where("job_id = ?", jobID).
			Updates(map[string]interface{}{
				"status":       types.JobStatusCompleted,
				"completed_at": now,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *jobRepo) Fail(ctx context.Context, jobID int64, message string) error {
	res := r.db.WithContext(ctx).
		Model(&types.PositionJob{}).
		Where("job_id = ? AND status = ?", jobID, types.JobStatusRunning).
		Updates(map[string]interface{}{
			"status":        types.JobStatusFailed,
			"error_message": message,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("job %d not running: %w", jobID, storeerr.ErrInvalidState)
	}
	return nil
}

func (r *jobRepo) RecoverStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res := r.db.WithContext(ctx).
		Model(&types.PositionJob{}).
		Where("status = ? AND claimed_at IS NOT NULL AND claimed_at < ?", types.JobStatusRunning, cutoff).
		Updates(map[string]interface{}{
			"status":              types.JobStatusPending,
			"claimed_by_hostname": nil,
			"claimed_at":          nil,
			"error_message": gorm.Expr(
				"CASE WHEN error_message IS NULL OR error_message = '' THEN ? ELSE error_message || ? END",
				staleRecoveryNote, "; "+staleRecoveryNote,
			),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		r.log.Info("Recovered stale jobs", "count", res.RowsAffected, "older_than", olderThan)
	}
	return res.RowsAffected, nil
}

func (r *jobRepo) Stats(ctx context.Context) (JobStats, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := r.db.WithContext(ctx).
		Model(&types.PositionJob{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return JobStats{}, err
	}
	var stats JobStats
	for _, row := range rows {
		switch row.Status {
		case types.JobStatusPending:
			stats.Pending = row.Count
		case types.JobStatusRunning:
			stats.Running = row.Count
		case types.JobStatusCompleted:
			stats.Completed = row.Count
		case types.JobStatusFailed:
			stats.Failed = row.Count
		}
	}
	return stats, nil
}

func (r *jobRepo) Running(ctx context.Context) ([]RunningJob, error) {
	var rows []struct {
		ClaimedByHostname *string
		ClaimedAt         *time.Time
		EmbeddingDim      int32
		N                 int32
		GraphID           int64
	}
	err := r.db.WithContext(ctx).
		Model(&types.PositionJob{}).
		Select("position_jobs.claimed_by_hostname, position_jobs.claimed_at, position_jobs.embedding_dim, graphs.n, position_jobs.graph_id").
		Joins("JOIN graphs ON graphs.graph_id = position_jobs.graph_id").
		Where("position_jobs.status = ?", types.JobStatusRunning).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	now := time.Now()
	out := make([]RunningJob, 0, len(rows))
	for _, row := range rows {
		var hostname string
		if row.ClaimedByHostname != nil {
			hostname = *row.ClaimedByHostname
		}
		var claimedFor time.Duration
		if row.ClaimedAt != nil {
			claimedFor = now.Sub(*row.ClaimedAt)
		}
		out = append(out, RunningJob{
			Hostname:     hostname,
			ClaimedFor:   claimedFor,
			EmbeddingDim: row.EmbeddingDim,
			N:            row.N,
			GraphID:      row.GraphID,
		})
	}
	return out, nil
}
