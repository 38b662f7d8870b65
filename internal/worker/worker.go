package worker

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wembed/benchcoord/internal/logger"
	"github.com/wembed/benchcoord/internal/repos"
)

// EmbedOutput is what the external embedding computation hands back: the
// position file it wrote (relative to the data directory), its checksum, and
// the iteration count it actually ran.
type EmbedOutput struct {
	FilePath         string
	Checksum         string
	ActualIterations *int32
}

// EmbedFunc runs the out-of-scope embedding algorithm for one claimed job.
type EmbedFunc func(ctx context.Context, job repos.ClaimedJob, dataDirectory string) (*EmbedOutput, error)

type Options struct {
	Concurrency   int
	PollInterval  time.Duration
	StaleTimeout  time.Duration
	DataDirectory string
}

// Worker runs a pool of claim/process/complete loops against the job queue.
// Workers coordinate purely through the store; there is no protocol between
// them beyond the claim.
type Worker struct {
	log      *logger.Logger
	jobs     repos.JobRepo
	embed    EmbedFunc
	hostname string
	opts     Options
}

func New(baseLog *logger.Logger, jobs repos.JobRepo, embed EmbedFunc, opts Options) *Worker {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		// A worker still needs a distinct claim identity when the OS cannot
		// supply one.
		hostname = "worker-" + uuid.NewString()[:8]
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	return &Worker{
		log:      baseLog.With("component", "Worker", "hostname", hostname),
		jobs:     jobs,
		embed:    embed,
		hostname: hostname,
		opts:     opts,
	}
}

func (w *Worker) Hostname() string { return w.hostname }

// Start launches the worker pool and the stale-claim sweeper. It blocks until
// ctx is cancelled and every loop has drained.
func (w *Worker) Start(ctx context.Context) error {
	w.log.Info("Starting worker pool", "concurrency", w.opts.Concurrency, "poll_interval", w.opts.PollInterval)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.opts.Concurrency; i++ {
		workerID := i + 1
		g.Go(func() error {
			w.runLoop(ctx, workerID)
			return nil
		})
	}
	if w.opts.StaleTimeout > 0 {
		g.Go(func() error {
			w.sweepLoop(ctx)
			return nil
		})
	}
	return g.Wait()
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			w.drain(ctx, workerID)
		}
	}
}

// drain claims until the queue is empty, so a backlog is worked through
// back-to-back and the poll interval only governs how quickly an idle worker
// notices new jobs.
func (w *Worker) drain(ctx context.Context, workerID int) {
	for ctx.Err() == nil {
		job, err := w.jobs.ClaimNext(ctx, w.hostname)
		if err != nil {
			w.log.Warn("ClaimNext failed", "worker_id", workerID, "error", err)
			return
		}
		if job == nil {
			return
		}
		w.processJob(ctx, workerID, *job)
	}
}

func (w *Worker) processJob(ctx context.Context, workerID int, job repos.ClaimedJob) {
	log := w.log.With("worker_id", workerID, "job_id", job.JobID, "graph_id", job.GraphID, "embedding_dim", job.EmbeddingDim)
	log.Info("Processing job")

	out, err := w.runEmbed(ctx, job)
	if err != nil {
		log.Error("Job failed", "error", err)
		if failErr := w.jobs.Fail(ctx, job.JobID, err.Error()); failErr != nil {
			log.Warn("Could not mark job failed", "error", failErr)
		}
		return
	}
	if _, err := w.jobs.Complete(ctx, job.JobID, out.FilePath, out.Checksum, out.ActualIterations); err != nil {
		log.Error("Could not complete job", "error", err)
		return
	}
	log.Info("Completed job", "file_path", out.FilePath)
}

func (w *Worker) runEmbed(ctx context.Context, job repos.ClaimedJob) (out *EmbedOutput, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("embedding panicked: %v", r)
		}
	}()
	out, err = w.embed(ctx, job, w.opts.DataDirectory)
	if err != nil {
		return nil, err
	}
	if out == nil || out.FilePath == "" {
		return nil, fmt.Errorf("embedding produced no output file")
	}
	return out, nil
}

// sweepLoop is the only recovery path for workers that died without reporting:
// a coarse timeout sweep, no per-job heartbeat.
func (w *Worker) sweepLoop(ctx context.Context) {
	interval := w.opts.StaleTimeout / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := w.jobs.RecoverStale(ctx, w.opts.StaleTimeout)
			if err != nil {
				w.log.Warn("Stale sweep failed", "error", err)
				continue
			}
			if count > 0 {
				w.log.Info("Stale sweep reclaimed jobs", "count", count)
			}
		}
	}
}
