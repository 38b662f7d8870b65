package worker

import (
	"context"
	"fmt"
	"runtime"

	"github.com/wembed/benchcoord/internal/logger"
	"github.com/wembed/benchcoord/internal/repos"
	"github.com/wembed/benchcoord/internal/storeerr"
	"github.com/wembed/benchcoord/internal/types"
	"github.com/wembed/benchcoord/internal/utils"
)

// BenchRecorder persists benchmark observations tagged with their provenance:
// the code state (and, when the tree is clean, the commit) that produced them,
// the host, and the architecture.
type BenchRecorder struct {
	log          *logger.Logger
	repoStates   repos.RepoStateRepo
	codeStates   repos.CodeStateRepo
	measurements repos.MeasurementRepo
	hostname     string
	architecture string
	// AllowDirty permits recording from a working tree with uncommitted
	// changes; such measurements carry a code state with no commit link.
	AllowDirty bool

	// Seams for the git probes, overridable in tests.
	gitDirty func() (bool, error)
	gitState func() (*utils.GitState, error)
}

func NewBenchRecorder(baseLog *logger.Logger, repoStates repos.RepoStateRepo, codeStates repos.CodeStateRepo, measurements repos.MeasurementRepo, hostname string) *BenchRecorder {
	return &BenchRecorder{
		log:          baseLog.With("component", "BenchRecorder"),
		repoStates:   repoStates,
		codeStates:   codeStates,
		measurements: measurements,
		hostname:     hostname,
		architecture: runtime.GOARCH,
		gitDirty:     utils.GitDirty,
		gitState:     utils.CurrentGitState,
	}
}

// Record stores one aggregated benchmark observation. Duplicate keys are
// treated as already-recorded and skipped silently; everything else is an
// error.
func (r *BenchRecorder) Record(ctx context.Context, dataStructureName, codeChecksum string, resultID int64, iteration int32, benchmarkType string, stats PerfStats) error {
	codeState, err := r.codeState(ctx, dataStructureName, codeChecksum)
	if err != nil {
		return err
	}
	m := &types.Measurement{
		CodeStateID:            codeState.CodeStateID,
		ResultID:               resultID,
		IterationNumber:        iteration,
		SampleCount:            stats.SampleCount,
		Hostname:               r.hostname,
		Architecture:           r.architecture,
		BenchmarkType:          benchmarkType,
		WallTimeMean:           stats.WallTimeMean.Nanoseconds(),
		WallTimeStddev:         stats.WallTimeStddev.Nanoseconds(),
		InstructionCountMean:   stats.InstructionCountMean,
		InstructionCountStddev: stats.InstructionCountStddev,
		CyclesMean:             stats.CyclesMean,
		CyclesStddev:           stats.CyclesStddev,
	}
	if err := r.measurements.Record(ctx, nil, m); err != nil {
		if storeerr.IsDuplicateKey(err) {
			r.log.Debug("Measurement already recorded, skipping",
				"data_structure", dataStructureName,
				"result_id", resultID,
				"iteration", iteration,
				"benchmark_type", benchmarkType,
			)
			return nil
		}
		return err
	}
	r.log.Info("Stored benchmark result",
		"benchmark_type", benchmarkType,
		"result_id", resultID,
		"iteration", iteration,
	)
	return nil
}

// SkipList exposes the already-recorded set for a (structure, result) pair on
// this host so callers can avoid re-running finished benchmarks.
func (r *BenchRecorder) SkipList(ctx context.Context, dataStructureName, codeChecksum string, resultID int64) (map[repos.SkipKey]struct{}, error) {
	codeState, err := r.codeStates.Get(ctx, nil, dataStructureName, codeChecksum)
	if err != nil {
		if storeerr.IsNotFound(err) {
			return map[repos.SkipKey]struct{}{}, nil
		}
		return nil, err
	}
	return r.measurements.SkipList(ctx, nil, codeState.CodeStateID, resultID, r.hostname)
}

func (r *BenchRecorder) codeState(ctx context.Context, dataStructureName, codeChecksum string) (*types.CodeState, error) {
	dirty, err := r.gitDirty()
	if err != nil {
		// No git available: record the code state without a commit link.
		dirty = true
	}
	if dirty && !r.AllowDirty {
		return nil, fmt.Errorf("repository is dirty, commit changes before recording benchmarks: %w", storeerr.ErrInvalidState)
	}
	var repoStateID *int64
	if !dirty {
		git, gitErr := r.gitState()
		if gitErr == nil {
			repoState, rsErr := r.repoStates.GetOrCreate(ctx, nil, git.CommitHash, git.Timestamp, git.CommitMessage)
			if rsErr != nil {
				return nil, rsErr
			}
			repoStateID = &repoState.RepoStateID
		}
	}
	return r.codeStates.GetOrCreate(ctx, nil, dataStructureName, codeChecksum, repoStateID)
}
