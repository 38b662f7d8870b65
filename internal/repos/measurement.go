package repos

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/wembed/benchcoord/internal/logger"
	"github.com/wembed/benchcoord/internal/storeerr"
	"github.com/wembed/benchcoord/internal/types"
)

// SkipKey identifies a measurement already recorded on a host, so a benchmark
// run can skip work it has done before.
type SkipKey struct {
	BenchmarkType   string
	IterationNumber int32
}

type MeasurementRepo interface {
	// Record inserts one benchmark sample. A duplicate
	// (code_state, result, iteration, benchmark_type, hostname) key is
	// rejected with storeerr.ErrDuplicateKey; callers treat that as
	// already-recorded and move on.
	Record(ctx context.Context, tx *gorm.DB, m *types.Measurement) error
	// SkipList returns the (benchmark_type, iteration) pairs already recorded
	// for a code state and result on one host.
	SkipList(ctx context.Context, tx *gorm.DB, codeStateID, resultID int64, hostname string) (map[SkipKey]struct{}, error)
	// Reconcile copies measurements between two hosts in both directions so
	// each ends up with the union, inserting only missing rows. Returns the
	// counts newly inserted A-to-B and B-to-A. Idempotent: a second run
	// inserts nothing.
	Reconcile(ctx context.Context, hostA, hostB string) (int64, int64, error)
	CountForHost(ctx context.Context, tx *gorm.DB, hostname string) (int64, error)
}

type measurementRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMeasurementRepo(db *gorm.DB, baseLog *logger.Logger) MeasurementRepo {
	return &measurementRepo{
		db:  db,
		log: baseLog.With("repo", "MeasurementRepo"),
	}
}

func (r *measurementRepo) Record(ctx context.Context, tx *gorm.DB, m *types.Measurement) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	valid := false
	for _, t := range types.BenchmarkTypes() {
		if m.BenchmarkType == t {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("unknown benchmark type %q: %w", m.BenchmarkType, storeerr.ErrInvalidState)
	}
	if err := transaction.WithContext(ctx).Create(m).Error; err != nil {
		if storeerr.IsDuplicateKey(err) {
			return fmt.Errorf("measurement already recorded: %w", storeerr.ErrDuplicateKey)
		}
		return err
	}
	return nil
}

func (r *measurementRepo) SkipList(ctx context.Context, tx *gorm.DB, codeStateID, resultID int64, hostname string) (map[SkipKey]struct{}, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []struct {
		BenchmarkType   string
		IterationNumber int32
	}
	err := transaction.WithContext(ctx).
		Model(&types.Measurement{}).
		Select("benchmark_type, iteration_number").
		Where("code_state_id = ? AND result_id = ? AND hostname = ?", codeStateID, resultID, hostname).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[SkipKey]struct{}, len(rows))
	for _, row := range rows {
		out[SkipKey{BenchmarkType: row.BenchmarkType, IterationNumber: row.IterationNumber}] = struct{}{}
	}
	return out, nil
}

// reconcileSQL copies every measurement owned by the source host to the target
// host unless the target already has that key. Rows are only ever inserted,
// never updated, so repeated runs converge and concurrent recording is safe:
// the unique key absorbs races between the NOT EXISTS check and the insert.
const reconcileSQL = `
INSERT INTO measurements (
	code_state_id, result_id, iteration_number, sample_count,
	hostname, architecture, benchmark_type,
	wall_time_mean, wall_time_stddev,
	instruction_count_mean, instruction_count_stddev,
	cycles_mean, cycles_stddev, created_at
)
SELECT
	m.code_state_id, m.result_id, m.iteration_number, m.sample_count,
	?, m.architecture, m.benchmark_type,
	m.wall_time_mean, m.wall_time_stddev,
	m.instruction_count_mean, m.instruction_count_stddev,
	m.cycles_mean, m.cycles_stddev, m.created_at
FROM measurements m
WHERE m.hostname = ?
  AND NOT EXISTS (
	SELECT 1 FROM measurements t
	WHERE t.code_state_id = m.code_state_id
	  AND t.result_id = m.result_id
	  AND t.iteration_number = m.iteration_number
	  AND t.benchmark_type = m.benchmark_type
	  AND t.hostname = ?
  )
ON CONFLICT (code_state_id, result_id, iteration_number, hostname, benchmark_type) DO NOTHING
`

func (r *measurementRepo) Reconcile(ctx context.Context, hostA, hostB string) (int64, int64, error) {
	aToB := r.db.WithContext(ctx).Exec(reconcileSQL, hostB, hostA, hostB)
	if aToB.Error != nil {
		return 0, 0, fmt.Errorf("reconcile %s to %s: %w", hostA, hostB, aToB.Error)
	}
	bToA := r.db.WithContext(ctx).Exec(reconcileSQL, hostA, hostB, hostA)
	if bToA.Error != nil {
		return aToB.RowsAffected, 0, fmt.Errorf("reconcile %s to %s: %w", hostB, hostA, bToA.Error)
	}
	r.log.Info("Reconciled measurements",
		"host_a", hostA,
		"host_b", hostB,
		"copied_a_to_b", aToB.RowsAffected,
		"copied_b_to_a", bToA.RowsAffected,
	)
	return aToB.RowsAffected, bToA.RowsAffected, nil
}

func (r *measurementRepo) CountForHost(ctx context.Context, tx *gorm.DB, hostname string) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	err := transaction.WithContext(ctx).
		Model(&types.Measurement{}).
		Where("hostname = ?", hostname).
		Count(&count).Error
	return count, err
}
