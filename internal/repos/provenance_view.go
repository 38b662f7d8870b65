package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/wembed/benchcoord/internal/logger"
)

// ProvenanceRow is one measurement joined with its full lineage: code state,
// repository commit, result, and graph.
type ProvenanceRow struct {
	MeasurementID          int64   `json:"measurement_id"`
	CodeStateID            int64   `json:"code_state_id"`
	DataStructureName      string  `json:"data_structure_name"`
	CodeChecksum           string  `json:"code_checksum"`
	CommitHash             string  `json:"commit_hash"`
	CommitMessage          string  `json:"commit_message"`
	ResultID               int64   `json:"result_id"`
	GraphID                int64   `json:"graph_id"`
	N                      int32   `json:"n"`
	Deg                    int32   `json:"deg"`
	EmbeddingDim           int32   `json:"embedding_dim"`
	DimHint                int32   `json:"dim_hint"`
	Seed                   int32   `json:"seed"`
	IterationNumber        int32   `json:"iteration_number"`
	SampleCount            int32   `json:"sample_count"`
	Hostname               string  `json:"hostname"`
	Architecture           string  `json:"architecture"`
	BenchmarkType          string  `json:"benchmark_type"`
	WallTimeMean           int64   `json:"wall_time_mean"`
	WallTimeStddev         int64   `json:"wall_time_stddev"`
	InstructionCountMean   float64 `json:"instruction_count_mean"`
	InstructionCountStddev float64 `json:"instruction_count_stddev"`
	CyclesMean             float64 `json:"cycles_mean"`
	CyclesStddev           float64 `json:"cycles_stddev"`

	// Rank of this measurement's code state among all code states sharing
	// its data-structure name, newest first. 1 means newest.
	CodeStateRank int64 `json:"-"`
	// Highest iteration number recorded in this measurement's
	// (code_state, result, benchmark_type, hostname) series.
	MaxIterationNumber int32 `json:"-"`

	IsNewestCodeState bool `json:"is_newest_code_state"`
	IsLastIteration   bool `json:"is_last_iteration"`
}

// ProvenanceFilter narrows the view; zero values mean no filtering.
type ProvenanceFilter struct {
	DataStructureName string
	Hostname          string
	BenchmarkType     string
	OnlyNewest        bool
	OnlyLastIteration bool
}

type ProvenanceViewRepo interface {
	// List recomputes the provenance projection on every read: measurements
	// joined with their lineage, code revisions ranked newest-first per
	// data-structure name and iterations latest-first per series.
	List(ctx context.Context, tx *gorm.DB, filter ProvenanceFilter) ([]*ProvenanceRow, error)
}

type provenanceViewRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProvenanceViewRepo(db *gorm.DB, baseLog *logger.Logger) ProvenanceViewRepo {
	return &provenanceViewRepo{
		db:  db,
		log: baseLog.With("repo", "ProvenanceViewRepo"),
	}
}

// The code-state ranking runs over all code states sharing a name, not just
// those that have measurements, so the newest flag stays correct while a new
// revision's first benchmark run is still in flight. Ties on created_at break
// deterministically on code_state_id.
const provenanceSQL = `
WITH ranked_code_states AS (
	SELECT code_state_id,
	       ROW_NUMBER() OVER (
	           PARTITION BY data_structure_name
	           ORDER BY created_at DESC, code_state_id DESC
	       ) AS code_state_rank
	FROM code_states
)
SELECT
	m.measurement_id,
	m.code_state_id,
	cs.data_structure_name,
	cs.checksum AS code_checksum,
	COALESCE(rs.commit_hash, '') AS commit_hash,
	COALESCE(rs.commit_message, '') AS commit_message,
	m.result_id,
	pr.graph_id,
	g.n,
	g.deg,
	pr.embedding_dim,
	pr.dim_hint,
	pr.seed,
	m.iteration_number,
	m.sample_count,
	m.hostname,
	m.architecture,
	m.benchmark_type,
	m.wall_time_mean,
	m.wall_time_stddev,
	m.instruction_count_mean,
	m.instruction_count_stddev,
	m.cycles_mean,
	m.cycles_stddev,
	rcs.code_state_rank,
	MAX(m.iteration_number) OVER (
		PARTITION BY m.code_state_id, m.result_id, m.benchmark_type, m.hostname
	) AS max_iteration_number
FROM measurements m
JOIN code_states cs ON cs.code_state_id = m.code_state_id
JOIN ranked_code_states rcs ON rcs.code_state_id = m.code_state_id
LEFT JOIN repository_states rs ON rs.repo_state_id = cs.repo_state_id
JOIN position_results pr ON pr.result_id = m.result_id
JOIN graphs g ON g.graph_id = pr.graph_id
ORDER BY cs.data_structure_name ASC,
	rcs.code_state_rank ASC,
	m.result_id ASC,
	m.benchmark_type ASC,
	m.hostname ASC,
	m.iteration_number DESC
`

func (r *provenanceViewRepo) List(ctx context.Context, tx *gorm.DB, filter ProvenanceFilter) ([]*ProvenanceRow, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*ProvenanceRow
	if err := transaction.WithContext(ctx).Raw(provenanceSQL).Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*ProvenanceRow, 0, len(rows))
	for _, row := range rows {
		row.IsNewestCodeState = row.CodeStateRank == 1
		row.IsLastIteration = row.IterationNumber == row.MaxIterationNumber
		if filter.DataStructureName != "" && row.DataStructureName != filter.DataStructureName {
			continue
		}
		if filter.Hostname != "" && row.Hostname != filter.Hostname {
			continue
		}
		if filter.BenchmarkType != "" && row.BenchmarkType != filter.BenchmarkType {
			continue
		}
		if filter.OnlyNewest && !row.IsNewestCodeState {
			continue
		}
		if filter.OnlyLastIteration && !row.IsLastIteration {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}
