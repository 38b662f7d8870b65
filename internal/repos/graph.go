package repos

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wembed/benchcoord/internal/logger"
	"github.com/wembed/benchcoord/internal/storeerr"
	"github.com/wembed/benchcoord/internal/types"
)

// GraphParams is the generation-parameter tuple that uniquely identifies a graph.
type GraphParams struct {
	N     int32
	Deg   int32
	Ple   float64
	Dim   int32
	Alpha float64
	Wseed int32
	Pseed int32
	Sseed int32
}

type GraphRepo interface {
	// Create reserves a graph row for the parameter tuple before the graph
	// file exists. The returned row carries a placeholder file path; call
	// Finalize once the file is generated. A duplicate parameter tuple is
	// rejected with storeerr.ErrDuplicateKey.
	Create(ctx context.Context, tx *gorm.DB, params GraphParams) (*types.Graph, error)
	// Finalize records the generated file path, content checksum, and the
	// post-reduction metrics for a previously created graph.
	Finalize(ctx context.Context, tx *gorm.DB, graphID int64, filePath, checksum string, processedN int32, processedAvgDegree float64) error
	GetByID(ctx context.Context, tx *gorm.DB, graphID int64) (*types.Graph, error)
	// ListIDs returns every graph id, oldest first.
	ListIDs(ctx context.Context, tx *gorm.DB) ([]int64, error)
	// ListFilePaths returns every non-empty graph file path, for the
	// orphaned-file sweep.
	ListFilePaths(ctx context.Context, tx *gorm.DB) ([]string, error)
	Delete(ctx context.Context, tx *gorm.DB, graphID int64) error
}

type graphRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGraphRepo(db *gorm.DB, baseLog *logger.Logger) GraphRepo {
	return &graphRepo{
		db:  db,
		log: baseLog.With("repo", "GraphRepo"),
	}
}

func (r *graphRepo) Create(ctx context.Context, tx *gorm.DB, params GraphParams) (*types.Graph, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if params.N <= 0 {
		return nil, fmt.Errorf("graph node count must be positive: %w", storeerr.ErrInvalidState)
	}
	graph := &types.Graph{
		N:     params.N,
		Deg:   params.Deg,
		Ple:   params.Ple,
		Dim:   params.Dim,
		Alpha: params.Alpha,
		Wseed: params.Wseed,
		Pseed: params.Pseed,
		Sseed: params.Sseed,
		// Placeholder keeps the file_path uniqueness constraint satisfied
		// until the generator writes the real file.
		FilePath: "pending-" + uuid.NewString(),
		Checksum: "",
	}
	if err := transaction.WithContext(ctx).Create(graph).Error; err != nil {
		if storeerr.IsDuplicateKey(err) {
			return nil, fmt.Errorf("graph params already stored: %w", storeerr.ErrDuplicateKey)
		}
		return nil, err
	}
	return graph, nil
}

func (r *graphRepo) Finalize(ctx context.Context, tx *gorm.DB, graphID int64, filePath, checksum string, processedN int32, processedAvgDegree float64) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if processedN <= 0 || processedAvgDegree <= 0 {
		return fmt.Errorf("processed metrics must be positive: %w", storeerr.ErrInvalidState)
	}
	res := transaction.WithContext(ctx).
		Model(&types.Graph{}).
		Where("graph_id = ?", graphID).
		Updates(map[string]interface{}{
			"file_path":            filePath,
			"checksum":             checksum,
			"processed_n":          processedN,
			"processed_avg_degree": processedAvgDegree,
		})
	if res.Error != nil {
		if storeerr.IsDuplicateKey(res.Error) {
			return fmt.Errorf("graph file path already stored: %w", storeerr.ErrDuplicateKey)
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("graph %d: %w", graphID, storeerr.ErrNotFound)
	}
	return nil
}

func (r *graphRepo) GetByID(ctx context.Context, tx *gorm.DB, graphID int64) (*types.Graph, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var graph types.Graph
	err := transaction.WithContext(ctx).
		Where("graph_id = ?", graphID).
		First(&graph).Error
	if err == gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("graph %d: %w", graphID, storeerr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &graph, nil
}

func (r *graphRepo) ListIDs(ctx context.Context, tx *gorm.DB) ([]int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var ids []int64
	if err := transaction.WithContext(ctx).
		Model(&types.Graph{}).
		Order("graph_id ASC").
		Pluck("graph_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *graphRepo) ListFilePaths(ctx context.Context, tx *gorm.DB) ([]string, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var paths []string
	if err := transaction.WithContext(ctx).
		Model(&types.Graph{}).
		Where("file_path != '' AND file_path NOT LIKE 'pending-%'").
		Pluck("file_path", &paths).Error; err != nil {
		return nil, err
	}
	return paths, nil
}

func (r *graphRepo) Delete(ctx context.Context, tx *gorm.DB, graphID int64) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Where("graph_id = ?", graphID).
		Delete(&types.Graph{}).Error
}
