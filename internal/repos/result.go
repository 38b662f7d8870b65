package repos

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wembed/benchcoord/internal/logger"
	"github.com/wembed/benchcoord/internal/storeerr"
	"github.com/wembed/benchcoord/internal/types"
)

type ResultRepo interface {
	// Create stores a completed embedding directly, outside the job flow.
	// The parameter tuple must be unique per graph; duplicates are rejected
	// with storeerr.ErrDuplicateKey. Rows are immutable once written.
	Create(ctx context.Context, tx *gorm.DB, result *types.PositionResult) error
	GetByID(ctx context.Context, tx *gorm.DB, resultID int64) (*types.PositionResult, error)
	ListForGraph(ctx context.Context, tx *gorm.DB, graphID int64) ([]*types.PositionResult, error)
	ListFilePaths(ctx context.Context, tx *gorm.DB) ([]string, error)
}

type resultRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewResultRepo(db *gorm.DB, baseLog *logger.Logger) ResultRepo {
	return &resultRepo{
		db:  db,
		log: baseLog.With("repo", "ResultRepo"),
	}
}

func (r *resultRepo) Create(ctx context.Context, tx *gorm.DB, result *types.PositionResult) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(result).Error; err != nil {
		if storeerr.IsDuplicateKey(err) {
			return fmt.Errorf("result params already stored for graph %d: %w", result.GraphID, storeerr.ErrDuplicateKey)
		}
		return err
	}
	return nil
}

func (r *resultRepo) GetByID(ctx context.Context, tx *gorm.DB, resultID int64) (*types.PositionResult, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var result types.PositionResult
	err := transaction.WithContext(ctx).
		Where("result_id = ?", resultID).
		First(&result).Error
	if err == gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("result %d: %w", resultID, storeerr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *resultRepo) ListForGraph(ctx context.Context, tx *gorm.DB, graphID int64) ([]*types.PositionResult, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.PositionResult
	if err := transaction.WithContext(ctx).
		Where("graph_id = ?", graphID).
		Order("embedding_dim ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *resultRepo) ListFilePaths(ctx context.Context, tx *gorm.DB) ([]string, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var paths []string
	if err := transaction.WithContext(ctx).
		Model(&types.PositionResult{}).
		Where("file_path != ''").
		Pluck("file_path", &paths).Error; err != nil {
		return nil, err
	}
	return paths, nil
}

type TestRepo interface {
	// Upsert stores the correctness-test artifact for a result. Regenerating
	// a test replaces the file path; the 1:1 relationship is preserved.
	Upsert(ctx context.Context, tx *gorm.DB, resultID int64, filePath string) error
	Get(ctx context.Context, tx *gorm.DB, resultID int64) (*types.CorrectnessTest, error)
	ListFilePaths(ctx context.Context, tx *gorm.DB) ([]string, error)
}

type testRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTestRepo(db *gorm.DB, baseLog *logger.Logger) TestRepo {
	return &testRepo{
		db:  db,
		log: baseLog.With("repo", "TestRepo"),
	}
}

func (r *testRepo) Upsert(ctx context.Context, tx *gorm.DB, resultID int64, filePath string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	rec := &types.CorrectnessTest{ResultID: resultID, FilePath: filePath}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "result_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"file_path"}),
		}).
		Create(rec).Error
}

func (r *testRepo) Get(ctx context.Context, tx *gorm.DB, resultID int64) (*types.CorrectnessTest, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rec types.CorrectnessTest
	err := transaction.WithContext(ctx).
		Where("result_id = ?", resultID).
		First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("test for result %d: %w", resultID, storeerr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *testRepo) ListFilePaths(ctx context.Context, tx *gorm.DB) ([]string, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var paths []string
	if err := transaction.WithContext(ctx).
		Model(&types.CorrectnessTest{}).
		Where("file_path != ''").
		Pluck("file_path", &paths).Error; err != nil {
		return nil, err
	}
	return paths, nil
}
