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

type RepoStateRepo interface {
	// GetOrCreate records a commit snapshot. Re-recording an existing commit
	// hash returns the stored row unchanged.
	GetOrCreate(ctx context.Context, tx *gorm.DB, commitHash string, timestamp time.Time, commitMessage string) (*types.RepositoryState, error)
	GetByHash(ctx context.Context, tx *gorm.DB, commitHash string) (*types.RepositoryState, error)
}

type repoStateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRepoStateRepo(db *gorm.DB, baseLog *logger.Logger) RepoStateRepo {
	return &repoStateRepo{
		db:  db,
		log: baseLog.With("repo", "RepoStateRepo"),
	}
}

func (r *repoStateRepo) GetOrCreate(ctx context.Context, tx *gorm.DB, commitHash string, timestamp time.Time, commitMessage string) (*types.RepositoryState, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(commitHash) != 40 {
		return nil, fmt.Errorf("commit hash must be 40 characters, got %d: %w", len(commitHash), storeerr.ErrInvalidState)
	}
	state := &types.RepositoryState{
		CommitHash:    commitHash,
		Timestamp:     timestamp,
		CommitMessage: commitMessage,
	}
	// Insert-if-absent, then read back. The conflict target makes concurrent
	// recorders converge without a pre-check.
	if err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "commit_hash"}},
			DoNothing: true,
		}).
		Create(state).Error; err != nil && !storeerr.IsDuplicateKey(err) {
		return nil, err
	}
	return r.GetByHash(ctx, transaction, commitHash)
}

func (r *repoStateRepo) GetByHash(ctx context.Context, tx *gorm.DB, commitHash string) (*types.RepositoryState, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var state types.RepositoryState
	err := transaction.WithContext(ctx).
		Where("commit_hash = ?", commitHash).
		First(&state).Error
	if err == gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("repository state %s: %w", commitHash, storeerr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

type CodeStateRepo interface {
	// GetOrCreate records a data-structure checksum under a repository state.
	// Re-recording an identical (checksum, name) pair returns the stored row.
	GetOrCreate(ctx context.Context, tx *gorm.DB, dataStructureName, checksum string, repoStateID *int64) (*types.CodeState, error)
	Get(ctx context.Context, tx *gorm.DB, dataStructureName, checksum string) (*types.CodeState, error)
	// ListForStructure returns all code states for a data structure, newest
	// first.
	ListForStructure(ctx context.Context, tx *gorm.DB, dataStructureName string) ([]*types.CodeState, error)
}

type codeStateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCodeStateRepo(db *gorm.DB, baseLog *logger.Logger) CodeStateRepo {
	return &codeStateRepo{
		db:  db,
		log: baseLog.With("repo", "CodeStateRepo"),
	}
}

func (r *codeStateRepo) GetOrCreate(ctx context.Context, tx *gorm.DB, dataStructureName, checksum string, repoStateID *int64) (*types.CodeState, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(checksum) != 64 {
		return nil, fmt.Errorf("code checksum must be 64 characters, got %d: %w", len(checksum), storeerr.ErrInvalidState)
	}
	state := &types.CodeState{
		RepoStateID:       repoStateID,
		Checksum:          checksum,
		DataStructureName: dataStructureName,
	}
	if err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "checksum"}, {Name: "data_structure_name"}},
			DoNothing: true,
		}).
		Create(state).Error; err != nil && !storeerr.IsDuplicateKey(err) {
		return nil, err
	}
	return r.Get(ctx, transaction, dataStructureName, checksum)
}

func (r *codeStateRepo) Get(ctx context.Context, tx *gorm.DB, dataStructureName, checksum string) (*types.CodeState, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var state types.CodeState
	err := transaction.WithContext(ctx).
		Where("checksum = ? AND data_structure_name = ?", checksum, dataStructureName).
		First(&state).Error
	if err == gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("code state %s/%s: %w", dataStructureName, checksum, storeerr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (r *codeStateRepo) ListForStructure(ctx context.Context, tx *gorm.DB, dataStructureName string) ([]*types.CodeState, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.CodeState
	if err := transaction.WithContext(ctx).
		Where("data_structure_name = ?", dataStructureName).
		Order("created_at DESC, code_state_id DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
