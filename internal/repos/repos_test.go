package repos

import (
	"context"
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"github.com/wembed/benchcoord/internal/db"
	"github.com/wembed/benchcoord/internal/logger"
	"github.com/wembed/benchcoord/internal/types"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	service, err := db.NewSQLiteService(filepath.Join(t.TempDir(), "test.db"), logger.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := service.AutoMigrateAll(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return service.DB()
}

func seedGraph(t *testing.T, gdb *gorm.DB, n int32) *types.Graph {
	t.Helper()
	repo := NewGraphRepo(gdb, logger.Nop())
	graph, err := repo.Create(context.Background(), nil, GraphParams{
		N: n, Deg: 10, Ple: 2.5, Dim: 2, Alpha: 1.0,
		Wseed: 1, Pseed: 2, Sseed: 3,
	})
	if err != nil {
		t.Fatalf("create graph: %v", err)
	}
	return graph
}

func seedFinalizedGraph(t *testing.T, gdb *gorm.DB, n int32, filePath string) *types.Graph {
	t.Helper()
	repo := NewGraphRepo(gdb, logger.Nop())
	graph := seedGraph(t, gdb, n)
	err := repo.Finalize(context.Background(), nil, graph.GraphID, filePath, checksumOfLen64(), n, 9.5)
	if err != nil {
		t.Fatalf("finalize graph: %v", err)
	}
	return graph
}

func checksumOfLen64() string {
	return "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
}

func seedResult(t *testing.T, gdb *gorm.DB, graphID int64, dim int32, filePath string) *types.PositionResult {
	t.Helper()
	repo := NewResultRepo(gdb, logger.Nop())
	result := &types.PositionResult{
		GraphID:       graphID,
		EmbeddingDim:  dim,
		DimHint:       dim,
		MaxIterations: 1000,
		Seed:          42,
		FilePath:      filePath,
		Checksum:      checksumOfLen64(),
	}
	if err := repo.Create(context.Background(), nil, result); err != nil {
		t.Fatalf("create result: %v", err)
	}
	return result
}

func seedCodeState(t *testing.T, gdb *gorm.DB, name, checksum string) *types.CodeState {
	t.Helper()
	repo := NewCodeStateRepo(gdb, logger.Nop())
	state, err := repo.GetOrCreate(context.Background(), nil, name, checksum, nil)
	if err != nil {
		t.Fatalf("create code state: %v", err)
	}
	return state
}
