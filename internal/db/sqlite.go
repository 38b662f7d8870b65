package db

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/wembed/benchcoord/internal/logger"
	"github.com/wembed/benchcoord/internal/types"
)

// SQLiteService is the single-node fallback store, used for local development
// and for the repo test suites. The schema comes entirely from the model tags,
// so foreign keys cascade here as well.
type SQLiteService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSQLiteService(path string, log *logger.Logger) (*SQLiteService, error) {
	serviceLog := log.With("service", "SQLiteService")

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on", path)
	log.Info("Opening SQLite database...", "path", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		log.Error("Failed to open SQLite database", "error", err)
		return nil, fmt.Errorf("Failed to open SQLite database: %w", err)
	}

	return &SQLiteService{db: db, log: serviceLog}, nil
}

func (s *SQLiteService) AutoMigrateAll() error {
	s.log.Info("Auto migrating sqlite tables...")
	err := s.db.AutoMigrate(
		&types.Graph{},
		&types.PositionJob{},
		&types.PositionResult{},
		&types.CorrectnessTest{},
		&types.RepositoryState{},
		&types.CodeState{},
		&types.Measurement{},
	)
	if err != nil {
		s.log.Error("Auto migration failed for sqlite tables", "error", err)
		return err
	}
	return nil
}

func (s *SQLiteService) DB() *gorm.DB {
	return s.db
}
