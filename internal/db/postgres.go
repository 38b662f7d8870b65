package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/wembed/benchcoord/internal/logger"
	"github.com/wembed/benchcoord/internal/types"
	"github.com/wembed/benchcoord/internal/utils"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	log.Info("Loading environment variables...")
	postgresHost := utils.GetEnv("POSTGRES_HOST", "localhost", log)
	postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", log)
	postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", log)
	postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", log)
	postgresName := utils.GetEnv("POSTGRES_NAME", "wembed", log)

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)

	log.Info("Connecting to Postgres...")
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
	})
	if err != nil {
		log.Error("Failed to connect to Postgres", "error", err)
		return nil, fmt.Errorf("Failed to connect to Postgres: %w", err)
	}

	return &PostgresService{db: db, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
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
		s.log.Error("Auto migration failed for postgres tables", "error", err)
		return err
	}
	s.log.Info("Configuring foreign key relationships for postgres tables...")
	constraints := []struct {
		name string
		ddl  string
	}{
		{"fk_position_jobs_graph_id", `
			ALTER TABLE "position_jobs"
			ADD CONSTRAINT "fk_position_jobs_graph_id"
			FOREIGN KEY ("graph_id") REFERENCES "graphs"("graph_id")
			ON DELETE CASCADE`},
		{"fk_position_results_graph_id", `
			ALTER TABLE "position_results"
			ADD CONSTRAINT "fk_position_results_graph_id"
			FOREIGN KEY ("graph_id") REFERENCES "graphs"("graph_id")
			ON DELETE CASCADE`},
		{"fk_tests_result_id", `
			ALTER TABLE "tests"
			ADD CONSTRAINT "fk_tests_result_id"
			FOREIGN KEY ("result_id") REFERENCES "position_results"("result_id")
			ON DELETE CASCADE`},
		{"fk_code_states_repo_state_id", `
			ALTER TABLE "code_states"
			ADD CONSTRAINT "fk_code_states_repo_state_id"
			FOREIGN KEY ("repo_state_id") REFERENCES "repository_states"("repo_state_id")
			ON DELETE CASCADE`},
		{"fk_measurements_code_state_id", `
			ALTER TABLE "measurements"
			ADD CONSTRAINT "fk_measurements_code_state_id"
			FOREIGN KEY ("code_state_id") REFERENCES "code_states"("code_state_id")
			ON DELETE CASCADE`},
		{"fk_measurements_result_id", `
			ALTER TABLE "measurements"
			ADD CONSTRAINT "fk_measurements_result_id"
			FOREIGN KEY ("result_id") REFERENCES "position_results"("result_id")
			ON DELETE CASCADE`},
	}
	for _, c := range constraints {
		var exists bool
		if err := s.db.Raw(
			`SELECT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = ?)`, c.name,
		).Scan(&exists).Error; err != nil {
			return fmt.Errorf("Failed to check constraint %s: %w", c.name, err)
		}
		if exists {
			continue
		}
		if err := s.db.Exec(c.ddl).Error; err != nil {
			return fmt.Errorf("Failed to add %s: %w", c.name, err)
		}
	}
	return nil
}

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}
