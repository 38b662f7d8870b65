package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/wembed/benchcoord/internal/config"
	"github.com/wembed/benchcoord/internal/db"
	"github.com/wembed/benchcoord/internal/logger"
	"github.com/wembed/benchcoord/internal/repos"
	"github.com/wembed/benchcoord/internal/spatial"
	"github.com/wembed/benchcoord/internal/types"
	"github.com/wembed/benchcoord/internal/utils"
	"github.com/wembed/benchcoord/internal/worker"
)

// Benchmark parameters. Queries reuse the embedded points themselves so a run
// is reproducible from the position file alone.
const (
	knnK             = 10
	lightRadiusSq    = 0.25
	heavyRadiusSq    = 4.0
	radiusMaxResults = 256
)

func main() {
	resultID := flag.Int64("result", 0, "position result id to benchmark")
	structure := flag.String("structure", "kd_tree", "data structure name under test")
	source := flag.String("source", "", "file or directory holding the structure's implementation source")
	samples := flag.Int("samples", 10, "samples per benchmark type")
	allowDirty := flag.Bool("allow-dirty", false, "record even with uncommitted changes")
	flag.Parse()

	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if *resultID == 0 || *source == "" {
		log.Error("Both -result and -source are required")
		os.Exit(2)
	}

	cfg, err := config.Load(log)
	if err != nil {
		log.Error("Could not load config", "error", err)
		os.Exit(1)
	}

	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	resultRepo := repos.NewResultRepo(thePG, log)
	repoStateRepo := repos.NewRepoStateRepo(thePG, log)
	codeStateRepo := repos.NewCodeStateRepo(thePG, log)
	measurementRepo := repos.NewMeasurementRepo(thePG, log)

	hostname, err := os.Hostname()
	if err != nil {
		log.Error("Could not resolve hostname", "error", err)
		os.Exit(1)
	}
	recorder := worker.NewBenchRecorder(log, repoStateRepo, codeStateRepo, measurementRepo, hostname)
	recorder.AllowDirty = *allowDirty

	ctx := context.Background()
	if err := run(ctx, log, cfg, resultRepo, recorder, *resultID, *structure, *source, *samples); err != nil {
		log.Error("Benchmark run failed", "result_id", *resultID, "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, log *logger.Logger, cfg *config.Config, results repos.ResultRepo, recorder *worker.BenchRecorder, resultID int64, structure, source string, sampleCount int) error {
	codeChecksum, err := utils.TreeChecksum(source)
	if err != nil {
		return fmt.Errorf("checksum implementation source: %w", err)
	}

	result, err := results.GetByID(ctx, nil, resultID)
	if err != nil {
		return fmt.Errorf("load result %d: %w", resultID, err)
	}
	positions, err := worker.ReadPositions(filepath.Join(cfg.DataDirectory, result.FilePath))
	if err != nil {
		return fmt.Errorf("read positions: %w", err)
	}
	var iteration int32
	if result.ActualIterations != nil {
		iteration = *result.ActualIterations
	}
	log.Info("Benchmarking result",
		"result_id", resultID,
		"structure", structure,
		"points", len(positions),
		"dims", len(positions[0]),
		"iteration", iteration,
	)

	skip, err := recorder.SkipList(ctx, structure, codeChecksum, resultID)
	if err != nil {
		return fmt.Errorf("load skip list: %w", err)
	}

	registry := spatial.NewRegistry()
	handle := registry.Build(positions, 0)
	if handle == 0 {
		return fmt.Errorf("could not build index over %d points", len(positions))
	}
	defer registry.Release(handle)

	benchmarks := []struct {
		name string
		fn   func() time.Duration
	}{
		{types.BenchmarkConstruction, func() time.Duration {
			start := time.Now()
			h := registry.Build(positions, 0)
			elapsed := time.Since(start)
			registry.Release(h)
			return elapsed
		}},
		{types.BenchmarkSparseQuery, func() time.Duration {
			start := time.Now()
			for _, q := range positions {
				registry.KNN(handle, q, knnK)
			}
			return time.Since(start)
		}},
		{types.BenchmarkLightNodes, func() time.Duration {
			start := time.Now()
			for _, q := range positions {
				registry.Radius(handle, q, lightRadiusSq, radiusMaxResults)
			}
			return time.Since(start)
		}},
		{types.BenchmarkHeavyNodes, func() time.Duration {
			start := time.Now()
			for _, q := range positions {
				registry.Radius(handle, q, heavyRadiusSq, radiusMaxResults)
			}
			return time.Since(start)
		}},
	}

	for _, b := range benchmarks {
		if _, done := skip[repos.SkipKey{BenchmarkType: b.name, IterationNumber: iteration}]; done {
			log.Info("Benchmark already recorded, skipping", "benchmark_type", b.name, "result_id", resultID)
			continue
		}
		perf := make([]worker.PerfSample, 0, sampleCount)
		for i := 0; i < sampleCount; i++ {
			perf = append(perf, worker.PerfSample{WallTime: b.fn()})
		}
		stats := worker.AggregateSamples(perf)
		if err := recorder.Record(ctx, structure, codeChecksum, resultID, iteration, b.name, stats); err != nil {
			return fmt.Errorf("record %s: %w", b.name, err)
		}
	}
	return nil
}
