package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wembed/benchcoord/internal/logger"
	"github.com/wembed/benchcoord/internal/utils"
)

// HostPair names two hosts whose measurement sets are kept in sync.
type HostPair struct {
	A string `yaml:"a"`
	B string `yaml:"b"`
}

type WorkerConfig struct {
	Concurrency     int `yaml:"concurrency"`
	PollIntervalSec int `yaml:"poll_interval_sec"`
}

type QueueConfig struct {
	Dimensions    []int `yaml:"dimensions"`
	MaxIterations int   `yaml:"max_iterations"`
	// Seed is a pointer so an explicit 0 stays distinguishable from "not
	// configured".
	Seed            *int `yaml:"seed"`
	StaleTimeoutHrs int  `yaml:"stale_timeout_hours"`
}

type ReconcileConfig struct {
	Pairs []HostPair `yaml:"pairs"`
}

type Config struct {
	DataDirectory string          `yaml:"data_directory"`
	Worker        WorkerConfig    `yaml:"worker"`
	Queue         QueueConfig     `yaml:"queue"`
	Reconcile     ReconcileConfig `yaml:"reconcile"`
}

// Load reads the YAML config named by BENCHCOORD_CONFIG (if set) and fills any
// gaps with environment variables and defaults. A missing file is not an error;
// everything has a usable default.
func Load(log *logger.Logger) (*Config, error) {
	cfg := &Config{}

	path := utils.GetEnv("BENCHCOORD_CONFIG", "", log)
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		log.Info("Loaded config file", "path", path)
	}

	if cfg.DataDirectory == "" {
		cfg.DataDirectory = utils.GetEnv("DATA_DIRECTORY", "../data", log)
	}
	if cfg.Worker.Concurrency <= 0 {
		cfg.Worker.Concurrency = utils.GetEnvAsInt("WORKER_CONCURRENCY", 4, log)
	}
	if cfg.Worker.PollIntervalSec <= 0 {
		cfg.Worker.PollIntervalSec = utils.GetEnvAsInt("WORKER_POLL_INTERVAL_SEC", 5, log)
	}
	if cfg.Queue.StaleTimeoutHrs <= 0 {
		cfg.Queue.StaleTimeoutHrs = utils.GetEnvAsInt("STALE_TIMEOUT_HOURS", 2, log)
	}
	if len(cfg.Queue.Dimensions) == 0 {
		cfg.Queue.Dimensions = []int{2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	}
	if cfg.Queue.MaxIterations <= 0 {
		cfg.Queue.MaxIterations = 1000
	}
	if cfg.Queue.Seed == nil {
		seed := utils.GetEnvAsInt("QUEUE_SEED", 42, log)
		cfg.Queue.Seed = &seed
	}
	return cfg, nil
}
