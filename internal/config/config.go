package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is read once at startup and never mutated afterwards.
type Config struct {
	Core       CoreConfig              `toml:"core"`
	History    HistoryConfig           `toml:"history"`
	Sparse     map[string]SparseConfig `toml:"sparse"`
	Simulation SimulationConfig        `toml:"simulation"`
	Database   DatabaseConfig          `toml:"database"`
	Checkpoint CheckpointConfig        `toml:"checkpoint"`
	Logging    LoggingConfig           `toml:"logging"`
}

type CoreConfig struct {
	// EntityCapacity is the hard ceiling on live entities. Registration past
	// it is a configuration error, so choose it above any expected count.
	EntityCapacity int `toml:"entity_capacity"`
	// EventQueueHint pre-sizes each event queue.
	EventQueueHint int `toml:"event_queue_hint"`
}

type HistoryConfig struct {
	RecentCap int `toml:"recent_cap"` // full-detail records per entity
	MediumCap int `toml:"medium_cap"` // compressed records per entity
}

// SparseConfig sizes one named sparse collection. The estimate is
// entities × average attributes × safety margin.
type SparseConfig struct {
	EstimatedCapacity int `toml:"estimated_capacity"`
}

type SimulationConfig struct {
	TickRate      time.Duration `toml:"tick_rate"` // 0 = run cycles back to back
	Cycles        int           `toml:"cycles"`
	StartYear     int           `toml:"start_year"`
	CyclesPerYear int           `toml:"cycles_per_year"`
	Seed          int64         `toml:"seed"`
	ScriptsDir    string        `toml:"scripts_dir"`
	DataDir       string        `toml:"data_dir"`
}

type DatabaseConfig struct {
	DSN             string        `toml:"dsn"` // empty disables checkpoints
	MaxOpenConns    int           `toml:"max_open_conns"`
	MaxIdleConns    int           `toml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime"`
}

type CheckpointConfig struct {
	IntervalCycles int           `toml:"interval_cycles"`
	Timeout        time.Duration `toml:"timeout"`
	Keep           int           `toml:"keep"` // newest checkpoints retained; 0 keeps all
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

// Load reads a TOML file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects settings the core cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Core.EntityCapacity < 1 || c.Core.EntityCapacity > 1<<16 {
		errs = append(errs, fmt.Errorf("core.entity_capacity must be in [1, 65536], got %d", c.Core.EntityCapacity))
	}
	if c.History.RecentCap < 1 {
		errs = append(errs, fmt.Errorf("history.recent_cap must be >= 1, got %d", c.History.RecentCap))
	}
	if c.History.MediumCap < 1 {
		errs = append(errs, fmt.Errorf("history.medium_cap must be >= 1, got %d", c.History.MediumCap))
	}
	for name, s := range c.Sparse {
		if s.EstimatedCapacity < 1 {
			errs = append(errs, fmt.Errorf("sparse.%s.estimated_capacity must be >= 1, got %d", name, s.EstimatedCapacity))
		}
	}
	if c.Simulation.CyclesPerYear < 1 {
		errs = append(errs, fmt.Errorf("simulation.cycles_per_year must be >= 1, got %d", c.Simulation.CyclesPerYear))
	}
	if c.Checkpoint.IntervalCycles < 1 {
		errs = append(errs, fmt.Errorf("checkpoint.interval_cycles must be >= 1, got %d", c.Checkpoint.IntervalCycles))
	}
	if c.Checkpoint.Keep < 0 {
		errs = append(errs, fmt.Errorf("checkpoint.keep must be >= 0, got %d", c.Checkpoint.Keep))
	}
	return errors.Join(errs...)
}

// SparseEstimate returns the configured estimate for a collection, or
// fallback when none is configured.
func (c *Config) SparseEstimate(name string, fallback int) int {
	if s, ok := c.Sparse[name]; ok {
		return s.EstimatedCapacity
	}
	return fallback
}

func Defaults() *Config {
	return &Config{
		Core: CoreConfig{
			EntityCapacity: 20000,
			EventQueueHint: 1024,
		},
		History: HistoryConfig{
			RecentCap: 16,
			MediumCap: 64,
		},
		Sparse: map[string]SparseConfig{
			// 20000 provinces × ~2 buildings × 1.25
			"buildings": {EstimatedCapacity: 50000},
			"modifiers": {EstimatedCapacity: 30000},
			"claims":    {EstimatedCapacity: 40000},
		},
		Simulation: SimulationConfig{
			TickRate:      0,
			Cycles:        360,
			StartYear:     1444,
			CyclesPerYear: 12,
			Seed:          1,
			ScriptsDir:    "scripts",
			DataDir:       "data",
		},
		Database: DatabaseConfig{
			MaxOpenConns:    4,
			MaxIdleConns:    1,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Checkpoint: CheckpointConfig{
			IntervalCycles: 120,
			Timeout:        10 * time.Second,
			Keep:           10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
