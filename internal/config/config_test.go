package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "statecore.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaults_AreValid(t *testing.T) {
	assert.NoError(t, Defaults().Validate())
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[core]
entity_capacity = 4096

[history]
recent_cap = 8

[sparse.buildings]
estimated_capacity = 100

[sparse.trade_goods]
estimated_capacity = 9000

[simulation]
tick_rate = "50ms"
cycles = 10

[logging]
level = "debug"
format = "json"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4096, cfg.Core.EntityCapacity)
	assert.Equal(t, 8, cfg.History.RecentCap)
	assert.Equal(t, 64, cfg.History.MediumCap, "unset keys keep defaults")
	assert.Equal(t, 100, cfg.SparseEstimate("buildings", 1))
	assert.Equal(t, 9000, cfg.SparseEstimate("trade_goods", 1))
	assert.Equal(t, 30000, cfg.SparseEstimate("modifiers", 1), "default collections survive a partial table")
	assert.Equal(t, 7, cfg.SparseEstimate("missing", 7))
	assert.Equal(t, 50*time.Millisecond, cfg.Simulation.TickRate)
	assert.Equal(t, 10, cfg.Simulation.Cycles)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_RejectsBadCapacity(t *testing.T) {
	path := writeConfig(t, `
[core]
entity_capacity = 70000
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entity_capacity")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestValidate_JoinsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.History.RecentCap = 0
	cfg.Sparse["bad"] = SparseConfig{}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recent_cap")
	assert.Contains(t, err.Error(), "sparse.bad")
}

func TestLoad_CheckpointRetention(t *testing.T) {
	cfg, err := Load(writeConfig(t, "[checkpoint]\nkeep = 0\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Checkpoint.Keep, "0 keeps every checkpoint")
	assert.Equal(t, 120, cfg.Checkpoint.IntervalCycles)

	_, err = Load(writeConfig(t, "[checkpoint]\nkeep = -1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checkpoint.keep")
}
