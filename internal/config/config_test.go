package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromFile_MissingFileReturnsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := NewFromFile(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default().SoftCap, cfg.SoftCap)
	assert.Equal(t, Default().LogLevel, cfg.LogLevel)
}

func TestNewFromFile_OverridesDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "mergeplay.toml")
	contents := `
soft_cap = 250
log_level = "debug"
metrics_addr = ":9999"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := NewFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.SoftCap)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":9999", cfg.MetricsAddr)
	assert.Equal(t, Default().WarnInterval, cfg.WarnInterval)
}

func TestDefault_ReaperScheduleEnabled(t *testing.T) {
	t.Parallel()

	cfg := Default()
	assert.NotEmpty(t, cfg.ReaperSchedule)
	assert.Equal(t, 10*time.Second, cfg.ReaperIdleTime)
}
