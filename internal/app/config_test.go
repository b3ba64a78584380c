package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, 400, cfg.ReportMaxSpanDays)
	assert.Equal(t, 3*time.Second, cfg.CostLookupTimeout)
	assert.Equal(t, "postgres", cfg.CostStore)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("REPORT_TIMEZONE=Europe/London\nCOST_STORE=redis\n"), 0o600))
	t.Setenv("REPORT_TIMEZONE", "")
	require.NoError(t, os.Unsetenv("REPORT_TIMEZONE"))
	t.Setenv("COST_STORE", "none")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "none", cfg.CostStore)
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/London", loc.String())
}

func TestLoadConfigRejectsUnknownTimezone(t *testing.T) {
	t.Setenv("REPORT_TIMEZONE", "Mars/Olympus")
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REPORT_TIMEZONE")
}

func TestTestModeFlag(t *testing.T) {
	t.Setenv(TestModeEnv, "true")
	RefreshTestMode()
	assert.True(t, InTestMode())

	t.Setenv(TestModeEnv, "0")
	RefreshTestMode()
	assert.False(t, InTestMode())
}
