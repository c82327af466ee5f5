package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/incentive-engine/incentive"
)

func TestLoadFile_MissingFileUsesDefaults(t *testing.T) {
	// GIVEN: No .env file and no overrides
	// WHEN: Loading
	cfg, err := LoadFile(filepath.Join(t.TempDir(), ".env"))

	// THEN: Defaults apply
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, DriverSQLite, cfg.DBDriver)
	assert.Equal(t, "incentive.db", cfg.DBPath)
	assert.Equal(t, 10*time.Minute, cfg.RedisTTL)
	assert.Equal(t, 24*time.Hour, cfg.SchedulerInterval)
	assert.Equal(t, 10*time.Second, cfg.CalcTimeout)
	assert.Equal(t, incentive.AttachPerGroup, cfg.Policy())
	assert.False(t, cfg.CacheEnabled())
	assert.Equal(t, ":8080", cfg.Addr())
}

func TestLoadFile_EnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ATTACH_POLICY", "sale")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("CALC_TIMEOUT", "2s")
	t.Setenv("SCHEDULER_ENABLED", "true")

	cfg, err := LoadFile(filepath.Join(t.TempDir(), ".env"))

	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, incentive.AttachPerSale, cfg.Policy())
	assert.True(t, cfg.CacheEnabled())
	assert.Equal(t, 2*time.Second, cfg.CalcTimeout)
	assert.True(t, cfg.SchedulerEnabled)
}

func TestLoadFile_ReadsDotEnv(t *testing.T) {
	// GIVEN: A .env file setting the log level, and PORT already exported
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("LOG_LEVEL=debug\nPORT=7000\n"), 0o600))
	t.Setenv("PORT", "9191")
	t.Cleanup(func() { os.Unsetenv("LOG_LEVEL") })

	// WHEN: Loading
	cfg, err := LoadFile(path)

	// THEN: The file fills gaps; the environment wins
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 9191, cfg.Port)
}

func TestLoadFile_Validation(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown driver":        {"DB_DRIVER": "mysql"},
		"postgres without dsn":  {"DB_DRIVER": "postgres", "DATABASE_URL": ""},
		"unknown attach policy": {"ATTACH_POLICY": "weekly"},
		"zero scheduler tick":   {"SCHEDULER_ENABLED": "true", "SCHEDULER_INTERVAL": "0s"},
		"negative calc timeout": {"CALC_TIMEOUT": "-1s"},
		"malformed port":        {"PORT": "eighty"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range vars {
				t.Setenv(k, v)
			}
			_, err := LoadFile(filepath.Join(t.TempDir(), ".env"))
			assert.Error(t, err)
		})
	}
}
