package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, 50, cfg.Scheduler.PopulationSize)
	assert.Equal(t, 100, cfg.Scheduler.Generations)
	assert.InDelta(t, 0.3, cfg.Scheduler.MutationRate, 1e-9)
	assert.Equal(t, 2, cfg.Scheduler.EliteSize)
	assert.Equal(t, "all", cfg.Scheduler.ExternalScope)
	assert.Equal(t, RunStoreMemory, cfg.Scheduler.RunStore)
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.RunTTL)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("SCHEDULER_POPULATION_SIZE", "80")
	t.Setenv("SCHEDULER_EXTERNAL_SCOPE", " Other_Terms ")
	t.Setenv("SCHEDULER_RUN_STORE", "REDIS")
	t.Setenv("SCHEDULER_RUN_TTL", "not-a-duration")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, ,http://b.test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 80, cfg.Scheduler.PopulationSize)
	assert.Equal(t, "other_terms", cfg.Scheduler.ExternalScope)
	assert.Equal(t, RunStoreRedis, cfg.Scheduler.RunStore)
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.RunTTL)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORS.AllowedOrigins)
}
