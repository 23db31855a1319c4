package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "release", cfg.Server.Mode)
	assert.True(t, cfg.Server.EnableCORS)
	assert.Equal(t, 3, cfg.Discussion.DefaultMaxRounds)
	assert.Equal(t, 10, cfg.Discussion.MaxRoundsLimit)
	assert.Equal(t, "classifier", cfg.Discussion.RouterStrategy)
	assert.Equal(t, 4, cfg.Runner.Workers)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 24*time.Hour, cfg.Redis.SessionTTL)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("SERVER_MODE", "debug")
	t.Setenv("DISCUSSION_DEFAULT_MAX_ROUNDS", "5")
	t.Setenv("DISCUSSION_ROUTER_STRATEGY", "alternate")
	t.Setenv("LLM_TEMPERATURE", "0.2")
	t.Setenv("RUNNER_RUN_TIMEOUT", "5m")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg := Load()

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.Mode)
	assert.Equal(t, 5, cfg.Discussion.DefaultMaxRounds)
	assert.Equal(t, "alternate", cfg.Discussion.RouterStrategy)
	assert.Equal(t, 0.2, cfg.LLM.Temperature)
	assert.Equal(t, 5*time.Minute, cfg.Runner.RunTimeout)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestMalformedEnvironmentFallsBackToDefaults(t *testing.T) {
	t.Setenv("DISCUSSION_DEFAULT_MAX_ROUNDS", "many")
	t.Setenv("RUNNER_RUN_TIMEOUT", "soon")

	cfg := Load()
	assert.Equal(t, 3, cfg.Discussion.DefaultMaxRounds)
	assert.Equal(t, 15*time.Minute, cfg.Runner.RunTimeout)
}

func TestLoadFileOverlaysEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9000")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "7777"
discussion:
  default_max_rounds: 4
  router_strategy: alternate
`), 0o600))

	cfg := Load()
	require.NoError(t, LoadFile(cfg, path))

	// File wins over environment; untouched fields keep env/default values.
	assert.Equal(t, "7777", cfg.Server.Port)
	assert.Equal(t, 4, cfg.Discussion.DefaultMaxRounds)
	assert.Equal(t, "alternate", cfg.Discussion.RouterStrategy)
	assert.Equal(t, 10, cfg.Discussion.MaxRoundsLimit)
}

func TestLoadFileMissing(t *testing.T) {
	cfg := Load()
	assert.Error(t, LoadFile(cfg, filepath.Join(t.TempDir(), "absent.yaml")))
}

func TestValidate(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	valid := Load()
	valid.LLM.APIKey = "key"
	require.NoError(t, valid.Validate())

	noKey := Load()
	assert.ErrorContains(t, noKey.Validate(), "OPENAI_API_KEY")

	badRounds := Load()
	badRounds.LLM.APIKey = "key"
	badRounds.Discussion.DefaultMaxRounds = 0
	assert.Error(t, badRounds.Validate())

	limitBelowDefault := Load()
	limitBelowDefault.LLM.APIKey = "key"
	limitBelowDefault.Discussion.MaxRoundsLimit = 2
	assert.Error(t, limitBelowDefault.Validate())

	badStrategy := Load()
	badStrategy.LLM.APIKey = "key"
	badStrategy.Discussion.RouterStrategy = "coin_flip"
	assert.ErrorContains(t, badStrategy.Validate(), "router strategy")
}
