package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "visitplan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	cfg, err := load("", envMap(nil))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "CV2 2TE, UK", cfg.Distance.DepotAddress)
	assert.Equal(t, 30*time.Second, cfg.Solver.TimeLimit)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeFile(t, `
port: "9090"
log:
  level: debug
  format: json
rate:
  rps: 2
  burst: 4
solver:
  workers: 3
  timeLimit: 5s
  warmStart: false
  relaxer: gonum
distance:
  depotAddress: "1 Main St"
`)
	cfg, err := load(path, envMap(map[string]string{
		"SOLVER_TIME_LIMIT":    "750ms",
		"WEBHOOK_MAX_ATTEMPTS": "4",
		"REDIS_URL":            "redis://localhost:6379/0",
	}))
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.InDelta(t, 2, cfg.Rate.RPS, 1e-12)
	assert.Equal(t, 3, cfg.Solver.Workers)
	assert.Equal(t, 750*time.Millisecond, cfg.Solver.TimeLimit)
	assert.False(t, cfg.Solver.WarmStart)
	assert.True(t, cfg.Solver.Presolve, "unset keys keep their defaults")
	assert.Equal(t, "gonum", cfg.Solver.Relaxer)
	assert.Equal(t, 4, cfg.Webhook.MaxAttempts)
	assert.Equal(t, "1 Main St", cfg.Distance.DepotAddress)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
}

func TestConfigPathFromEnv(t *testing.T) {
	path := writeFile(t, "port: \"7000\"\n")
	cfg, err := load("", envMap(map[string]string{EnvFile: path}))
	require.NoError(t, err)
	assert.Equal(t, "7000", cfg.Port)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]map[string]string{
		"port":          {"PORT": "http"},
		"rps":           {"RATE_RPS": "fast"},
		"negative rps":  {"RATE_RPS": "-1"},
		"attempts":      {"WEBHOOK_MAX_ATTEMPTS": "0"},
		"time limit":    {"SOLVER_TIME_LIMIT": "soon"},
		"solver limit":  {"SOLVER_NODE_LIMIT": "-3"},
		"log level":     {"LOG_LEVEL": "loud"},
		"job workers":   {"JOB_WORKERS": "0"},
		"solver thread": {"SOLVER_WORKERS": "-1"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := load("", envMap(env))
			require.Error(t, err)
		})
	}

	_, err := load(writeFile(t, "solver: [1, 2"), envMap(nil))
	require.ErrorContains(t, err, "parse config")
	_, err = load(filepath.Join(t.TempDir(), "missing.yaml"), envMap(nil))
	require.ErrorContains(t, err, "read config")
}

func TestLogger(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "warn"
	cfg.Log.Format = "json"
	l := cfg.Logger()
	assert.Equal(t, "warning", l.GetLevel().String())
	assert.IsType(t, &log.JSONFormatter{}, l.Formatter)
}
