package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlet99/metric-alert-engine/internal/config"
)

func quietEnv(t *testing.T) {
	t.Helper()
	t.Setenv("PORT", "0")
	t.Setenv("COLLECTOR_ENABLED", "false")
	t.Setenv("TRACING_ENABLED", "false")
	t.Setenv("SMTP_HOST", "")
	t.Setenv("RULES_FILE", "")
}

func TestRun_StopsOnCancel(t *testing.T) {
	quietEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	var out bytes.Buffer
	err := run(ctx, &out)

	require.NoError(t, err)
	assert.Contains(t, out.String(), "Starting metric alert engine")
	assert.Contains(t, out.String(), "Metric alert engine stopped")
}

func TestRun_InvalidConfig(t *testing.T) {
	quietEnv(t)
	t.Setenv("PORT", "not-a-port")

	err := run(context.Background(), io.Discard)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT")
}

func TestNewApp_LoadsRulesFileAndCollector(t *testing.T) {
	quietEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rules:
  - name: disk_full
    metric: disk_usage
    threshold: 90
    comparison: ">"
    duration_seconds: 300
    level: critical
    type: resource
`), 0o600))

	t.Setenv("RULES_FILE", path)
	t.Setenv("COLLECTOR_ENABLED", "true")
	cfg, err := config.Load()
	require.NoError(t, err)

	a, err := newApp(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	assert.NotNil(t, a.watcher)
	assert.NotNil(t, a.collector)
	rule, err := a.engine.GetRule("disk_full")
	require.NoError(t, err)
	assert.Equal(t, 90.0, rule.Threshold)
}

func TestNewApp_BadRulesFileFailsStartup(t *testing.T) {
	quietEnv(t)
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - name: x\n    metric: m\n    comparison: '~'\n"), 0o600))
	t.Setenv("RULES_FILE", path)

	cfg, err := config.Load()
	require.NoError(t, err)

	_, err = newApp(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rules file")
}
