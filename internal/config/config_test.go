package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, "eligibility-engine", cfg.App.Name)
	require.Equal(t, ":8080", cfg.Server.Addr)
	require.Equal(t, "sqlite", cfg.Storage.Driver)
	require.Equal(t, "0 0 * * * *", cfg.Sweep.Expression)
	require.Equal(t, time.Minute, cfg.Metrics.Interval)
	require.Len(t, cfg.NATS.URLs, 1)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	content := `
server:
  addr: ":9090"
storage:
  driver: memory
categories:
  auto:
    lookback_months: 48
    max_claims_allowed: 2
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.Server.Addr)
	require.Equal(t, "memory", cfg.Storage.Driver)
	require.Equal(t, 48, cfg.Categories["auto"].LookbackMonths)
	require.Equal(t, 2, cfg.Categories["auto"].MaxClaimsAllowed)

	// Defaults still apply for keys the file omits
	require.Equal(t, 10, cfg.NATS.MaxReconnects)
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"),
		[]byte("storage:\n  driver: postgres\n"), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
}
