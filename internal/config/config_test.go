package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_AppliesDefaultsAndExpandsEnv(t *testing.T) {
	t.Setenv("LOBBY_TEST_DB_PASSWORD", "s3cret")
	path := writeConfig(t, `
server:
  port: 9090
store:
  driver: postgres
postgres:
  password: ${LOBBY_TEST_DB_PASSWORD}
  database: lobby
registry:
  store_timeout: 750ms
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "s3cret", cfg.Postgres.Password)
	require.Equal(t, 750*time.Millisecond, cfg.Registry.StoreTimeout)
	require.Equal(t, 5432, cfg.Postgres.Port)
	require.Equal(t, 64, cfg.Realtime.SendBuffer)
	require.Equal(t, "room-scores", cfg.Kafka.Topic)
	require.Equal(t, "json", cfg.Log.Format)
	require.Contains(t, cfg.Postgres.ConnectionString(), "sslmode=disable")
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	path := writeConfig(t, "store:\n  driver: mysql\n")

	_, err := Load(path)
	require.ErrorContains(t, err, "unknown store driver")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.Equal(t, DriverPostgres, cfg.Store.Driver)
	require.True(t, cfg.Janitor.Enabled)
	require.Equal(t, 3*time.Second, cfg.Registry.StoreTimeout)
	require.Equal(t, "lobby:game-started", cfg.Realtime.RelayChannel)
}
