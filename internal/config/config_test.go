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
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeConfig(t, "server:\n  host: 127.0.0.1\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, uint64(10), cfg.Reward.Amount)
	assert.Equal(t, 900*time.Second, cfg.Submission.SubmissionTTL())
	assert.Equal(t, 300*time.Second, cfg.Submission.ChallengeTTL())
	assert.Equal(t, 15*time.Minute, cfg.Weather.RefreshInterval)
	assert.Equal(t, 2*time.Minute, cfg.Redis.ReserveTTL)
	assert.True(t, cfg.Database.InMemory())
}

func TestLoadReadsYAML(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeConfig(t, `
server:
  port: 9000
database:
  host: db
  user: eco
  password: file-secret
  dbname: ecoproof
ledger:
  base_url: http://ledger:4943
  timeout: 5s
reward:
  amount: 25
submission:
  ttl_seconds: 60
weather:
  refresh_interval: 1m
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.False(t, cfg.Database.InMemory())
	assert.Equal(t, "host=db port=5432 user=eco password=file-secret dbname=ecoproof sslmode=disable", cfg.Database.DSN())
	assert.Equal(t, "http://ledger:4943", cfg.Ledger.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Ledger.Timeout)
	assert.Equal(t, uint64(25), cfg.Reward.Amount)
	assert.Equal(t, time.Minute, cfg.Submission.SubmissionTTL())
	assert.Equal(t, time.Minute, cfg.Weather.RefreshInterval)
}

func TestLoadRaisesReserveTTLAboveLedgerTimeout(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeConfig(t, "redis:\n  addr: localhost:6379\n  reserve_ttl: 2m\nledger:\n  timeout: 5m\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6*time.Minute, cfg.Redis.ReserveTTL)
	assert.Greater(t, cfg.Redis.ReserveTTL, cfg.Ledger.Timeout)
}

func TestLoadEnvOverridesSecrets(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeConfig(t, "jwt:\n  secret: from-file\ndatabase:\n  password: from-file\n")

	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("DATABASE_PASSWORD", "db-env")
	t.Setenv("OPENWEATHER_API_TOKEN", "weather-env")
	t.Setenv("LEDGER_API_KEY", "")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.JWT.Secret)
	assert.Equal(t, "db-env", cfg.Database.Password)
	assert.Equal(t, "weather-env", cfg.Weather.APIKey)
	assert.Empty(t, cfg.Ledger.APIKey)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("JWT_SECRET_FROM_DOTENV=1\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("JWT_SECRET_FROM_DOTENV") })

	_, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)
	assert.Equal(t, "1", os.Getenv("JWT_SECRET_FROM_DOTENV"))
}

func TestLoadErrors(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	_, err = Load(writeConfig(t, "server: [unclosed\n"))
	assert.ErrorContains(t, err, "failed to parse config file")
}
