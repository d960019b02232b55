package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadPath_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
env: dev
auth:
  secret: s3cret
ordering:
  order_limit: 0
  join_retry_limit: -1
`)

	cfg, err := LoadPath(path)
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, ":8080", cfg.HTTP.Address)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 1, cfg.Ordering.OrderLimit)
	assert.Equal(t, 3, cfg.Ordering.JoinRetryLimit)
	assert.Equal(t, 6*time.Hour, cfg.Ordering.ArchiveDelay())
	assert.Equal(t, 30*time.Minute, cfg.Archiver.OrderInterval)
	assert.Equal(t, 2*time.Minute, cfg.Presence.GracePeriod)
}

func TestLoadPath_MissingFile(t *testing.T) {
	_, err := LoadPath(filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestDefaultOrderInterval(t *testing.T) {
	tests := []struct {
		delay time.Duration
		want  time.Duration
	}{
		{0, time.Minute},
		{6 * time.Minute, time.Minute},
		{6 * time.Hour, 30 * time.Minute},
		{48 * time.Hour, time.Hour},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DefaultOrderInterval(tt.delay), "delay=%s", tt.delay)
	}
}

func TestOrdering_DayStart(t *testing.T) {
	utc := Ordering{Timezone: "UTC"}
	at := time.Date(2026, 3, 2, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), utc.DayStart(at))

	// 23:30 UTC is already the next day in Tokyo (UTC+9).
	tokyo := Ordering{Timezone: "Asia/Tokyo"}
	assert.Equal(t, time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC), tokyo.DayStart(at))

	unknown := Ordering{Timezone: "Nowhere/Special"}
	assert.Equal(t, time.UTC, unknown.Location())
}

func TestLive_ReloadSwapsOrdering(t *testing.T) {
	path := writeConfig(t, "ordering:\n  order_limit: 2\n")
	cfg, err := LoadPath(path)
	require.NoError(t, err)

	live := NewLive(path, cfg.Ordering)
	assert.Equal(t, 2, live.Get().OrderLimit)

	require.NoError(t, os.WriteFile(path, []byte("ordering:\n  order_limit: 5\n  order_time_limit_minutes: 20\n"), 0o600))
	o, err := live.Reload()
	require.NoError(t, err)
	assert.Equal(t, 5, o.OrderLimit)
	assert.Equal(t, 20*time.Minute, live.Get().TimeLimit())

	require.NoError(t, os.Remove(path))
	o, err = live.Reload()
	require.Error(t, err)
	assert.Equal(t, 5, o.OrderLimit)
}

func TestStatic_Normalizes(t *testing.T) {
	o := Static{}.Get()
	assert.Equal(t, 1, o.OrderLimit)
	assert.Equal(t, 3, o.JoinRetryLimit)
	assert.Equal(t, "UTC", o.Timezone)
}
