package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, "mongo", cfg.StoreBackend)
	assert.Equal(t, 15*time.Minute, cfg.CheckInGrace)
	assert.Equal(t, 8, cfg.BulkConcurrency)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("CHECKIN_GRACE", "10m")
	t.Setenv("BULK_CONCURRENCY", "3")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("ACCESS_TTL", "not-a-duration")

	cfg := Load()
	assert.Equal(t, "postgres", cfg.StoreBackend)
	assert.Equal(t, 10*time.Minute, cfg.CheckInGrace)
	assert.Equal(t, 3, cfg.BulkConcurrency)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
}

func TestValidate(t *testing.T) {
	cfg := Load()
	cfg.StoreBackend = "sqlite"
	cfg.Env = "production"
	cfg.Timezone = "Mars/Olympus"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORE_BACKEND")
	assert.Contains(t, err.Error(), "JWT_SIGNING_KEY")
	assert.Contains(t, err.Error(), "CLUB_TIMEZONE")
}

func TestLocation(t *testing.T) {
	cfg := App{Timezone: "Europe/Paris"}
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Paris", loc.String())

	cfg.Timezone = ""
	loc, err = cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)
}
