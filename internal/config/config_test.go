package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxi-dispatch/internal/fare"
)

func setRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/taxi")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("MAPBOX_ACCESS_TOKEN", "pk.test")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, fare.StrategyDistanceAndTime, cfg.FareStrategy)
	assert.Equal(t, "2", cfg.FareRates.Base.String())
	assert.Equal(t, "0.2", cfg.FareRates.PerMin.String())
	assert.Equal(t, time.Minute, cfg.HeartbeatWindow)
	assert.Equal(t, 3*time.Second, cfg.DBLockTimeout)
	assert.Equal(t, "dispatch.events", cfg.NATSSubject)
	assert.Equal(t, 7*24*time.Hour, cfg.OutboxRetention)
	assert.Empty(t, cfg.RedisURL)
}

func TestLoadFareStrategy(t *testing.T) {
	setRequired(t)
	t.Setenv("FARE_STRATEGY", "DISTANCE_ONLY")
	t.Setenv("FARE_PER_KM", "150")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, fare.StrategyDistanceOnly, cfg.FareStrategy)
	assert.Equal(t, "150", cfg.FareRates.PerKm.String())
}

func TestLoadRejectsBadValues(t *testing.T) {
	setRequired(t)
	t.Setenv("FARE_STRATEGY", "surge")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("FARE_STRATEGY", "distance_only")
	t.Setenv("FARE_BASE", "two")
	_, err = Load()
	assert.Error(t, err)

	t.Setenv("FARE_BASE", "-1")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadRequiresSecretsForServerOnly(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/taxi")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("MAPBOX_ACCESS_TOKEN", "")

	_, err := Load()
	assert.Error(t, err)

	_, err = LoadWorker()
	assert.NoError(t, err)
}
