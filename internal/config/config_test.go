package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWTSECRET", "secret")
	t.Setenv("DB_DRIVER", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "forklore", cfg.DBName)
	assert.Equal(t, time.Minute, cfg.ChapterSweepInterval)
	assert.Equal(t, time.Hour, cfg.SubscriptionSweepInterval)
	assert.Equal(t, 30*time.Second, cfg.SweepLockTTL)
	assert.Equal(t, "forklore.events", cfg.KafkaTopic)
}

func TestLoadParsesBrokerList(t *testing.T) {
	t.Setenv("JWTSECRET", "secret")
	t.Setenv("DB_DRIVER", "memory")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
}

func TestLoadParseError(t *testing.T) {
	t.Setenv("PORT", "not-an-int")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		DBDriver:                  DriverMongo,
		ChapterSweepInterval:      time.Minute,
		SubscriptionSweepInterval: time.Hour,
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWTSECRET")
	assert.Contains(t, err.Error(), "DB_CONNECTION_STRING")

	cfg.JWTSecret = "secret"
	cfg.ConnectionString = "mongodb://localhost:27017"
	assert.NoError(t, cfg.Validate())

	cfg.DBDriver = "postgres"
	assert.ErrorContains(t, cfg.Validate(), "unknown DB_DRIVER")
}

func TestLoadOpsSkipsJWTSecret(t *testing.T) {
	t.Setenv("JWTSECRET", "")
	t.Setenv("DB_DRIVER", "memory")

	_, err := Load()
	assert.ErrorContains(t, err, "JWTSECRET")

	cfg, err := LoadOps()
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.DBDriver)
}
