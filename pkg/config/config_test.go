package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCSV(t *testing.T) {
	assert.Nil(t, CSV(""))
	assert.Equal(t, []string{"a:9092", "b:9092"}, CSV(" a:9092, ,b:9092 "))
}

func TestEnvDefaults(t *testing.T) {
	t.Setenv("CFG_TEST_INT", "nope")
	t.Setenv("CFG_TEST_FLOAT", "2.5")

	assert.Equal(t, "def", EnvDefault("CFG_TEST_MISSING", "def"))
	assert.Equal(t, 7, EnvIntDefault("CFG_TEST_INT", 7))
	assert.Equal(t, 2.5, EnvFloatDefault("CFG_TEST_FLOAT", 1))
}

func TestLoad(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("JWT_EXPIRATION_MINUTES", "30")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("BCRYPT_COST", "")

	cfg := Load()

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, []byte("s3cret"), cfg.JWTSecret)
	assert.Equal(t, 30*time.Minute, cfg.AccessTTL)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, 10, cfg.BcryptCost)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "user_events", cfg.KafkaTopic)
}

func TestLoad_UnsetEnvIsProduction(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("BCRYPT_COST", "")

	cfg := Load()

	assert.Equal(t, EnvProduction, cfg.Env)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 10, cfg.BcryptCost)
}

func TestLoad_Development(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("BCRYPT_COST", "")

	cfg := Load()

	assert.False(t, cfg.IsProduction())
	assert.Equal(t, 4, cfg.BcryptCost)
}
