package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadReadsEngineSettings(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("REDIS_ADDR", " localhost:6379 ")
	t.Setenv("RESCORE_INTERVAL", "5m")
	t.Setenv("RESCORE_CONCURRENCY", "8")
	t.Setenv("SEED_DEMO", "yes")
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "HTTP")
	t.Setenv("OTEL_SAMPLING_RATIO", "0.5")

	cfg := Load()

	assert.Equal(t, "localhost:6379", cfg.Lock.RedisAddr)
	assert.Equal(t, 5*time.Minute, cfg.Rescore.Interval)
	assert.Equal(t, 8, cfg.Rescore.Concurrency)
	assert.True(t, cfg.SeedDemo)
	assert.Equal(t, "http", cfg.Telemetry.ExporterProtocol)
	assert.Equal(t, 0.5, cfg.Telemetry.SamplingRatio)
}

func TestLoadFallsBackOnMalformedValues(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("RESCORE_INTERVAL", "-1s")
	t.Setenv("SCORE_LOCK_TTL", "soon")
	t.Setenv("SEED_DEMO_DAYS", "many")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "grpc")
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "http")

	cfg := Load()

	assert.Equal(t, 15*time.Minute, cfg.Rescore.Interval)
	assert.Equal(t, 30*time.Second, cfg.Lock.TTL)
	assert.Equal(t, 60, cfg.SeedDemoDays)
	assert.Equal(t, "grpc", cfg.Telemetry.ExporterProtocol)
}

func TestIsProduction(t *testing.T) {
	assert.True(t, Config{Environment: " Production "}.IsProduction())
	assert.False(t, Config{Environment: "staging"}.IsProduction())
}
