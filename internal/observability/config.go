package observability

import (
	"strings"

	"github.com/smallbiznis/storepulse/internal/config"
)

// Config is the resolved observability view of the process config.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	endpoint := cfg.Telemetry.ExporterEndpoint
	if endpoint == "" {
		endpoint = strings.TrimSpace(cfg.OTLPEndpoint)
	}
	return Config{
		ServiceName:          firstNonEmpty(cfg.AppName, "storepulse"),
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             firstNonEmpty(cfg.Telemetry.LogLevel, "info"),
		LogFormat:            firstNonEmpty(cfg.Telemetry.LogFormat, "json"),
		OtelEnabled:          cfg.Telemetry.TracingEnabled,
		OtelExporterEndpoint: endpoint,
		OtelExporterProtocol: firstNonEmpty(cfg.Telemetry.ExporterProtocol, "grpc"),
		OtelSamplingRatio:    cfg.Telemetry.SamplingRatio,
	}
}

// Debug is true for debug logging or any non-production local environment.
func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func firstNonEmpty(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}
