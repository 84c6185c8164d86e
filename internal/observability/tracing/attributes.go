package tracing

import (
	"context"
	"errors"

	"github.com/smallbiznis/storepulse/internal/healtherr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

var allowedSpanKeys = map[attribute.Key]struct{}{
	"http.method":             {},
	"http.route":              {},
	"http.status_code":        {},
	"http.server_duration_ms": {},
	"request_id":              {},
	"store_id":                {},
	"domain":                  {},
	"date":                    {},
	"role":                    {},
	"outcome":                 {},
	"error_type":              {},
	"run_id":                  {},
}

// ExtractContext pulls trace context and baggage from an inbound carrier.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// SafeAttributes keeps only allow-listed span attributes.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedSpanKeys[attr.Key]; ok {
			out = append(out, attr)
		}
	}
	return out
}

// SafeError reduces err to its classification so span events never carry
// raw record values.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	return errors.New(healtherr.Classify(err))
}
