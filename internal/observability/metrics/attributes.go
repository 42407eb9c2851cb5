package metrics

import (
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

var highCardinalityKeys = []string{"client_id", "payment_id", "phone", "request_id"}

// FilterAttributes drops per-entity identifiers so series stay bounded.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		key := strings.ToLower(string(attr.Key))
		drop := false
		for _, needle := range highCardinalityKeys {
			if strings.Contains(key, needle) {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, attr)
		}
	}
	return out
}
