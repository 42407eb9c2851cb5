package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// HTTPMetrics are the OTel instruments for the HTTP surface. Series are keyed
// by the gin route template and the surface it belongs to, never raw URLs.
type HTTPMetrics struct {
	requestDuration metric.Float64Histogram
	inFlight        metric.Int64UpDownCounter
	rejected        metric.Int64Counter
}

func NewHTTPMetrics(cfg Config, provider metric.MeterProvider) (*HTTPMetrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "noty"
	}
	meter := provider.Meter(name + "/http")

	requestDuration, err := meter.Float64Histogram("http.server.duration_ms",
		metric.WithUnit("ms"),
		metric.WithDescription("Request latency by route."))
	if err != nil {
		return nil, err
	}
	inFlight, err := meter.Int64UpDownCounter("http.server.in_flight")
	if err != nil {
		return nil, err
	}
	rejected, err := meter.Int64Counter("http.server.rejected",
		metric.WithDescription("Requests refused before reaching a handler (auth or rate limit)."))
	if err != nil {
		return nil, err
	}

	return &HTTPMetrics{
		requestDuration: requestDuration,
		inFlight:        inFlight,
		rejected:        rejected,
	}, nil
}

// GinMiddleware records latency and in-flight requests. 401 and 429
// responses are also counted as rejections per surface.
func GinMiddleware(m *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		base := FilterAttributes(
			attribute.String("route", route),
			attribute.String("surface", Surface(route)),
		)
		ctx := c.Request.Context()
		m.inFlight.Add(ctx, 1, metric.WithAttributes(base...))
		start := time.Now()
		c.Next()
		m.inFlight.Add(ctx, -1, metric.WithAttributes(base...))

		status := c.Writer.Status()
		attrs := append(base[:len(base):len(base)], attribute.String("status_code", strconv.Itoa(status)))
		m.requestDuration.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(attrs...))
		if status == 401 || status == 429 {
			m.rejected.Add(ctx, 1, metric.WithAttributes(attrs...))
		}
	}
}

// Surface groups a route into webhook, api or ops.
func Surface(route string) string {
	switch {
	case strings.HasPrefix(route, "/webhooks/"):
		return "webhook"
	case strings.HasPrefix(route, "/api/"):
		return "api"
	default:
		return "ops"
	}
}
