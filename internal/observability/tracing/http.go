package tracing

import (
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// NewHTTPClient returns a client for an outbound integration. Every request
// gets a client span tagged with the peer name and the client timeout bounds
// the whole exchange.
func NewHTTPClient(peer string, timeout time.Duration) *http.Client {
	return WrapHTTPClient(&http.Client{Timeout: timeout}, peer)
}

// WrapHTTPClient instruments an http.Client with tracing propagation.
func WrapHTTPClient(client *http.Client, peer string) *http.Client {
	if client == nil {
		client = http.DefaultClient
	}
	clone := *client
	base := clone.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	clone.Transport = &transport{
		base:   base,
		peer:   strings.TrimSpace(peer),
		tracer: otel.Tracer(tracerName + "/http"),
	}
	return &clone
}

type transport struct {
	base   http.RoundTripper
	peer   string
	tracer trace.Tracer
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return t.base.RoundTrip(req)
	}
	name := "HTTP " + strings.ToUpper(req.Method)
	if t.peer != "" {
		name = t.peer + " " + name
	}
	ctx, span := t.tracer.Start(req.Context(), name, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	req = req.Clone(ctx)
	InjectContext(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		span.RecordError(SafeError(err))
		span.SetStatus(codes.Error, "transport error")
		span.SetAttributes(SafeAttributes(
			attribute.String("peer.service", t.peer),
			attribute.Int64("http.client_duration_ms", elapsed),
		)...)
		return resp, err
	}

	span.SetAttributes(SafeAttributes(
		attribute.String("peer.service", t.peer),
		attribute.String("http.method", req.Method),
		attribute.String("http.route", req.URL.Path),
		attribute.Int("http.status_code", resp.StatusCode),
		attribute.Int64("http.client_duration_ms", elapsed),
	)...)
	if resp.StatusCode >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, "server error")
	}
	return resp, nil
}
