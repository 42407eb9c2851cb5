package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestSurface(t *testing.T) {
	cases := map[string]string{
		"/webhooks/billing":          "webhook",
		"/api/automations/:type/run": "api",
		"/healthz":                   "ops",
		"unmatched":                  "ops",
	}
	for route, want := range cases {
		if got := Surface(route); got != want {
			t.Fatalf("%s: expected %s, got %s", route, want, got)
		}
	}
}

func TestGinMiddlewarePassesThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m, err := NewHTTPMetrics(Config{ServiceName: "noty"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}

	for _, hm := range []*HTTPMetrics{m, nil} {
		router := gin.New()
		router.Use(GinMiddleware(hm))
		router.GET("/api/settings", func(c *gin.Context) { c.Status(http.StatusTeapot) })

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/settings", nil))
		if rec.Code != http.StatusTeapot {
			t.Fatalf("expected handler status, got %d", rec.Code)
		}
	}
}
