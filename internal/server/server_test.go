package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	automationdomain "github.com/smallbiznis/noty/internal/automation/domain"
	billingdomain "github.com/smallbiznis/noty/internal/billing/domain"
	"github.com/smallbiznis/noty/internal/config"
	"github.com/smallbiznis/noty/internal/settings"
	"github.com/smallbiznis/noty/internal/testutil"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, cfg config.Config) *Server {
	t.Helper()
	db := testutil.OpenDB(t, &settings.Setting{})
	s := &Server{
		cfg:      cfg,
		log:      zap.NewNop(),
		db:       db,
		settings: settings.NewStore(settings.Params{DB: db, Log: zap.NewNop(), Cfg: cfg}),
		router:   gin.New(),
	}
	s.router.GET("/healthz", s.Health)
	hooks := s.router.Group("/webhooks")
	hooks.POST("/billing", s.WebhookTokenRequired(), func(c *gin.Context) { c.Status(http.StatusOK) })
	hooks.POST("/messaging/status", s.MessagingStatusCallback)
	api := s.router.Group("/api", s.AdminKeyRequired())
	api.GET("/settings", s.GetSettings)
	api.PUT("/settings", s.UpdateSettings)
	return s
}

func do(s *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestAdminKeyRequired(t *testing.T) {
	s := newTestServer(t, config.Config{AdminAPIKey: "secret"})

	if rec := do(s, http.MethodGet, "/api/settings", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", rec.Code)
	}
	if rec := do(s, http.MethodGet, "/api/settings", "", map[string]string{"X-Api-Key": "wrong"}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong key, got %d", rec.Code)
	}
	if rec := do(s, http.MethodGet, "/api/settings", "", map[string]string{"X-Api-Key": "secret"}); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with header key, got %d", rec.Code)
	}
	if rec := do(s, http.MethodGet, "/api/settings", "", map[string]string{"Authorization": "Bearer secret"}); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with bearer key, got %d", rec.Code)
	}
}

func TestAdminAPIClosedInProductionWithoutKey(t *testing.T) {
	s := newTestServer(t, config.Config{Environment: "production"})
	if rec := do(s, http.MethodGet, "/api/settings", "", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}

	open := newTestServer(t, config.Config{Environment: "development"})
	if rec := do(open, http.MethodGet, "/api/settings", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected open api in development, got %d", rec.Code)
	}
}

func TestWebhookTokenRequired(t *testing.T) {
	s := newTestServer(t, config.Config{Billing: config.BillingConfig{WebhookToken: "tok"}})

	if rec := do(s, http.MethodPost, "/webhooks/billing", "{}", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if rec := do(s, http.MethodPost, "/webhooks/billing", "{}", map[string]string{headerWebhookToken: "tok"}); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rec.Code)
	}
}

func TestUpdateSettings(t *testing.T) {
	s := newTestServer(t, config.Config{})

	rec := do(s, http.MethodPut, "/api/settings", `{"block_after_count":"5","auto_block_enabled":"true"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	data := decode(t, rec)["data"].(map[string]any)
	if data[settings.KeyBlockAfterCount] != "5" {
		t.Fatalf("expected block_after_count 5, got %v", data[settings.KeyBlockAfterCount])
	}

	rec = do(s, http.MethodPut, "/api/settings", `{"block_after_count":"zero"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid value, got %d", rec.Code)
	}
	rec = do(s, http.MethodPut, "/api/settings", `{"no_such_key":"1"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown key, got %d", rec.Code)
	}

	// A rejected batch leaves earlier values alone.
	rec = do(s, http.MethodPut, "/api/settings", `{"block_after_count":"7","no_such_key":"1"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	count, err := s.settings.Int(context.Background(), settings.KeyBlockAfterCount)
	if err != nil {
		t.Fatalf("read setting: %v", err)
	}
	if count != 5 {
		t.Fatalf("expected block_after_count to stay 5, got %d", count)
	}
}

func TestMessagingStatusIgnoresIntermediateStates(t *testing.T) {
	s := newTestServer(t, config.Config{})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/messaging/status", strings.NewReader("MessageSid=SM1&MessageStatus=sent"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestMessagingStatusRejectsBadSignature(t *testing.T) {
	s := newTestServer(t, config.Config{Messaging: config.MessagingConfig{TwilioAuthToken: "auth"}})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/messaging/status", strings.NewReader("MessageSid=SM1&MessageStatus=delivered"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Twilio-Signature", "forged")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, config.Config{})
	if rec := do(s, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAbortWithErrorStatuses(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{automationdomain.ErrAlreadyRunning, http.StatusConflict},
		{fmt.Errorf("lookup: %w", billingdomain.ErrClientNotFound), http.StatusNotFound},
		{newValidationError("limit", "invalid", "bad limit"), http.StatusBadRequest},
		{errors.New("pq: connection refused"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rec)
		AbortWithError(c, tc.err)
		if rec.Code != tc.status {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.status, rec.Code)
		}
		body := decode(t, rec)
		if body["success"] != false {
			t.Fatalf("%v: expected success false", tc.err)
		}
		if tc.status == http.StatusInternalServerError && body["error"] != "internal_error" {
			t.Fatalf("expected internal error to be hidden, got %v", body["error"])
		}
	}
}

func TestRateLimiterWindow(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	limiter := newRateLimiter(2, time.Minute, func() time.Time { return now })

	if !limiter.Allow("a") || !limiter.Allow("a") {
		t.Fatalf("expected first two calls to pass")
	}
	if limiter.Allow("a") {
		t.Fatalf("expected third call to be limited")
	}
	if !limiter.Allow("b") {
		t.Fatalf("expected other keys to be independent")
	}
	now = now.Add(time.Minute)
	if !limiter.Allow("a") {
		t.Fatalf("expected a new window to reset the count")
	}
}
