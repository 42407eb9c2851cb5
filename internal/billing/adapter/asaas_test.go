package adapter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smallbiznis/noty/internal/billing/domain"
	"github.com/smallbiznis/noty/internal/config"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := New(config.BillingConfig{BaseURL: srv.URL, APIKey: "key", Timeout: 5 * time.Second}, zap.NewNop())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestNewRequiresCredentials(t *testing.T) {
	if _, err := New(config.BillingConfig{BaseURL: "http://x"}, zap.NewNop()); !errors.Is(err, domain.ErrNotConfigured) {
		t.Fatalf("expected not configured, got %v", err)
	}
}

func TestListPaymentsSendsTokenAndPaging(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(headerAccessToken) != "key" {
			t.Errorf("missing access token header")
		}
		if r.URL.Path != "/payments" || r.URL.Query().Get("offset") != "100" || r.URL.Query().Get("status") != "PENDING" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		_, _ = w.Write([]byte(`{"hasMore":true,"totalCount":3,"data":[{"id":"pay_1","customer":"cus_1","value":150.5,"status":"PENDING","dueDate":"2026-10-20"}]}`))
	})

	page, err := client.ListPayments(context.Background(), "PENDING", 100, 50)
	if err != nil {
		t.Fatalf("list payments: %v", err)
	}
	if !page.HasMore || len(page.Items) != 1 {
		t.Fatalf("unexpected page: %+v", page)
	}
	if page.Items[0].Value == nil || page.Items[0].Value.String() != "150.5" {
		t.Fatalf("unexpected value: %v", page.Items[0].Value)
	}
}

func TestGetCustomerNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	if _, err := client.GetCustomer(context.Background(), "cus_x"); !errors.Is(err, domain.ErrClientNotFound) {
		t.Fatalf("expected client not found, got %v", err)
	}
}

func TestErrorClassification(t *testing.T) {
	status := http.StatusBadGateway
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"errors":[{"code":"invalid_action","description":"nope"}]}`))
	})

	if _, err := client.ListCustomers(context.Background(), 0, 10); !errors.Is(err, domain.ErrProviderTransient) {
		t.Fatalf("expected transient error for 502, got %v", err)
	}
	status = http.StatusBadRequest
	if _, err := client.ListCustomers(context.Background(), 0, 10); !errors.Is(err, domain.ErrProviderRejected) {
		t.Fatalf("expected rejected error for 400, got %v", err)
	}
}
