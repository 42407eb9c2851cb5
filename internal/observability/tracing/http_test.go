package tracing

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPClientPassesThrough(t *testing.T) {
	SetPropagator()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client := NewHTTPClient("billing", time.Second)
	resp, err := client.Get(srv.URL + "/customers")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
}
