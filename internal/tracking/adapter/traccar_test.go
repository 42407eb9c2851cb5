package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/noty/internal/config"
	"github.com/smallbiznis/noty/internal/tracking/domain"
	"go.uber.org/zap"
)

type traccarStub struct {
	mu       sync.Mutex
	users    []map[string]any
	byIDPath bool
	puts     []map[string]any
}

func (s *traccarStub) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/server":
			_, _ = w.Write([]byte(`{"id":1}`))
		case r.Method == http.MethodGet && r.URL.Path == "/api/users":
			_ = json.NewEncoder(w).Encode(s.users)
		case r.Method == http.MethodGet && r.URL.Path == "/api/users/42":
			if !s.byIDPath {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_ = json.NewEncoder(w).Encode(s.users[0])
		case r.Method == http.MethodPut && r.URL.Path == "/api/users/42":
			body, _ := io.ReadAll(r.Body)
			var payload map[string]any
			if err := json.Unmarshal(body, &payload); err != nil {
				t.Errorf("decode put: %v", err)
			}
			s.puts = append(s.puts, payload)
			_, _ = w.Write(body)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func newStubbedTraccar(t *testing.T, stub *traccarStub) *Traccar {
	t.Helper()
	srv := httptest.NewServer(stub.handler(t))
	t.Cleanup(srv.Close)
	client, err := New(config.TraccarConfig{BaseURL: srv.URL, Username: "admin", Password: "secret", Timeout: 5 * time.Second}, zap.NewNop())
	if err != nil {
		t.Fatalf("new traccar: %v", err)
	}
	return client
}

func TestFindUsersByEmailAndPhone(t *testing.T) {
	stub := &traccarStub{users: []map[string]any{
		{"id": 42, "name": "Ana", "email": "Ana@Example.com", "phone": "+55 (11) 99999-0000", "disabled": false},
	}}
	client := newStubbedTraccar(t, stub)
	ctx := context.Background()

	user, err := client.FindUserByEmail(ctx, "ana@example.com")
	if err != nil || user == nil || user.ID != 42 {
		t.Fatalf("expected user 42 by email, got %+v %v", user, err)
	}
	user, err = client.FindUserByPhone(ctx, "11999990000")
	if err != nil || user == nil || user.ID != 42 {
		t.Fatalf("expected user 42 by phone, got %+v %v", user, err)
	}
	user, err = client.FindUserByEmail(ctx, "other@example.com")
	if err != nil || user != nil {
		t.Fatalf("expected no match, got %+v %v", user, err)
	}
	if err := client.TestConnection(ctx); err != nil {
		t.Fatalf("test connection: %v", err)
	}
}

func TestSetUserDisabledKeepsOtherFields(t *testing.T) {
	for _, byID := range []bool{true, false} {
		stub := &traccarStub{byIDPath: byID, users: []map[string]any{
			{"id": 42, "name": "Ana", "email": "ana@example.com", "deviceLimit": -1, "disabled": false},
		}}
		client := newStubbedTraccar(t, stub)

		if err := client.SetUserDisabled(context.Background(), 42, true); err != nil {
			t.Fatalf("byID=%v: set disabled: %v", byID, err)
		}
		if len(stub.puts) != 1 {
			t.Fatalf("byID=%v: expected one PUT, got %d", byID, len(stub.puts))
		}
		put := stub.puts[0]
		if put["disabled"] != true || put["name"] != "Ana" || put["deviceLimit"] != float64(-1) {
			t.Fatalf("byID=%v: unexpected PUT body %v", byID, put)
		}
	}
}

func TestSetUserDisabledUnknownUser(t *testing.T) {
	client := newStubbedTraccar(t, &traccarStub{users: []map[string]any{}})
	err := client.SetUserDisabled(context.Background(), 42, true)
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected user not found, got %v", err)
	}
}

func TestSamePhone(t *testing.T) {
	if !SamePhone("+55 11 99999-0000", "(11) 99999-0000") {
		t.Fatalf("expected match across formats")
	}
	if SamePhone("11999990000", "11999990001") {
		t.Fatalf("expected mismatch")
	}
	if SamePhone("", "11999990000") {
		t.Fatalf("expected blank not to match")
	}
}
