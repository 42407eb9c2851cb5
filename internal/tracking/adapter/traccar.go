// Package adapter implements the tracking platform contract against the
// Traccar REST API.
package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/smallbiznis/noty/internal/config"
	"github.com/smallbiznis/noty/internal/observability/tracing"
	"github.com/smallbiznis/noty/internal/tracking/domain"
	"go.uber.org/zap"
)

type Traccar struct {
	baseURL  string
	username string
	password string
	http     *http.Client
	log      *zap.Logger
}

// New builds the Traccar client. Missing credentials yield ErrNotConfigured.
func New(cfg config.TraccarConfig, log *zap.Logger) (*Traccar, error) {
	if !cfg.Configured() {
		return nil, domain.ErrNotConfigured
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if !strings.HasSuffix(base, "/api") {
		base += "/api"
	}
	return &Traccar{
		baseURL:  base,
		username: strings.TrimSpace(cfg.Username),
		password: cfg.Password,
		http:     tracing.NewHTTPClient("traccar", cfg.Timeout),
		log:      log.Named("tracking.traccar"),
	}, nil
}

func (t *Traccar) TestConnection(ctx context.Context) error {
	_, err := t.do(ctx, http.MethodGet, "/server", nil)
	return err
}

func (t *Traccar) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, nil
	}
	users, err := t.listUsers(ctx)
	if err != nil {
		return nil, err
	}
	for _, user := range users {
		if strings.ToLower(strings.TrimSpace(user.Email)) == email {
			u := user
			return &u, nil
		}
	}
	return nil, nil
}

func (t *Traccar) FindUserByPhone(ctx context.Context, phone string) (*domain.User, error) {
	if len(digits(phone)) < 8 {
		return nil, nil
	}
	users, err := t.listUsers(ctx)
	if err != nil {
		return nil, err
	}
	for _, user := range users {
		if SamePhone(user.Phone, phone) {
			u := user
			return &u, nil
		}
	}
	return nil, nil
}

func (t *Traccar) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	raw, err := t.rawUser(ctx, id)
	if err != nil || raw == nil {
		return nil, err
	}
	return toUser(raw), nil
}

// SetUserDisabled rewrites the full user object, which is what Traccar's
// PUT expects, with only the disabled flag changed.
func (t *Traccar) SetUserDisabled(ctx context.Context, id int64, disabled bool) error {
	raw, err := t.rawUser(ctx, id)
	if err != nil {
		return err
	}
	if raw == nil {
		return domain.ErrUserNotFound
	}
	raw["disabled"] = disabled
	body, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	_, err = t.do(ctx, http.MethodPut, "/users/"+strconv.FormatInt(id, 10), body)
	if err != nil {
		return err
	}
	t.log.Info("traccar user updated", zap.Int64("user_id", id), zap.Bool("disabled", disabled))
	return nil
}

func (t *Traccar) listUsers(ctx context.Context) ([]domain.User, error) {
	body, err := t.do(ctx, http.MethodGet, "/users", nil)
	if err != nil {
		return nil, err
	}
	var users []domain.User
	if err := json.Unmarshal(body, &users); err != nil {
		return nil, fmt.Errorf("%w: decode users: %v", domain.ErrPlatform, err)
	}
	return users, nil
}

// rawUser loads a user as a generic object. Servers without GET /users/{id}
// fall back to the full listing.
func (t *Traccar) rawUser(ctx context.Context, id int64) (map[string]any, error) {
	body, err := t.do(ctx, http.MethodGet, "/users/"+strconv.FormatInt(id, 10), nil)
	if err == nil {
		return decodeObject(body)
	}
	if !isStatus(err, http.StatusNotFound, http.StatusMethodNotAllowed) {
		return nil, err
	}

	body, err = t.do(ctx, http.MethodGet, "/users", nil)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var users []map[string]any
	if err := dec.Decode(&users); err != nil {
		return nil, fmt.Errorf("%w: decode users: %v", domain.ErrPlatform, err)
	}
	for _, user := range users {
		if n, ok := user["id"].(json.Number); ok && n.String() == strconv.FormatInt(id, 10) {
			return user, nil
		}
	}
	return nil, nil
}

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("traccar responded %d: %s", e.status, e.body)
}

func (e *statusError) Unwrap() error { return domain.ErrPlatform }

func isStatus(err error, statuses ...int) bool {
	se, ok := err.(*statusError)
	if !ok {
		return false
	}
	for _, status := range statuses {
		if se.status == status {
			return true
		}
	}
	return false
}

func (t *Traccar) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(t.username, t.password)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPlatform, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrPlatform, err)
	}
	if resp.StatusCode >= 300 {
		text := strings.TrimSpace(string(data))
		if len(text) > 200 {
			text = text[:200]
		}
		return nil, &statusError{status: resp.StatusCode, body: text}
	}
	return data, nil
}

func decodeObject(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode user: %v", domain.ErrPlatform, err)
	}
	return out, nil
}

func toUser(raw map[string]any) *domain.User {
	user := &domain.User{}
	if n, ok := raw["id"].(json.Number); ok {
		user.ID, _ = n.Int64()
	}
	user.Name, _ = raw["name"].(string)
	user.Email, _ = raw["email"].(string)
	user.Phone, _ = raw["phone"].(string)
	user.Disabled, _ = raw["disabled"].(bool)
	return user
}

func digits(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SamePhone matches two numbers on their trailing digits, so that country
// and area prefixes written differently still compare equal.
func SamePhone(a, b string) bool {
	da, db := digits(a), digits(b)
	if len(da) < 8 || len(db) < 8 {
		return false
	}
	n := len(da)
	if len(db) < n {
		n = len(db)
	}
	if n > 10 {
		n = 10
	}
	return da[len(da)-n:] == db[len(db)-n:]
}
