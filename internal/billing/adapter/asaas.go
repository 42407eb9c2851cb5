// Package adapter implements the billing provider contract against an
// Asaas-style REST API.
package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/smallbiznis/noty/internal/billing/domain"
	"github.com/smallbiznis/noty/internal/config"
	"github.com/smallbiznis/noty/internal/observability/tracing"
	"go.uber.org/zap"
)

const headerAccessToken = "access_token"

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *zap.Logger
}

// New builds the provider client. Missing credentials yield ErrNotConfigured.
func New(cfg config.BillingConfig, log *zap.Logger) (*Client, error) {
	if !cfg.Configured() {
		return nil, domain.ErrNotConfigured
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		http:    tracing.NewHTTPClient("billing", cfg.Timeout),
		log:     log.Named("billing.adapter"),
	}, nil
}

func (c *Client) ListCustomers(ctx context.Context, offset, limit int) (domain.CustomerPage, error) {
	var page domain.CustomerPage
	err := c.get(ctx, "/customers", pageQuery(offset, limit), &page)
	return page, err
}

func (c *Client) ListPayments(ctx context.Context, status string, offset, limit int) (domain.PaymentPage, error) {
	query := pageQuery(offset, limit)
	if status = strings.TrimSpace(status); status != "" {
		query.Set("status", status)
	}
	var page domain.PaymentPage
	err := c.get(ctx, "/payments", query, &page)
	return page, err
}

func (c *Client) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.ErrClientNotFound
	}
	var customer domain.Customer
	if err := c.get(ctx, "/customers/"+url.PathEscape(id), nil, &customer); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, domain.ErrClientNotFound
		}
		return nil, err
	}
	return &customer, nil
}

func (c *Client) GetPayment(ctx context.Context, id string) (*domain.ProviderPayment, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.ErrPaymentNotFound
	}
	var payment domain.ProviderPayment
	if err := c.get(ctx, "/payments/"+url.PathEscape(id), nil, &payment); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

var errNotFound = errors.New("not_found")

type errorBody struct {
	Errors []struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"errors"`
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set(headerAccessToken, c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrProviderTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", domain.ErrProviderTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", domain.ErrProviderTransient, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: status %d: %s", domain.ErrProviderRejected, resp.StatusCode, describe(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		c.log.Warn("unexpected billing response", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%w: decode: %v", domain.ErrProviderRejected, err)
	}
	return nil
}

func describe(body []byte) string {
	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err == nil && len(parsed.Errors) > 0 {
		parts := make([]string, 0, len(parsed.Errors))
		for _, e := range parsed.Errors {
			parts = append(parts, strings.TrimSpace(e.Code+" "+e.Description))
		}
		return strings.Join(parts, "; ")
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}

func pageQuery(offset, limit int) url.Values {
	query := url.Values{}
	query.Set("offset", strconv.Itoa(offset))
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	return query
}
