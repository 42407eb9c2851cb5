package server

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	obsctx "github.com/smallbiznis/noty/internal/observability/context"
)

const (
	headerAPIKey       = "X-Api-Key"
	headerWebhookToken = "asaas-access-token"
)

// AdminKeyRequired protects the operator API with the static admin key,
// sent as a bearer token or in X-Api-Key. Without a configured key the API
// is open outside production and closed in production.
func (s *Server) AdminKeyRequired() gin.HandlerFunc {
	expected := strings.TrimSpace(s.cfg.AdminAPIKey)
	return func(c *gin.Context) {
		if expected == "" {
			if s.cfg.IsProduction() {
				AbortWithError(c, ErrServiceUnavailable)
				return
			}
			c.Next()
			return
		}

		provided := strings.TrimSpace(c.GetHeader(headerAPIKey))
		if provided == "" {
			parts := strings.Fields(c.GetHeader("Authorization"))
			if len(parts) == 2 && parts[0] == "Bearer" {
				provided = parts[1]
			}
		}
		if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Request = c.Request.WithContext(obsctx.WithActor(c.Request.Context(), "admin_key", ""))
		c.Next()
	}
}

// WebhookTokenRequired checks the shared token the billing provider sends
// with every delivery, when one is configured.
func (s *Server) WebhookTokenRequired() gin.HandlerFunc {
	expected := strings.TrimSpace(s.cfg.Billing.WebhookToken)
	return func(c *gin.Context) {
		if expected == "" {
			c.Next()
			return
		}
		provided := strings.TrimSpace(c.GetHeader(headerWebhookToken))
		if subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

// RateLimited rejects callers that exceed the limiter, keyed by client IP.
func (s *Server) RateLimited(limiter *rateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}
