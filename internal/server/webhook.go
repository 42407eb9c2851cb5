package server

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	notificationdomain "github.com/smallbiznis/noty/internal/notification/domain"
	twilioclient "github.com/twilio/twilio-go/client"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

// BillingWebhook applies a billing provider delivery. Anything past a
// malformed body or a storage failure is acknowledged with 200.
func (s *Server) BillingWebhook(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	outcome, err := s.webhooks.HandleBillingEvent(c.Request.Context(), raw)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": outcome})
}

// MessagingStatusCallback records Twilio delivery receipts on the matching
// notification log.
func (s *Server) MessagingStatusCallback(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if token := strings.TrimSpace(s.cfg.Messaging.TwilioAuthToken); token != "" {
		params := make(map[string]string, len(c.Request.PostForm))
		for key := range c.Request.PostForm {
			params[key] = c.Request.PostForm.Get(key)
		}
		validator := twilioclient.NewRequestValidator(token)
		if !validator.Validate(requestURL(c), params, c.GetHeader("X-Twilio-Signature")) {
			AbortWithError(c, ErrUnauthorized)
			return
		}
	}

	messageID := c.Request.PostForm.Get("MessageSid")
	var status notificationdomain.LogStatus
	switch strings.ToLower(c.Request.PostForm.Get("MessageStatus")) {
	case "delivered", "read":
		status = notificationdomain.LogStatusDelivered
	case "failed", "undelivered":
		status = notificationdomain.LogStatusFailed
	default:
		c.Status(http.StatusNoContent)
		return
	}

	reason := strings.TrimSpace(c.Request.PostForm.Get("ErrorMessage"))
	if code := c.Request.PostForm.Get("ErrorCode"); code != "" && reason == "" {
		reason = "twilio error " + code
	}
	updated, err := s.dedup.UpdateDeliveryStatus(c.Request.Context(), messageID, status, reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !updated {
		s.log.Debug("delivery receipt matched no log", zap.String("message_sid", messageID), zap.String("status", string(status)))
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) ListWebhookLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	logs, err := s.webhooks.Logs(c.Request.Context(), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": logs})
}

// requestURL rebuilds the public URL Twilio signed, honouring the proxy
// headers set by the ingress.
func requestURL(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if forwarded := c.GetHeader("X-Forwarded-Proto"); forwarded != "" {
		scheme = forwarded
	}
	host := c.Request.Host
	if forwarded := c.GetHeader("X-Forwarded-Host"); forwarded != "" {
		host = forwarded
	}
	return scheme + "://" + host + c.Request.URL.RequestURI()
}
