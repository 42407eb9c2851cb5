package service

import (
	"context"
	"time"

	"github.com/smallbiznis/noty/internal/config"
	"github.com/smallbiznis/noty/internal/notification/domain"
	"github.com/smallbiznis/noty/internal/observability/logger"
	"github.com/smallbiznis/noty/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type SenderParams struct {
	fx.In

	Log       *zap.Logger
	Cfg       config.Config
	Messenger domain.Messenger           `optional:"true"`
	Metrics   *metrics.AutomationMetrics `optional:"true"`
}

// Sender wraps the messenger with phone normalization and a bounded retry
// for transient failures.
type Sender struct {
	log         *zap.Logger
	messenger   domain.Messenger
	metrics     *metrics.AutomationMetrics
	countryCode string
	maxRetries  int
	retryDelay  time.Duration
}

func NewSender(p SenderParams) *Sender {
	countryCode := p.Cfg.Messaging.DefaultCountryCode
	if countryCode == "" {
		countryCode = "55"
	}
	retries := p.Cfg.Messaging.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return &Sender{
		log:         p.Log.Named("notification.sender"),
		messenger:   p.Messenger,
		metrics:     p.Metrics,
		countryCode: countryCode,
		maxRetries:  retries,
		retryDelay:  p.Cfg.Messaging.RetryDelay,
	}
}

// Delivery is the outcome of Send, including failures.
type Delivery struct {
	Phone    string
	Result   domain.SendResult
	Attempts int
	Err      error
}

func (d Delivery) Status() domain.LogStatus {
	if d.Err != nil {
		return domain.LogStatusFailed
	}
	return domain.LogStatusSent
}

// Configured reports whether a messenger is wired.
func (s *Sender) Configured() bool {
	return s != nil && s.messenger != nil
}

// Send delivers text to rawPhone. Only retryable errors are retried, up to
// the configured count with a fixed delay.
func (s *Sender) Send(ctx context.Context, messageType domain.MessageType, rawPhone, text string) Delivery {
	var delivery Delivery
	if !s.Configured() {
		delivery.Err = domain.ErrNotConfigured
		return delivery
	}

	phone, err := NormalizePhone(rawPhone, s.countryCode)
	if err != nil {
		delivery.Phone = rawPhone
		delivery.Err = err
		s.metrics.IncNotification(string(messageType), string(domain.LogStatusFailed))
		return delivery
	}
	delivery.Phone = phone

	log := logger.FromContext(ctx).With(
		zap.String("message_type", string(messageType)),
		zap.String("phone", logger.MaskPhone(phone)),
	)

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, s.retryDelay); err != nil {
				delivery.Err = err
				break
			}
		}
		delivery.Attempts++
		result, err := s.messenger.Send(ctx, phone, text)
		if err == nil {
			delivery.Result = result
			delivery.Err = nil
			break
		}
		delivery.Err = err
		if !domain.IsRetryable(err) {
			log.Warn("message rejected", zap.Int("attempt", delivery.Attempts), zap.Error(err))
			break
		}
		log.Warn("message send failed, will retry", zap.Int("attempt", delivery.Attempts), zap.Error(err))
	}

	s.metrics.IncNotification(string(messageType), string(delivery.Status()))
	return delivery
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
