package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/smallbiznis/noty/internal/billing/domain"
	"github.com/smallbiznis/noty/internal/clock"
	"github.com/smallbiznis/noty/internal/notification/domain"
	"github.com/smallbiznis/noty/internal/settings"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type SweepParams struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Calendar  clock.Calendar
	Settings  *settings.Store
	Clients   billingdomain.ClientRepository
	Payments  billingdomain.PaymentRepository
	Dedup     *Dedup
	Templates *Templates
	Sender    *Sender
}

// Sweeps sends the payment-tied warning and overdue notifications. Each
// payment gets at most one message of a type per calendar day.
type Sweeps struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	calendar  clock.Calendar
	settings  *settings.Store
	clients   billingdomain.ClientRepository
	payments  billingdomain.PaymentRepository
	dedup     *Dedup
	templates *Templates
	sender    *Sender
}

func NewSweeps(p SweepParams) *Sweeps {
	return &Sweeps{
		db:        p.DB,
		log:       p.Log.Named("notification.sweeps"),
		clock:     p.Clock,
		calendar:  p.Calendar,
		settings:  p.Settings,
		clients:   p.Clients,
		payments:  p.Payments,
		dedup:     p.Dedup,
		templates: p.Templates,
		sender:    p.Sender,
	}
}

// SendWarnings notifies PENDING payments due between today and
// warning_days_before days ahead.
func (s *Sweeps) SendWarnings(ctx context.Context) (domain.SweepResult, error) {
	var result domain.SweepResult
	enabled, err := s.settings.Bool(ctx, settings.KeyNotificationsEnabled)
	if err != nil {
		return result, err
	}
	if !enabled {
		result.Disabled = true
		return result, nil
	}
	if !s.sender.Configured() {
		return result, domain.ErrNotConfigured
	}
	daysBefore, err := s.settings.Int(ctx, settings.KeyWarningDaysBefore)
	if err != nil {
		return result, err
	}

	today := s.calendar.Today(s.clock.Now())
	cohort, err := s.payments.ListDueBetween(ctx, s.db, today, today.AddDate(0, 0, daysBefore), billingdomain.PaymentStatusPending)
	if err != nil {
		return result, err
	}
	return s.sweep(ctx, cohort, domain.MessageTypeWarning, 0)
}

// SendOverdue notifies OVERDUE payments, capped per payment by
// overdue_max_notifications when it is positive.
func (s *Sweeps) SendOverdue(ctx context.Context) (domain.SweepResult, error) {
	var result domain.SweepResult
	enabled, err := s.settings.Bool(ctx, settings.KeyNotificationsEnabled)
	if err != nil {
		return result, err
	}
	if !enabled {
		result.Disabled = true
		return result, nil
	}
	if !s.sender.Configured() {
		return result, domain.ErrNotConfigured
	}
	maxSends, err := s.settings.Int(ctx, settings.KeyOverdueMaxNotifications)
	if err != nil {
		return result, err
	}

	cohort, err := s.payments.ListByStatus(ctx, s.db, billingdomain.PaymentStatusOverdue)
	if err != nil {
		return result, err
	}
	return s.sweep(ctx, cohort, domain.MessageTypeOverdue, maxSends)
}

func (s *Sweeps) sweep(ctx context.Context, cohort []billingdomain.Payment, messageType domain.MessageType, maxSends int) (domain.SweepResult, error) {
	result := domain.SweepResult{Candidates: len(cohort)}
	if len(cohort) == 0 {
		return result, nil
	}

	now := s.clock.Now()
	windowStart := s.calendar.StartOfDay(now)
	today := s.calendar.Today(now)

	paymentIDs := make([]snowflake.ID, 0, len(cohort))
	clientIDs := make([]snowflake.ID, 0, len(cohort))
	for _, payment := range cohort {
		paymentIDs = append(paymentIDs, payment.ID)
		clientIDs = append(clientIDs, payment.ClientID)
	}
	sent, err := s.dedup.SentPayments(ctx, paymentIDs, messageType, windowStart)
	if err != nil {
		return result, err
	}
	clients, err := s.clients.FindByIDs(ctx, s.db, clientIDs)
	if err != nil {
		return result, err
	}

	attempts := make([]domain.Attempt, 0, len(cohort))
	var stopped error
	for _, payment := range cohort {
		if err := ctx.Err(); err != nil {
			stopped = err
			break
		}
		if _, ok := sent[payment.ID]; ok {
			result.AlreadySent++
			continue
		}
		if maxSends > 0 && messageType == domain.MessageTypeOverdue && payment.OverdueNotificationCount >= maxSends {
			result.Skipped++
			continue
		}
		client, ok := clients[payment.ClientID]
		if !ok || !client.IsActive || !client.NotificationsEnabled {
			result.Skipped++
			continue
		}
		phone := client.ContactPhone()
		if phone == "" {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("payment %s: client %s has no phone", payment.ExternalID, client.ExternalID))
			continue
		}

		text, err := s.templates.Render(ctx, messageType, TemplateData{
			ClientName:  client.Name,
			Value:       payment.Value,
			DueDate:     payment.DueOn(),
			DaysOverdue: daysBetween(payment.DueOn(), today),
			Description: payment.Description,
			InvoiceURL:  payment.InvoiceURL,
		})
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("payment %s: render: %v", payment.ExternalID, err))
			continue
		}

		delivery := s.sender.Send(ctx, messageType, phone, text)
		paymentID := payment.ID
		attempt := domain.Attempt{
			ClientID:          client.ID,
			PaymentID:         &paymentID,
			MessageType:       messageType,
			Phone:             delivery.Phone,
			Content:           text,
			Status:            delivery.Status(),
			ProviderMessageID: delivery.Result.MessageID,
			Attempts:          delivery.Attempts,
		}
		if delivery.Err != nil {
			attempt.Error = delivery.Err.Error()
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("payment %s: %v", payment.ExternalID, delivery.Err))
		} else {
			result.Sent++
		}
		attempts = append(attempts, attempt)
	}

	// Messages already went out; their logs must land even when the caller
	// gave up, or the next run would send them again.
	if _, err := s.dedup.RecordBatch(context.WithoutCancel(ctx), attempts); err != nil {
		return result, fmt.Errorf("record notifications: %w", err)
	}
	if stopped != nil {
		s.log.Warn("notification sweep interrupted",
			zap.String("message_type", string(messageType)),
			zap.Int("sent", result.Sent),
			zap.Int("failed", result.Failed),
			zap.Error(stopped),
		)
		return result, stopped
	}

	s.log.Info("notification sweep finished",
		zap.String("message_type", string(messageType)),
		zap.Int("candidates", result.Candidates),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed),
		zap.Int("already_sent", result.AlreadySent),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

func daysBetween(from, to time.Time) int {
	days := int(to.Sub(from).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}
