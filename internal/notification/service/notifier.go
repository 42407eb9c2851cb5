package service

import (
	"context"
	"time"

	billingdomain "github.com/smallbiznis/noty/internal/billing/domain"
	"github.com/smallbiznis/noty/internal/notification/domain"
	"github.com/smallbiznis/noty/internal/settings"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type NotifierParams struct {
	fx.In

	Log       *zap.Logger
	Settings  *settings.Store
	Dedup     *Dedup
	Templates *Templates
	Sender    *Sender
}

// Notifier sends one client-level message, such as a block notice, through
// the dedup engine.
type Notifier struct {
	log       *zap.Logger
	settings  *settings.Store
	dedup     *Dedup
	templates *Templates
	sender    *Sender
}

func NewNotifier(p NotifierParams) *Notifier {
	return &Notifier{
		log:       p.Log.Named("notification.notifier"),
		settings:  p.Settings,
		dedup:     p.Dedup,
		templates: p.Templates,
		sender:    p.Sender,
	}
}

// ClientMessage describes a client-level notification. When Since is set the
// message is suppressed if one was already sent after it; otherwise the
// rolling 24h client window applies.
type ClientMessage struct {
	Client billingdomain.Client
	Type   domain.MessageType
	Data   TemplateData
	Since  time.Time
}

// NotifyClient sends the message unless it is suppressed. Suppression returns
// ErrAlreadySent or ErrNotificationsDisabled and writes no log.
func (n *Notifier) NotifyClient(ctx context.Context, msg ClientMessage) (*domain.NotificationLog, error) {
	enabled, err := n.settings.Bool(ctx, settings.KeyNotificationsEnabled)
	if err != nil {
		return nil, err
	}
	if !enabled || !msg.Client.NotificationsEnabled || !msg.Client.IsActive {
		return nil, domain.ErrNotificationsDisabled
	}

	var shouldSend bool
	if msg.Since.IsZero() {
		shouldSend, err = n.dedup.ShouldSendClient(ctx, msg.Client.ID, msg.Type)
	} else {
		shouldSend, err = n.dedup.ShouldSend(ctx, msg.Client.ID, nil, msg.Type, msg.Since)
	}
	if err != nil {
		return nil, err
	}
	if !shouldSend {
		return nil, domain.ErrAlreadySent
	}

	phone := msg.Client.ContactPhone()
	if phone == "" {
		return nil, domain.ErrMissingPhone
	}
	if msg.Data.ClientName == "" {
		msg.Data.ClientName = msg.Client.Name
	}
	text, err := n.templates.Render(ctx, msg.Type, msg.Data)
	if err != nil {
		return nil, err
	}

	delivery := n.sender.Send(ctx, msg.Type, phone, text)
	attempt := domain.Attempt{
		ClientID:          msg.Client.ID,
		MessageType:       msg.Type,
		Phone:             delivery.Phone,
		Content:           text,
		Status:            delivery.Status(),
		ProviderMessageID: delivery.Result.MessageID,
		Attempts:          delivery.Attempts,
	}
	if delivery.Err != nil {
		attempt.Error = delivery.Err.Error()
	}
	entry, err := n.dedup.Record(ctx, attempt)
	if err != nil {
		return nil, err
	}
	if delivery.Err != nil {
		return entry, delivery.Err
	}
	return entry, nil
}
