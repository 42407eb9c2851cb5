// Package messaging delivers WhatsApp messages through Twilio.
package messaging

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/smallbiznis/noty/internal/config"
	"github.com/smallbiznis/noty/internal/notification/domain"
	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
)

const whatsAppPrefix = "whatsapp:"

// messageCreator is the slice of the Twilio API used here.
type messageCreator interface {
	CreateMessage(params *twilioapi.CreateMessageParams) (*twilioapi.ApiV2010Message, error)
}

type WhatsApp struct {
	api  messageCreator
	from string
	log  *zap.Logger
}

// NewWhatsApp builds the Twilio messenger. Missing credentials yield ErrNotConfigured.
func NewWhatsApp(cfg config.MessagingConfig, log *zap.Logger) (*WhatsApp, error) {
	if !cfg.Configured() {
		return nil, domain.ErrNotConfigured
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: strings.TrimSpace(cfg.TwilioAccountSID),
		Password: strings.TrimSpace(cfg.TwilioAuthToken),
	})
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	return newWhatsApp(client.Api, cfg.WhatsAppFrom, log), nil
}

func newWhatsApp(api messageCreator, from string, log *zap.Logger) *WhatsApp {
	return &WhatsApp{
		api:  api,
		from: withPrefix(strings.TrimSpace(from)),
		log:  log.Named("notification.whatsapp"),
	}
}

// Send posts the message. The Twilio SDK call is not context-aware, so the
// caller's deadline is enforced around it. A request abandoned that way may
// still be delivered, so it is reported as non-retryable.
func (w *WhatsApp) Send(ctx context.Context, phone, text string) (domain.SendResult, error) {
	params := &twilioapi.CreateMessageParams{}
	params.SetTo(withPrefix(phone))
	params.SetFrom(w.from)
	params.SetBody(text)

	type outcome struct {
		msg *twilioapi.ApiV2010Message
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		msg, err := w.api.CreateMessage(params)
		done <- outcome{msg: msg, err: err}
	}()

	select {
	case <-ctx.Done():
		w.log.Warn("whatsapp send abandoned", zap.Error(ctx.Err()))
		return domain.SendResult{}, &domain.SendError{Retryable: false, Err: ctx.Err()}
	case out := <-done:
		if out.err != nil {
			return domain.SendResult{}, classify(out.err)
		}
		var result domain.SendResult
		if out.msg != nil {
			if out.msg.Sid != nil {
				result.MessageID = *out.msg.Sid
			}
			if out.msg.Status != nil {
				result.Status = *out.msg.Status
			}
		}
		return result, nil
	}
}

// classify maps Twilio errors to the retry policy: throttling and server
// errors are transient, any other API rejection (such as an invalid
// recipient) is not.
func classify(err error) error {
	var restErr *twilioclient.TwilioRestError
	if errors.As(err, &restErr) {
		retryable := restErr.Status == http.StatusTooManyRequests || restErr.Status >= http.StatusInternalServerError
		return &domain.SendError{StatusCode: restErr.Status, Code: restErr.Code, Retryable: retryable, Err: err}
	}
	return &domain.SendError{Retryable: true, Err: err}
}

func withPrefix(phone string) string {
	if strings.HasPrefix(phone, whatsAppPrefix) {
		return phone
	}
	return whatsAppPrefix + phone
}
