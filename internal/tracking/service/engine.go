package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/smallbiznis/noty/internal/billing/domain"
	"github.com/smallbiznis/noty/internal/clock"
	"github.com/smallbiznis/noty/internal/events"
	notificationdomain "github.com/smallbiznis/noty/internal/notification/domain"
	notificationservice "github.com/smallbiznis/noty/internal/notification/service"
	"github.com/smallbiznis/noty/internal/observability/metrics"
	"github.com/smallbiznis/noty/internal/observability/tracing"
	"github.com/smallbiznis/noty/internal/settings"
	"github.com/smallbiznis/noty/internal/tracking/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const notifyTimeout = 2 * time.Minute

type EngineParams struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Calendar clock.Calendar
	Settings *settings.Store
	Clients  billingdomain.ClientRepository
	Payments billingdomain.PaymentRepository
	States   domain.Repository
	Notifier *notificationservice.Notifier
	Platform domain.Platform            `optional:"true"`
	Outbox   *events.Outbox             `optional:"true"`
	Metrics  *metrics.AutomationMetrics `optional:"true"`
}

// Engine maps clients to tracking platform users and applies the block and
// unblock decisions.
type Engine struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	calendar clock.Calendar
	settings *settings.Store
	clients  billingdomain.ClientRepository
	payments billingdomain.PaymentRepository
	states   domain.Repository
	notifier *notificationservice.Notifier
	platform domain.Platform
	outbox   *events.Outbox
	metrics  *metrics.AutomationMetrics

	locks   *clientLocks
	pending sync.WaitGroup
}

func NewEngine(p EngineParams) *Engine {
	return &Engine{
		db:       p.DB,
		log:      p.Log.Named("tracking.engine"),
		clock:    p.Clock,
		calendar: p.Calendar,
		settings: p.Settings,
		clients:  p.Clients,
		payments: p.Payments,
		states:   p.States,
		notifier: p.Notifier,
		platform: p.Platform,
		outbox:   p.Outbox,
		metrics:  p.Metrics,
		locks:    newClientLocks(),
	}
}

// Evaluation is the outcome of evaluating one client.
type Evaluation struct {
	ClientID     snowflake.ID       `json:"client_id"`
	State        string             `json:"state"`
	OverdueCount int                `json:"overdue_count"`
	OverdueTotal string             `json:"overdue_total"`
	Action       domain.Action      `json:"action"`
	Applied      bool               `json:"applied"`
	Warned       bool               `json:"warned"`
	Reason       string             `json:"reason,omitempty"`
	Access       domain.AccessState `json:"-"`
}

// Wait blocks until every spawned access notification has finished.
func (e *Engine) Wait() {
	e.pending.Wait()
}

func (e *Engine) loadPolicy(ctx context.Context) (domain.Policy, error) {
	var (
		policy domain.Policy
		err    error
	)
	if policy.TraccarEnabled, err = e.settings.Bool(ctx, settings.KeyTraccarEnabled); err != nil {
		return policy, err
	}
	if policy.AutoBlockEnabled, err = e.settings.Bool(ctx, settings.KeyAutoBlockEnabled); err != nil {
		return policy, err
	}
	if policy.UnblockOnPayment, err = e.settings.Bool(ctx, settings.KeyUnblockOnPayment); err != nil {
		return policy, err
	}
	if policy.BlockAfterCount, err = e.settings.Int(ctx, settings.KeyBlockAfterCount); err != nil {
		return policy, err
	}
	whitelist, err := e.settings.List(ctx, settings.KeyAutoBlockWhitelist)
	if err != nil {
		return policy, err
	}
	policy.Whitelist = make(map[string]struct{}, len(whitelist))
	for _, id := range whitelist {
		policy.Whitelist[id] = struct{}{}
	}
	return policy, nil
}

func (e *Engine) ready(policy domain.Policy) error {
	if !policy.TraccarEnabled {
		return domain.ErrTraccarDisabled
	}
	if e.platform == nil {
		return domain.ErrNotConfigured
	}
	return nil
}

// EvaluateClient maps the client when needed, refreshes its remote access flag
// and applies the block table.
func (e *Engine) EvaluateClient(ctx context.Context, clientID snowflake.ID) (*Evaluation, error) {
	policy, err := e.loadPolicy(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.ready(policy); err != nil {
		return nil, err
	}
	return e.evaluate(ctx, clientID, policy)
}

func (e *Engine) evaluate(ctx context.Context, clientID snowflake.ID, policy domain.Policy) (eval *Evaluation, err error) {
	ctx, span := tracing.Start(ctx, "tracking.evaluate", tracing.AttrClientID.String(clientID.String()))
	defer func() {
		if eval != nil {
			span.SetAttributes(tracing.AttrAccessAction.String(string(eval.Action)))
		}
		tracing.End(span, err)
	}()
	return e.evaluateLocked(ctx, clientID, policy)
}

func (e *Engine) evaluateLocked(ctx context.Context, clientID snowflake.ID, policy domain.Policy) (*Evaluation, error) {
	unlock := e.locks.lock(clientID)
	defer unlock()

	log := e.log.With(zap.String("client_id", clientID.String()))

	client, err := e.findClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	state, err := e.states.FindByClientID(ctx, e.db, clientID)
	if err != nil {
		return nil, err
	}
	if _, unmapped := state.Access().(domain.Unmapped); unmapped {
		state, err = e.mapClient(ctx, *client)
		if err != nil {
			return nil, err
		}
	}

	eval := &Evaluation{ClientID: clientID, Action: domain.ActionNone}
	userID, mapped := domain.UserIDOf(state.Access())
	if !mapped {
		eval.Access = domain.Unmapped{}
		eval.State = eval.Access.String()
		return eval, nil
	}

	now := e.clock.Now()
	user, err := e.platform.GetUserByID(ctx, userID)
	if err != nil {
		e.recordError(ctx, clientID, err, now)
		return nil, err
	}
	if user == nil {
		e.recordError(ctx, clientID, domain.ErrUserNotFound, now)
		return nil, domain.ErrUserNotFound
	}
	if user.Disabled != state.Blocked {
		log.Info("correcting cached access flag", zap.Bool("remote_disabled", user.Disabled))
		if err := e.states.SyncBlocked(ctx, e.db, clientID, user.Disabled, now); err != nil {
			return nil, err
		}
		state.Blocked = user.Disabled
	}

	summary, err := e.payments.OverdueSummary(ctx, e.db, clientID, e.calendar.Today(now))
	if err != nil {
		return nil, err
	}

	access := state.Access()
	decision := domain.Decide(domain.DecisionInput{
		State:           access,
		ClientAutoBlock: state.AutoBlockEnabled,
		Whitelisted:     policy.Whitelisted(clientID.String(), client.ExternalID),
		OverdueCount:    summary.Count,
		OverdueTotal:    summary.Total,
		Policy:          policy,
	})

	eval.Access = access
	eval.State = access.String()
	eval.OverdueCount = summary.Count
	eval.OverdueTotal = summary.Total.StringFixed(2)
	eval.Action = decision.Action
	eval.Reason = decision.Reason

	switch decision.Action {
	case domain.ActionBlock, domain.ActionUnblock:
		applied, err := e.transition(ctx, *client, userID, decision.Action == domain.ActionBlock, decision.Reason, summary, policy)
		if err != nil {
			return eval, err
		}
		eval.Applied = applied
	}

	if decision.Warn {
		eval.Warned = e.warn(ctx, *client, summary, policy)
	}
	return eval, nil
}

// transition applies the remote change first and only then flips the local
// flag. It reports whether this call performed the flip.
func (e *Engine) transition(ctx context.Context, client billingdomain.Client, userID int64, blocked bool, reason string, summary billingdomain.OverdueSummary, policy domain.Policy) (bool, error) {
	log := e.log.With(
		zap.String("client_id", client.ID.String()),
		zap.Int64("traccar_user_id", userID),
		zap.Bool("blocked", blocked),
	)
	action := string(domain.ActionUnblock)
	if blocked {
		action = string(domain.ActionBlock)
	}

	if err := e.platform.SetUserDisabled(ctx, userID, blocked); err != nil {
		e.metrics.IncTransition(action, "failed")
		e.recordError(ctx, client.ID, err, e.clock.Now())
		log.Warn("tracking platform rejected access change", zap.Error(err))
		return false, fmt.Errorf("%s client %s: %w", action, client.ID, err)
	}

	at := e.clock.Now()
	changed := false
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		changed, err = e.states.Transition(ctx, tx, client.ID, blocked, reason, at)
		if err != nil || !changed || e.outbox == nil {
			return err
		}
		eventType := events.EventClientUnblocked
		if blocked {
			eventType = events.EventClientBlocked
		}
		return e.outbox.PublishTx(ctx, tx, events.Event{
			Type:        eventType,
			AggregateID: client.ID.String(),
			Payload: events.AccessChangedPayload{
				ClientID:      client.ID.String(),
				TraccarUserID: userID,
				Blocked:       blocked,
				Reason:        reason,
				OverdueCount:  summary.Count,
				OverdueTotal:  summary.Total.StringFixed(2),
			}.ToMap(),
		})
	})
	if err != nil {
		e.metrics.IncTransition(action, "error")
		return false, err
	}
	if !changed {
		e.metrics.IncTransition(action, "noop")
		return false, nil
	}

	e.metrics.IncTransition(action, "applied")
	log.Info("client access changed", zap.String("reason", reason), zap.Int("overdue_count", summary.Count))

	messageType := notificationdomain.MessageTypeTraccarUnblock
	if blocked {
		messageType = notificationdomain.MessageTypeTraccarBlock
	}
	e.notifyAsync(ctx, notificationservice.ClientMessage{
		Client: client,
		Type:   messageType,
		Since:  at,
		Data: notificationservice.TemplateData{
			OverdueCount: summary.Count,
			OverdueTotal: summary.Total,
			BlockAfter:   policy.BlockAfterCount,
		},
	})
	return true, nil
}

// notifyAsync sends the access notice in the background. Its outcome never
// affects the transition.
func (e *Engine) notifyAsync(ctx context.Context, msg notificationservice.ClientMessage) {
	if e.notifier == nil {
		return
	}
	e.pending.Add(1)
	go func() {
		defer e.pending.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()

		if _, err := e.notifier.NotifyClient(ctx, msg); err != nil && !isSuppressed(err) {
			e.log.Warn("access notification failed",
				zap.String("client_id", msg.Client.ID.String()),
				zap.String("message_type", string(msg.Type)),
				zap.Error(err),
			)
		}
	}()
}

func (e *Engine) warn(ctx context.Context, client billingdomain.Client, summary billingdomain.OverdueSummary, policy domain.Policy) bool {
	if e.notifier == nil {
		return false
	}
	_, err := e.notifier.NotifyClient(ctx, notificationservice.ClientMessage{
		Client: client,
		Type:   notificationdomain.MessageTypeTraccarWarning,
		Data: notificationservice.TemplateData{
			OverdueCount: summary.Count,
			OverdueTotal: summary.Total,
			BlockAfter:   policy.BlockAfterCount,
		},
	})
	if err != nil {
		if !isSuppressed(err) {
			e.log.Warn("block warning failed", zap.String("client_id", client.ID.String()), zap.Error(err))
		}
		return false
	}
	return true
}

func isSuppressed(err error) bool {
	return errors.Is(err, notificationdomain.ErrAlreadySent) ||
		errors.Is(err, notificationdomain.ErrNotificationsDisabled) ||
		errors.Is(err, notificationdomain.ErrMissingPhone)
}

func (e *Engine) findClient(ctx context.Context, clientID snowflake.ID) (*billingdomain.Client, error) {
	client, err := e.clients.FindByID(ctx, e.db, clientID)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, billingdomain.ErrClientNotFound
	}
	return client, nil
}

func (e *Engine) recordError(ctx context.Context, clientID snowflake.ID, cause error, at time.Time) {
	if err := e.states.RecordError(ctx, e.db, clientID, cause.Error(), at); err != nil {
		e.log.Error("failed to record tracking error", zap.String("client_id", clientID.String()), zap.Error(err))
	}
}

// mapClient looks the client up on the platform by email, then by phone, and
// stores the result. An unresolved client is stored as unmapped.
func (e *Engine) mapClient(ctx context.Context, client billingdomain.Client) (*domain.BlockState, error) {
	var (
		user   *domain.User
		method domain.MappingMethod
		err    error
	)
	if email := strings.TrimSpace(client.Email); email != "" {
		user, err = e.platform.FindUserByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		method = domain.MappingMethodEmail
	}
	if user == nil {
		for _, phone := range []string{client.MobilePhone, client.Phone} {
			if strings.TrimSpace(phone) == "" {
				continue
			}
			user, err = e.platform.FindUserByPhone(ctx, phone)
			if err != nil {
				return nil, err
			}
			if user != nil {
				method = domain.MappingMethodPhone
				break
			}
		}
	}

	var userID *int64
	if user != nil {
		id := user.ID
		userID = &id
	}
	state, err := e.states.SaveMapping(ctx, e.db, client.ID, userID, method, e.clock.Now())
	if err != nil {
		return nil, err
	}
	if user != nil {
		e.log.Info("client mapped to tracking user",
			zap.String("client_id", client.ID.String()),
			zap.Int64("traccar_user_id", user.ID),
			zap.String("method", string(method)),
		)
	}
	return state, nil
}

// Sweep maps every unmapped active client and evaluates every mapped one.
// A failing client is reported and does not stop the sweep.
func (e *Engine) Sweep(ctx context.Context) (domain.SweepResult, error) {
	var result domain.SweepResult

	policy, err := e.loadPolicy(ctx)
	if err != nil {
		return result, err
	}
	if !policy.TraccarEnabled {
		result.Disabled = true
		return result, nil
	}
	if e.platform == nil {
		return result, domain.ErrNotConfigured
	}

	clients, err := e.clients.ListActive(ctx, e.db)
	if err != nil {
		return result, err
	}
	states, err := e.states.List(ctx, e.db)
	if err != nil {
		return result, err
	}
	known := make(map[snowflake.ID]*domain.BlockState, len(states))
	for i := range states {
		known[states[i].ClientID] = &states[i]
	}

	for _, client := range clients {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if _, unmapped := known[client.ID].Access().(domain.Unmapped); !unmapped {
			continue
		}
		state, err := e.mapClient(ctx, client)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("map client %s: %v", client.ID, err))
			continue
		}
		if _, ok := domain.UserIDOf(state.Access()); ok {
			result.Mapped++
		} else {
			result.Unmapped++
		}
	}

	mapped, err := e.states.ListMapped(ctx, e.db)
	if err != nil {
		return result, err
	}
	for _, state := range mapped {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		eval, err := e.evaluate(ctx, state.ClientID, policy)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("client %s: %v", state.ClientID, err))
			continue
		}
		result.ClientsEvaluated++
		if eval.Applied {
			switch eval.Action {
			case domain.ActionBlock:
				result.Blocked++
			case domain.ActionUnblock:
				result.Unblocked++
			}
		}
		if eval.Warned {
			result.Warned++
		}
	}

	e.log.Info("tracking sweep finished",
		zap.Int("evaluated", result.ClientsEvaluated),
		zap.Int("blocked", result.Blocked),
		zap.Int("unblocked", result.Unblocked),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// SetAutoBlock toggles the per-client auto-block opt-in.
func (e *Engine) SetAutoBlock(ctx context.Context, clientID snowflake.ID, enabled bool) (*domain.BlockState, error) {
	if _, err := e.findClient(ctx, clientID); err != nil {
		return nil, err
	}
	unlock := e.locks.lock(clientID)
	defer unlock()
	return e.states.SetAutoBlock(ctx, e.db, clientID, enabled, e.clock.Now())
}

// MapManually binds a client to a platform user chosen by an operator.
func (e *Engine) MapManually(ctx context.Context, clientID snowflake.ID, userID int64) (*domain.BlockState, error) {
	if e.platform == nil {
		return nil, domain.ErrNotConfigured
	}
	if _, err := e.findClient(ctx, clientID); err != nil {
		return nil, err
	}
	user, err := e.platform.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}

	unlock := e.locks.lock(clientID)
	defer unlock()
	now := e.clock.Now()
	if _, err := e.states.SaveMapping(ctx, e.db, clientID, &user.ID, domain.MappingMethodManual, now); err != nil {
		return nil, err
	}
	if err := e.states.SyncBlocked(ctx, e.db, clientID, user.Disabled, now); err != nil {
		return nil, err
	}
	return e.states.FindByClientID(ctx, e.db, clientID)
}

// SetAccess blocks or unblocks a mapped client on operator request,
// bypassing the automatic policy.
func (e *Engine) SetAccess(ctx context.Context, clientID snowflake.ID, blocked bool, reason string) (*domain.BlockState, error) {
	policy, err := e.loadPolicy(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.ready(policy); err != nil {
		return nil, err
	}

	unlock := e.locks.lock(clientID)
	defer unlock()

	client, err := e.findClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	state, err := e.states.FindByClientID(ctx, e.db, clientID)
	if err != nil {
		return nil, err
	}
	userID, ok := domain.UserIDOf(state.Access())
	if !ok {
		return nil, domain.ErrClientNotMapped
	}
	if state.Blocked != blocked {
		if blocked && strings.TrimSpace(reason) == "" {
			reason = "manual block"
		}
		summary, err := e.payments.OverdueSummary(ctx, e.db, clientID, e.calendar.Today(e.clock.Now()))
		if err != nil {
			return nil, err
		}
		if _, err := e.transition(ctx, *client, userID, blocked, reason, summary, policy); err != nil {
			return nil, err
		}
	}
	return e.states.FindByClientID(ctx, e.db, clientID)
}

// States lists the cached block state of every known client.
func (e *Engine) States(ctx context.Context) ([]domain.BlockState, error) {
	return e.states.List(ctx, e.db)
}
