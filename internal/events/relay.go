package events

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RelayConfig controls the outbox relay loop.
type RelayConfig struct {
	BatchSize    int
	PollInterval time.Duration
}

func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		BatchSize:    100,
		PollInterval: 5 * time.Second,
	}
}

func (c RelayConfig) withDefaults() RelayConfig {
	defaults := DefaultRelayConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaults.PollInterval
	}
	return c
}

// Relay moves unpublished outbox events to the broker in creation order.
type Relay struct {
	db        *gorm.DB
	log       *zap.Logger
	publisher Publisher
	cfg       RelayConfig
}

func NewRelay(db *gorm.DB, log *zap.Logger, publisher Publisher, cfg RelayConfig) *Relay {
	return &Relay{
		db:        db,
		log:       log.Named("events.relay"),
		publisher: publisher,
		cfg:       cfg.withDefaults(),
	}
}

func (r *Relay) RunForever(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.log.Warn("outbox relay run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce publishes one batch. Delivery is at-least-once: an event is marked
// published only after the broker accepted it.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	if r.db == nil || r.publisher == nil {
		return 0, errors.New("relay_unavailable")
	}

	var batch []OutboxEvent
	err := r.db.WithContext(ctx).
		Where("published = ?", false).
		Order("created_at ASC, id ASC").
		Limit(r.cfg.BatchSize).
		Find(&batch).Error
	if err != nil {
		return 0, err
	}

	published := 0
	for _, event := range batch {
		msg := Message{
			ID:          strconv.FormatInt(event.ID.Int64(), 10),
			Type:        event.EventType,
			AggregateID: event.AggregateID,
			Payload:     event.Payload,
			OccurredAt:  event.CreatedAt,
		}
		if err := r.publisher.Publish(ctx, msg); err != nil {
			if updateErr := r.markFailed(ctx, event, err); updateErr != nil {
				r.log.Warn("failed to record relay error", zap.Error(updateErr))
			}
			return published, err
		}
		if err := r.markPublished(ctx, event); err != nil {
			return published, err
		}
		published++
	}
	return published, nil
}

func (r *Relay) markPublished(ctx context.Context, event OutboxEvent) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Exec(
		`UPDATE outbox_events
		 SET published = ?, published_at = ?, attempts = attempts + 1, last_error = ''
		 WHERE id = ? AND published = ?`,
		true,
		now,
		event.ID,
		false,
	).Error
}

func (r *Relay) markFailed(ctx context.Context, event OutboxEvent, cause error) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE outbox_events SET attempts = attempts + 1, last_error = ? WHERE id = ?`,
		cause.Error(),
		event.ID,
	).Error
}
