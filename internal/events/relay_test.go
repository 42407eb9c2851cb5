package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/smallbiznis/noty/internal/testutil"
	"go.uber.org/zap"
)

type recordingPublisher struct {
	mu       sync.Mutex
	messages []Message
	failOn   string
}

func (p *recordingPublisher) Publish(_ context.Context, msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failOn != "" && msg.Type == p.failOn {
		return errors.New("broker down")
	}
	p.messages = append(p.messages, msg)
	return nil
}

func TestOutboxPublishDedupes(t *testing.T) {
	db := testutil.OpenDB(t, &OutboxEvent{})
	outbox := NewOutbox(db, testutil.NewNode(t))
	ctx := context.Background()

	event := Event{
		Type:        EventClientBlocked,
		AggregateID: "10",
		Payload:     map[string]any{"client_id": "10", "": "dropped"},
		DedupeKey:   "block:10:1",
	}
	if err := outbox.Publish(ctx, event); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := outbox.Publish(ctx, event); err != nil {
		t.Fatalf("publish duplicate: %v", err)
	}

	var rows []OutboxEvent
	if err := db.Find(&rows).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 outbox row, got %d", len(rows))
	}
	if _, ok := rows[0].Payload[""]; ok {
		t.Fatalf("expected blank payload key to be dropped")
	}
}

func TestOutboxRejectsMissingType(t *testing.T) {
	db := testutil.OpenDB(t, &OutboxEvent{})
	outbox := NewOutbox(db, testutil.NewNode(t))
	if err := outbox.Publish(context.Background(), Event{Type: " "}); err == nil {
		t.Fatalf("expected error for missing type")
	}
}

func TestRelayPublishesAndMarks(t *testing.T) {
	db := testutil.OpenDB(t, &OutboxEvent{})
	outbox := NewOutbox(db, testutil.NewNode(t))
	ctx := context.Background()

	for _, eventType := range []string{EventClientBlocked, EventClientUnblocked} {
		if err := outbox.Publish(ctx, Event{Type: eventType, AggregateID: "7", Payload: map[string]any{"client_id": "7"}}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	publisher := &recordingPublisher{}
	relay := NewRelay(db, zap.NewNop(), publisher, RelayConfig{})
	published, err := relay.RunOnce(ctx)
	if err != nil {
		t.Fatalf("relay: %v", err)
	}
	if published != 2 || len(publisher.messages) != 2 {
		t.Fatalf("expected 2 published, got %d (%d messages)", published, len(publisher.messages))
	}

	published, err = relay.RunOnce(ctx)
	if err != nil {
		t.Fatalf("second relay: %v", err)
	}
	if published != 0 {
		t.Fatalf("expected nothing left to publish, got %d", published)
	}
}

func TestRelayStopsOnPublishFailure(t *testing.T) {
	db := testutil.OpenDB(t, &OutboxEvent{})
	outbox := NewOutbox(db, testutil.NewNode(t))
	ctx := context.Background()

	if err := outbox.Publish(ctx, Event{Type: EventClientBlocked, AggregateID: "1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	relay := NewRelay(db, zap.NewNop(), &recordingPublisher{failOn: EventClientBlocked}, RelayConfig{})
	if _, err := relay.RunOnce(ctx); err == nil {
		t.Fatalf("expected publish error")
	}

	var row OutboxEvent
	if err := db.First(&row).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if row.Published {
		t.Fatalf("expected event to stay unpublished")
	}
	if row.Attempts != 1 || row.LastError == "" {
		t.Fatalf("expected failed attempt recorded, got attempts=%d err=%q", row.Attempts, row.LastError)
	}
}
