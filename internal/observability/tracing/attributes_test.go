package tracing

import (
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsSensitiveKeys(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("client.id", "42"),
		attribute.String("client.phone", "+5511987654321"),
		attribute.String("traccar.password", "secret"),
	)
	if len(attrs) != 1 {
		t.Fatalf("expected 1 attribute, got %d", len(attrs))
	}
	if attrs[0].Key != "client.id" {
		t.Fatalf("unexpected attribute %q", attrs[0].Key)
	}
}

func TestSafeErrorHidesMessage(t *testing.T) {
	err := SafeError(errors.New("token abc leaked"))
	if err == nil || err.Error() != "*errors.errorString" {
		t.Fatalf("expected type-only error, got %v", err)
	}
}

func TestSafeAttributesDropsContactData(t *testing.T) {
	attrs := SafeAttributes(
		AttrClientID.String("42"),
		attribute.String("client.email", "a@b.c"),
	)
	if len(attrs) != 1 || attrs[0].Key != AttrClientID {
		t.Fatalf("expected only the client id, got %v", attrs)
	}
}
