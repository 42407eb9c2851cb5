package context

import "context"

type contextKey string

const (
	requestIDKey      contextKey = "observability_request_id"
	automationTypeKey contextKey = "observability_automation_type"
	actorTypeKey      contextKey = "observability_actor_type"
	actorIDKey        contextKey = "observability_actor_id"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil || requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey).(string)
	return value
}

// WithAutomationType tags a context with the automation run it belongs to.
func WithAutomationType(ctx context.Context, automationType string) context.Context {
	if ctx == nil || automationType == "" {
		return ctx
	}
	return context.WithValue(ctx, automationTypeKey, automationType)
}

func AutomationTypeFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(automationTypeKey).(string)
	return value
}

func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	if ctx == nil {
		return ctx
	}
	if actorType != "" {
		ctx = context.WithValue(ctx, actorTypeKey, actorType)
	}
	if actorID != "" {
		ctx = context.WithValue(ctx, actorIDKey, actorID)
	}
	return ctx
}

func ActorFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	actorType, _ := ctx.Value(actorTypeKey).(string)
	actorID, _ := ctx.Value(actorIDKey).(string)
	return actorType, actorID
}
