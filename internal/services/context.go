package services

import "context"

type contextKey string

const (
	showIDKey    contextKey = "show_id"
	itemGUIDKey  contextKey = "item_guid"
	stageKey     contextKey = "stage"
	requestIDKey contextKey = "request_id"
)

// WithShowID annotates context with the show identifier.
func WithShowID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, showIDKey, id)
}

// ShowIDFromContext extracts the show identifier if present.
func ShowIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(showIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithItemGUID annotates context with the item guid being processed.
func WithItemGUID(ctx context.Context, guid string) context.Context {
	if guid == "" {
		return ctx
	}
	return context.WithValue(ctx, itemGUIDKey, guid)
}

// ItemGUIDFromContext extracts the item guid if present.
func ItemGUIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(itemGUIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(stageKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
