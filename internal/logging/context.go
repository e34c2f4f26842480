package logging

import (
	"context"
	"log/slog"

	"feedcaster/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldShowID is the standardized structured logging key for show identifiers.
	FieldShowID = "show_id"
	// FieldItemGUID is the standardized structured logging key for item guids.
	FieldItemGUID = "item_guid"
	// FieldStage is the standardized structured logging key for pipeline stage names.
	FieldStage = "stage"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType tags lines that mark a lifecycle event (stage_start, item_failed, ...).
	FieldEventType = "event_type"
	// FieldErrorKind carries the ledger error kind of a failure.
	FieldErrorKind = "error_kind"
	// FieldErrorHint suggests the next step to an operator reading a warning or error.
	FieldErrorHint = "error_hint"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.ShowIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldShowID, id))
	}
	if guid, ok := services.ItemGUIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldItemGUID, guid))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
