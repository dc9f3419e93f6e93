package logging

import (
	"context"
	"log/slog"

	"sleeve/internal/services"
)

const (
	// FieldComponent is the structured logging key for component names.
	FieldComponent = "component"
	// FieldBuildID is the structured logging key for build generation IDs.
	FieldBuildID = "build_id"
	// FieldKind is the structured logging key for artifact kinds.
	FieldKind = "artifact_kind"
	// FieldContentKey is the structured logging key for content keys.
	FieldContentKey = "content_key"
	// FieldSource is the structured logging key for source file paths.
	FieldSource = "source_file"
	// FieldEventType classifies warnings and errors for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to try next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if id, ok := services.BuildIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldBuildID, id))
	}
	kind, key := services.ArtifactFromContext(ctx)
	if kind != "" {
		fields = append(fields, slog.String(FieldKind, kind))
	}
	if key != "" {
		fields = append(fields, slog.String(FieldContentKey, shortKey(key)))
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
	return logger.With(attrsToArgs(fields)...)
}

// shortKey trims a hex content key for log readability; 16 hex digits are
// plenty to find the entry with `sleeve cache show`.
func shortKey(key string) string {
	if len(key) > 16 {
		return key[:16]
	}
	return key
}
