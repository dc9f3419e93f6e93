package services

import "context"

type contextKey string

const (
	buildIDKey    contextKey = "build_id"
	kindKey       contextKey = "artifact_kind"
	contentKeyKey contextKey = "content_key"
)

// WithBuildID annotates context with the build generation identifier.
func WithBuildID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, buildIDKey, id)
}

// BuildIDFromContext extracts the build generation identifier if present.
func BuildIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(buildIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithArtifact annotates context with the kind and content key of the
// artifact being resolved.
func WithArtifact(ctx context.Context, kind, key string) context.Context {
	if kind != "" {
		ctx = context.WithValue(ctx, kindKey, kind)
	}
	if key != "" {
		ctx = context.WithValue(ctx, contentKeyKey, key)
	}
	return ctx
}

// ArtifactFromContext returns the artifact kind and content key if present.
func ArtifactFromContext(ctx context.Context) (kind, key string) {
	kind, _ = ctx.Value(kindKey).(string)
	key, _ = ctx.Value(contentKeyKey).(string)
	return kind, key
}
