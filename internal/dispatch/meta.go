package dispatch

import (
	"context"

	"azanbot/internal/storage"
)

// Meta describes an outbound message for tracking.
type Meta struct {
	Kind     storage.MessageKind
	Location string
	Prayer   string
}

type metaKey struct{}

// WithMeta tags ctx so Tracked can label the message log row.
func WithMeta(ctx context.Context, m Meta) context.Context {
	return context.WithValue(ctx, metaKey{}, m)
}

func MetaFrom(ctx context.Context) (Meta, bool) {
	m, ok := ctx.Value(metaKey{}).(Meta)
	return m, ok
}
