package media

import (
	"context"
	"strings"
	"time"
)

// Resolver turns a user-supplied media reference into a playable item. The
// actual metadata service is an external collaborator; the core only depends
// on this boundary.
type Resolver interface {
	Resolve(ctx context.Context, query string) (Item, error)
}

// FixedResolver accepts any reference and assigns a fixed duration. It is
// the default wiring when no metadata service is configured.
type FixedResolver struct {
	Duration time.Duration
}

func (r FixedResolver) Resolve(ctx context.Context, query string) (Item, error) {
	query = strings.TrimSpace(query)
	return Item{ID: query, Title: query, Duration: r.Duration}, nil
}
