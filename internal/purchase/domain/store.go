package domain

import "context"

// Store is the purchase record API used by the webhook path.
type Store interface {
	// Save sanitizes and upserts in, keyed by in.ID.
	Save(ctx context.Context, in Input) (*Record, error)
	// SaveStatus records a non-final status without downgrading a purchase
	// that has already succeeded.
	SaveStatus(ctx context.Context, in Input) (*Record, error)
	Get(ctx context.Context, id string) (*Record, error)
}
