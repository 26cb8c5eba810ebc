package domain

import (
	"context"
	"errors"
)

var (
	ErrInvalidID = errors.New("invalid_subscription_id")
	ErrNotFound  = errors.New("subscription_not_found")
)

type Store interface {
	Merge(ctx context.Context, id string, patch Patch) (*Subscription, error)
	Get(ctx context.Context, id string) (*Subscription, error)
}
