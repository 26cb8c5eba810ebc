package domain

import "context"

type Generator interface {
	Generate() (string, error)
}

type IssueRequest struct {
	SourceID       string
	SubscriptionID string
	CustomerEmail  string
	Billing        BillingDetails
	CourseIDs      []string
}

type Consent struct {
	UserID   string `json:"user_id"`
	Accepted bool   `json:"accepted"`
}

type Service interface {
	// Issue returns the key for req.SourceID, creating it when none exists.
	// created reports whether this call wrote the key.
	Issue(ctx context.Context, req IssueRequest) (key *ProductKey, created bool, err error)
	FindBySource(ctx context.Context, sourceID string) (*ProductKey, error)
	FindBySubscription(ctx context.Context, subscriptionID string) (*ProductKey, error)
	Get(ctx context.Context, key string) (*ProductKey, error)
	Redeem(ctx context.Context, key string, consent Consent) (*ProductKey, error)
	RevokeForSubscription(ctx context.Context, subscriptionID string) (int64, error)
}
