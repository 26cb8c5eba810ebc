package domain

import (
	"time"

	"gorm.io/datatypes"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusRedeemed Status = "redeemed"
	StatusRevoked  Status = "revoked"
)

type Address struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	State      string `json:"state,omitempty"`
	Country    string `json:"country,omitempty"`
}

type BillingDetails struct {
	Name    string   `json:"name,omitempty"`
	Email   string   `json:"email,omitempty"`
	Phone   string   `json:"phone,omitempty"`
	Address *Address `json:"address,omitempty"`
}

// Activation tracks redemption of a single course unlocked by a key.
type Activation struct {
	Activated   bool       `json:"activated"`
	ActivatedAt *time.Time `json:"activatedAt,omitempty"`
}

// ProductKey is the redeemable entitlement token. Key is the primary key;
// SourceID is the checkout session or payment intent it was issued for.
type ProductKey struct {
	Key                string                                    `gorm:"column:key;primaryKey"`
	SourceID           string                                    `gorm:"column:source_id;uniqueIndex"`
	SubscriptionID     string                                    `gorm:"column:subscription_id;index"`
	CustomerEmail      string                                    `gorm:"column:customer_email"`
	BillingDetails     datatypes.JSONType[BillingDetails]        `gorm:"column:billing_details"`
	PurchasedCourseIDs datatypes.JSONSlice[string]               `gorm:"column:purchased_course_ids"`
	Products           datatypes.JSONType[map[string]Activation] `gorm:"column:products"`
	IsActivated        bool                                      `gorm:"column:is_activated"`
	Status             Status                                    `gorm:"column:status"`
	ActivatedBy        string                                    `gorm:"column:activated_by"`
	ActivatedAt        *time.Time                                `gorm:"column:activated_at"`
	RevokedAt          *time.Time                                `gorm:"column:revoked_at"`
	CreatedAt          time.Time                                 `gorm:"column:created_at"`
	UpdatedAt          time.Time                                 `gorm:"column:updated_at"`
}

func (ProductKey) TableName() string { return "product_keys" }
