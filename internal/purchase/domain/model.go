package domain

import (
	"time"

	"gorm.io/datatypes"
)

type PaymentType string

const (
	PaymentTypeOneTime      PaymentType = "one_time"
	PaymentTypeSubscription PaymentType = "subscription"
)

const (
	StatusSucceeded = "succeeded"
	StatusPending   = "pending"
	StatusFailed    = "failed"
)

type DiscountDetails struct {
	Amount        int64   `json:"amount"`
	PromotionCode string  `json:"promotionCode,omitempty"`
	CouponID      string  `json:"couponId,omitempty"`
	PercentOff    float64 `json:"percentOff"`
	Automatic     bool    `json:"automatic"`
}

type TaxDetails struct {
	Country  string `json:"country"`
	Rate     string `json:"rate"`
	Net      int64  `json:"net"`
	VAT      int64  `json:"vat"`
	Gross    int64  `json:"gross"`
	Currency string `json:"currency"`
}

// Record is the stored purchase, keyed by the checkout session or payment
// intent id so that redelivered events overwrite instead of duplicate.
type Record struct {
	SessionOrIntentID string         `gorm:"column:session_or_intent_id;primaryKey"`
	CustomerID        string         `gorm:"column:customer_id;index"`
	CustomerEmail     string         `gorm:"column:customer_email"`
	AmountPaid        int64          `gorm:"column:amount_paid"`
	Currency          string         `gorm:"column:currency"`
	PaymentStatus     string         `gorm:"column:payment_status"`
	PaymentType       PaymentType    `gorm:"column:payment_type"`
	Metadata          datatypes.JSON `gorm:"column:metadata"`
	DiscountDetails   datatypes.JSON `gorm:"column:discount_details"`
	TaxDetails        datatypes.JSON `gorm:"column:tax_details"`
	CreatedAt         time.Time      `gorm:"column:created_at"`
	UpdatedAt         time.Time      `gorm:"column:updated_at"`
}

func (Record) TableName() string { return "payments" }
