package domain

import "time"

type Status string

const (
	StatusIncomplete Status = "incomplete"
	StatusTrialing   Status = "trialing"
	StatusActive     Status = "active"
	StatusPastDue    Status = "past_due"
	StatusCanceled   Status = "canceled"
	StatusUnpaid     Status = "unpaid"
)

// Subscription is the local snapshot of a gateway enrollment. It is
// merge-updated from webhook events and the grace-period manager.
type Subscription struct {
	ID                   string     `gorm:"column:id;primaryKey"`
	CustomerID           string     `gorm:"column:customer_id"`
	CustomerEmail        string     `gorm:"column:customer_email"`
	Status               Status     `gorm:"column:status"`
	CurrentPeriodEnd     *time.Time `gorm:"column:current_period_end"`
	LatestInvoiceID      string     `gorm:"column:latest_invoice_id"`
	GracePeriodEnd       *time.Time `gorm:"column:grace_period_end"`
	LastNotificationSent *time.Time `gorm:"column:last_notification_sent"`
	LastReminderDays     int        `gorm:"column:last_reminder_days"`
	CanceledAt           *time.Time `gorm:"column:canceled_at"`
	CreatedAt            time.Time  `gorm:"column:created_at"`
	UpdatedAt            time.Time  `gorm:"column:updated_at"`
}

func (Subscription) TableName() string { return "subscriptions" }

// Patch lists the fields to merge. Nil fields are left untouched.
type Patch struct {
	CustomerID           *string
	CustomerEmail        *string
	Status               *Status
	CurrentPeriodEnd     *time.Time
	LatestInvoiceID      *string
	GracePeriodEnd       *time.Time
	ClearGracePeriod     bool
	LastNotificationSent *time.Time
	LastReminderDays     *int
	CanceledAt           *time.Time
}
