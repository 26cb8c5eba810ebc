package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/coursepay/internal/gateway"
)

var ErrNoReminderDue = errors.New("no_reminder_due")

// ReminderOutcome reports whether a renewal reminder went out.
type ReminderOutcome struct {
	SubscriptionID string `json:"subscriptionId"`
	DaysRemaining  int    `json:"daysRemaining"`
	Sent           bool   `json:"sent"`
}

// Manager handles failed renewals and upcoming-renewal reminders.
type Manager interface {
	HandleFailedPayment(ctx context.Context, subscriptionID string, days int) (*gateway.Enrollment, error)
	HandleSubscriptionUpdated(ctx context.Context, enrollment gateway.Enrollment) (*ReminderOutcome, error)
	SendReminder(ctx context.Context, subscriptionID string) (*ReminderOutcome, error)
}
