package entity

import "time"

const (
	PaymentStatusPaid   = "paid"
	PaymentStatusFailed = "failed"
)

type Payment struct {
	ID uint64

	SessionID      *string
	CustomerID     string
	SubscriptionID *string
	PriceID        *string

	AmountTotal int64
	Currency    string

	// Status carries the processor's status string; "paid" and "failed" are
	// the two values this service writes itself.
	Status string

	PeriodEnd *time.Time

	// RawEvent keeps the full original webhook payload for audit and replay.
	RawEvent string

	CreatedAt time.Time
	UpdatedAt time.Time
}
