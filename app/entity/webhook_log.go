package entity

import "time"

const (
	WebhookLogStatusProcessed int32 = 10
	WebhookLogStatusDuplicate int32 = 11
	WebhookLogStatusRejected  int32 = 20
)

// WebhookLog is the audit trail of every webhook delivery, including
// rejected and duplicate ones. It is separate from the idempotency ledger:
// a delivery may appear here many times, the ledger holds each event once.
type WebhookLog struct {
	ID uint64

	EventID   *string
	EventType string
	Signature string

	PayloadJSON string
	Status      int32
	Error       *string

	CreatedAt time.Time
}
