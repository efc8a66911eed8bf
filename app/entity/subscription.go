package entity

import (
	"strings"
	"time"
)

type SubscriptionStatus string

const (
	SubscriptionStatusIncomplete SubscriptionStatus = "incomplete"
	SubscriptionStatusTrialing   SubscriptionStatus = "trialing"
	SubscriptionStatusActive     SubscriptionStatus = "active"
	SubscriptionStatusPastDue    SubscriptionStatus = "past_due"
	SubscriptionStatusUnpaid     SubscriptionStatus = "unpaid"
	SubscriptionStatusCanceled   SubscriptionStatus = "canceled"
)

func ParseSubscriptionStatus(raw string) SubscriptionStatus {
	switch SubscriptionStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case SubscriptionStatusIncomplete:
		return SubscriptionStatusIncomplete
	case SubscriptionStatusTrialing:
		return SubscriptionStatusTrialing
	case SubscriptionStatusActive:
		return SubscriptionStatusActive
	case SubscriptionStatusPastDue:
		return SubscriptionStatusPastDue
	case SubscriptionStatusUnpaid:
		return SubscriptionStatusUnpaid
	case SubscriptionStatusCanceled:
		return SubscriptionStatusCanceled
	default:
		return SubscriptionStatusIncomplete
	}
}

// CanTransition reports whether a status change is legal. Deliveries arrive
// at-least-once and unordered, so everything is last-write-wins except
// canceled, which is absorbing: a late update for an already-canceled
// subscription must not resurrect it.
func (s SubscriptionStatus) CanTransition(to SubscriptionStatus) bool {
	if s == SubscriptionStatusCanceled {
		return false
	}
	return to != ""
}

func (s SubscriptionStatus) Terminal() bool {
	return s == SubscriptionStatusCanceled
}

type Subscription struct {
	ID uint64

	SubscriptionID string
	InternalUserID string

	Status  SubscriptionStatus
	Plan    string
	PriceID *string

	PeriodStart *time.Time
	PeriodEnd   *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
