package provider

import (
	"context"
	"errors"
)

// ErrInvalidSignature covers a missing, malformed, stale, or unverifiable
// webhook signature. It is the only provider error the webhook flow treats
// as non-retryable.
var ErrInvalidSignature = errors.New("invalid webhook signature")

type CheckoutInput struct {
	RequestID      string
	InternalUserID string

	Plan        string
	AmountCents int64
	Currency    string

	// Subscription selects subscription mode; one-time payment otherwise.
	Subscription bool
	Interval     string

	SuccessURL string
	CancelURL  string
}

type CheckoutOutput struct {
	SessionID   string
	CheckoutURL string
}

// Provider is the payment processor capability the billing service consumes.
type Provider interface {
	VerifyWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	CreateCheckoutSession(ctx context.Context, input *CheckoutInput) (*CheckoutOutput, error)
}
