package types

import (
	"errors"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	CheckoutModeOneTime      = "one_time"
	CheckoutModeSubscription = "subscription"
)

type HealthResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// WebhookReceiptResponse is the acknowledgement body for the payment
// processor. Duplicate deliveries get the same 200 with the flag set.
type WebhookReceiptResponse struct {
	Received  bool `json:"received"`
	Duplicate bool `json:"duplicate,omitempty"`
}

type CreateCheckoutRequest struct {
	RequestID   string `json:"request_id"`
	UserID      string `json:"user_id"`
	Plan        string `json:"plan"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Mode        string `json:"mode"`
	Interval    string `json:"interval"`
	SuccessURL  string `json:"success_url"`
	CancelURL   string `json:"cancel_url"`
}

func NewCreateCheckoutRequestFromContext(ctx echo.Context) (*CreateCheckoutRequest, error) {
	var body CreateCheckoutRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.RequestID = strings.TrimSpace(body.RequestID)
	if body.RequestID == "" {
		body.RequestID = strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderXRequestID))
	}
	body.UserID = strings.TrimSpace(body.UserID)
	body.Plan = strings.TrimSpace(body.Plan)
	body.Currency = strings.ToUpper(strings.TrimSpace(body.Currency))
	body.Mode = strings.ToLower(strings.TrimSpace(body.Mode))
	if body.Mode == "" {
		body.Mode = CheckoutModeOneTime
	}
	body.Interval = strings.ToLower(strings.TrimSpace(body.Interval))
	body.SuccessURL = strings.TrimSpace(body.SuccessURL)
	body.CancelURL = strings.TrimSpace(body.CancelURL)

	return &body, nil
}

func (r *CreateCheckoutRequest) Validate() error {
	if r.UserID == "" {
		return errors.New("user_id is required")
	}
	if r.Plan == "" {
		return errors.New("plan is required")
	}
	if r.AmountCents <= 0 {
		return errors.New("amount_cents must be > 0")
	}
	if len(r.Currency) != 3 {
		return errors.New("currency must be 3 letters")
	}
	if r.Mode != CheckoutModeOneTime && r.Mode != CheckoutModeSubscription {
		return errors.New("mode must be one_time or subscription")
	}
	if r.Mode == CheckoutModeSubscription && r.Interval != "" {
		if r.Interval != "day" && r.Interval != "week" && r.Interval != "month" && r.Interval != "year" {
			return errors.New("interval must be day, week, month, or year")
		}
	}
	return nil
}

type CheckoutSessionResponse struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
}

type Customer struct {
	CustomerID     string `json:"customer_id"`
	InternalUserID string `json:"internal_user_id,omitempty"`
	Email          string `json:"email"`
	DisplayName    string `json:"display_name"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

type Subscription struct {
	SubscriptionID string `json:"subscription_id"`
	InternalUserID string `json:"internal_user_id"`
	Status         string `json:"status"`
	Plan           string `json:"plan"`
	PriceID        string `json:"price_id,omitempty"`
	PeriodStart    string `json:"period_start,omitempty"`
	PeriodEnd      string `json:"period_end,omitempty"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

type Payment struct {
	ID             uint64 `json:"id"`
	SessionID      string `json:"session_id,omitempty"`
	CustomerID     string `json:"customer_id"`
	SubscriptionID string `json:"subscription_id,omitempty"`
	PriceID        string `json:"price_id,omitempty"`
	AmountTotal    int64  `json:"amount_total"`
	Currency       string `json:"currency"`
	Status         string `json:"status"`
	PeriodEnd      string `json:"period_end,omitempty"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

type CustomerEnvelopeResponse struct {
	Customer *Customer `json:"customer"`
}

type SubscriptionEnvelopeResponse struct {
	Subscription *Subscription `json:"subscription"`
}

type ListPaymentsResponse struct {
	Payments []*Payment `json:"payments"`
}
