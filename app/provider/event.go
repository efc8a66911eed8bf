package provider

import (
	"encoding/json"
	"strings"
	"time"
)

// Webhook event types this service acts on. Anything else is acknowledged
// without side effects.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventInvoicePaid         = "invoice.payment_succeeded"
	EventInvoiceFailed       = "invoice.payment_failed"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

// WebhookEvent is a verified, parsed delivery. Exactly one of the variant
// pointers is set, matching the event type family; all are nil for types
// this service does not handle.
type WebhookEvent struct {
	ID   string
	Type string
	Raw  json.RawMessage

	CheckoutSession *CheckoutSession
	Invoice         *Invoice
	Subscription    *Subscription
}

type CheckoutSession struct {
	ID                string
	CustomerID        string
	CustomerEmail     string
	CustomerName      string
	SubscriptionID    string
	ClientReferenceID string
	Metadata          map[string]string
	AmountTotal       int64
	Currency          string
	PaymentStatus     string
}

type Invoice struct {
	ID             string
	CustomerID     string
	SubscriptionID string
	AmountDue      int64
	Currency       string
}

type Subscription struct {
	ID          string
	CustomerID  string
	Status      string
	Plan        string
	PriceID     string
	PeriodStart *time.Time
	PeriodEnd   *time.Time
}

type eventEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

func parseWebhookEvent(payload []byte) (*WebhookEvent, error) {
	var envelope eventEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, err
	}

	event := &WebhookEvent{
		ID:   strings.TrimSpace(envelope.ID),
		Type: strings.TrimSpace(envelope.Type),
		Raw:  json.RawMessage(payload),
	}

	switch event.Type {
	case EventCheckoutCompleted:
		event.CheckoutSession = parseCheckoutSession(envelope.Data.Object)
	case EventInvoicePaid, EventInvoiceFailed:
		event.Invoice = parseInvoice(envelope.Data.Object)
	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		event.Subscription = parseSubscriptionObject(envelope.Data.Object)
	}

	return event, nil
}

func parseCheckoutSession(payload json.RawMessage) *CheckoutSession {
	var object struct {
		ID              string `json:"id"`
		Customer        interface{} `json:"customer"`
		CustomerDetails struct {
			Email string `json:"email"`
			Name  string `json:"name"`
		} `json:"customer_details"`
		Subscription      interface{}       `json:"subscription"`
		ClientReferenceID string            `json:"client_reference_id"`
		Metadata          map[string]string `json:"metadata"`
		AmountTotal       int64             `json:"amount_total"`
		Currency          string            `json:"currency"`
		PaymentStatus     string            `json:"payment_status"`
	}
	if json.Unmarshal(payload, &object) != nil {
		return nil
	}

	return &CheckoutSession{
		ID:                strings.TrimSpace(object.ID),
		CustomerID:        parseStringish(object.Customer),
		CustomerEmail:     strings.TrimSpace(object.CustomerDetails.Email),
		CustomerName:      strings.TrimSpace(object.CustomerDetails.Name),
		SubscriptionID:    parseStringish(object.Subscription),
		ClientReferenceID: strings.TrimSpace(object.ClientReferenceID),
		Metadata:          object.Metadata,
		AmountTotal:       object.AmountTotal,
		Currency:          strings.ToLower(strings.TrimSpace(object.Currency)),
		PaymentStatus:     strings.TrimSpace(object.PaymentStatus),
	}
}

func parseInvoice(payload json.RawMessage) *Invoice {
	var object struct {
		ID           string      `json:"id"`
		Customer     interface{} `json:"customer"`
		Subscription interface{} `json:"subscription"`
		AmountDue    int64       `json:"amount_due"`
		Currency     string      `json:"currency"`
	}
	if json.Unmarshal(payload, &object) != nil {
		return nil
	}

	return &Invoice{
		ID:             strings.TrimSpace(object.ID),
		CustomerID:     parseStringish(object.Customer),
		SubscriptionID: parseStringish(object.Subscription),
		AmountDue:      object.AmountDue,
		Currency:       strings.ToLower(strings.TrimSpace(object.Currency)),
	}
}

func parseSubscriptionObject(payload json.RawMessage) *Subscription {
	var object struct {
		ID                 string      `json:"id"`
		Customer           interface{} `json:"customer"`
		Status             string      `json:"status"`
		CurrentPeriodStart int64       `json:"current_period_start"`
		CurrentPeriodEnd   int64       `json:"current_period_end"`
		Items              struct {
			Data []struct {
				Price struct {
					ID        string `json:"id"`
					Nickname  string `json:"nickname"`
					LookupKey string `json:"lookup_key"`
				} `json:"price"`
			} `json:"data"`
		} `json:"items"`
	}
	if json.Unmarshal(payload, &object) != nil {
		return nil
	}

	subscription := &Subscription{
		ID:          strings.TrimSpace(object.ID),
		CustomerID:  parseStringish(object.Customer),
		Status:      strings.TrimSpace(object.Status),
		PeriodStart: timeFromUnix(object.CurrentPeriodStart),
		PeriodEnd:   timeFromUnix(object.CurrentPeriodEnd),
	}
	if len(object.Items.Data) > 0 {
		price := object.Items.Data[0].Price
		subscription.PriceID = strings.TrimSpace(price.ID)
		subscription.Plan = strings.TrimSpace(price.Nickname)
		if subscription.Plan == "" {
			subscription.Plan = strings.TrimSpace(price.LookupKey)
		}
	}

	return subscription
}

func timeFromUnix(v int64) *time.Time {
	if v <= 0 {
		return nil
	}
	t := time.Unix(v, 0).UTC()
	return &t
}

func parseStringish(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]interface{}:
		if raw, ok := t["id"]; ok {
			if s, ok := raw.(string); ok {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}
