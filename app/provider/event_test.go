package provider

import (
	"testing"
)

func TestParseWebhookEventInvoice(t *testing.T) {
	payload := []byte(`{"id":"evt_2","type":"invoice.payment_failed","data":{"object":{"id":"in_1","customer":{"id":"cus_1"},"subscription":"sub_1","amount_due":4900,"currency":"usd"}}}`)

	event, err := parseWebhookEvent(payload)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if event.Invoice == nil {
		t.Fatal("expected invoice variant")
	}
	if event.Invoice.SubscriptionID != "sub_1" {
		t.Fatalf("unexpected subscription id: %s", event.Invoice.SubscriptionID)
	}
	if event.Invoice.CustomerID != "cus_1" {
		t.Fatalf("expected customer id from expanded object, got %s", event.Invoice.CustomerID)
	}
	if event.CheckoutSession != nil || event.Subscription != nil {
		t.Fatal("expected only the invoice variant to be set")
	}
}

func TestParseWebhookEventSubscriptionDeleted(t *testing.T) {
	payload := []byte(`{"id":"evt_3","type":"customer.subscription.deleted","data":{"object":{"id":"sub_1","customer":"cus_1","status":"canceled","current_period_end":1702592000}}}`)

	event, err := parseWebhookEvent(payload)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if event.Subscription == nil {
		t.Fatal("expected subscription variant")
	}
	if event.Subscription.Status != "canceled" {
		t.Fatalf("unexpected status: %s", event.Subscription.Status)
	}
	if event.Subscription.PeriodEnd == nil {
		t.Fatal("expected period end")
	}
}

func TestParseWebhookEventUnknownTypeHasNoVariant(t *testing.T) {
	payload := []byte(`{"id":"evt_4","type":"product.created","data":{"object":{"id":"prod_1"}}}`)

	event, err := parseWebhookEvent(payload)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if event.CheckoutSession != nil || event.Invoice != nil || event.Subscription != nil {
		t.Fatal("expected no variant for unknown type")
	}
	if event.ID != "evt_4" || event.Type != "product.created" {
		t.Fatalf("unexpected envelope: %+v", event)
	}
}

func TestParseStringish(t *testing.T) {
	if parseStringish(" sub_1 ") != "sub_1" {
		t.Fatal("expected trimmed string")
	}
	if parseStringish(map[string]interface{}{"id": "sub_2"}) != "sub_2" {
		t.Fatal("expected id from object form")
	}
	if parseStringish(nil) != "" {
		t.Fatal("expected empty for nil")
	}
}
