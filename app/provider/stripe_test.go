package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func signPayload(payload []byte, secret string, ts int64) string {
	signed := fmt.Sprintf("%d.%s", ts, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signed))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifyStripeSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	secret := "whsec_test"
	header := signPayload(payload, secret, time.Now().Unix())

	if !verifyStripeSignature(payload, header, secret, 300) {
		t.Fatal("expected signature to validate")
	}
	if verifyStripeSignature(payload, header, "wrong-secret", 300) {
		t.Fatal("expected signature with wrong secret to fail")
	}
	if verifyStripeSignature([]byte(`{"id":"evt_1","type":"tampered"}`), header, secret, 300) {
		t.Fatal("expected tampered payload to fail")
	}
}

func TestVerifyStripeSignatureRejectsStaleTimestamp(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	secret := "whsec_test"
	header := signPayload(payload, secret, time.Now().Add(-time.Hour).Unix())

	if verifyStripeSignature(payload, header, secret, 300) {
		t.Fatal("expected stale timestamp to fail")
	}
}

func TestVerifyWebhookReturnsTypedEvent(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"id":"cs_1","customer":"cus_1","client_reference_id":"user_42","amount_total":4900,"currency":"usd","payment_status":"paid","customer_details":{"email":"a@b.com","name":"Ada"}}}}`)
	secret := "whsec_test"
	p := NewStripeProvider(StripeConfig{WebhookSecret: secret})

	event, err := p.VerifyWebhook(context.Background(), payload, signPayload(payload, secret, time.Now().Unix()))
	if err != nil {
		t.Fatalf("verify webhook failed: %v", err)
	}
	if event.ID != "evt_1" || event.Type != EventCheckoutCompleted {
		t.Fatalf("unexpected envelope: id=%s type=%s", event.ID, event.Type)
	}
	if event.CheckoutSession == nil {
		t.Fatal("expected checkout session variant")
	}
	if event.CheckoutSession.CustomerID != "cus_1" || event.CheckoutSession.ClientReferenceID != "user_42" {
		t.Fatalf("unexpected checkout session: %+v", event.CheckoutSession)
	}
}

func TestVerifyWebhookRejectsBadSignature(t *testing.T) {
	p := NewStripeProvider(StripeConfig{WebhookSecret: "whsec_test"})

	_, err := p.VerifyWebhook(context.Background(), []byte(`{"id":"evt_1","type":"x"}`), "t=1,v1=deadbeef")
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestGetSubscriptionParsesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/subscriptions/sub_1" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk_test" {
			t.Fatalf("unexpected authorization header: %s", r.Header.Get("Authorization"))
		}
		fmt.Fprint(w, `{"id":"sub_1","customer":"cus_1","status":"active","current_period_start":1700000000,"current_period_end":1702592000,"items":{"data":[{"price":{"id":"price_1","nickname":"studio-monthly"}}]}}`)
	}))
	defer server.Close()

	p := NewStripeProvider(StripeConfig{SecretKey: "sk_test", APIBase: server.URL})

	subscription, err := p.GetSubscription(context.Background(), "sub_1")
	if err != nil {
		t.Fatalf("get subscription failed: %v", err)
	}
	if subscription.Status != "active" || subscription.PriceID != "price_1" {
		t.Fatalf("unexpected subscription: %+v", subscription)
	}
	if subscription.Plan != "studio-monthly" {
		t.Fatalf("unexpected plan: %s", subscription.Plan)
	}
	if subscription.PeriodEnd == nil {
		t.Fatal("expected period end")
	}
}

func TestGetSubscriptionRetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"id":"sub_1","status":"active"}`)
	}))
	defer server.Close()

	p := NewStripeProvider(StripeConfig{SecretKey: "sk_test", APIBase: server.URL})

	subscription, err := p.GetSubscription(context.Background(), "sub_1")
	if err != nil {
		t.Fatalf("get subscription failed after retry: %v", err)
	}
	if subscription.Status != "active" {
		t.Fatalf("unexpected status: %s", subscription.Status)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestGetSubscriptionDoesNotRetryClientError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	p := NewStripeProvider(StripeConfig{SecretKey: "sk_test", APIBase: server.URL})

	if _, err := p.GetSubscription(context.Background(), "sub_missing"); err == nil {
		t.Fatal("expected error for missing subscription")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 call, got %d", calls.Load())
	}
}

func TestCreateCheckoutSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/checkout/sessions" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form failed: %v", err)
		}
		if r.PostForm.Get("mode") != "subscription" {
			t.Fatalf("unexpected mode: %s", r.PostForm.Get("mode"))
		}
		if r.PostForm.Get("client_reference_id") != "user_42" {
			t.Fatalf("unexpected client_reference_id: %s", r.PostForm.Get("client_reference_id"))
		}
		if r.PostForm.Get("metadata[userId]") != "user_42" {
			t.Fatalf("unexpected metadata user id: %s", r.PostForm.Get("metadata[userId]"))
		}
		fmt.Fprint(w, `{"id":"cs_1","url":"https://checkout.stripe.example/cs_1"}`)
	}))
	defer server.Close()

	p := NewStripeProvider(StripeConfig{SecretKey: "sk_test", APIBase: server.URL})

	output, err := p.CreateCheckoutSession(context.Background(), &CheckoutInput{
		RequestID:      "req-1",
		InternalUserID: "user_42",
		Plan:           "studio-monthly",
		AmountCents:    4900,
		Currency:       "USD",
		Subscription:   true,
		Interval:       "month",
	})
	if err != nil {
		t.Fatalf("create checkout session failed: %v", err)
	}
	if output.SessionID != "cs_1" || output.CheckoutURL != "https://checkout.stripe.example/cs_1" {
		t.Fatalf("unexpected output: %+v", output)
	}
}
