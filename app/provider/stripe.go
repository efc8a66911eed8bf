package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const stripeAPIBase = "https://api.stripe.com"

type StripeConfig struct {
	SecretKey                 string
	WebhookSecret             string
	SignatureToleranceSeconds int64
	HTTPTimeout               time.Duration

	// APIBase overrides the Stripe endpoint, for tests.
	APIBase string
}

type StripeProvider struct {
	cfg    StripeConfig
	client *http.Client
}

func NewStripeProvider(cfg StripeConfig) *StripeProvider {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if cfg.SignatureToleranceSeconds <= 0 {
		cfg.SignatureToleranceSeconds = 300
	}
	if strings.TrimSpace(cfg.APIBase) == "" {
		cfg.APIBase = stripeAPIBase
	}

	return &StripeProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *StripeProvider) VerifyWebhook(_ context.Context, payload []byte, signature string) (*WebhookEvent, error) {
	if strings.TrimSpace(p.cfg.WebhookSecret) == "" {
		return nil, errors.New("stripe webhook secret is not configured")
	}
	if !verifyStripeSignature(payload, signature, p.cfg.WebhookSecret, p.cfg.SignatureToleranceSeconds) {
		return nil, ErrInvalidSignature
	}

	event, err := parseWebhookEvent(payload)
	if err != nil {
		return nil, err
	}
	if event.ID == "" || event.Type == "" {
		return nil, errors.New("webhook envelope missing id or type")
	}

	return event, nil
}

// GetSubscription fetches full subscription details, used to enrich checkout
// completion events and to reconcile stale rows. One retry on transport
// errors and 5xx; the processor redelivers the webhook if both attempts fail.
func (p *StripeProvider) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	if strings.TrimSpace(p.cfg.SecretKey) == "" {
		return nil, errors.New("stripe secret key is not configured")
	}

	path := "/v1/subscriptions/" + url.PathEscape(strings.TrimSpace(subscriptionID))

	body, err := p.getWithRetry(ctx, path)
	if err != nil {
		return nil, err
	}

	subscription := parseSubscriptionObject(body)
	if subscription == nil || subscription.ID == "" {
		return nil, errors.New("stripe subscription response could not be parsed")
	}

	return subscription, nil
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, input *CheckoutInput) (*CheckoutOutput, error) {
	if strings.TrimSpace(p.cfg.SecretKey) == "" {
		return nil, errors.New("stripe secret key is not configured")
	}

	values := url.Values{}
	values.Set("line_items[0][quantity]", "1")
	values.Set("line_items[0][price_data][currency]", strings.ToLower(input.Currency))
	values.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(input.AmountCents, 10))
	values.Set("line_items[0][price_data][product_data][name]", input.Plan)

	if input.Subscription {
		values.Set("mode", "subscription")
		interval := strings.ToLower(strings.TrimSpace(input.Interval))
		if interval == "" {
			interval = "month"
		}
		values.Set("line_items[0][price_data][recurring][interval]", interval)
	} else {
		values.Set("mode", "payment")
	}

	if successURL := strings.TrimSpace(input.SuccessURL); successURL != "" {
		values.Set("success_url", successURL)
	}
	if cancelURL := strings.TrimSpace(input.CancelURL); cancelURL != "" {
		values.Set("cancel_url", cancelURL)
	}

	// Both sources the webhook resolution policy reads: primary reference
	// plus the metadata fallback.
	values.Set("client_reference_id", input.InternalUserID)
	values.Set("metadata[userId]", input.InternalUserID)
	values.Set("metadata[plan]", input.Plan)
	values.Set("metadata[request_id]", input.RequestID)

	body, err := p.postForm(ctx, "/v1/checkout/sessions", values)
	if err != nil {
		return nil, err
	}

	var payload struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	if strings.TrimSpace(payload.ID) == "" || strings.TrimSpace(payload.URL) == "" {
		return nil, errors.New("stripe checkout session response missing id or url")
	}

	return &CheckoutOutput{
		SessionID:   strings.TrimSpace(payload.ID),
		CheckoutURL: strings.TrimSpace(payload.URL),
	}, nil
}

func (p *StripeProvider) getWithRetry(ctx context.Context, path string) ([]byte, error) {
	body, err := p.get(ctx, path)
	if err == nil {
		return body, nil
	}

	var httpErr *stripeHTTPError
	if errors.As(err, &httpErr) && httpErr.status < 500 {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, err
	}

	return p.get(ctx, path)
}

func (p *StripeProvider) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.APIBase+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.SecretKey)

	return p.do(req, path)
}

func (p *StripeProvider) postForm(ctx context.Context, path string, values url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.APIBase+path, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return p.do(req, path)
}

func (p *StripeProvider) do(req *http.Request, path string) ([]byte, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, &stripeHTTPError{path: path, status: resp.StatusCode, body: string(body)}
	}

	return body, nil
}

type stripeHTTPError struct {
	path   string
	status int
	body   string
}

func (e *stripeHTTPError) Error() string {
	return fmt.Sprintf("stripe request failed: path=%s status=%d body=%s", e.path, e.status, e.body)
}

func verifyStripeSignature(payload []byte, signatureHeader string, webhookSecret string, toleranceSeconds int64) bool {
	signatureHeader = strings.TrimSpace(signatureHeader)
	if signatureHeader == "" || strings.TrimSpace(webhookSecret) == "" {
		return false
	}

	parts := strings.Split(signatureHeader, ",")
	var ts string
	v1 := make([]string, 0, 1)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "t=") {
			ts = strings.TrimSpace(strings.TrimPrefix(part, "t="))
		}
		if strings.HasPrefix(part, "v1=") {
			v1 = append(v1, strings.TrimSpace(strings.TrimPrefix(part, "v1=")))
		}
	}
	if ts == "" || len(v1) == 0 {
		return false
	}

	tsUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	now := time.Now().Unix()
	if now-tsUnix > toleranceSeconds || tsUnix-now > toleranceSeconds {
		return false
	}

	signedPayload := []byte(ts + "." + string(payload))
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	_, _ = mac.Write(signedPayload)
	expected := mac.Sum(nil)

	for _, sig := range v1 {
		candidate, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(candidate, expected) {
			return true
		}
	}

	return false
}
