package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/meridian-studio/ms-go-billing/app/entity"
	"github.com/meridian-studio/ms-go-billing/app/metrics"
	"github.com/meridian-studio/ms-go-billing/app/provider"
	"github.com/meridian-studio/ms-go-billing/app/repository"
)

const (
	metadataUserIDKey = "userId"
	metadataPlanKey   = "plan"

	maxLoggedPayloadBytes   = 16 * 1024
	maxLoggedSignatureBytes = 512
)

// WebhookReceipt is what the transport layer acknowledges to the processor.
// Duplicate covers both the ledger fast path and a lost insert race.
type WebhookReceipt struct {
	EventID   string
	EventType string
	Handled   bool
	Duplicate bool
}

// HandleStripeWebhook runs one delivery through verification, the idempotency
// ledger, and the per-event-type mutations. The ledger is written last, after
// every domain mutation succeeded, so a failed delivery stays unmarked and the
// processor's retry gets a clean attempt.
func (s *BillingService) HandleStripeWebhook(ctx context.Context, payload []byte, signature string) (*WebhookReceipt, error) {
	event, err := s.provider.VerifyWebhook(ctx, payload, signature)
	if err != nil {
		s.persistWebhookLog(ctx, nil, "", signature, payload, entity.WebhookLogStatusRejected, err)
		metrics.WebhookDeliveries.WithLabelValues("unknown", metrics.OutcomeRejected).Inc()
		s.logger.WithError(err).Warn("Webhook delivery rejected")
		return nil, fmt.Errorf("%w: %s", ErrSignatureInvalid, err)
	}

	logger := s.logger.WithField("event_id", event.ID).WithField("event_type", event.Type)

	seen, err := s.ledgerRepo.Exists(ctx, event.ID)
	if err != nil {
		return nil, err
	}
	if seen {
		s.persistWebhookLog(ctx, &event.ID, event.Type, signature, payload, entity.WebhookLogStatusDuplicate, nil)
		metrics.WebhookDeliveries.WithLabelValues(event.Type, metrics.OutcomeDuplicate).Inc()
		logger.Info("Duplicate webhook delivery acknowledged")
		return &WebhookReceipt{EventID: event.ID, EventType: event.Type, Duplicate: true}, nil
	}

	handled, err := s.applyEvent(ctx, event)
	if err != nil {
		metrics.WebhookDeliveries.WithLabelValues(event.Type, metrics.OutcomeFailed).Inc()
		logger.WithError(err).Error("Webhook event processing failed")
		return nil, err
	}

	if err := s.ledgerRepo.Record(ctx, event.ID, time.Now().UTC()); err != nil {
		if errors.Is(err, repository.ErrEventAlreadyRecorded) {
			// A concurrent delivery of the same event finished first. Both
			// applied the same idempotent mutations, so acknowledge as a
			// duplicate rather than fail.
			s.persistWebhookLog(ctx, &event.ID, event.Type, signature, payload, entity.WebhookLogStatusDuplicate, nil)
			metrics.WebhookDeliveries.WithLabelValues(event.Type, metrics.OutcomeDuplicate).Inc()
			logger.Info("Lost webhook ledger race, acknowledging duplicate")
			return &WebhookReceipt{EventID: event.ID, EventType: event.Type, Handled: handled, Duplicate: true}, nil
		}
		return nil, err
	}

	s.persistWebhookLog(ctx, &event.ID, event.Type, signature, payload, entity.WebhookLogStatusProcessed, nil)
	if handled {
		metrics.WebhookDeliveries.WithLabelValues(event.Type, metrics.OutcomeProcessed).Inc()
		logger.Info("Webhook event processed")
	} else {
		metrics.WebhookDeliveries.WithLabelValues(event.Type, metrics.OutcomeIgnored).Inc()
		logger.Info("Webhook event type not handled, acknowledged")
	}

	return &WebhookReceipt{EventID: event.ID, EventType: event.Type, Handled: handled}, nil
}

func (s *BillingService) applyEvent(ctx context.Context, event *provider.WebhookEvent) (bool, error) {
	switch event.Type {
	case provider.EventCheckoutCompleted:
		return true, s.applyCheckoutCompleted(ctx, event)
	case provider.EventInvoicePaid:
		return true, s.applyInvoiceStatus(ctx, event, entity.PaymentStatusPaid)
	case provider.EventInvoiceFailed:
		return true, s.applyInvoiceStatus(ctx, event, entity.PaymentStatusFailed)
	case provider.EventSubscriptionUpdated:
		return true, s.applySubscriptionUpdate(ctx, event, "")
	case provider.EventSubscriptionDeleted:
		return true, s.applySubscriptionUpdate(ctx, event, entity.SubscriptionStatusCanceled)
	default:
		return false, nil
	}
}

func (s *BillingService) applyCheckoutCompleted(ctx context.Context, event *provider.WebhookEvent) error {
	session := event.CheckoutSession
	if session == nil || session.ID == "" {
		return fmt.Errorf("event %s has no usable checkout session object", event.ID)
	}

	internalUserID := resolveInternalUserID(session.ClientReferenceID, session.Metadata)

	var upstream *provider.Subscription
	if session.SubscriptionID != "" {
		fetched, err := s.provider.GetSubscription(ctx, session.SubscriptionID)
		if err != nil {
			return fmt.Errorf("%w: subscription %s: %s", ErrUpstreamFetch, session.SubscriptionID, err)
		}
		upstream = fetched
	}

	now := time.Now().UTC()

	if session.CustomerID != "" {
		customer := &entity.Customer{
			CustomerID:  session.CustomerID,
			Email:       session.CustomerEmail,
			DisplayName: session.CustomerName,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if internalUserID != "" {
			customer.InternalUserID = &internalUserID
		}
		if err := s.customerRepo.Upsert(ctx, customer); err != nil {
			return err
		}
	}

	payment := &entity.Payment{
		CustomerID:  session.CustomerID,
		AmountTotal: session.AmountTotal,
		Currency:    session.Currency,
		Status:      session.PaymentStatus,
		RawEvent:    string(event.Raw),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if payment.Status == "" {
		payment.Status = entity.PaymentStatusPaid
	}
	payment.SessionID = &session.ID
	if session.SubscriptionID != "" {
		subscriptionID := session.SubscriptionID
		payment.SubscriptionID = &subscriptionID
	}
	if upstream != nil {
		if upstream.PriceID != "" {
			priceID := upstream.PriceID
			payment.PriceID = &priceID
		}
		payment.PeriodEnd = upstream.PeriodEnd
	}
	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		return err
	}

	if upstream == nil {
		return nil
	}
	if internalUserID == "" {
		// Checkout carried neither client_reference_id nor a userId metadata
		// entry. The payment row is kept, the subscription cannot be linked.
		s.logger.WithField("event_id", event.ID).
			WithField("subscription_id", upstream.ID).
			Warn("Checkout session has no internal user reference, skipping subscription upsert")
		return nil
	}

	return s.upsertSubscriptionGuarded(ctx, upstream, internalUserID, planFromSession(session, upstream), now)
}

func (s *BillingService) applyInvoiceStatus(ctx context.Context, event *provider.WebhookEvent, status string) error {
	invoice := event.Invoice
	if invoice == nil || invoice.ID == "" {
		return fmt.Errorf("event %s has no usable invoice object", event.ID)
	}
	if invoice.SubscriptionID == "" {
		s.logger.WithField("event_id", event.ID).
			WithField("invoice_id", invoice.ID).
			Info("Invoice is not tied to a subscription, nothing to update")
		return nil
	}

	affected, err := s.paymentRepo.UpdateStatusBySubscription(ctx, invoice.SubscriptionID, status, time.Now().UTC())
	if err != nil {
		return err
	}
	if affected == 0 {
		s.logger.WithField("event_id", event.ID).
			WithField("subscription_id", invoice.SubscriptionID).
			Debug("Invoice event matched no stored payments")
	}

	return nil
}

// applySubscriptionUpdate handles both customer.subscription.updated and
// .deleted; forcedStatus overrides the object status for the deleted case.
// Transitions out of a canceled subscription are refused, which makes
// delivery order of updated/deleted pairs irrelevant.
func (s *BillingService) applySubscriptionUpdate(ctx context.Context, event *provider.WebhookEvent, forcedStatus entity.SubscriptionStatus) error {
	object := event.Subscription
	if object == nil || object.ID == "" {
		return fmt.Errorf("event %s has no usable subscription object", event.ID)
	}

	newStatus := forcedStatus
	if newStatus == "" {
		newStatus = entity.ParseSubscriptionStatus(object.Status)
	}

	existing, err := s.subscriptionRepo.FindBySubscriptionID(ctx, object.ID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()

	if existing == nil {
		internalUserID := s.lookupInternalUserID(ctx, object.CustomerID)
		if internalUserID == "" {
			s.logger.WithField("event_id", event.ID).
				WithField("subscription_id", object.ID).
				Warn("Subscription event for unknown subscription with no resolvable user, skipping")
			return nil
		}
		return s.subscriptionRepo.Upsert(ctx, &entity.Subscription{
			SubscriptionID: object.ID,
			InternalUserID: internalUserID,
			Status:         newStatus,
			Plan:           object.Plan,
			PriceID:        stringPtrOrNil(object.PriceID),
			PeriodStart:    object.PeriodStart,
			PeriodEnd:      object.PeriodEnd,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}

	if !existing.Status.CanTransition(newStatus) {
		s.logger.WithField("event_id", event.ID).
			WithField("subscription_id", object.ID).
			WithField("from", string(existing.Status)).
			WithField("to", string(newStatus)).
			Info("Refusing subscription status transition")
		return nil
	}

	_, err = s.subscriptionRepo.UpdateStatus(ctx, object.ID, newStatus, object.PeriodEnd, now)
	return err
}

func (s *BillingService) upsertSubscriptionGuarded(ctx context.Context, upstream *provider.Subscription, internalUserID, plan string, now time.Time) error {
	newStatus := entity.ParseSubscriptionStatus(upstream.Status)

	existing, err := s.subscriptionRepo.FindBySubscriptionID(ctx, upstream.ID)
	if err != nil {
		return err
	}
	if existing != nil && !existing.Status.CanTransition(newStatus) {
		newStatus = existing.Status
	}

	return s.subscriptionRepo.Upsert(ctx, &entity.Subscription{
		SubscriptionID: upstream.ID,
		InternalUserID: internalUserID,
		Status:         newStatus,
		Plan:           plan,
		PriceID:        stringPtrOrNil(upstream.PriceID),
		PeriodStart:    upstream.PeriodStart,
		PeriodEnd:      upstream.PeriodEnd,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
}

// resolveInternalUserID prefers the checkout client_reference_id and falls
// back to the userId metadata entry. Both are set by CreateCheckoutSession,
// so either one identifies sessions this service initiated.
func resolveInternalUserID(clientReferenceID string, metadata map[string]string) string {
	if v := strings.TrimSpace(clientReferenceID); v != "" {
		return v
	}
	return strings.TrimSpace(metadata[metadataUserIDKey])
}

func (s *BillingService) lookupInternalUserID(ctx context.Context, customerID string) string {
	if customerID == "" {
		return ""
	}
	customer, err := s.customerRepo.FindByCustomerID(ctx, customerID)
	if err != nil || customer == nil || customer.InternalUserID == nil {
		return ""
	}
	return *customer.InternalUserID
}

func planFromSession(session *provider.CheckoutSession, upstream *provider.Subscription) string {
	if plan := strings.TrimSpace(session.Metadata[metadataPlanKey]); plan != "" {
		return plan
	}
	return upstream.Plan
}

func (s *BillingService) persistWebhookLog(ctx context.Context, eventID *string, eventType, signature string, payload []byte, status int32, cause error) {
	log := &entity.WebhookLog{
		EventID:     eventID,
		EventType:   eventType,
		Signature:   truncate(signature, maxLoggedSignatureBytes),
		PayloadJSON: truncate(string(payload), maxLoggedPayloadBytes),
		Status:      status,
		CreatedAt:   time.Now().UTC(),
	}
	if cause != nil {
		message := truncate(cause.Error(), 1024)
		log.Error = &message
	}

	if err := s.logRepo.Create(ctx, log); err != nil {
		s.logger.WithError(err).Warn("Failed to persist webhook audit log")
	}
}

func stringPtrOrNil(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
