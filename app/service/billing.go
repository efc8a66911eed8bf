package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/meridian-studio/ms-go-billing/app/entity"
	"github.com/meridian-studio/ms-go-billing/app/factory"
	"github.com/meridian-studio/ms-go-billing/app/metrics"
	"github.com/meridian-studio/ms-go-billing/app/provider"
	"github.com/meridian-studio/ms-go-billing/app/types"
	"github.com/meridian-studio/ms-go-billing/config"
)

const defaultPaymentsListLimit = int32(100)

type customerRepository interface {
	Upsert(ctx context.Context, customer *entity.Customer) error
	FindByCustomerID(ctx context.Context, customerID string) (*entity.Customer, error)
	FindByInternalUserID(ctx context.Context, internalUserID string) (*entity.Customer, error)
}

type paymentRepository interface {
	Create(ctx context.Context, payment *entity.Payment) error
	UpdateStatusBySubscription(ctx context.Context, subscriptionID, status string, updatedAt time.Time) (int64, error)
	ListByCustomerID(ctx context.Context, customerID string, limit int32) ([]*entity.Payment, error)
}

type subscriptionRepository interface {
	Upsert(ctx context.Context, subscription *entity.Subscription) error
	UpdateStatus(ctx context.Context, subscriptionID string, status entity.SubscriptionStatus, periodEnd *time.Time, updatedAt time.Time) (int64, error)
	FindBySubscriptionID(ctx context.Context, subscriptionID string) (*entity.Subscription, error)
	FindByInternalUserID(ctx context.Context, internalUserID string) (*entity.Subscription, error)
	ListStaleNonTerminal(ctx context.Context, before time.Time, limit int32) ([]*entity.Subscription, error)
}

type eventLedgerRepository interface {
	Exists(ctx context.Context, eventID string) (bool, error)
	Record(ctx context.Context, eventID string, processedAt time.Time) error
}

type webhookLogRepository interface {
	Create(ctx context.Context, log *entity.WebhookLog) error
}

type BillingService struct {
	customerRepo     customerRepository
	paymentRepo      paymentRepository
	subscriptionRepo subscriptionRepository
	ledgerRepo       eventLedgerRepository
	logRepo          webhookLogRepository
	provider         provider.Provider
	billingCfg       config.BillingConfig
	logger           logrus.FieldLogger
}

func NewBillingService(
	customerRepo customerRepository,
	paymentRepo paymentRepository,
	subscriptionRepo subscriptionRepository,
	ledgerRepo eventLedgerRepository,
	logRepo webhookLogRepository,
	providerClient provider.Provider,
	billingCfg config.BillingConfig,
) *BillingService {
	return &BillingService{
		customerRepo:     customerRepo,
		paymentRepo:      paymentRepo,
		subscriptionRepo: subscriptionRepo,
		ledgerRepo:       ledgerRepo,
		logRepo:          logRepo,
		provider:         providerClient,
		billingCfg:       billingCfg,
		logger:           factory.NewModuleLogger("billing-service"),
	}
}

func (s *BillingService) CreateCheckoutSession(ctx context.Context, req *types.CreateCheckoutRequest) (*provider.CheckoutOutput, error) {
	if req == nil || strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.Plan) == "" || req.AmountCents <= 0 {
		return nil, ErrInvalidRequest
	}

	requestID := strings.TrimSpace(req.RequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	output, err := s.provider.CreateCheckoutSession(ctx, &provider.CheckoutInput{
		RequestID:      requestID,
		InternalUserID: strings.TrimSpace(req.UserID),
		Plan:           strings.TrimSpace(req.Plan),
		AmountCents:    req.AmountCents,
		Currency:       strings.ToUpper(strings.TrimSpace(req.Currency)),
		Subscription:   req.Mode == types.CheckoutModeSubscription,
		Interval:       strings.ToLower(strings.TrimSpace(req.Interval)),
		SuccessURL:     strings.TrimSpace(req.SuccessURL),
		CancelURL:      strings.TrimSpace(req.CancelURL),
	})
	if err != nil {
		return nil, err
	}

	metrics.CheckoutSessions.Inc()
	s.logger.WithField("session_id", output.SessionID).WithField("plan", req.Plan).Info("Checkout session created")

	return output, nil
}

func (s *BillingService) GetCustomerByUserID(ctx context.Context, internalUserID string) (*entity.Customer, error) {
	customer, err := s.customerRepo.FindByInternalUserID(ctx, strings.TrimSpace(internalUserID))
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, ErrCustomerNotFound
	}
	return customer, nil
}

func (s *BillingService) GetSubscription(ctx context.Context, subscriptionID string) (*entity.Subscription, error) {
	subscription, err := s.subscriptionRepo.FindBySubscriptionID(ctx, strings.TrimSpace(subscriptionID))
	if err != nil {
		return nil, err
	}
	if subscription == nil {
		return nil, ErrSubscriptionNotFound
	}
	return subscription, nil
}

func (s *BillingService) GetSubscriptionByUserID(ctx context.Context, internalUserID string) (*entity.Subscription, error) {
	subscription, err := s.subscriptionRepo.FindByInternalUserID(ctx, strings.TrimSpace(internalUserID))
	if err != nil {
		return nil, err
	}
	if subscription == nil {
		return nil, ErrSubscriptionNotFound
	}
	return subscription, nil
}

func (s *BillingService) ListCustomerPayments(ctx context.Context, customerID string, limit int32) ([]*entity.Payment, error) {
	if limit <= 0 {
		limit = defaultPaymentsListLimit
	}
	return s.paymentRepo.ListByCustomerID(ctx, strings.TrimSpace(customerID), limit)
}

func (s *BillingService) sweepBatchSize() int32 {
	if s.billingCfg.SweepBatchSize > 0 {
		return s.billingCfg.SweepBatchSize
	}
	return 100
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max]
}
