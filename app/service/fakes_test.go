package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/meridian-studio/ms-go-billing/app/entity"
	"github.com/meridian-studio/ms-go-billing/app/provider"
	"github.com/meridian-studio/ms-go-billing/app/repository"
	"github.com/meridian-studio/ms-go-billing/config"
)

type fakeProvider struct {
	mu sync.Mutex

	verifyFn          func(payload []byte, signature string) (*provider.WebhookEvent, error)
	getSubscriptionFn func(subscriptionID string) (*provider.Subscription, error)
	createCheckoutFn  func(input *provider.CheckoutInput) (*provider.CheckoutOutput, error)

	getSubscriptionCalls int
	lastCheckoutInput    *provider.CheckoutInput
}

func (f *fakeProvider) VerifyWebhook(_ context.Context, payload []byte, signature string) (*provider.WebhookEvent, error) {
	if f.verifyFn == nil {
		return nil, provider.ErrInvalidSignature
	}
	return f.verifyFn(payload, signature)
}

func (f *fakeProvider) GetSubscription(_ context.Context, subscriptionID string) (*provider.Subscription, error) {
	f.mu.Lock()
	f.getSubscriptionCalls++
	f.mu.Unlock()
	if f.getSubscriptionFn == nil {
		return nil, errors.New("unexpected GetSubscription call")
	}
	return f.getSubscriptionFn(subscriptionID)
}

func (f *fakeProvider) CreateCheckoutSession(_ context.Context, input *provider.CheckoutInput) (*provider.CheckoutOutput, error) {
	f.mu.Lock()
	f.lastCheckoutInput = input
	f.mu.Unlock()
	if f.createCheckoutFn == nil {
		return nil, errors.New("unexpected CreateCheckoutSession call")
	}
	return f.createCheckoutFn(input)
}

type fakeCustomerRepo struct {
	mu        sync.Mutex
	customers map[string]*entity.Customer
}

func newFakeCustomerRepo() *fakeCustomerRepo {
	return &fakeCustomerRepo{customers: map[string]*entity.Customer{}}
}

func (f *fakeCustomerRepo) Upsert(_ context.Context, customer *entity.Customer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *customer
	if existing, ok := f.customers[customer.CustomerID]; ok {
		if copied.InternalUserID == nil {
			copied.InternalUserID = existing.InternalUserID
		}
		copied.CreatedAt = existing.CreatedAt
	}
	f.customers[customer.CustomerID] = &copied
	return nil
}

func (f *fakeCustomerRepo) FindByCustomerID(_ context.Context, customerID string) (*entity.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.customers[customerID], nil
}

func (f *fakeCustomerRepo) FindByInternalUserID(_ context.Context, internalUserID string) (*entity.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, customer := range f.customers {
		if customer.InternalUserID != nil && *customer.InternalUserID == internalUserID {
			return customer, nil
		}
	}
	return nil, nil
}

type fakePaymentRepo struct {
	mu       sync.Mutex
	payments []*entity.Payment
	nextID   uint64
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{}
}

func (f *fakePaymentRepo) Create(_ context.Context, payment *entity.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	copied := *payment
	copied.ID = f.nextID
	payment.ID = f.nextID
	f.payments = append(f.payments, &copied)
	return nil
}

func (f *fakePaymentRepo) UpdateStatusBySubscription(_ context.Context, subscriptionID, status string, updatedAt time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var affected int64
	for _, payment := range f.payments {
		if payment.SubscriptionID != nil && *payment.SubscriptionID == subscriptionID {
			payment.Status = status
			payment.UpdatedAt = updatedAt
			affected++
		}
	}
	return affected, nil
}

func (f *fakePaymentRepo) ListByCustomerID(_ context.Context, customerID string, limit int32) ([]*entity.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*entity.Payment
	for _, payment := range f.payments {
		if payment.CustomerID == customerID {
			result = append(result, payment)
		}
		if int32(len(result)) == limit {
			break
		}
	}
	return result, nil
}

type fakeSubscriptionRepo struct {
	mu            sync.Mutex
	subscriptions map[string]*entity.Subscription
}

func newFakeSubscriptionRepo() *fakeSubscriptionRepo {
	return &fakeSubscriptionRepo{subscriptions: map[string]*entity.Subscription{}}
}

func (f *fakeSubscriptionRepo) Upsert(_ context.Context, subscription *entity.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *subscription
	if existing, ok := f.subscriptions[subscription.SubscriptionID]; ok {
		copied.CreatedAt = existing.CreatedAt
		if copied.PriceID == nil {
			copied.PriceID = existing.PriceID
		}
	}
	f.subscriptions[subscription.SubscriptionID] = &copied
	return nil
}

func (f *fakeSubscriptionRepo) UpdateStatus(_ context.Context, subscriptionID string, status entity.SubscriptionStatus, periodEnd *time.Time, updatedAt time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	subscription, ok := f.subscriptions[subscriptionID]
	if !ok {
		return 0, nil
	}
	subscription.Status = status
	if periodEnd != nil {
		subscription.PeriodEnd = periodEnd
	}
	subscription.UpdatedAt = updatedAt
	return 1, nil
}

func (f *fakeSubscriptionRepo) FindBySubscriptionID(_ context.Context, subscriptionID string) (*entity.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	subscription, ok := f.subscriptions[subscriptionID]
	if !ok {
		return nil, nil
	}
	copied := *subscription
	return &copied, nil
}

func (f *fakeSubscriptionRepo) FindByInternalUserID(_ context.Context, internalUserID string) (*entity.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, subscription := range f.subscriptions {
		if subscription.InternalUserID == internalUserID {
			copied := *subscription
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeSubscriptionRepo) ListStaleNonTerminal(_ context.Context, before time.Time, limit int32) ([]*entity.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*entity.Subscription
	for _, subscription := range f.subscriptions {
		if subscription.Status.Terminal() || !subscription.UpdatedAt.Before(before) {
			continue
		}
		copied := *subscription
		result = append(result, &copied)
		if int32(len(result)) == limit {
			break
		}
	}
	return result, nil
}

type fakeEventLedger struct {
	mu       sync.Mutex
	recorded map[string]time.Time

	// forceDuplicateOnRecord simulates losing the insert race: Exists keeps
	// answering false while Record reports the row is already there.
	forceDuplicateOnRecord bool
}

func newFakeEventLedger() *fakeEventLedger {
	return &fakeEventLedger{recorded: map[string]time.Time{}}
}

func (f *fakeEventLedger) Exists(_ context.Context, eventID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.forceDuplicateOnRecord {
		return false, nil
	}
	_, ok := f.recorded[eventID]
	return ok, nil
}

func (f *fakeEventLedger) Record(_ context.Context, eventID string, processedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.forceDuplicateOnRecord {
		return repository.ErrEventAlreadyRecorded
	}
	if _, ok := f.recorded[eventID]; ok {
		return repository.ErrEventAlreadyRecorded
	}
	f.recorded[eventID] = processedAt
	return nil
}

func (f *fakeEventLedger) size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.recorded)
}

type fakeWebhookLogRepo struct {
	mu   sync.Mutex
	logs []*entity.WebhookLog
}

func newFakeWebhookLogRepo() *fakeWebhookLogRepo {
	return &fakeWebhookLogRepo{}
}

func (f *fakeWebhookLogRepo) Create(_ context.Context, log *entity.WebhookLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, log)
	return nil
}

func (f *fakeWebhookLogRepo) lastStatus() int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.logs) == 0 {
		return 0
	}
	return f.logs[len(f.logs)-1].Status
}

type serviceFixture struct {
	service       *BillingService
	provider      *fakeProvider
	customers     *fakeCustomerRepo
	payments      *fakePaymentRepo
	subscriptions *fakeSubscriptionRepo
	ledger        *fakeEventLedger
	webhookLogs   *fakeWebhookLogRepo
}

func newServiceFixture() *serviceFixture {
	fixture := &serviceFixture{
		provider:      &fakeProvider{},
		customers:     newFakeCustomerRepo(),
		payments:      newFakePaymentRepo(),
		subscriptions: newFakeSubscriptionRepo(),
		ledger:        newFakeEventLedger(),
		webhookLogs:   newFakeWebhookLogRepo(),
	}
	fixture.service = NewBillingService(
		fixture.customers,
		fixture.payments,
		fixture.subscriptions,
		fixture.ledger,
		fixture.webhookLogs,
		fixture.provider,
		config.BillingConfig{SweepStaleAfter: time.Hour, SweepBatchSize: 50},
	)
	return fixture
}

// passthroughVerify makes the fake provider hand back a prebuilt event for
// any signature, keeping signature mechanics out of flow tests.
func passthroughVerify(event *provider.WebhookEvent) func([]byte, string) (*provider.WebhookEvent, error) {
	return func([]byte, string) (*provider.WebhookEvent, error) {
		return event, nil
	}
}
