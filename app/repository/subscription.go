package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/meridian-studio/ms-go-billing/app/entity"
)

type SubscriptionRepository struct {
	db DBTX
}

func NewSubscriptionRepository(db DBTX) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) Upsert(ctx context.Context, subscription *entity.Subscription) error {
	query := `
		INSERT INTO subscriptions (
			subscription_id, internal_user_id, status, plan, price_id,
			period_start, period_end, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			internal_user_id = VALUES(internal_user_id),
			status = VALUES(status),
			plan = VALUES(plan),
			price_id = COALESCE(VALUES(price_id), price_id),
			period_start = COALESCE(VALUES(period_start), period_start),
			period_end = COALESCE(VALUES(period_end), period_end),
			updated_at = VALUES(updated_at)
	`

	_, err := r.db.ExecContext(ctx, query,
		subscription.SubscriptionID,
		subscription.InternalUserID,
		string(subscription.Status),
		subscription.Plan,
		nullableStringValue(subscription.PriceID),
		nullableTimeValue(subscription.PeriodStart),
		nullableTimeValue(subscription.PeriodEnd),
		subscription.CreatedAt,
		subscription.UpdatedAt,
	)
	return err
}

// UpdateStatus sets status (and optionally period_end) on an existing row.
// Returns the affected count; zero means no such subscription is known yet.
func (r *SubscriptionRepository) UpdateStatus(ctx context.Context, subscriptionID string, status entity.SubscriptionStatus, periodEnd *time.Time, updatedAt time.Time) (int64, error) {
	query := `
		UPDATE subscriptions SET
			status = ?,
			period_end = COALESCE(?, period_end),
			updated_at = ?
		WHERE subscription_id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		string(status),
		nullableTimeValue(periodEnd),
		updatedAt,
		subscriptionID,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *SubscriptionRepository) FindBySubscriptionID(ctx context.Context, subscriptionID string) (*entity.Subscription, error) {
	query := `
		SELECT id, subscription_id, internal_user_id, status, plan, price_id,
			period_start, period_end, created_at, updated_at
		FROM subscriptions
		WHERE subscription_id = ?
		LIMIT 1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, subscriptionID))
}

func (r *SubscriptionRepository) FindByInternalUserID(ctx context.Context, internalUserID string) (*entity.Subscription, error) {
	query := `
		SELECT id, subscription_id, internal_user_id, status, plan, price_id,
			period_start, period_end, created_at, updated_at
		FROM subscriptions
		WHERE internal_user_id = ?
		ORDER BY id DESC
		LIMIT 1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, internalUserID))
}

// ListStaleNonTerminal returns non-canceled subscriptions whose last update
// is older than the cutoff, for the sweep job to reconcile against Stripe.
func (r *SubscriptionRepository) ListStaleNonTerminal(ctx context.Context, before time.Time, limit int32) ([]*entity.Subscription, error) {
	query := `
		SELECT id, subscription_id, internal_user_id, status, plan, price_id,
			period_start, period_end, created_at, updated_at
		FROM subscriptions
		WHERE status != ?
		  AND updated_at <= ?
		ORDER BY updated_at ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, string(entity.SubscriptionStatusCanceled), before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subscriptions := make([]*entity.Subscription, 0)
	for rows.Next() {
		item := &entity.Subscription{}
		if err := scanSubscription(rows, item); err != nil {
			return nil, err
		}
		subscriptions = append(subscriptions, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return subscriptions, nil
}

type subscriptionScanner interface {
	Scan(dest ...interface{}) error
}

func (r *SubscriptionRepository) scanOne(row *sql.Row) (*entity.Subscription, error) {
	subscription := &entity.Subscription{}
	if err := scanSubscription(row, subscription); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return subscription, nil
}

func scanSubscription(scan subscriptionScanner, subscription *entity.Subscription) error {
	var status string
	var priceID sql.NullString
	var periodStart sql.NullTime
	var periodEnd sql.NullTime

	err := scan.Scan(
		&subscription.ID,
		&subscription.SubscriptionID,
		&subscription.InternalUserID,
		&status,
		&subscription.Plan,
		&priceID,
		&periodStart,
		&periodEnd,
		&subscription.CreatedAt,
		&subscription.UpdatedAt,
	)
	if err != nil {
		return err
	}

	subscription.Status = entity.ParseSubscriptionStatus(status)
	subscription.PriceID = stringPtrFromNull(priceID)
	subscription.PeriodStart = timePtrFromNull(periodStart)
	subscription.PeriodEnd = timePtrFromNull(periodEnd)
	return nil
}
