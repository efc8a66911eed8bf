package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/meridian-studio/ms-go-billing/app/entity"
)

type PaymentRepository struct {
	db DBTX
}

func NewPaymentRepository(db DBTX) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, payment *entity.Payment) error {
	query := `
		INSERT INTO payments (
			session_id, customer_id, subscription_id, price_id,
			amount_total, currency, status, period_end, raw_event,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		nullableStringValue(payment.SessionID),
		payment.CustomerID,
		nullableStringValue(payment.SubscriptionID),
		nullableStringValue(payment.PriceID),
		payment.AmountTotal,
		payment.Currency,
		payment.Status,
		nullableTimeValue(payment.PeriodEnd),
		payment.RawEvent,
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	payment.ID = uint64(id)
	return nil
}

// UpdateStatusBySubscription flips the status of payment rows tied to a
// subscription. Update-only: no matching row is not an error, the affected
// count is returned so callers can log it.
func (r *PaymentRepository) UpdateStatusBySubscription(ctx context.Context, subscriptionID, status string, updatedAt time.Time) (int64, error) {
	query := `
		UPDATE payments SET status = ?, updated_at = ?
		WHERE subscription_id = ?
	`

	result, err := r.db.ExecContext(ctx, query, status, updatedAt, subscriptionID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *PaymentRepository) ListByCustomerID(ctx context.Context, customerID string, limit int32) ([]*entity.Payment, error) {
	query := `
		SELECT id, session_id, customer_id, subscription_id, price_id,
			amount_total, currency, status, period_end, raw_event,
			created_at, updated_at
		FROM payments
		WHERE customer_id = ?
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, customerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]*entity.Payment, 0)
	for rows.Next() {
		item, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return payments, nil
}

func scanPayment(rows *sql.Rows) (*entity.Payment, error) {
	payment := &entity.Payment{}
	var sessionID sql.NullString
	var subscriptionID sql.NullString
	var priceID sql.NullString
	var periodEnd sql.NullTime

	err := rows.Scan(
		&payment.ID,
		&sessionID,
		&payment.CustomerID,
		&subscriptionID,
		&priceID,
		&payment.AmountTotal,
		&payment.Currency,
		&payment.Status,
		&periodEnd,
		&payment.RawEvent,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	payment.SessionID = stringPtrFromNull(sessionID)
	payment.SubscriptionID = stringPtrFromNull(subscriptionID)
	payment.PriceID = stringPtrFromNull(priceID)
	payment.PeriodEnd = timePtrFromNull(periodEnd)
	return payment, nil
}
