package repository

import (
	"context"
	"database/sql"

	"github.com/meridian-studio/ms-go-billing/app/entity"
)

type CustomerRepository struct {
	db DBTX
}

func NewCustomerRepository(db DBTX) *CustomerRepository {
	return &CustomerRepository{db: db}
}

// Upsert creates or updates the row keyed by customer_id. An already-linked
// internal user id is never cleared by a delivery that lacks one.
func (r *CustomerRepository) Upsert(ctx context.Context, customer *entity.Customer) error {
	query := `
		INSERT INTO customers (
			customer_id, internal_user_id, email, display_name, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			internal_user_id = COALESCE(VALUES(internal_user_id), internal_user_id),
			email = VALUES(email),
			display_name = VALUES(display_name),
			updated_at = VALUES(updated_at)
	`

	_, err := r.db.ExecContext(ctx, query,
		customer.CustomerID,
		nullableStringValue(customer.InternalUserID),
		customer.Email,
		customer.DisplayName,
		customer.CreatedAt,
		customer.UpdatedAt,
	)
	return err
}

func (r *CustomerRepository) FindByCustomerID(ctx context.Context, customerID string) (*entity.Customer, error) {
	query := `
		SELECT id, customer_id, internal_user_id, email, display_name, created_at, updated_at
		FROM customers
		WHERE customer_id = ?
		LIMIT 1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, customerID))
}

func (r *CustomerRepository) FindByInternalUserID(ctx context.Context, internalUserID string) (*entity.Customer, error) {
	query := `
		SELECT id, customer_id, internal_user_id, email, display_name, created_at, updated_at
		FROM customers
		WHERE internal_user_id = ?
		LIMIT 1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, internalUserID))
}

func (r *CustomerRepository) scanOne(row *sql.Row) (*entity.Customer, error) {
	customer := &entity.Customer{}
	var internalUserID sql.NullString

	err := row.Scan(
		&customer.ID,
		&customer.CustomerID,
		&internalUserID,
		&customer.Email,
		&customer.DisplayName,
		&customer.CreatedAt,
		&customer.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	customer.InternalUserID = stringPtrFromNull(internalUserID)
	return customer, nil
}
