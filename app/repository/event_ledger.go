package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ErrEventAlreadyRecorded signals that another delivery of the same event
// won the ledger insert. Callers treat it as "already processed".
var ErrEventAlreadyRecorded = errors.New("event already recorded")

// EventLedgerRepository is the idempotency ledger over processed_events.
// The primary key on event_id is the enforcement point for concurrent
// duplicate deliveries; Exists is only the cheap fast path.
type EventLedgerRepository struct {
	db DBTX
}

func NewEventLedgerRepository(db DBTX) *EventLedgerRepository {
	return &EventLedgerRepository{db: db}
}

func (r *EventLedgerRepository) Exists(ctx context.Context, eventID string) (bool, error) {
	query := `SELECT 1 FROM processed_events WHERE event_id = ? LIMIT 1`

	var one int
	err := r.db.QueryRowContext(ctx, query, eventID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *EventLedgerRepository) Record(ctx context.Context, eventID string, processedAt time.Time) error {
	query := `INSERT INTO processed_events (event_id, processed_at) VALUES (?, ?)`

	_, err := r.db.ExecContext(ctx, query, eventID, processedAt)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrEventAlreadyRecorded
		}
		return err
	}
	return nil
}
