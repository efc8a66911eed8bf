package repository

import (
	"context"

	"github.com/meridian-studio/ms-go-billing/app/entity"
)

type WebhookLogRepository struct {
	db DBTX
}

func NewWebhookLogRepository(db DBTX) *WebhookLogRepository {
	return &WebhookLogRepository{db: db}
}

func (r *WebhookLogRepository) Create(ctx context.Context, log *entity.WebhookLog) error {
	query := `
		INSERT INTO webhook_logs (
			event_id, event_type, signature, payload_json, status, error, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		nullableStringValue(log.EventID),
		log.EventType,
		log.Signature,
		log.PayloadJSON,
		log.Status,
		nullableStringValue(log.Error),
		log.CreatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	log.ID = uint64(id)
	return nil
}
