package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"donation-api/internal/apperr"
	"donation-api/internal/models"
)

const webhookColumns = `id, provider, event_type, event_id, delivery_id, payload, processed,
	processing_error, donation_id, received_at, processed_at`

// WebhookRepo is the append-only audit log of processor deliveries. Rows are
// never deleted; only the processing outcome columns change.
type WebhookRepo struct {
	db      *sqlx.DB
	dialect dialect
}

func NewWebhookRepo(db *sqlx.DB) *WebhookRepo {
	return &WebhookRepo{db: db, dialect: dialectFor(db)}
}

// Record appends a delivery with processed = false and fills in its id.
func (r *WebhookRepo) Record(ctx context.Context, ev *models.WebhookEvent) error {
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now().UTC()
	}
	query := fmt.Sprintf(`
		INSERT INTO payment_webhooks
			(provider, event_type, event_id, delivery_id, payload, processed, received_at)
		VALUES (?, ?, ?, ?, %s, ?, ?)
		RETURNING id`, r.dialect.jsonParam)

	err := r.db.QueryRowxContext(ctx, r.db.Rebind(query),
		ev.Provider, ev.EventType, ev.EventID, ev.DeliveryID, ev.Payload, false, ev.ReceivedAt,
	).Scan(&ev.ID)
	if err != nil {
		return fmt.Errorf("record webhook: %v: %w", err, apperr.ErrPersistence)
	}
	ev.Processed = false
	return nil
}

// HasProcessed reports whether another delivery of the same event was
// already processed successfully.
func (r *WebhookRepo) HasProcessed(ctx context.Context, provider, eventID string, excludeID int64) (bool, error) {
	var n int
	err := r.db.GetContext(ctx, &n, r.db.Rebind(`
		SELECT COUNT(*) FROM payment_webhooks
		WHERE provider = ? AND event_id = ? AND processed = ? AND id <> ?`),
		provider, eventID, true, excludeID)
	if err != nil {
		return false, fmt.Errorf("check processed: %w", err)
	}
	return n > 0, nil
}

// MarkProcessed closes a delivery. note is stored in processing_error for
// deliveries that were ignored or deduplicated.
func (r *WebhookRepo) MarkProcessed(ctx context.Context, id int64, donationID *int64, note string) error {
	var did sql.NullInt64
	if donationID != nil {
		did = sql.NullInt64{Int64: *donationID, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE payment_webhooks
		SET processed = ?, processing_error = ?, donation_id = ?, processed_at = ?
		WHERE id = ?`),
		true, note, did, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark webhook %d processed: %w", id, err)
	}
	return nil
}

// MarkFailed keeps the delivery unprocessed for manual replay.
func (r *WebhookRepo) MarkFailed(ctx context.Context, id int64, processingErr error) error {
	msg := ""
	if processingErr != nil {
		msg = processingErr.Error()
	}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE payment_webhooks SET processed = ?, processing_error = ? WHERE id = ?`),
		false, msg, id)
	if err != nil {
		return fmt.Errorf("mark webhook %d failed: %w", id, err)
	}
	return nil
}

func (r *WebhookRepo) Get(ctx context.Context, id int64) (*models.WebhookEvent, error) {
	var ev models.WebhookEvent
	err := r.db.GetContext(ctx, &ev, r.db.Rebind(`SELECT `+webhookColumns+` FROM payment_webhooks WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("webhook %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook: %w", err)
	}
	return &ev, nil
}

// List returns deliveries newest first; processed filters when non-nil.
func (r *WebhookRepo) List(ctx context.Context, processed *bool, limit int) ([]models.WebhookEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `SELECT ` + webhookColumns + ` FROM payment_webhooks`
	var args []any
	if processed != nil {
		query += ` WHERE processed = ?`
		args = append(args, *processed)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	var out []models.WebhookEvent
	if err := r.db.SelectContext(ctx, &out, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	return out, nil
}
