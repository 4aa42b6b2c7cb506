// Package persistence provides Postgres adapters implementing the storage ports.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"triage_server/core/domain"
	"triage_server/core/port/out"
)

// MessageAdapter implements out.MessageRepository.
type MessageAdapter struct {
	db *sqlx.DB
}

var _ out.MessageRepository = (*MessageAdapter)(nil)

func NewMessageAdapter(db *sqlx.DB) *MessageAdapter {
	return &MessageAdapter{db: db}
}

const messageColumns = `id, whatsapp_message_id, from_number, message_body, message_type, status, raw_webhook_data, created_at, updated_at`

type messageRow struct {
	ID         int64     `db:"id"`
	ExternalID string    `db:"whatsapp_message_id"`
	From       string    `db:"from_number"`
	Body       string    `db:"message_body"`
	Kind       string    `db:"message_type"`
	Status     string    `db:"status"`
	RawPayload []byte    `db:"raw_webhook_data"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r *messageRow) toEntity() *domain.Message {
	m := &domain.Message{
		ID:         r.ID,
		ExternalID: r.ExternalID,
		From:       r.From,
		Body:       r.Body,
		Kind:       domain.MessageKind(r.Kind),
		Status:     domain.MessageStatus(r.Status),
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	if len(r.RawPayload) > 0 {
		m.RawPayload = append([]byte(nil), r.RawPayload...)
	}
	return m
}

// CreateIfAbsent relies on the unique index on whatsapp_message_id.
func (a *MessageAdapter) CreateIfAbsent(ctx context.Context, msg *domain.Message) (*domain.Message, bool, error) {
	status := msg.Status
	if status == "" {
		status = domain.StatusPendingTriage
	}
	kind := msg.Kind
	if kind == "" {
		kind = domain.KindText
	}

	query := `
		INSERT INTO messages (whatsapp_message_id, from_number, message_body, message_type, status, raw_webhook_data)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb)
		ON CONFLICT (whatsapp_message_id) DO NOTHING
		RETURNING ` + messageColumns

	var row messageRow
	err := a.db.GetContext(ctx, &row, query, msg.ExternalID, msg.From, msg.Body, string(kind), string(status), nullableJSON(msg.RawPayload))
	if err == nil {
		return row.toEntity(), true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to insert message: %w", err)
	}

	existing, err := a.GetByExternalID(ctx, msg.ExternalID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("message %q conflicted but was not found", msg.ExternalID)
	}
	return existing, false, nil
}

func (a *MessageAdapter) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	var row messageRow
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`

	if err := a.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return row.toEntity(), nil
}

func (a *MessageAdapter) GetByExternalID(ctx context.Context, externalID string) (*domain.Message, error) {
	var row messageRow
	query := `SELECT ` + messageColumns + ` FROM messages WHERE whatsapp_message_id = $1`

	if err := a.db.GetContext(ctx, &row, query, externalID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get message by external id: %w", err)
	}
	return row.toEntity(), nil
}

func (a *MessageAdapter) UpdateStatus(ctx context.Context, id int64, status domain.MessageStatus) error {
	query := `UPDATE messages SET status = $1, updated_at = NOW() WHERE id = $2`

	res, err := a.db.ExecContext(ctx, query, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update message status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (a *MessageAdapter) List(ctx context.Context, offset, limit int) ([]*domain.Message, error) {
	var rows []messageRow
	query := `SELECT ` + messageColumns + ` FROM messages ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`

	if err := a.db.SelectContext(ctx, &rows, query, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	messages := make([]*domain.Message, len(rows))
	for i := range rows {
		messages[i] = rows[i].toEntity()
	}
	return messages, nil
}

func (a *MessageAdapter) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := a.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM messages`); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

func (a *MessageAdapter) CountByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []countRow
	query := `SELECT status AS key, COUNT(*) AS count FROM messages GROUP BY status`

	if err := a.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to count messages by status: %w", err)
	}
	return countMap(rows), nil
}

// Delete removes the message; its classification goes with it through
// ON DELETE CASCADE.
func (a *MessageAdapter) Delete(ctx context.Context, id int64) error {
	res, err := a.db.ExecContext(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
