package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"triage_server/core/domain"
	"triage_server/core/port/out"
)

// ClassificationAdapter implements out.ClassificationRepository.
type ClassificationAdapter struct {
	db *sqlx.DB
}

var _ out.ClassificationRepository = (*ClassificationAdapter)(nil)

func NewClassificationAdapter(db *sqlx.DB) *ClassificationAdapter {
	return &ClassificationAdapter{db: db}
}

const classificationColumns = `id, message_id, category, priority, confidence_score, assigned_team_id, status, gemini_reasoning, created_at, updated_at`

type classificationRow struct {
	ID             int64           `db:"id"`
	MessageID      int64           `db:"message_id"`
	Category       string          `db:"category"`
	Priority       string          `db:"priority"`
	Confidence     sql.NullFloat64 `db:"confidence_score"`
	AssignedTeamID sql.NullInt64   `db:"assigned_team_id"`
	Status         string          `db:"status"`
	Reasoning      sql.NullString  `db:"gemini_reasoning"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

func (r *classificationRow) toEntity() *domain.Classification {
	c := &domain.Classification{
		ID:        r.ID,
		MessageID: r.MessageID,
		Category:  domain.Category(r.Category),
		Priority:  domain.Priority(r.Priority),
		Status:    domain.ClassificationStatus(r.Status),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.Confidence.Valid {
		v := r.Confidence.Float64
		c.Confidence = &v
	}
	if r.AssignedTeamID.Valid {
		v := r.AssignedTeamID.Int64
		c.AssignedTeamID = &v
	}
	if r.Reasoning.Valid {
		v := r.Reasoning.String
		c.Reasoning = &v
	}
	return c
}

func classificationArgs(c *domain.Classification) []any {
	return []any{
		c.MessageID,
		string(c.Category),
		string(c.Priority),
		c.Confidence,
		c.AssignedTeamID,
		string(c.Status),
		c.Reasoning,
	}
}

func (a *ClassificationAdapter) GetByMessageID(ctx context.Context, messageID int64) (*domain.Classification, error) {
	var row classificationRow
	query := `SELECT ` + classificationColumns + ` FROM classifications WHERE message_id = $1`

	if err := a.db.GetContext(ctx, &row, query, messageID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get classification: %w", err)
	}
	return row.toEntity(), nil
}

func (a *ClassificationAdapter) ListByMessageIDs(ctx context.Context, messageIDs []int64) (map[int64]*domain.Classification, error) {
	result := make(map[int64]*domain.Classification, len(messageIDs))
	if len(messageIDs) == 0 {
		return result, nil
	}

	var rows []classificationRow
	query := `SELECT ` + classificationColumns + ` FROM classifications WHERE message_id = ANY($1)`

	if err := a.db.SelectContext(ctx, &rows, query, pq.Array(messageIDs)); err != nil {
		return nil, fmt.Errorf("failed to list classifications: %w", err)
	}
	for i := range rows {
		result[rows[i].MessageID] = rows[i].toEntity()
	}
	return result, nil
}

// SaveTriage inserts the classification and marks the message triaged in one
// transaction.
func (a *ClassificationAdapter) SaveTriage(ctx context.Context, c *domain.Classification) (*domain.Classification, error) {
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO classifications (message_id, category, priority, confidence_score, assigned_team_id, status, gemini_reasoning)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (message_id) DO NOTHING
		RETURNING ` + classificationColumns

	var row classificationRow
	if err := tx.GetContext(ctx, &row, query, classificationArgs(c)...); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, ErrDuplicate
		case isForeignKeyViolation(err):
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to insert classification: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE messages SET status = $1, updated_at = NOW() WHERE id = $2`,
		string(domain.StatusTriaged), c.MessageID,
	); err != nil {
		return nil, fmt.Errorf("failed to mark message triaged: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit triage: %w", err)
	}
	return row.toEntity(), nil
}

// Upsert keeps the stored reasoning and confidence when the new values are NULL.
func (a *ClassificationAdapter) Upsert(ctx context.Context, c *domain.Classification) (*domain.Classification, error) {
	query := `
		INSERT INTO classifications (message_id, category, priority, confidence_score, assigned_team_id, status, gemini_reasoning)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (message_id) DO UPDATE SET
			category = EXCLUDED.category,
			priority = EXCLUDED.priority,
			confidence_score = COALESCE(EXCLUDED.confidence_score, classifications.confidence_score),
			assigned_team_id = EXCLUDED.assigned_team_id,
			status = EXCLUDED.status,
			gemini_reasoning = COALESCE(EXCLUDED.gemini_reasoning, classifications.gemini_reasoning),
			updated_at = NOW()
		RETURNING ` + classificationColumns

	var row classificationRow
	if err := a.db.GetContext(ctx, &row, query, classificationArgs(c)...); err != nil {
		if isForeignKeyViolation(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to upsert classification: %w", err)
	}
	return row.toEntity(), nil
}

func (a *ClassificationAdapter) CountByCategory(ctx context.Context) (map[string]int64, error) {
	var rows []countRow
	query := `SELECT category AS key, COUNT(*) AS count FROM classifications GROUP BY category`

	if err := a.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to count classifications by category: %w", err)
	}
	return countMap(rows), nil
}

func (a *ClassificationAdapter) CountByPriority(ctx context.Context) (map[string]int64, error) {
	var rows []countRow
	query := `SELECT priority AS key, COUNT(*) AS count FROM classifications GROUP BY priority`

	if err := a.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to count classifications by priority: %w", err)
	}
	return countMap(rows), nil
}
