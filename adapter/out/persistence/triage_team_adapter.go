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

// TeamAdapter implements out.TeamRepository.
type TeamAdapter struct {
	db *sqlx.DB
}

var _ out.TeamRepository = (*TeamAdapter)(nil)

func NewTeamAdapter(db *sqlx.DB) *TeamAdapter {
	return &TeamAdapter{db: db}
}

const teamColumns = `id, name, email_alias, slack_channel, created_at`

type teamRow struct {
	ID           int64          `db:"id"`
	Name         string         `db:"name"`
	EmailAlias   sql.NullString `db:"email_alias"`
	SlackChannel sql.NullString `db:"slack_channel"`
	CreatedAt    time.Time      `db:"created_at"`
}

func (r *teamRow) toEntity() *domain.Team {
	return &domain.Team{
		ID:           r.ID,
		Name:         r.Name,
		EmailAlias:   r.EmailAlias.String,
		SlackChannel: r.SlackChannel.String,
		CreatedAt:    r.CreatedAt,
	}
}

func (a *TeamAdapter) get(ctx context.Context, query string, arg any) (*domain.Team, error) {
	var row teamRow
	if err := a.db.GetContext(ctx, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	return row.toEntity(), nil
}

func (a *TeamAdapter) GetByID(ctx context.Context, id int64) (*domain.Team, error) {
	return a.get(ctx, `SELECT `+teamColumns+` FROM teams WHERE id = $1`, id)
}

func (a *TeamAdapter) GetByName(ctx context.Context, name string) (*domain.Team, error) {
	return a.get(ctx, `SELECT `+teamColumns+` FROM teams WHERE name = $1`, name)
}

func (a *TeamAdapter) List(ctx context.Context) ([]*domain.Team, error) {
	var rows []teamRow
	if err := a.db.SelectContext(ctx, &rows, `SELECT `+teamColumns+` FROM teams ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	teams := make([]*domain.Team, len(rows))
	for i := range rows {
		teams[i] = rows[i].toEntity()
	}
	return teams, nil
}
