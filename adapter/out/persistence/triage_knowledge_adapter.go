package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"triage_server/core/domain"
	"triage_server/core/port/out"
)

// KnowledgeAdapter implements out.KnowledgeRepository.
type KnowledgeAdapter struct {
	db *sqlx.DB
}

var _ out.KnowledgeRepository = (*KnowledgeAdapter)(nil)

func NewKnowledgeAdapter(db *sqlx.DB) *KnowledgeAdapter {
	return &KnowledgeAdapter{db: db}
}

type articleRow struct {
	ID        int64          `db:"id"`
	Title     string         `db:"title"`
	Content   string         `db:"content"`
	Keywords  pq.StringArray `db:"keywords"`
	Category  sql.NullString `db:"category"`
	IsActive  bool           `db:"is_active"`
	CreatedAt time.Time      `db:"created_at"`
}

func (r *articleRow) toEntity() domain.KnowledgeArticle {
	a := domain.KnowledgeArticle{
		ID:        r.ID,
		Title:     r.Title,
		Content:   r.Content,
		Keywords:  []string(r.Keywords),
		IsActive:  r.IsActive,
		CreatedAt: r.CreatedAt,
	}
	if a.Keywords == nil {
		a.Keywords = []string{}
	}
	if r.Category.Valid {
		v := r.Category.String
		a.Category = &v
	}
	return a
}

func (a *KnowledgeAdapter) ListActive(ctx context.Context) ([]domain.KnowledgeArticle, error) {
	var rows []articleRow
	query := `
		SELECT id, title, content, keywords, category, is_active, created_at
		FROM knowledge_base_articles
		WHERE is_active = TRUE
		ORDER BY id`

	if err := a.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list knowledge base articles: %w", err)
	}
	articles := make([]domain.KnowledgeArticle, len(rows))
	for i := range rows {
		articles[i] = rows[i].toEntity()
	}
	return articles, nil
}
