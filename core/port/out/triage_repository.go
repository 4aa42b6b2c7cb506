package out

import (
	"context"
	"errors"

	"triage_server/core/domain"
)

// Sentinel errors shared by every store implementation.
var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate entry")
)

// MessageRepository stores inbound messages.
// Lookups return (nil, nil) when the row does not exist.
type MessageRepository interface {
	// CreateIfAbsent inserts msg unless a message with the same ExternalID exists.
	// It returns the stored message and whether this call created it. The check
	// and insert are atomic.
	CreateIfAbsent(ctx context.Context, msg *domain.Message) (*domain.Message, bool, error)
	GetByID(ctx context.Context, id int64) (*domain.Message, error)
	GetByExternalID(ctx context.Context, externalID string) (*domain.Message, error)
	// UpdateStatus returns ErrNotFound for an unknown id.
	UpdateStatus(ctx context.Context, id int64, status domain.MessageStatus) error
	// List returns messages newest first.
	List(ctx context.Context, offset, limit int) ([]*domain.Message, error)
	Count(ctx context.Context) (int64, error)
	CountByStatus(ctx context.Context) (map[string]int64, error)
	// Delete removes the message and its classification.
	Delete(ctx context.Context, id int64) error
}

// ClassificationRepository stores at most one classification per message.
type ClassificationRepository interface {
	GetByMessageID(ctx context.Context, messageID int64) (*domain.Classification, error)
	ListByMessageIDs(ctx context.Context, messageIDs []int64) (map[int64]*domain.Classification, error)
	// SaveTriage inserts the automatic classification and moves the message to
	// triaged in one unit. It returns ErrDuplicate if the message is already
	// classified and ErrNotFound if the message does not exist.
	SaveTriage(ctx context.Context, c *domain.Classification) (*domain.Classification, error)
	// Upsert replaces the classification of c.MessageID. A nil Reasoning keeps
	// the stored reasoning.
	Upsert(ctx context.Context, c *domain.Classification) (*domain.Classification, error)
	CountByCategory(ctx context.Context) (map[string]int64, error)
	CountByPriority(ctx context.Context) (map[string]int64, error)
}

// TeamRepository reads routing targets.
type TeamRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Team, error)
	GetByName(ctx context.Context, name string) (*domain.Team, error)
	List(ctx context.Context) ([]*domain.Team, error)
}

// KnowledgeRepository reads knowledge-base articles.
type KnowledgeRepository interface {
	// ListActive returns active articles ordered by id.
	ListActive(ctx context.Context) ([]domain.KnowledgeArticle, error)
}
