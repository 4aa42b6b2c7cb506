// Package memory is an in-process implementation of the storage ports, used
// in development mode and by tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/out"
)

// Store holds every table behind one mutex so that multi-table operations
// are atomic.
type Store struct {
	mu sync.RWMutex

	messages        map[int64]*domain.Message
	byExternalID    map[string]int64
	classifications map[int64]*domain.Classification // keyed by message id
	teams           map[int64]*domain.Team
	articles        []domain.KnowledgeArticle

	nextMessageID        int64
	nextClassificationID int64
	now                  func() time.Time
}

func NewStore() *Store {
	return &Store{
		messages:        make(map[int64]*domain.Message),
		byExternalID:    make(map[string]int64),
		classifications: make(map[int64]*domain.Classification),
		teams:           make(map[int64]*domain.Team),
		now:             time.Now,
	}
}

// SeedTeams replaces the team table.
func (s *Store) SeedTeams(teams ...domain.Team) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teams = make(map[int64]*domain.Team, len(teams))
	for i := range teams {
		t := teams[i]
		if t.CreatedAt.IsZero() {
			t.CreatedAt = s.now()
		}
		s.teams[t.ID] = &t
	}
}

// SeedArticles replaces the knowledge base.
func (s *Store) SeedArticles(articles ...domain.KnowledgeArticle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.articles = make([]domain.KnowledgeArticle, len(articles))
	for i, a := range articles {
		s.articles[i] = copyArticle(a)
	}
	sort.Slice(s.articles, func(i, j int) bool { return s.articles[i].ID < s.articles[j].ID })
}

// Messages returns the message repository view.
func (s *Store) Messages() out.MessageRepository { return (*messageRepo)(s) }

// Classifications returns the classification repository view.
func (s *Store) Classifications() out.ClassificationRepository { return (*classificationRepo)(s) }

// Teams returns the team repository view.
func (s *Store) Teams() out.TeamRepository { return (*teamRepo)(s) }

// Knowledge returns the knowledge repository view.
func (s *Store) Knowledge() out.KnowledgeRepository { return (*knowledgeRepo)(s) }

// =============================================================================
// Messages
// =============================================================================

type messageRepo Store

func (r *messageRepo) CreateIfAbsent(ctx context.Context, msg *domain.Message) (*domain.Message, bool, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byExternalID[msg.ExternalID]; ok {
		return copyMessage(s.messages[id]), false, nil
	}

	s.nextMessageID++
	m := copyMessage(msg)
	m.ID = s.nextMessageID
	m.CreatedAt = s.now()
	m.UpdatedAt = m.CreatedAt
	if m.Status == "" {
		m.Status = domain.StatusPendingTriage
	}
	s.messages[m.ID] = m
	s.byExternalID[m.ExternalID] = m.ID
	return copyMessage(m), true, nil
}

func (r *messageRepo) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyMessage(s.messages[id]), nil
}

func (r *messageRepo) GetByExternalID(ctx context.Context, externalID string) (*domain.Message, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byExternalID[externalID]
	if !ok {
		return nil, nil
	}
	return copyMessage(s.messages[id]), nil
}

func (r *messageRepo) UpdateStatus(ctx context.Context, id int64, status domain.MessageStatus) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return out.ErrNotFound
	}
	m.Status = status
	m.UpdatedAt = s.now()
	return nil
}

func (r *messageRepo) List(ctx context.Context, offset, limit int) ([]*domain.Message, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*domain.Message, 0, len(s.messages))
	for _, m := range s.messages {
		all = append(all, m)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if offset >= len(all) {
		return []*domain.Message{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	page := make([]*domain.Message, 0, end-offset)
	for _, m := range all[offset:end] {
		page = append(page, copyMessage(m))
	}
	return page, nil
}

func (r *messageRepo) Count(ctx context.Context) (int64, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.messages)), nil
}

func (r *messageRepo) CountByStatus(ctx context.Context) (map[string]int64, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int64)
	for _, m := range s.messages {
		counts[string(m.Status)]++
	}
	return counts, nil
}

func (r *messageRepo) Delete(ctx context.Context, id int64) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return out.ErrNotFound
	}
	delete(s.byExternalID, m.ExternalID)
	delete(s.messages, id)
	delete(s.classifications, id)
	return nil
}

// =============================================================================
// Classifications
// =============================================================================

type classificationRepo Store

func (r *classificationRepo) GetByMessageID(ctx context.Context, messageID int64) (*domain.Classification, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyClassification(s.classifications[messageID]), nil
}

func (r *classificationRepo) ListByMessageIDs(ctx context.Context, messageIDs []int64) (map[int64]*domain.Classification, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make(map[int64]*domain.Classification, len(messageIDs))
	for _, id := range messageIDs {
		if c, ok := s.classifications[id]; ok {
			result[id] = copyClassification(c)
		}
	}
	return result, nil
}

func (r *classificationRepo) SaveTriage(ctx context.Context, c *domain.Classification) (*domain.Classification, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[c.MessageID]
	if !ok {
		return nil, out.ErrNotFound
	}
	if _, exists := s.classifications[c.MessageID]; exists {
		return nil, out.ErrDuplicate
	}

	now := s.now()
	s.nextClassificationID++
	stored := copyClassification(c)
	stored.ID = s.nextClassificationID
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.classifications[c.MessageID] = stored

	m.Status = domain.StatusTriaged
	m.UpdatedAt = now
	return copyClassification(stored), nil
}

func (r *classificationRepo) Upsert(ctx context.Context, c *domain.Classification) (*domain.Classification, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[c.MessageID]; !ok {
		return nil, out.ErrNotFound
	}

	now := s.now()
	stored := copyClassification(c)
	if existing, ok := s.classifications[c.MessageID]; ok {
		stored.ID = existing.ID
		stored.CreatedAt = existing.CreatedAt
		if stored.Reasoning == nil {
			stored.Reasoning = existing.Reasoning
		}
		if stored.Confidence == nil {
			stored.Confidence = existing.Confidence
		}
	} else {
		s.nextClassificationID++
		stored.ID = s.nextClassificationID
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	s.classifications[c.MessageID] = stored
	return copyClassification(stored), nil
}

func (r *classificationRepo) CountByCategory(ctx context.Context) (map[string]int64, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int64)
	for _, c := range s.classifications {
		counts[string(c.Category)]++
	}
	return counts, nil
}

func (r *classificationRepo) CountByPriority(ctx context.Context) (map[string]int64, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int64)
	for _, c := range s.classifications {
		counts[string(c.Priority)]++
	}
	return counts, nil
}

// =============================================================================
// Teams and knowledge
// =============================================================================

type teamRepo Store

func (r *teamRepo) GetByID(ctx context.Context, id int64) (*domain.Team, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.teams[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, nil
}

func (r *teamRepo) GetByName(ctx context.Context, name string) (*domain.Team, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.teams {
		if t.Name == name {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *teamRepo) List(ctx context.Context) ([]*domain.Team, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	teams := make([]*domain.Team, 0, len(s.teams))
	for _, t := range s.teams {
		cp := *t
		teams = append(teams, &cp)
	}
	sort.Slice(teams, func(i, j int) bool { return teams[i].ID < teams[j].ID })
	return teams, nil
}

type knowledgeRepo Store

func (r *knowledgeRepo) ListActive(ctx context.Context) ([]domain.KnowledgeArticle, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	active := make([]domain.KnowledgeArticle, 0, len(s.articles))
	for _, a := range s.articles {
		if a.IsActive {
			active = append(active, copyArticle(a))
		}
	}
	return active, nil
}

// =============================================================================
// Copies
// =============================================================================

func copyMessage(m *domain.Message) *domain.Message {
	if m == nil {
		return nil
	}
	cp := *m
	if m.RawPayload != nil {
		cp.RawPayload = append([]byte(nil), m.RawPayload...)
	}
	return &cp
}

func copyClassification(c *domain.Classification) *domain.Classification {
	if c == nil {
		return nil
	}
	cp := *c
	if c.Confidence != nil {
		v := *c.Confidence
		cp.Confidence = &v
	}
	if c.AssignedTeamID != nil {
		v := *c.AssignedTeamID
		cp.AssignedTeamID = &v
	}
	if c.Reasoning != nil {
		v := *c.Reasoning
		cp.Reasoning = &v
	}
	return &cp
}

func copyArticle(a domain.KnowledgeArticle) domain.KnowledgeArticle {
	cp := a
	cp.Keywords = append([]string(nil), a.Keywords...)
	if a.Category != nil {
		v := *a.Category
		cp.Category = &v
	}
	return cp
}
