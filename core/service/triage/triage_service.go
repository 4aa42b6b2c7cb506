package triage

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"triage_server/core/domain"
	"triage_server/core/port/in"
	"triage_server/core/port/out"
	"triage_server/pkg/apperr"
)

// Service serves agent review operations and dashboard queries.
type Service struct {
	store Store
	log   zerolog.Logger
}

var _ in.TriageService = (*Service)(nil)

func NewService(store Store, log zerolog.Logger) *Service {
	return &Service{store: store, log: log.With().Str("component", "triage").Logger()}
}

// =============================================================================
// Queries
// =============================================================================

func (s *Service) GetMessage(ctx context.Context, id int64) (*domain.MessageView, error) {
	msg, err := s.loadMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	c, err := s.store.Classifications.GetByMessageID(ctx, id)
	if err != nil {
		return nil, apperr.DatabaseError("get classification", err)
	}

	view := &domain.MessageView{Message: *msg, Classification: c}
	if c != nil && c.AssignedTeamID != nil {
		team, err := s.store.Teams.GetByID(ctx, *c.AssignedTeamID)
		if err != nil {
			return nil, apperr.DatabaseError("get team", err)
		}
		view.AssignedTeam = team
	}
	return view, nil
}

func (s *Service) ListMessages(ctx context.Context, page *domain.PageRequest) ([]*domain.MessageView, int64, error) {
	total, err := s.store.Messages.Count(ctx)
	if err != nil {
		return nil, 0, apperr.DatabaseError("count messages", err)
	}
	msgs, err := s.store.Messages.List(ctx, page.Offset(), page.Limit())
	if err != nil {
		return nil, 0, apperr.DatabaseError("list messages", err)
	}

	ids := make([]int64, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	classifications, err := s.store.Classifications.ListByMessageIDs(ctx, ids)
	if err != nil {
		return nil, 0, apperr.DatabaseError("list classifications", err)
	}
	teams, err := s.teamIndex(ctx)
	if err != nil {
		return nil, 0, err
	}

	views := make([]*domain.MessageView, len(msgs))
	for i, m := range msgs {
		view := &domain.MessageView{Message: *m, Classification: classifications[m.ID]}
		if c := view.Classification; c != nil && c.AssignedTeamID != nil {
			view.AssignedTeam = teams[*c.AssignedTeamID]
		}
		views[i] = view
	}
	return views, total, nil
}

func (s *Service) Stats(ctx context.Context) (*domain.MessageStats, error) {
	total, err := s.store.Messages.Count(ctx)
	if err != nil {
		return nil, apperr.DatabaseError("count messages", err)
	}
	byStatus, err := s.store.Messages.CountByStatus(ctx)
	if err != nil {
		return nil, apperr.DatabaseError("count by status", err)
	}
	byCategory, err := s.store.Classifications.CountByCategory(ctx)
	if err != nil {
		return nil, apperr.DatabaseError("count by category", err)
	}
	byPriority, err := s.store.Classifications.CountByPriority(ctx)
	if err != nil {
		return nil, apperr.DatabaseError("count by priority", err)
	}
	return &domain.MessageStats{
		TotalMessages:      total,
		MessagesByStatus:   byStatus,
		MessagesByCategory: byCategory,
		MessagesByPriority: byPriority,
	}, nil
}

func (s *Service) ListTeams(ctx context.Context) ([]*domain.Team, error) {
	teams, err := s.store.Teams.List(ctx)
	if err != nil {
		return nil, apperr.DatabaseError("list teams", err)
	}
	return teams, nil
}

// =============================================================================
// Review operations
// =============================================================================

// Reclassify records a human classification. The previous reasoning is kept
// unless input.Reasoning is set.
func (s *Service) Reclassify(ctx context.Context, messageID int64, input *in.ReclassifyInput) (*domain.Classification, error) {
	if strings.TrimSpace(input.Category) == "" {
		return nil, apperr.MissingField("category")
	}
	if strings.TrimSpace(input.Priority) == "" {
		return nil, apperr.MissingField("priority")
	}
	category, ok := domain.ParseCategory(input.Category)
	if !ok {
		return nil, apperr.InvalidInput("category", "unknown category")
	}
	priority, ok := domain.ParsePriority(input.Priority)
	if !ok {
		return nil, apperr.InvalidInput("priority", "must be one of low, medium, high, critical")
	}

	if _, err := s.loadMessage(ctx, messageID); err != nil {
		return nil, err
	}
	if input.AssignedTeamID != nil {
		team, err := s.store.Teams.GetByID(ctx, *input.AssignedTeamID)
		if err != nil {
			return nil, apperr.DatabaseError("get team", err)
		}
		if team == nil {
			return nil, apperr.InvalidInput("assigned_team_id", "team does not exist")
		}
	}

	var reasoning *string
	if input.Reasoning != nil && strings.TrimSpace(*input.Reasoning) != "" {
		r := *input.Reasoning
		reasoning = &r
	}

	c, err := s.store.Classifications.Upsert(ctx, &domain.Classification{
		MessageID:      messageID,
		Category:       category,
		Priority:       priority,
		AssignedTeamID: input.AssignedTeamID,
		Status:         domain.ClassificationHumanReviewed,
		Reasoning:      reasoning,
	})
	if err != nil {
		return nil, s.storeError("reclassify", err)
	}
	s.log.Info().Int64("message_id", messageID).Str("category", string(category)).Str("priority", string(priority)).Msg("message reclassified")
	return c, nil
}

func (s *Service) UpdateStatus(ctx context.Context, messageID int64, status string) (*domain.Message, error) {
	if strings.TrimSpace(status) == "" {
		return nil, apperr.MissingField("status")
	}
	st := domain.MessageStatus(status)
	if !st.IsValid() {
		return nil, apperr.InvalidInput("status", "must be one of pending_triage, triaged, replied, closed")
	}
	return s.setStatus(ctx, messageID, st)
}

// SendReply records that the agent replied. Delivery to the platform is not
// performed.
func (s *Service) SendReply(ctx context.Context, messageID int64, content string) (*domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperr.MissingField("reply_content")
	}
	msg, err := s.loadMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	s.log.Info().Int64("message_id", messageID).Str("to", msg.From).Int("length", len(content)).Msg("reply recorded (delivery simulated)")
	return s.setStatus(ctx, messageID, domain.StatusReplied)
}

func (s *Service) setStatus(ctx context.Context, messageID int64, status domain.MessageStatus) (*domain.Message, error) {
	if err := s.store.Messages.UpdateStatus(ctx, messageID, status); err != nil {
		return nil, s.storeError("update status", err)
	}
	msg, err := s.loadMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	s.log.Info().Int64("message_id", messageID).Str("status", string(status)).Msg("message status updated")
	return msg, nil
}

func (s *Service) loadMessage(ctx context.Context, id int64) (*domain.Message, error) {
	return loadMessage(ctx, s.store.Messages, id)
}

func (s *Service) teamIndex(ctx context.Context) (map[int64]*domain.Team, error) {
	teams, err := s.store.Teams.List(ctx)
	if err != nil {
		return nil, apperr.DatabaseError("list teams", err)
	}
	index := make(map[int64]*domain.Team, len(teams))
	for _, t := range teams {
		index[t.ID] = t
	}
	return index, nil
}

func (s *Service) storeError(op string, err error) error {
	if errors.Is(err, out.ErrNotFound) {
		return apperr.NotFound("message")
	}
	return apperr.DatabaseError(op, err)
}

func loadMessage(ctx context.Context, repo out.MessageRepository, id int64) (*domain.Message, error) {
	msg, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.DatabaseError("get message", err)
	}
	if msg == nil {
		return nil, apperr.NotFound("message")
	}
	return msg, nil
}
