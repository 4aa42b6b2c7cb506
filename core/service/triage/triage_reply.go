package triage

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"triage_server/core/agent/rag"
	"triage_server/core/domain"
	"triage_server/core/port/in"
	"triage_server/core/port/out"
	"triage_server/core/service/routing"
	"triage_server/pkg/apperr"
)

// Assistant drafts replies for agents and runs ad-hoc previews.
type Assistant struct {
	store      Store
	knowledge  KnowledgeFinder
	classifier Classifier
	router     *routing.Router
	log        zerolog.Logger
}

var (
	_ in.ReplyAssistant = (*Assistant)(nil)
	_ in.PreviewService = (*Assistant)(nil)
)

func NewAssistant(store Store, knowledge KnowledgeFinder, classifier Classifier, router *routing.Router, log zerolog.Logger) *Assistant {
	return &Assistant{
		store:      store,
		knowledge:  knowledge,
		classifier: classifier,
		router:     router,
		log:        log.With().Str("component", "reply_assist").Logger(),
	}
}

// SuggestReply drafts a reply for a stored message. Provider failures are
// returned as errors rather than placeholder drafts.
func (a *Assistant) SuggestReply(ctx context.Context, messageID int64, tone domain.Tone) (*domain.ReplySuggestion, error) {
	if !tone.IsValid() {
		return nil, apperr.InvalidInput("tone", "must be technical or business-friendly")
	}
	msg, err := loadMessage(ctx, a.store.Messages, messageID)
	if err != nil {
		return nil, err
	}
	c, err := a.store.Classifications.GetByMessageID(ctx, messageID)
	if err != nil {
		return nil, apperr.DatabaseError("get classification", err)
	}

	category := ""
	if c != nil {
		category = string(c.Category)
	}
	articles, err := a.knowledge.FindRelevant(ctx, category, msg.Body, rag.Options{})
	if err != nil {
		return nil, apperr.DatabaseError("find knowledge articles", err)
	}

	res := a.classifier.SuggestReplies(ctx, msg.Body, articles, tone)
	if res.Err != nil {
		a.log.Error().Err(res.Err).Int64("message_id", messageID).Msg("reply suggestion failed")
		return nil, apperr.ExternalError(a.classifier.Provider(), res.Err)
	}
	a.log.Info().Int64("message_id", messageID).Int("articles", len(articles)).Str("tone", string(tone)).Bool("degraded", res.Degraded).Msg("reply suggested")
	return res.Suggestion(), nil
}

// Preview classifies, routes and drafts a reply for an ad-hoc body, and
// stores the result as a message so it appears on the dashboard.
func (a *Assistant) Preview(ctx context.Context, body string, tone domain.Tone) (*in.PreviewResult, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperr.MissingField("message_body")
	}
	if tone == "" {
		tone = domain.ToneBusinessFriendly
	}
	if !tone.IsValid() {
		return nil, apperr.InvalidInput("tone", "must be technical or business-friendly")
	}

	cls := a.classifier.ClassifyAndPrioritize(ctx, body)
	if cls.Err != nil {
		return nil, apperr.ExternalError(a.classifier.Provider(), cls.Err)
	}

	team, teamName, err := a.router.Resolve(ctx, cls.Category, cls.Priority)
	if err != nil {
		return nil, apperr.DatabaseError("resolve team", err)
	}

	articles, err := a.knowledge.FindRelevant(ctx, string(cls.Category), body, rag.Options{MatchContent: true})
	if err != nil {
		return nil, apperr.DatabaseError("find knowledge articles", err)
	}

	reply := a.classifier.SuggestReplies(ctx, body, articles, tone)
	if reply.Err != nil {
		return nil, apperr.ExternalError(a.classifier.Provider(), reply.Err)
	}

	msg, _, err := a.store.Messages.CreateIfAbsent(ctx, domain.NewMessage(&domain.InboundMessage{
		ExternalID: "preview-" + uuid.NewString(),
		From:       "preview",
		Body:       body,
		Kind:       domain.KindText,
	}))
	if err != nil {
		return nil, apperr.DatabaseError("store preview message", err)
	}

	reasoning := cls.Reasoning
	classification := &domain.Classification{
		MessageID:  msg.ID,
		Category:   cls.Category,
		Priority:   cls.Priority,
		Confidence: cls.Confidence,
		Status:     domain.ClassificationAuto,
		Reasoning:  &reasoning,
	}
	if team != nil {
		classification.AssignedTeamID = &team.ID
	}
	saved, err := a.store.Classifications.SaveTriage(ctx, classification)
	if err != nil && !errors.Is(err, out.ErrDuplicate) {
		return nil, apperr.DatabaseError("store preview classification", err)
	}
	msg.Status = domain.StatusTriaged

	a.log.Info().Int64("message_id", msg.ID).Str("team", teamName).Int("articles", len(articles)).Msg("preview completed")
	return &in.PreviewResult{
		Message:           msg,
		Classification:    saved,
		AssignedTeam:      team,
		TeamName:          teamName,
		KnowledgeArticles: articles,
		Reply:             reply.Suggestion(),
		Degraded:          cls.Degraded || reply.Degraded,
	}, nil
}
