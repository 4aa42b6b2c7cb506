// Package triage implements the message-triage use cases: the asynchronous
// ingest pipeline, agent review operations, dashboard queries, reply assist
// and ad-hoc preview.
package triage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"triage_server/core/agent/llm"
	"triage_server/core/agent/rag"
	"triage_server/core/domain"
	"triage_server/core/port/in"
	"triage_server/core/port/out"
	"triage_server/core/service/routing"
	"triage_server/pkg/apperr"
)

// Classifier is the AI client surface used by the triage services.
type Classifier interface {
	ClassifyAndPrioritize(ctx context.Context, body string) llm.ClassificationResult
	SuggestReplies(ctx context.Context, body string, articles []domain.KnowledgeArticle, tone domain.Tone) llm.ReplyResult
	Provider() string
}

// KnowledgeFinder selects articles that ground reply drafts.
type KnowledgeFinder interface {
	FindRelevant(ctx context.Context, category, body string, opts rag.Options) ([]domain.KnowledgeArticle, error)
}

// Store groups the repositories the services read and write.
type Store struct {
	Messages        out.MessageRepository
	Classifications out.ClassificationRepository
	Teams           out.TeamRepository
}

// Pipeline runs one inbound message through store, classify, route and persist.
type Pipeline struct {
	store      Store
	classifier Classifier
	router     *routing.Router
	log        zerolog.Logger
}

var _ in.IngestUseCase = (*Pipeline)(nil)

func NewPipeline(store Store, classifier Classifier, router *routing.Router, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		store:      store,
		classifier: classifier,
		router:     router,
		log:        log.With().Str("component", "pipeline").Logger(),
	}
}

// Ingest processes one inbound message.
//
// A redelivered message id is a no-op. When retry is set and the stored
// message is still pending without a classification, the earlier attempt is
// resumed instead. A provider failure leaves the message pending and is not
// an error; storage failures are returned so the caller can retry.
func (p *Pipeline) Ingest(ctx context.Context, msg *domain.InboundMessage, retry bool) (*in.IngestResult, error) {
	if strings.TrimSpace(msg.ExternalID) == "" {
		return nil, apperr.MissingField("id")
	}
	start := time.Now()
	log := p.log.With().Str("external_id", msg.ExternalID).Str("from", msg.From).Logger()

	stored, created, err := p.store.Messages.CreateIfAbsent(ctx, domain.NewMessage(msg))
	if err != nil {
		return nil, fmt.Errorf("store message: %w", err)
	}

	result := &in.IngestResult{Message: stored}
	if !created {
		resumable, err := p.resumable(ctx, stored, retry)
		if err != nil {
			return nil, err
		}
		if !resumable {
			log.Info().Int64("message_id", stored.ID).Msg("duplicate delivery ignored")
			result.Outcome = in.OutcomeDuplicate
			return result, nil
		}
		result.Resumed = true
		log.Info().Int64("message_id", stored.ID).Msg("resuming pending message")
	}

	cls := p.classifier.ClassifyAndPrioritize(ctx, stored.Body)
	if cls.Err != nil {
		log.Error().
			Err(cls.Err).
			Int64("message_id", stored.ID).
			Str("provider", p.classifier.Provider()).
			Str("body", stored.Body).
			RawJSON("payload", rawOrNull(msg.RawPayload)).
			Msg("classification failed, message left pending")
		result.Outcome = in.OutcomeClassificationFailed
		return result, nil
	}

	team, teamName, err := p.router.Resolve(ctx, cls.Category, cls.Priority)
	if err != nil {
		return nil, err
	}
	if team == nil {
		log.Warn().Str("team", teamName).Msg("routing target not seeded, leaving unassigned")
	}

	reasoning := cls.Reasoning
	classification := &domain.Classification{
		MessageID:  stored.ID,
		Category:   cls.Category,
		Priority:   cls.Priority,
		Confidence: cls.Confidence,
		Status:     domain.ClassificationAuto,
		Reasoning:  &reasoning,
	}
	if team != nil {
		classification.AssignedTeamID = &team.ID
	}

	saved, err := p.store.Classifications.SaveTriage(ctx, classification)
	if errors.Is(err, out.ErrDuplicate) {
		log.Info().Int64("message_id", stored.ID).Msg("message classified concurrently, skipping")
		result.Outcome = in.OutcomeDuplicate
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("save classification: %w", err)
	}

	stored.Status = domain.StatusTriaged
	result.Outcome = in.OutcomeTriaged
	result.Classification = saved
	result.Team = team

	p.notify(log, stored, saved, team, teamName)
	log.Info().
		Int64("message_id", stored.ID).
		Str("category", string(saved.Category)).
		Str("priority", string(saved.Priority)).
		Bool("degraded", cls.Degraded).
		Dur("elapsed", time.Since(start)).
		Msg("message triaged")
	return result, nil
}

func (p *Pipeline) resumable(ctx context.Context, stored *domain.Message, retry bool) (bool, error) {
	if !retry || stored.Status != domain.StatusPendingTriage {
		return false, nil
	}
	existing, err := p.store.Classifications.GetByMessageID(ctx, stored.ID)
	if err != nil {
		return false, fmt.Errorf("load classification: %w", err)
	}
	return existing == nil, nil
}

// notify records the assignment together with the team's contact channels.
func (p *Pipeline) notify(log zerolog.Logger, msg *domain.Message, c *domain.Classification, team *domain.Team, teamName string) {
	ev := log.Info().
		Int64("message_id", msg.ID).
		Str("team", teamName).
		Bool("escalated", routing.IsEscalated(c.Category, c.Priority))
	if team != nil {
		ev = ev.Str("email_alias", team.EmailAlias).Str("slack_channel", team.SlackChannel)
	}
	ev.Str("priority", string(c.Priority)).Msg("message assigned")
}

func rawOrNull(raw []byte) []byte {
	if len(raw) == 0 {
		return []byte("null")
	}
	return raw
}
