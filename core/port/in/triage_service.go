package in

import (
	"context"

	"triage_server/core/domain"
)

// IngestOutcome says what one ingest run did.
type IngestOutcome string

const (
	OutcomeTriaged              IngestOutcome = "triaged"
	OutcomeDuplicate            IngestOutcome = "duplicate"
	OutcomeClassificationFailed IngestOutcome = "classification_failed"
)

// IngestResult is returned by Ingest.
type IngestResult struct {
	Outcome        IngestOutcome
	Message        *domain.Message
	Classification *domain.Classification
	Team           *domain.Team
	// Resumed is set when a retry completed a message an earlier attempt stored.
	Resumed bool
}

type IngestUseCase interface {
	// Ingest stores, classifies and routes one inbound message. retry marks a
	// redelivery of a job whose earlier attempt failed.
	Ingest(ctx context.Context, msg *domain.InboundMessage, retry bool) (*IngestResult, error)
}

type ReclassifyInput struct {
	Category       string  `json:"category"`
	Priority       string  `json:"priority"`
	AssignedTeamID *int64  `json:"assigned_team_id,omitempty"`
	Reasoning      *string `json:"reasoning,omitempty"`
}

type TriageService interface {
	GetMessage(ctx context.Context, id int64) (*domain.MessageView, error)
	ListMessages(ctx context.Context, page *domain.PageRequest) ([]*domain.MessageView, int64, error)
	Stats(ctx context.Context) (*domain.MessageStats, error)
	ListTeams(ctx context.Context) ([]*domain.Team, error)

	Reclassify(ctx context.Context, messageID int64, input *ReclassifyInput) (*domain.Classification, error)
	UpdateStatus(ctx context.Context, messageID int64, status string) (*domain.Message, error)
	SendReply(ctx context.Context, messageID int64, content string) (*domain.Message, error)
}

type ReplyAssistant interface {
	SuggestReply(ctx context.Context, messageID int64, tone domain.Tone) (*domain.ReplySuggestion, error)
}

// PreviewResult is the full triage of an ad-hoc message body.
type PreviewResult struct {
	Message           *domain.Message           `json:"message"`
	Classification    *domain.Classification    `json:"classification"`
	AssignedTeam      *domain.Team              `json:"assigned_team,omitempty"`
	TeamName          string                    `json:"team_name"`
	KnowledgeArticles []domain.KnowledgeArticle `json:"knowledge_articles"`
	Reply             *domain.ReplySuggestion   `json:"reply"`
	Degraded          bool                      `json:"degraded"`
}

type PreviewService interface {
	Preview(ctx context.Context, body string, tone domain.Tone) (*PreviewResult, error)
}
