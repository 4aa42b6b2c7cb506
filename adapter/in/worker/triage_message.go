package worker

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"triage_server/core/domain"
)

// JobType represents the type of a job.
type JobType = string

const (
	JobTriageIngest JobType = "triage.ingest"
)

// Message is one unit of work for the pool.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	Retries   int             `json:"retries"`
	// Redelivered marks a job re-read from the stream's pending list.
	Redelivered bool `json:"redelivered,omitempty"`
}

func NewMessage(jobType string, payload json.RawMessage) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      jobType,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}

// NewIngestMessage wraps an inbound platform message.
func NewIngestMessage(in *domain.InboundMessage) (*Message, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	return NewMessage(JobTriageIngest, data), nil
}

// IsRetry reports whether an earlier attempt of this job may have run.
func (m *Message) IsRetry() bool {
	return m.Retries > 0 || m.Redelivered
}

func ParsePayload[T any](msg *Message) (*T, error) {
	var payload T
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
