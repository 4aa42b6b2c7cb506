package domain

import (
	"encoding/json"
	"time"
)

// MessageStatus is the lifecycle state of an inbound message.
type MessageStatus string

const (
	StatusPendingTriage MessageStatus = "pending_triage" // stored, not yet classified
	StatusTriaged       MessageStatus = "triaged"        // classified and routed
	StatusReplied       MessageStatus = "replied"        // agent replied
	StatusClosed        MessageStatus = "closed"         // conversation closed
)

// MessageStatuses lists every lifecycle value in order.
var MessageStatuses = []MessageStatus{
	StatusPendingTriage,
	StatusTriaged,
	StatusReplied,
	StatusClosed,
}

// IsValid reports whether s is one of the four lifecycle values.
func (s MessageStatus) IsValid() bool {
	switch s {
	case StatusPendingTriage, StatusTriaged, StatusReplied, StatusClosed:
		return true
	}
	return false
}

// MessageKind is the platform message type.
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindOther MessageKind = "other"
)

// Message is an inbound platform message.
// ExternalID is the platform message id and is globally unique.
type Message struct {
	ID         int64           `json:"id"`
	ExternalID string          `json:"whatsapp_message_id"`
	From       string          `json:"from_number"`
	Body       string          `json:"message_body"`
	Kind       MessageKind     `json:"message_type"`
	Status     MessageStatus   `json:"status"`
	RawPayload json.RawMessage `json:"raw_webhook_data,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// InboundMessage is what the webhook hands to the ingest pipeline.
type InboundMessage struct {
	ExternalID string          `json:"id"`
	From       string          `json:"from"`
	Body       string          `json:"body"`
	Kind       MessageKind     `json:"type"`
	RawPayload json.RawMessage `json:"raw,omitempty"`
}

// NewMessage builds a pending message from an inbound delivery.
func NewMessage(in *InboundMessage) *Message {
	kind := in.Kind
	if kind == "" {
		kind = KindText
	}
	return &Message{
		ExternalID: in.ExternalID,
		From:       in.From,
		Body:       in.Body,
		Kind:       kind,
		Status:     StatusPendingTriage,
		RawPayload: in.RawPayload,
	}
}

// MessageView is a message joined with its classification and assigned team.
type MessageView struct {
	Message
	Classification *Classification `json:"classification,omitempty"`
	AssignedTeam   *Team           `json:"assigned_team,omitempty"`
}

// MessageStats holds dashboard aggregates.
type MessageStats struct {
	TotalMessages      int64            `json:"total_messages"`
	MessagesByStatus   map[string]int64 `json:"messages_by_status"`
	MessagesByCategory map[string]int64 `json:"messages_by_category"`
	MessagesByPriority map[string]int64 `json:"messages_by_priority"`
}
