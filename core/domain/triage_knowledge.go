package domain

import "time"

// KnowledgeArticle is a support article used to ground reply drafts.
type KnowledgeArticle struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Keywords  []string  `json:"keywords"`
	Category  *string   `json:"category,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// ReplySuggestion is a drafted reply with tags for the conversation.
type ReplySuggestion struct {
	ReplyDraft    string   `json:"reply_draft"`
	SuggestedTags []string `json:"suggested_tags"`
}
