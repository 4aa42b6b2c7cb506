package domain

import "time"

// Team is a routing target. Name is unique and used as the routing key.
type Team struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	EmailAlias   string    `json:"email_alias,omitempty"`
	SlackChannel string    `json:"slack_channel,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
