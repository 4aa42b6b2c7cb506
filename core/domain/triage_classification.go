package domain

import (
	"strings"
	"time"
)

// Category is the support category assigned to a message.
type Category string

const (
	CategoryAPIIssue          Category = "API issue"
	CategoryTransactionDelay  Category = "transaction delay"
	CategoryProductFlows      Category = "product flows"
	CategoryOnboarding        Category = "onboarding"
	CategoryBilling           Category = "billing"
	CategoryAccountManagement Category = "account management"
	CategoryGeneralInquiry    Category = "general inquiry"
	CategoryTechnicalSupport  Category = "technical support"
	CategoryFeatureRequest    Category = "feature request"
	CategoryBugReport         Category = "bug report"
	CategoryOther             Category = "other"

	// CategoryUnknown is used when no category could be determined.
	CategoryUnknown Category = "unknown"
)

// Categories is the fixed category set offered to the model, in prompt order.
var Categories = []Category{
	CategoryAPIIssue,
	CategoryTransactionDelay,
	CategoryProductFlows,
	CategoryOnboarding,
	CategoryBilling,
	CategoryAccountManagement,
	CategoryGeneralInquiry,
	CategoryTechnicalSupport,
	CategoryFeatureRequest,
	CategoryBugReport,
	CategoryOther,
}

// ParseCategory maps s case-insensitively onto the category set.
// The second return value is false when s is not a known category.
func ParseCategory(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, string(CategoryUnknown)) {
		return CategoryUnknown, true
	}
	for _, c := range Categories {
		if strings.EqualFold(s, string(c)) {
			return c, true
		}
	}
	return CategoryUnknown, false
}

// Priority is the urgency assigned to a message.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Priorities is the fixed priority set, lowest first.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

// ParsePriority maps s case-insensitively onto the priority set.
func ParsePriority(s string) (Priority, bool) {
	s = strings.TrimSpace(s)
	for _, p := range Priorities {
		if strings.EqualFold(s, string(p)) {
			return p, true
		}
	}
	return PriorityMedium, false
}

// IsUrgent reports whether p is high or critical.
func (p Priority) IsUrgent() bool {
	return p == PriorityHigh || p == PriorityCritical
}

// ClassificationStatus records who produced a classification.
type ClassificationStatus string

const (
	ClassificationAuto          ClassificationStatus = "auto_classified"
	ClassificationHumanReviewed ClassificationStatus = "human_reviewed"
)

// Classification is the persisted triage result of one message.
type Classification struct {
	ID             int64                `json:"id"`
	MessageID      int64                `json:"message_id"`
	Category       Category             `json:"category"`
	Priority       Priority             `json:"priority"`
	Confidence     *float64             `json:"confidence_score"`
	AssignedTeamID *int64               `json:"assigned_team_id"`
	Status         ClassificationStatus `json:"status"`
	Reasoning      *string              `json:"gemini_reasoning"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// Tone selects the register of a drafted reply.
type Tone string

const (
	ToneTechnical        Tone = "technical"
	ToneBusinessFriendly Tone = "business-friendly"
)

// IsValid reports whether t is a supported tone.
func (t Tone) IsValid() bool {
	return t == ToneTechnical || t == ToneBusinessFriendly
}
