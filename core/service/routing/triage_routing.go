// Package routing maps a classification to the team that owns it.
package routing

import (
	"context"
	"fmt"

	"triage_server/core/domain"
	"triage_server/core/port/out"
)

// Team names used as routing keys. They must match the seeded teams.
const (
	TeamTech     = "Tech"
	TeamOps      = "Ops"
	TeamProduct  = "Product"
	TeamFinance  = "Finance"
	TeamSales    = "Sales"
	TeamTechLead = "Tech Lead"

	DefaultTeam = TeamOps
)

var categoryTeams = map[domain.Category]string{
	domain.CategoryAPIIssue:          TeamTech,
	domain.CategoryTransactionDelay:  TeamOps,
	domain.CategoryOnboarding:        TeamOps,
	domain.CategoryProductFlows:      TeamProduct,
	domain.CategoryBilling:           TeamFinance,
	domain.CategoryAccountManagement: TeamSales,
	domain.CategoryTechnicalSupport:  TeamTech,
	domain.CategoryBugReport:         TeamTech,
	domain.CategoryFeatureRequest:    TeamProduct,
	domain.CategoryGeneralInquiry:    TeamOps,
	domain.CategoryOther:             TeamOps,
	domain.CategoryUnknown:           TeamOps,
}

// escalated categories go to the Tech Lead when priority is high or critical.
var escalated = map[domain.Category]bool{
	domain.CategoryAPIIssue:         true,
	domain.CategoryProductFlows:     true,
	domain.CategoryBugReport:        true,
	domain.CategoryTechnicalSupport: true,
}

// DetermineTeam returns the name of the team that owns (category, priority).
func DetermineTeam(category domain.Category, priority domain.Priority) string {
	if IsEscalated(category, priority) {
		return TeamTechLead
	}
	if team, ok := categoryTeams[category]; ok {
		return team
	}
	return DefaultTeam
}

// IsEscalated reports whether (category, priority) triggers the Tech Lead
// override.
func IsEscalated(category domain.Category, priority domain.Priority) bool {
	return escalated[category] && priority.IsUrgent()
}

// Router resolves routing decisions to seeded team records.
type Router struct {
	teams out.TeamRepository
}

func NewRouter(teams out.TeamRepository) *Router {
	return &Router{teams: teams}
}

// Resolve returns the team for (category, priority) along with its name.
// A team that is not seeded yields a nil team and no error.
func (r *Router) Resolve(ctx context.Context, category domain.Category, priority domain.Priority) (*domain.Team, string, error) {
	name := DetermineTeam(category, priority)
	team, err := r.teams.GetByName(ctx, name)
	if err != nil {
		return nil, name, fmt.Errorf("resolve team %q: %w", name, err)
	}
	return team, name, nil
}
