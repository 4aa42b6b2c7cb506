package routing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage_server/core/domain"
)

func TestDetermineTeam(t *testing.T) {
	tests := []struct {
		category domain.Category
		priority domain.Priority
		want     string
	}{
		{domain.CategoryAPIIssue, domain.PriorityLow, TeamTech},
		{domain.CategoryAPIIssue, domain.PriorityHigh, TeamTechLead},
		{domain.CategoryAPIIssue, domain.PriorityCritical, TeamTechLead},
		{domain.CategoryTransactionDelay, domain.PriorityCritical, TeamOps},
		{domain.CategoryOnboarding, domain.PriorityMedium, TeamOps},
		{domain.CategoryProductFlows, domain.PriorityMedium, TeamProduct},
		{domain.CategoryProductFlows, domain.PriorityHigh, TeamTechLead},
		{domain.CategoryBilling, domain.PriorityCritical, TeamFinance},
		{domain.CategoryAccountManagement, domain.PriorityLow, TeamSales},
		{domain.CategoryTechnicalSupport, domain.PriorityMedium, TeamTech},
		{domain.CategoryTechnicalSupport, domain.PriorityHigh, TeamTechLead},
		{domain.CategoryBugReport, domain.PriorityCritical, TeamTechLead},
		{domain.CategoryFeatureRequest, domain.PriorityHigh, TeamProduct},
		{domain.CategoryGeneralInquiry, domain.PriorityLow, TeamOps},
		{domain.CategoryOther, domain.PriorityHigh, TeamOps},
		{domain.CategoryUnknown, domain.PriorityCritical, TeamOps},
		{domain.Category("made up"), domain.PriorityHigh, TeamOps},
	}

	for _, tt := range tests {
		t.Run(string(tt.category)+"/"+string(tt.priority), func(t *testing.T) {
			assert.Equal(t, tt.want, DetermineTeam(tt.category, tt.priority))
		})
	}
}

func TestDetermineTeam_EscalationOnlyWhenUrgent(t *testing.T) {
	for _, c := range append(domain.Categories, domain.CategoryUnknown) {
		for _, p := range domain.Priorities {
			got := DetermineTeam(c, p)
			assert.Equal(t, got, DetermineTeam(c, p), "deterministic")
			assert.Equal(t, IsEscalated(c, p), got == TeamTechLead, "%s/%s", c, p)
			if got == TeamTechLead {
				assert.True(t, p.IsUrgent(), "priority %s", p)
			}
		}
	}
}

type stubTeams struct {
	byName map[string]*domain.Team
	err    error
}

func (s *stubTeams) GetByID(ctx context.Context, id int64) (*domain.Team, error) { return nil, nil }
func (s *stubTeams) List(ctx context.Context) ([]*domain.Team, error)            { return nil, nil }
func (s *stubTeams) GetByName(ctx context.Context, name string) (*domain.Team, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.byName[name], nil
}

func TestRouterResolve(t *testing.T) {
	ops := &domain.Team{ID: 2, Name: TeamOps}
	r := NewRouter(&stubTeams{byName: map[string]*domain.Team{TeamOps: ops}})

	team, name, err := r.Resolve(context.Background(), domain.CategoryTransactionDelay, domain.PriorityMedium)
	require.NoError(t, err)
	assert.Equal(t, ops, team)
	assert.Equal(t, TeamOps, name)

	team, name, err = r.Resolve(context.Background(), domain.CategoryBugReport, domain.PriorityHigh)
	require.NoError(t, err)
	assert.Nil(t, team)
	assert.Equal(t, TeamTechLead, name)
}

func TestRouterResolve_Error(t *testing.T) {
	r := NewRouter(&stubTeams{err: errors.New("db down")})
	_, _, err := r.Resolve(context.Background(), domain.CategoryBilling, domain.PriorityLow)
	assert.Error(t, err)
}
