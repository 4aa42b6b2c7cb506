package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage_server/core/domain"
)

type fakeGenerator struct {
	mu      sync.Mutex
	reply   string
	err     error
	delay   time.Duration
	prompts []string
}

func (f *fakeGenerator) Name() string { return "fake" }

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.err
}

func (f *fakeGenerator) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prompts[len(f.prompts)-1]
}

func newTestClient(gen *fakeGenerator) *Client {
	return NewClient(gen, ClientConfig{Timeout: time.Second, Logger: zerolog.Nop()})
}

func TestClassifyAndPrioritize_WellFormed(t *testing.T) {
	gen := &fakeGenerator{reply: "```json\n{\"category\": \"Transaction Delay\", \"priority\": \"HIGH\", \"confidence_score\": 0.92, \"reasoning\": \"payment stuck\"}\n```"}
	c := newTestClient(gen)

	res := c.ClassifyAndPrioritize(context.Background(), "My payment is stuck")

	require.NoError(t, res.Err)
	assert.Equal(t, domain.CategoryTransactionDelay, res.Category)
	assert.Equal(t, domain.PriorityHigh, res.Priority)
	require.NotNil(t, res.Confidence)
	assert.InDelta(t, 0.92, *res.Confidence, 1e-9)
	assert.Equal(t, "payment stuck", res.Reasoning)
	assert.False(t, res.Degraded)
	assert.Contains(t, gen.lastPrompt(), `Message: "My payment is stuck"`)
	assert.Contains(t, gen.lastPrompt(), "transaction delay")
}

func TestClassifyAndPrioritize_Malformed(t *testing.T) {
	tests := []struct {
		name       string
		reply      string
		category   domain.Category
		priority   domain.Priority
		confidence *float64
		reasoning  string
	}{
		{
			name:      "plain text",
			reply:     "I think this is about billing.",
			category:  domain.CategoryUnknown,
			priority:  domain.PriorityMedium,
			reasoning: reasoningUnparseable,
		},
		{
			name:       "truncated json",
			reply:      `{"category": "billing", "priority": "low", "confidence_score": 0.7, "reasoning": "invoice que`,
			category:   domain.CategoryBilling,
			priority:   domain.PriorityLow,
			confidence: floatPtr(0.7),
			reasoning:  reasoningUnparseable,
		},
		{
			name:      "missing keys",
			reply:     `{"category": "onboarding"}`,
			category:  domain.CategoryOnboarding,
			priority:  domain.PriorityMedium,
			reasoning: reasoningMissing,
		},
		{
			name:      "unknown category",
			reply:     `{"category": "weather", "priority": "critical", "reasoning": "?"}`,
			category:  domain.CategoryUnknown,
			priority:  domain.PriorityCritical,
			reasoning: "?",
		},
		{
			name:      "confidence out of range",
			reply:     `{"category": "bug report", "priority": "high", "confidence_score": 7, "reasoning": "crash"}`,
			category:  domain.CategoryBugReport,
			priority:  domain.PriorityHigh,
			reasoning: "crash",
		},
		{
			name:      "json array",
			reply:     `["billing"]`,
			category:  domain.CategoryUnknown,
			priority:  domain.PriorityMedium,
			reasoning: reasoningUnparseable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newTestClient(&fakeGenerator{reply: tt.reply}).ClassifyAndPrioritize(context.Background(), "body")

			assert.NoError(t, res.Err)
			assert.Equal(t, tt.category, res.Category)
			assert.Equal(t, tt.priority, res.Priority)
			assert.Equal(t, tt.reasoning, res.Reasoning)
			if tt.confidence == nil {
				assert.Nil(t, res.Confidence)
			} else {
				require.NotNil(t, res.Confidence)
				assert.InDelta(t, *tt.confidence, *res.Confidence, 1e-9)
			}
		})
	}
}

func TestClassifyAndPrioritize_FallbackConfidence(t *testing.T) {
	res := parseClassification(`garbage {"category": "API issue", "priority": "high", "confidence_score": "0.8", "reasoning": "says \"500\""`)

	assert.Equal(t, domain.CategoryAPIIssue, res.Category)
	assert.Equal(t, domain.PriorityHigh, res.Priority)
	require.NotNil(t, res.Confidence)
	assert.InDelta(t, 0.8, *res.Confidence, 1e-9)
	assert.Equal(t, `says "500"`, res.Reasoning)
	assert.True(t, res.Degraded)
}

func TestClassifyAndPrioritize_ProviderError(t *testing.T) {
	boom := errors.New("connection refused")
	res := newTestClient(&fakeGenerator{err: boom}).ClassifyAndPrioritize(context.Background(), "body")

	require.ErrorIs(t, res.Err, boom)
	assert.Equal(t, domain.CategoryUnknown, res.Category)
	assert.Equal(t, domain.PriorityMedium, res.Priority)
	assert.True(t, res.Degraded)
}

func TestClassifyAndPrioritize_Timeout(t *testing.T) {
	gen := &fakeGenerator{reply: `{"category":"billing"}`, delay: time.Second}
	c := NewClient(gen, ClientConfig{Timeout: 20 * time.Millisecond, Logger: zerolog.Nop()})

	res := c.ClassifyAndPrioritize(context.Background(), "body")

	require.Error(t, res.Err)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
}

func TestSuggestReplies_TechnicalWithoutArticles(t *testing.T) {
	gen := &fakeGenerator{reply: `{"reply_draft": "Hello, please retry.", "suggested_tags": "api, retry , API,"}`}

	res := newTestClient(gen).SuggestReplies(context.Background(), "API returns 500", nil, domain.ToneTechnical)

	require.NoError(t, res.Err)
	assert.Equal(t, "Hello, please retry.", res.Draft)
	assert.Equal(t, []string{"api", "retry"}, res.Tags)
	assert.False(t, res.Degraded)

	prompt := gen.lastPrompt()
	assert.Contains(t, prompt, technicalToneInstruction)
	assert.NotContains(t, prompt, "knowledge base articles")
}

func TestSuggestReplies_ArticlesInOrder(t *testing.T) {
	gen := &fakeGenerator{reply: `{"reply_draft": "Hi", "suggested_tags": ["billing", "invoice"]}`}
	articles := []domain.KnowledgeArticle{
		{ID: 1, Title: "First", Content: "one"},
		{ID: 2, Title: "Second", Content: "two"},
	}

	res := newTestClient(gen).SuggestReplies(context.Background(), "invoice", articles, domain.ToneBusinessFriendly)

	assert.Equal(t, []string{"billing", "invoice"}, res.Tags)
	prompt := gen.lastPrompt()
	assert.Contains(t, prompt, businessToneInstruction)
	assert.Contains(t, prompt, knowledgeHeader)
	assert.Less(t, strings.Index(prompt, "Title: First"), strings.Index(prompt, "Title: Second"))
	assert.Contains(t, prompt, strings.TrimSpace(knowledgeFooter))
}

func TestSuggestReplies_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		draft string
		tags  []string
	}{
		{"plain text", "Sure, here is a reply", replyDraftPlaceholder, []string{}},
		{"empty", "", replyDraftPlaceholder, []string{}},
		{"truncated", `{"reply_draft": "Dear client", "suggested_tags": "a,b`, "Dear client", []string{}},
		{"fallback tags", `{"reply_draft": "Hi", "suggested_tags": "x, y", }`, "Hi", []string{"x", "y"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newTestClient(&fakeGenerator{reply: tt.reply}).SuggestReplies(context.Background(), "body", nil, domain.ToneBusinessFriendly)

			assert.NoError(t, res.Err)
			assert.True(t, res.Degraded)
			assert.Equal(t, tt.draft, res.Draft)
			assert.Equal(t, tt.tags, res.Tags)
		})
	}
}

func TestSuggestReplies_ProviderError(t *testing.T) {
	res := newTestClient(&fakeGenerator{err: ErrEmptyResponse}).SuggestReplies(context.Background(), "body", nil, domain.ToneTechnical)

	require.ErrorIs(t, res.Err, ErrEmptyResponse)
	assert.Equal(t, replyDraftPlaceholder, res.Suggestion().ReplyDraft)
	assert.Empty(t, res.Suggestion().SuggestedTags)
}

func TestTruncateBody(t *testing.T) {
	assert.Equal(t, "héllo", truncateBody("héllo", 10))
	assert.Equal(t, "hé...", truncateBody("héllo", 2))
	assert.Equal(t, "", truncateBody("", 5))
}

func floatPtr(f float64) *float64 { return &f }
