package triage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage_server/adapter/out/memory"
	"triage_server/core/agent/llm"
	"triage_server/core/agent/rag"
	"triage_server/core/domain"
	"triage_server/core/port/in"
	"triage_server/core/port/out"
	"triage_server/core/service/routing"
	"triage_server/pkg/apperr"
)

type fakeClassifier struct {
	mu           sync.Mutex
	result       llm.ClassificationResult
	reply        llm.ReplyResult
	classifyN    int32
	lastArticles []domain.KnowledgeArticle
	lastTone     domain.Tone
	bodies       []string
}

func (f *fakeClassifier) Provider() string { return "fake" }

func (f *fakeClassifier) ClassifyAndPrioritize(ctx context.Context, body string) llm.ClassificationResult {
	atomic.AddInt32(&f.classifyN, 1)
	f.mu.Lock()
	f.bodies = append(f.bodies, body)
	f.mu.Unlock()
	return f.result
}

func (f *fakeClassifier) SuggestReplies(ctx context.Context, body string, articles []domain.KnowledgeArticle, tone domain.Tone) llm.ReplyResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastArticles = articles
	f.lastTone = tone
	return f.reply
}

// flakyClassifications fails SaveTriage a fixed number of times.
type flakyClassifications struct {
	out.ClassificationRepository
	failures int32
}

func (f *flakyClassifications) SaveTriage(ctx context.Context, c *domain.Classification) (*domain.Classification, error) {
	if atomic.AddInt32(&f.failures, -1) >= 0 {
		return nil, errors.New("connection reset")
	}
	return f.ClassificationRepository.SaveTriage(ctx, c)
}

type fixture struct {
	mem        *memory.Store
	store      Store
	classifier *fakeClassifier
	pipeline   *Pipeline
	service    *Service
	assistant  *Assistant
}

func conf(v float64) *float64 { return &v }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := memory.NewSeededStore()
	store := Store{Messages: mem.Messages(), Classifications: mem.Classifications(), Teams: mem.Teams()}
	classifier := &fakeClassifier{
		result: llm.ClassificationResult{
			Category:   domain.CategoryTransactionDelay,
			Priority:   domain.PriorityMedium,
			Confidence: conf(0.9),
			Reasoning:  "payment is delayed",
		},
		reply: llm.ReplyResult{Draft: "Hello, we are on it.", Tags: []string{"payment"}},
	}
	router := routing.NewRouter(store.Teams)
	retriever := rag.NewRetriever(mem.Knowledge(), nil, time.Minute, zerolog.Nop())

	return &fixture{
		mem:        mem,
		store:      store,
		classifier: classifier,
		pipeline:   NewPipeline(store, classifier, router, zerolog.Nop()),
		service:    NewService(store, zerolog.Nop()),
		assistant:  NewAssistant(store, retriever, classifier, router, zerolog.Nop()),
	}
}

func inbound(id, body string) *domain.InboundMessage {
	return &domain.InboundMessage{ExternalID: id, From: "+100", Body: body, Kind: domain.KindText, RawPayload: []byte(`{"id":"` + id + `"}`)}
}

// =============================================================================
// Pipeline
// =============================================================================

func TestIngest_TriagesNewMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.pipeline.Ingest(ctx, inbound("m1", "My payment is stuck"), false)
	require.NoError(t, err)

	assert.Equal(t, in.OutcomeTriaged, res.Outcome)
	assert.Equal(t, []string{"My payment is stuck"}, f.classifier.bodies)

	msg, err := f.store.Messages.GetByExternalID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTriaged, msg.Status)
	assert.JSONEq(t, `{"id":"m1"}`, string(msg.RawPayload))

	c, err := f.store.Classifications.GetByMessageID(ctx, msg.ID)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, domain.CategoryTransactionDelay, c.Category)
	assert.Equal(t, domain.ClassificationAuto, c.Status)
	require.NotNil(t, c.AssignedTeamID)
	require.NotNil(t, res.Team)
	assert.Equal(t, "Ops", res.Team.Name)
	assert.Equal(t, res.Team.ID, *c.AssignedTeamID)
}

func TestIngest_Escalates(t *testing.T) {
	f := newFixture(t)
	f.classifier.result = llm.ClassificationResult{Category: domain.CategoryBugReport, Priority: domain.PriorityCritical, Reasoning: "crash"}

	res, err := f.pipeline.Ingest(context.Background(), inbound("m2", "App crashes on login"), false)
	require.NoError(t, err)
	require.NotNil(t, res.Team)
	assert.Equal(t, routing.TeamTechLead, res.Team.Name)
}

func TestIngest_DuplicateIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.pipeline.Ingest(ctx, inbound("m1", "hi"), false)
	require.NoError(t, err)
	res, err := f.pipeline.Ingest(ctx, inbound("m1", "hi"), false)
	require.NoError(t, err)

	assert.Equal(t, in.OutcomeDuplicate, res.Outcome)
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.classifier.classifyN))
	n, _ := f.store.Messages.Count(ctx)
	assert.Equal(t, int64(1), n)
}

func TestIngest_ConcurrentDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var triaged int32
	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.pipeline.Ingest(ctx, inbound("race", "hello there"), false)
			if err == nil && res.Outcome == in.OutcomeTriaged {
				atomic.AddInt32(&triaged, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), triaged)
	n, _ := f.store.Messages.Count(ctx)
	assert.Equal(t, int64(1), n)
	byCategory, _ := f.store.Classifications.CountByCategory(ctx)
	assert.Equal(t, int64(1), byCategory[string(domain.CategoryTransactionDelay)])
}

func TestIngest_ProviderTimeoutLeavesPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.classifier.result = llm.ClassificationResult{
		Category: domain.CategoryUnknown,
		Priority: domain.PriorityMedium,
		Degraded: true,
		Err:      context.DeadlineExceeded,
	}

	res, err := f.pipeline.Ingest(ctx, inbound("m1", "My payment is stuck"), false)
	require.NoError(t, err)
	assert.Equal(t, in.OutcomeClassificationFailed, res.Outcome)

	msg, _ := f.store.Messages.GetByExternalID(ctx, "m1")
	assert.Equal(t, domain.StatusPendingTriage, msg.Status)
	c, _ := f.store.Classifications.GetByMessageID(ctx, msg.ID)
	assert.Nil(t, c)
}

func TestIngest_RetryResumesAfterStorageFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	flaky := &flakyClassifications{ClassificationRepository: f.store.Classifications, failures: 1}
	f.store.Classifications = flaky
	pipeline := NewPipeline(f.store, f.classifier, routing.NewRouter(f.store.Teams), zerolog.Nop())

	_, err := pipeline.Ingest(ctx, inbound("m1", "hello"), false)
	require.Error(t, err)

	// A plain redelivery is still a duplicate.
	res, err := pipeline.Ingest(ctx, inbound("m1", "hello"), false)
	require.NoError(t, err)
	assert.Equal(t, in.OutcomeDuplicate, res.Outcome)

	res, err = pipeline.Ingest(ctx, inbound("m1", "hello"), true)
	require.NoError(t, err)
	assert.Equal(t, in.OutcomeTriaged, res.Outcome)
	assert.True(t, res.Resumed)

	// Once triaged, retries are duplicates too.
	res, err = pipeline.Ingest(ctx, inbound("m1", "hello"), true)
	require.NoError(t, err)
	assert.Equal(t, in.OutcomeDuplicate, res.Outcome)
}

func TestIngest_RequiresExternalID(t *testing.T) {
	f := newFixture(t)
	_, err := f.pipeline.Ingest(context.Background(), inbound(" ", "hello"), false)
	require.Error(t, err)
	assert.Equal(t, 400, apperr.GetHTTPStatus(err))
}

// =============================================================================
// Review operations
// =============================================================================

func ingestOne(t *testing.T, f *fixture, id string) *domain.Message {
	t.Helper()
	res, err := f.pipeline.Ingest(context.Background(), inbound(id, "My payment is stuck"), false)
	require.NoError(t, err)
	return res.Message
}

func TestReclassify_IdempotentAndPreservesReasoning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := ingestOne(t, f, "m1")
	financeID := int64(4)

	input := &in.ReclassifyInput{Category: "billing", Priority: "HIGH", AssignedTeamID: &financeID}
	first, err := f.service.Reclassify(ctx, msg.ID, input)
	require.NoError(t, err)
	second, err := f.service.Reclassify(ctx, msg.ID, input)
	require.NoError(t, err)

	for _, c := range []*domain.Classification{first, second} {
		assert.Equal(t, domain.CategoryBilling, c.Category)
		assert.Equal(t, domain.PriorityHigh, c.Priority)
		assert.Equal(t, domain.ClassificationHumanReviewed, c.Status)
		require.NotNil(t, c.AssignedTeamID)
		assert.Equal(t, financeID, *c.AssignedTeamID)
		require.NotNil(t, c.Reasoning)
		assert.Equal(t, "payment is delayed", *c.Reasoning)
	}
	assert.Equal(t, first.ID, second.ID)

	reason := "customer confirmed invoice issue"
	third, err := f.service.Reclassify(ctx, msg.ID, &in.ReclassifyInput{Category: "billing", Priority: "high", Reasoning: &reason})
	require.NoError(t, err)
	assert.Equal(t, reason, *third.Reasoning)
	assert.Nil(t, third.AssignedTeamID)
}

func TestReclassify_CreatesWhenMissing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg, _, err := f.store.Messages.CreateIfAbsent(ctx, domain.NewMessage(inbound("m9", "hi")))
	require.NoError(t, err)

	c, err := f.service.Reclassify(ctx, msg.ID, &in.ReclassifyInput{Category: "other", Priority: "low"})
	require.NoError(t, err)
	assert.Equal(t, domain.ClassificationHumanReviewed, c.Status)
	assert.Nil(t, c.Reasoning)
}

func TestReclassify_Validation(t *testing.T) {
	f := newFixture(t)
	msg := ingestOne(t, f, "m1")
	missingTeam := int64(999)

	tests := []struct {
		name   string
		id     int64
		input  in.ReclassifyInput
		status int
	}{
		{"missing category", msg.ID, in.ReclassifyInput{Priority: "low"}, 400},
		{"unknown category", msg.ID, in.ReclassifyInput{Category: "weather", Priority: "low"}, 400},
		{"bad priority", msg.ID, in.ReclassifyInput{Category: "billing", Priority: "urgent"}, 400},
		{"team does not exist", msg.ID, in.ReclassifyInput{Category: "billing", Priority: "low", AssignedTeamID: &missingTeam}, 400},
		{"unknown message", 12345, in.ReclassifyInput{Category: "billing", Priority: "low"}, 404},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Reclassify(context.Background(), tt.id, &tt.input)
			require.Error(t, err)
			assert.Equal(t, tt.status, apperr.GetHTTPStatus(err))
		})
	}
}

func TestUpdateStatusAndSendReply(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := ingestOne(t, f, "m1")

	_, err := f.service.UpdateStatus(ctx, msg.ID, "archived")
	assert.Equal(t, 400, apperr.GetHTTPStatus(err))

	_, err = f.service.UpdateStatus(ctx, 999, "closed")
	assert.Equal(t, 404, apperr.GetHTTPStatus(err))

	updated, err := f.service.UpdateStatus(ctx, msg.ID, "closed")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, updated.Status)

	_, err = f.service.SendReply(ctx, msg.ID, "  ")
	assert.Equal(t, 400, apperr.GetHTTPStatus(err))

	replied, err := f.service.SendReply(ctx, msg.ID, "We are looking into it.")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReplied, replied.Status)
}

func TestListMessagesAndStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ingestOne(t, f, "m1")
	ingestOne(t, f, "m2")
	_, _, err := f.store.Messages.CreateIfAbsent(ctx, domain.NewMessage(inbound("m3", "pending")))
	require.NoError(t, err)

	views, total, err := f.service.ListMessages(ctx, &domain.PageRequest{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, views, 2)
	assert.Equal(t, "m3", views[0].ExternalID)
	assert.Nil(t, views[0].Classification)
	require.NotNil(t, views[1].AssignedTeam)
	assert.Equal(t, "Ops", views[1].AssignedTeam.Name)

	stats, err := f.service.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalMessages)
	assert.Equal(t, int64(2), stats.MessagesByStatus["triaged"])
	assert.Equal(t, int64(1), stats.MessagesByStatus["pending_triage"])
	assert.Equal(t, int64(2), stats.MessagesByCategory["transaction delay"])
	assert.Equal(t, int64(2), stats.MessagesByPriority["medium"])

	view, err := f.service.GetMessage(ctx, views[1].ID)
	require.NoError(t, err)
	require.NotNil(t, view.Classification)

	_, err = f.service.GetMessage(ctx, 999)
	assert.Equal(t, 404, apperr.GetHTTPStatus(err))

	teams, err := f.service.ListTeams(ctx)
	require.NoError(t, err)
	assert.Len(t, teams, 6)
}

// =============================================================================
// Reply assist and preview
// =============================================================================

func TestSuggestReply(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := ingestOne(t, f, "m1")

	s, err := f.assistant.SuggestReply(ctx, msg.ID, domain.ToneTechnical)
	require.NoError(t, err)
	assert.Equal(t, "Hello, we are on it.", s.ReplyDraft)
	assert.Equal(t, []string{"payment"}, s.SuggestedTags)
	assert.Equal(t, domain.ToneTechnical, f.classifier.lastTone)
	assert.LessOrEqual(t, len(f.classifier.lastArticles), rag.DefaultLimit)
}

func TestSuggestReply_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := ingestOne(t, f, "m1")

	_, err := f.assistant.SuggestReply(ctx, msg.ID, domain.Tone("angry"))
	assert.Equal(t, 400, apperr.GetHTTPStatus(err))

	_, err = f.assistant.SuggestReply(ctx, 999, domain.ToneTechnical)
	assert.Equal(t, 404, apperr.GetHTTPStatus(err))

	f.classifier.reply = llm.ReplyResult{Draft: "placeholder", Err: errors.New("503 from provider")}
	_, err = f.assistant.SuggestReply(ctx, msg.ID, domain.ToneBusinessFriendly)
	require.Error(t, err)
	assert.Equal(t, 502, apperr.GetHTTPStatus(err))
	assert.True(t, apperr.IsCode(err, apperr.CodeExternalError))
}

func TestPreview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.classifier.result = llm.ClassificationResult{Category: domain.CategoryAPIIssue, Priority: domain.PriorityHigh, Reasoning: "auth"}

	res, err := f.assistant.Preview(ctx, "Getting error 401 from the authentication endpoint", "")
	require.NoError(t, err)

	assert.Equal(t, routing.TeamTechLead, res.TeamName)
	require.NotNil(t, res.AssignedTeam)
	assert.NotEmpty(t, res.KnowledgeArticles)
	assert.Equal(t, domain.ToneBusinessFriendly, f.classifier.lastTone)
	assert.Contains(t, res.Message.ExternalID, "preview-")
	assert.Equal(t, domain.StatusTriaged, res.Message.Status)

	stored, err := f.store.Classifications.GetByMessageID(ctx, res.Message.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)

	_, err = f.assistant.Preview(ctx, "   ", "")
	assert.Equal(t, 400, apperr.GetHTTPStatus(err))
}
