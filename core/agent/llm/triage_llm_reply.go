package llm

import (
	"context"

	"triage_server/core/domain"
)

// ReplyResult is the outcome of SuggestReplies.
type ReplyResult struct {
	Draft    string
	Tags     []string
	Degraded bool
	Err      error
}

// Suggestion converts the result into the API shape.
func (r ReplyResult) Suggestion() *domain.ReplySuggestion {
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	return &domain.ReplySuggestion{ReplyDraft: r.Draft, SuggestedTags: tags}
}

// SuggestReplies drafts a reply to body in the given tone, grounded on the
// supplied articles in order.
func (c *Client) SuggestReplies(ctx context.Context, body string, articles []domain.KnowledgeArticle, tone domain.Tone) ReplyResult {
	resp, err := c.complete(ctx, replyPrompt(body, articles, tone))
	if err != nil {
		return ReplyResult{Draft: replyDraftPlaceholder, Tags: []string{}, Degraded: true, Err: err}
	}

	res := parseReply(resp)
	if res.Degraded {
		c.log.Warn().Str("response", truncateBody(resp, 500)).Msg("model returned malformed reply suggestion")
	}
	return res
}
