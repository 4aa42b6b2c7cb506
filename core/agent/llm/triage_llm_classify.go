package llm

import (
	"context"
	"fmt"

	"triage_server/core/domain"
)

// ClassificationResult is the outcome of ClassifyAndPrioritize.
// Category and Priority are always set. Degraded means defaults were applied
// to the model output. Err is set only when the provider call itself failed,
// in which case the other fields carry placeholders.
type ClassificationResult struct {
	Category   domain.Category
	Priority   domain.Priority
	Confidence *float64
	Reasoning  string
	Degraded   bool
	Err        error
}

// ClassifyAndPrioritize asks the model for a category, priority, confidence
// and reasoning for body.
func (c *Client) ClassifyAndPrioritize(ctx context.Context, body string) ClassificationResult {
	resp, err := c.complete(ctx, classificationPrompt(body))
	if err != nil {
		return ClassificationResult{
			Category:  domain.CategoryUnknown,
			Priority:  domain.PriorityMedium,
			Reasoning: fmt.Sprintf("Classification unavailable: %v", err),
			Degraded:  true,
			Err:       err,
		}
	}

	res := parseClassification(resp)
	if res.Degraded {
		c.log.Warn().Str("response", truncateBody(resp, 500)).Msg("model returned malformed classification, defaults applied")
	}
	return res
}
