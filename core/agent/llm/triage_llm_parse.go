package llm

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"triage_server/core/domain"
)

const (
	reasoningMissing      = "No specific reasoning provided."
	reasoningUnparseable  = "Could not parse reasoning from model response."
	replyDraftPlaceholder = "Could not generate a reply. Please draft manually."
)

// quoted captures a JSON string body, honouring escaped quotes.
const quoted = `"((?:[^"\\]|\\.)*)"`

var (
	categoryPattern   = regexp.MustCompile(`"category"\s*:\s*` + quoted)
	priorityPattern   = regexp.MustCompile(`"priority"\s*:\s*` + quoted)
	confidencePattern = regexp.MustCompile(`"confidence_score"\s*:\s*"?([\d.]+)`)
	reasoningPattern  = regexp.MustCompile(`"reasoning"\s*:\s*` + quoted)
	replyDraftPattern = regexp.MustCompile(`"reply_draft"\s*:\s*` + quoted)
	tagsPattern       = regexp.MustCompile(`"suggested_tags"\s*:\s*` + quoted)
)

func cleanJSONResponse(resp string) string {
	resp = strings.TrimSpace(resp)
	resp = strings.TrimPrefix(resp, "```json")
	resp = strings.TrimPrefix(resp, "```")
	resp = strings.TrimSuffix(resp, "```")
	return strings.TrimSpace(resp)
}

// decodeObject strictly decodes resp as a JSON object.
func decodeObject(resp string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(cleanJSONResponse(resp)), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// parseClassification recovers a classification from raw model text. It
// never fails: unknown or missing values fall back to defaults and mark the
// result degraded.
func parseClassification(resp string) ClassificationResult {
	if obj, ok := decodeObject(resp); ok {
		res := ClassificationResult{Reasoning: reasoningMissing}
		var catOK, prioOK bool
		res.Category, catOK = domain.ParseCategory(stringField(obj, "category"))
		res.Priority, prioOK = domain.ParsePriority(stringField(obj, "priority"))
		res.Confidence = confidenceValue(obj["confidence_score"])
		if r := strings.TrimSpace(stringField(obj, "reasoning")); r != "" {
			res.Reasoning = r
		}
		res.Degraded = !catOK || !prioOK
		return res
	}

	res := ClassificationResult{Reasoning: reasoningUnparseable, Degraded: true}
	res.Category, _ = domain.ParseCategory(firstMatch(categoryPattern, resp))
	res.Priority, _ = domain.ParsePriority(firstMatch(priorityPattern, resp))
	if m := confidencePattern.FindStringSubmatch(resp); m != nil {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil {
			res.Confidence = clampConfidence(f)
		}
	}
	if r := strings.TrimSpace(firstMatch(reasoningPattern, resp)); r != "" {
		res.Reasoning = r
	}
	return res
}

// parseReply recovers a reply draft and tags from raw model text.
func parseReply(resp string) ReplyResult {
	if obj, ok := decodeObject(resp); ok {
		if draft := strings.TrimSpace(stringField(obj, "reply_draft")); draft != "" {
			return ReplyResult{Draft: draft, Tags: tagsValue(obj["suggested_tags"])}
		}
	}

	draft := strings.TrimSpace(firstMatch(replyDraftPattern, resp))
	if draft == "" {
		return ReplyResult{Draft: replyDraftPlaceholder, Tags: []string{}, Degraded: true}
	}
	return ReplyResult{Draft: draft, Tags: splitTags(firstMatch(tagsPattern, resp)), Degraded: true}
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

func confidenceValue(v any) *float64 {
	switch n := v.(type) {
	case float64:
		return clampConfidence(n)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return clampConfidence(f)
		}
	}
	return nil
}

// clampConfidence drops values outside [0, 1].
func clampConfidence(f float64) *float64 {
	if f < 0 || f > 1 {
		return nil
	}
	return &f
}

func tagsValue(v any) []string {
	switch t := v.(type) {
	case string:
		return splitTags(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				parts = append(parts, s)
			}
		}
		return splitTags(strings.Join(parts, ","))
	}
	return []string{}
}

// splitTags splits a comma-separated list, trimming and de-duplicating it.
func splitTags(s string) []string {
	tags := []string{}
	seen := make(map[string]bool)
	for _, part := range strings.Split(s, ",") {
		tag := strings.TrimSpace(part)
		key := strings.ToLower(tag)
		if tag == "" || seen[key] {
			continue
		}
		seen[key] = true
		tags = append(tags, tag)
	}
	return tags
}

func firstMatch(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	if unquoted, err := strconv.Unquote(`"` + m[1] + `"`); err == nil {
		return unquoted
	}
	return m[1]
}
