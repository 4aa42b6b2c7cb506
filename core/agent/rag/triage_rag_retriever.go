// Package rag selects knowledge-base articles that ground drafted replies.
package rag

import (
	"context"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"triage_server/core/domain"
	"triage_server/core/port/out"
)

const (
	DefaultLimit = 3

	// minTokenLen is the rune length a body token must exceed to count as a keyword.
	minTokenLen = 3

	activeArticlesKey = "kb:active"
)

// ArticleCache stores the active-article list between lookups.
type ArticleCache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Options tunes a single FindRelevant call.
type Options struct {
	Limit int
	// MatchContent also accepts articles whose content contains a body token.
	MatchContent bool
}

type Retriever struct {
	repo  out.KnowledgeRepository
	cache ArticleCache
	ttl   time.Duration
	log   zerolog.Logger
}

// NewRetriever creates a retriever. cache may be nil.
func NewRetriever(repo out.KnowledgeRepository, cache ArticleCache, ttl time.Duration, log zerolog.Logger) *Retriever {
	return &Retriever{
		repo:  repo,
		cache: cache,
		ttl:   ttl,
		log:   log.With().Str("component", "rag").Logger(),
	}
}

// FindRelevant returns up to opts.Limit active articles, ordered by id, that
// match category or the long tokens of body. When category matches nothing
// the search is retried on body tokens alone.
func (r *Retriever) FindRelevant(ctx context.Context, category, body string, opts Options) ([]domain.KnowledgeArticle, error) {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}

	articles, err := r.activeArticles(ctx)
	if err != nil {
		return nil, err
	}

	tokens := Tokenize(body)
	category = strings.ToLower(strings.TrimSpace(category))

	found := match(articles, category, tokens, opts)
	if len(found) == 0 && category != "" {
		found = match(articles, "", tokens, opts)
	}
	return found, nil
}

// Invalidate drops the cached article list. Call it after articles are
// edited so the next lookup reloads them from storage.
func (r *Retriever) Invalidate(ctx context.Context) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Delete(ctx, activeArticlesKey); err != nil {
		r.log.Warn().Err(err).Msg("failed to invalidate article cache")
	}
}

func (r *Retriever) activeArticles(ctx context.Context) ([]domain.KnowledgeArticle, error) {
	if r.cache != nil {
		var cached []domain.KnowledgeArticle
		hit, err := r.cache.GetJSON(ctx, activeArticlesKey, &cached)
		if err != nil {
			r.log.Warn().Err(err).Msg("article cache read failed")
		} else if hit {
			return cached, nil
		}
	}

	articles, err := r.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.SetJSON(ctx, activeArticlesKey, articles, r.ttl); err != nil {
			r.log.Warn().Err(err).Msg("article cache write failed")
		}
	}
	return articles, nil
}

func match(articles []domain.KnowledgeArticle, category string, tokens []string, opts Options) []domain.KnowledgeArticle {
	found := make([]domain.KnowledgeArticle, 0, opts.Limit)
	for _, a := range articles {
		if len(found) == opts.Limit {
			break
		}
		if !a.IsActive {
			continue
		}
		if matches(a, category, tokens, opts.MatchContent) {
			found = append(found, a)
		}
	}
	return found
}

func matches(a domain.KnowledgeArticle, category string, tokens []string, content bool) bool {
	keywords := make(map[string]bool, len(a.Keywords))
	for _, k := range a.Keywords {
		keywords[strings.ToLower(strings.TrimSpace(k))] = true
	}

	if category != "" {
		if a.Category != nil && strings.EqualFold(*a.Category, category) {
			return true
		}
		if keywords[category] {
			return true
		}
	}

	lowerContent := ""
	if content {
		lowerContent = strings.ToLower(a.Content)
	}
	for _, t := range tokens {
		if keywords[t] {
			return true
		}
		if content && strings.Contains(lowerContent, t) {
			return true
		}
	}
	return false
}

// Tokenize lowercases body, splits it on whitespace, trims surrounding
// punctuation and keeps distinct tokens longer than three runes.
func Tokenize(body string) []string {
	var tokens []string
	seen := make(map[string]bool)
	for _, f := range strings.Fields(strings.ToLower(body)) {
		t := strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if utf8.RuneCountInString(t) <= minTokenLen || seen[t] {
			continue
		}
		seen[t] = true
		tokens = append(tokens, t)
	}
	return tokens
}
