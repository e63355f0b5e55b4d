package catalog

import (
	"context"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/tbourn/retail-assistant/internal/domain"
)

// Match is one ranked catalog model.
type Match struct {
	ModelID    string   `json:"model_id"`
	FamilyID   string   `json:"family_id"`
	Title      string   `json:"title"`
	PriceMin   *float64 `json:"price_min,omitempty"`
	PriceMax   *float64 `json:"price_max,omitempty"`
	Score      int      `json:"score"`
	Confidence float64  `json:"confidence"`
}

// Weights are the per-signal contributions to a model's score.
type Weights struct {
	// ExactTitle applies when a token, or the whole query, equals the title.
	ExactTitle       int
	TokenTitle       int
	TokenDescription int // description or short description
	TokenPermalink   int
	TokenTags        int // tags, categories or aliases

	// PhraseTitle and PhraseDescription apply when the whole query is a
	// substring of the field. The short description counts as description.
	PhraseTitle       int
	PhraseDescription int

	// AliasInQuery applies when an alias phrase appears inside the query.
	AliasInQuery   int
	ConfidenceStep float64
}

// DefaultWeights favour title hits and curated aliases over body text.
var DefaultWeights = Weights{
	ExactTitle:        10,
	TokenTitle:        4,
	TokenDescription:  2,
	TokenPermalink:    1,
	TokenTags:         3,
	PhraseTitle:       6,
	PhraseDescription: 3,
	AliasInQuery:      6,
	ConfidenceStep:    0.1,
}

// ModelSource supplies models in catalog order. *Store implements it.
type ModelSource interface {
	Models(ctx context.Context) []*domain.CatalogModel
}

// Matcher ranks catalog models against free-text queries.
type Matcher struct {
	src ModelSource
	w   Weights
}

// MatcherOption customizes a Matcher.
type MatcherOption func(*Matcher)

// WithWeights replaces DefaultWeights.
func WithWeights(w Weights) MatcherOption {
	return func(m *Matcher) { m.w = w }
}

// NewMatcher returns a Matcher over src.
func NewMatcher(src ModelSource, opts ...MatcherOption) *Matcher {
	m := &Matcher{src: src, w: DefaultWeights}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match returns up to limit models ordered by descending score. Ties keep
// catalog order. Confidence is derived from rank: 1.0 for the first result,
// decreasing by a fixed step, floored at 0. An empty query or a non-positive
// limit yields an empty slice without touching the catalog.
func (m *Matcher) Match(ctx context.Context, query string, limit int) []Match {
	q := strings.ToLower(strings.Join(strings.Fields(query), " "))
	if q == "" || limit <= 0 {
		return []Match{}
	}
	tokens := tokenize(q)

	type scored struct {
		model *domain.CatalogModel
		score int
	}
	var hits []scored
	for _, cm := range m.src.Models(ctx) {
		if s := m.score(cm, q, tokens); s > 0 {
			hits = append(hits, scored{model: cm, score: s})
		}
	}

	sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })
	if len(hits) > limit {
		hits = hits[:limit]
	}

	out := make([]Match, 0, len(hits))
	for rank, h := range hits {
		lo, hi := retailRange(h.model)
		out = append(out, Match{
			ModelID:    h.model.ID,
			FamilyID:   h.model.FamilyID,
			Title:      h.model.Title,
			PriceMin:   lo,
			PriceMax:   hi,
			Score:      h.score,
			Confidence: m.confidence(rank),
		})
	}
	return out
}

func (m *Matcher) score(cm *domain.CatalogModel, q string, tokens []string) int {
	title := strings.ToLower(cm.Title)
	desc := strings.ToLower(cm.Description)
	short := strings.ToLower(cm.ShortDescription)
	link := strings.ToLower(cm.Permalink)
	labels := lowerAll(cm.Tags, cm.Categories, cm.Aliases)

	s := 0
	exact := title != "" && title == q
	for _, t := range tokens {
		if t == title {
			exact = true
		}
		if strings.Contains(title, t) {
			s += m.w.TokenTitle
		}
		if strings.Contains(desc, t) || strings.Contains(short, t) {
			s += m.w.TokenDescription
		}
		if strings.Contains(link, t) {
			s += m.w.TokenPermalink
		}
		for _, l := range labels {
			if strings.Contains(l, t) {
				s += m.w.TokenTags
				break
			}
		}
	}
	if exact {
		s += m.w.ExactTitle
	}
	if strings.Contains(title, q) {
		s += m.w.PhraseTitle
	}
	if strings.Contains(desc, q) || strings.Contains(short, q) {
		s += m.w.PhraseDescription
	}
	for _, a := range cm.Aliases {
		a = strings.ToLower(strings.TrimSpace(a))
		if a != "" && strings.Contains(q, a) {
			s += m.w.AliasInQuery
			break
		}
	}
	return s
}

func (m *Matcher) confidence(rank int) float64 {
	c := 1 - m.w.ConfidenceStep*float64(rank)
	if c < 0 {
		return 0
	}
	return math.Round(c*100) / 100
}

// tokenize splits on whitespace and trims surrounding punctuation.
func tokenize(q string) []string {
	fields := strings.Fields(q)
	out := fields[:0]
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsNumber(r) })
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func lowerAll(groups ...[]string) []string {
	var out []string
	for _, g := range groups {
		for _, s := range g {
			if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// retailRange returns the lowest and highest base price across conditions.
func retailRange(cm *domain.CatalogModel) (lo, hi *float64) {
	for _, c := range cm.Conditions {
		if c.BasePrice == nil {
			continue
		}
		p := *c.BasePrice
		if lo == nil || p < *lo {
			lo = &p
		}
		if hi == nil || p > *hi {
			v := p
			hi = &v
		}
	}
	return lo, hi
}
