// Package digest builds a short reading list for one arXiv category: recent
// submissions, filtered by interest keywords, each with a two-sentence
// summary. When the include filter matches too little, only the exclude list
// is applied so the digest never comes back empty for a busy category.
package digest

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spin-glass/papers-rag-agent/internal/arxiv"
	"github.com/spin-glass/papers-rag-agent/internal/config"
)

const (
	DefaultCategory = "cs.LG"
	DefaultDays     = 2
	DefaultLimit    = 10

	MaxDays  = 7
	MaxLimit = 50

	maxFetch        = 200
	summaryMaxChars = 300
)

var defaultInclude = []string{
	"rag", "graph rag", "graphrag", "corrective", "retrieval",
	"re-rank", "rerank", "imrad", "hyde", "langgraph",
	"agent", "planner", "executor", "tool", "routing", "guardrail",
	"eval", "ragas", "langsmith",
	"test-time reasoning", "ttr", "moe", "distillation",
	"reasoning compression", "cost", "quality", "mlops",
	"vertex ai", "bigquery", "cloud run", "unlearning", "safety",
}

var defaultExclude = []string{
	"medical", "healthcare", "clinical", "materials", "iot",
	"biology", "chemistry", "bio", "medicine",
}

var sentenceBoundary = regexp.MustCompile(`(?:[.!?])\s+`)

type CategorySearcher interface {
	SearchCategory(ctx context.Context, category string, since, until time.Time, maxResults int) ([]arxiv.Paper, error)
}

// Item is one digest entry. SummaryShort is the abstract cut down to its
// first sentences.
type Item struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	URL          string   `json:"url"`
	PDF          string   `json:"pdf,omitempty"`
	SummaryShort string   `json:"summaryShort,omitempty"`
	Categories   []string `json:"categories,omitempty"`
	Authors      []string `json:"authors,omitempty"`
}

type Service struct {
	searcher   CategorySearcher
	include    []string
	exclude    []string
	minResults int
	now        func() time.Time
}

func NewService(cfg config.Config, searcher CategorySearcher) (*Service, error) {
	if searcher == nil {
		return nil, fmt.Errorf("nil searcher")
	}
	include := lowered(cfg.DigestInclude)
	if len(include) == 0 {
		include = defaultInclude
	}
	exclude := lowered(cfg.DigestExclude)
	if len(exclude) == 0 {
		exclude = defaultExclude
	}
	minResults := cfg.DigestMinResults
	if minResults < 1 {
		minResults = 3
	}
	return &Service{
		searcher:   searcher,
		include:    include,
		exclude:    exclude,
		minResults: minResults,
		now:        time.Now,
	}, nil
}

// Build fetches the last-days submissions for the category and returns up to
// limit filtered items. Out-of-range parameters fall back to the defaults.
func (s *Service) Build(ctx context.Context, category string, days, limit int) ([]Item, error) {
	if strings.TrimSpace(category) == "" {
		category = DefaultCategory
	}
	if days < 1 || days > MaxDays {
		days = DefaultDays
	}
	if limit < 1 || limit > MaxLimit {
		limit = DefaultLimit
	}

	until := s.now().UTC()
	since := until.AddDate(0, 0, -days)
	fetchN := limit * 4
	if fetchN > maxFetch {
		fetchN = maxFetch
	}

	papers, err := s.searcher.SearchCategory(ctx, category, since, until, fetchN)
	if err != nil {
		return nil, fmt.Errorf("digest search: %w", err)
	}

	filtered := s.filter(papers)
	if len(filtered) < s.minResults {
		filtered = s.excludeOnly(papers)
	}
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}

	items := make([]Item, 0, len(filtered))
	for _, paper := range filtered {
		items = append(items, Item{
			ID:           paper.ID,
			Title:        paper.Title,
			URL:          paper.Link,
			PDF:          paper.PDF,
			SummaryShort: shortSummary(paper.Summary),
			Categories:   paper.Categories,
			Authors:      paper.Authors,
		})
	}
	return items, nil
}

// filter keeps papers matching an include keyword and drops papers matching
// an exclude keyword. Exclusion wins.
func (s *Service) filter(papers []arxiv.Paper) []arxiv.Paper {
	var out []arxiv.Paper
	for _, paper := range papers {
		blob := keywordBlob(paper)
		if containsAny(blob, s.exclude) {
			continue
		}
		if containsAny(blob, s.include) {
			out = append(out, paper)
		}
	}
	return out
}

func (s *Service) excludeOnly(papers []arxiv.Paper) []arxiv.Paper {
	var out []arxiv.Paper
	for _, paper := range papers {
		if containsAny(keywordBlob(paper), s.exclude) {
			continue
		}
		out = append(out, paper)
	}
	return out
}

func keywordBlob(paper arxiv.Paper) string {
	return strings.ToLower(paper.Title + "\n" + paper.Summary)
}

func containsAny(haystack string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}

// shortSummary keeps the first two sentences, capped at 300 characters.
func shortSummary(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ""
	}

	boundaries := sentenceBoundary.FindAllStringIndex(trimmed, 2)
	if len(boundaries) == 2 {
		trimmed = strings.TrimSpace(trimmed[:boundaries[1][0]+1])
	}
	runes := []rune(trimmed)
	if len(runes) > summaryMaxChars {
		trimmed = string(runes[:summaryMaxChars]) + "..."
	}
	return trimmed
}

func lowered(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, strings.ToLower(trimmed))
		}
	}
	return out
}
