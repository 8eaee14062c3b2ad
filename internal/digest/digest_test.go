package digest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spin-glass/papers-rag-agent/internal/arxiv"
	"github.com/spin-glass/papers-rag-agent/internal/config"
)

type searcherStub struct {
	gotCategory string
	gotSince    time.Time
	gotUntil    time.Time
	gotMax      int
	results     []arxiv.Paper
	err         error
}

func (s *searcherStub) SearchCategory(_ context.Context, category string, since, until time.Time, maxResults int) ([]arxiv.Paper, error) {
	s.gotCategory = category
	s.gotSince = since
	s.gotUntil = until
	s.gotMax = maxResults
	return s.results, s.err
}

func newTestService(t *testing.T, cfg config.Config, searcher CategorySearcher) *Service {
	t.Helper()
	service, err := NewService(cfg, searcher)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	service.now = func() time.Time {
		return time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	}
	return service
}

func paper(id, title, summary string) arxiv.Paper {
	return arxiv.Paper{
		ID:      id,
		Title:   title,
		Link:    "http://arxiv.org/abs/" + id,
		Summary: summary,
	}
}

func TestBuildFiltersByKeywords(t *testing.T) {
	searcher := &searcherStub{results: []arxiv.Paper{
		paper("1", "Corrective Retrieval for QA", "We study retrieval correction."),
		paper("2", "Retrieval for Clinical Notes", "A medical retrieval system."),
		paper("3", "Protein Folding Dynamics", "A biology simulation study."),
		paper("4", "Agent Planning with Tools", "An agent framework."),
	}}
	service := newTestService(t, config.Config{DigestMinResults: 1}, searcher)

	items, err := service.Build(context.Background(), "cs.LG", 2, 10)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if searcher.gotCategory != "cs.LG" {
		t.Errorf("category = %q", searcher.gotCategory)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if items[0].ID != "1" || items[1].ID != "4" {
		t.Errorf("items = %+v", items)
	}
}

func TestBuildFallsBackToExcludeOnly(t *testing.T) {
	searcher := &searcherStub{results: []arxiv.Paper{
		paper("1", "Spectral Graph Sparsification", "A pure math result."),
		paper("2", "Clinical Outcome Prediction", "A healthcare study."),
		paper("3", "Sorting Networks Revisited", "A classic construction."),
	}}
	service := newTestService(t, config.Config{DigestMinResults: 2}, searcher)

	items, err := service.Build(context.Background(), "cs.DS", 2, 10)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// No include keyword matches, so only the exclude list applies.
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	for _, item := range items {
		if item.ID == "2" {
			t.Errorf("excluded paper leaked into the digest: %+v", item)
		}
	}
}

func TestBuildFallsBackWhenBelowMinimum(t *testing.T) {
	searcher := &searcherStub{results: []arxiv.Paper{
		paper("1", "Agent Planning", "An agent framework."),
		paper("2", "Sorting Networks", "A classic construction."),
		paper("3", "Graph Coloring", "A combinatorics result."),
	}}
	service := newTestService(t, config.Config{DigestMinResults: 3}, searcher)

	items, err := service.Build(context.Background(), "cs.LG", 2, 10)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// One include match is below the minimum of three, so everything not
	// excluded comes back.
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}
}

func TestBuildClampsParametersAndFetchSize(t *testing.T) {
	searcher := &searcherStub{}
	service := newTestService(t, config.Config{DigestMinResults: 1}, searcher)

	if _, err := service.Build(context.Background(), "  ", 99, 0); err != nil {
		t.Fatalf("Build: %v", err)
	}

	if searcher.gotCategory != DefaultCategory {
		t.Errorf("category = %q, want %q", searcher.gotCategory, DefaultCategory)
	}
	if searcher.gotMax != DefaultLimit*4 {
		t.Errorf("fetch size = %d, want %d", searcher.gotMax, DefaultLimit*4)
	}
	wantSince := time.Date(2024, 1, 8, 12, 0, 0, 0, time.UTC)
	if !searcher.gotSince.Equal(wantSince) {
		t.Errorf("since = %v, want %v", searcher.gotSince, wantSince)
	}

	if _, err := service.Build(context.Background(), "cs.LG", 2, MaxLimit); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if searcher.gotMax != maxFetch {
		t.Errorf("fetch size = %d, want cap %d", searcher.gotMax, maxFetch)
	}
}

func TestBuildSurfacesSearchError(t *testing.T) {
	service := newTestService(t, config.Config{DigestMinResults: 1}, &searcherStub{err: errors.New("upstream down")})

	if _, err := service.Build(context.Background(), "cs.LG", 2, 10); err == nil {
		t.Fatal("want error when the search fails")
	}
}

func TestBuildUsesConfiguredKeywords(t *testing.T) {
	searcher := &searcherStub{results: []arxiv.Paper{
		paper("1", "Quantum Annealing Basics", "An optimization study."),
		paper("2", "Agent Planning", "An agent framework."),
	}}
	cfg := config.Config{
		DigestInclude:    []string{"Quantum"},
		DigestExclude:    []string{"agent"},
		DigestMinResults: 1,
	}
	service := newTestService(t, cfg, searcher)

	items, err := service.Build(context.Background(), "cs.LG", 2, 10)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(items) != 1 || items[0].ID != "1" {
		t.Errorf("items = %+v", items)
	}
}

func TestShortSummary(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "keeps first two sentences",
			text: "First sentence. Second sentence! Third sentence.",
			want: "First sentence. Second sentence!",
		},
		{
			name: "short text passes through",
			text: "Only one sentence.",
			want: "Only one sentence.",
		},
		{
			name: "empty text",
			text: "   ",
			want: "",
		},
		{
			name: "long text is capped",
			text: strings.Repeat("a", 400) + ". More text follows here. And more.",
			want: strings.Repeat("a", 300) + "...",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shortSummary(tt.text); got != tt.want {
				t.Errorf("shortSummary = %q, want %q", got, tt.want)
			}
		})
	}
}
