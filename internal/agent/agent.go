// Package agent routes chat messages. Messages prefixed with "arxiv:" run a
// paper search; everything else goes through the corrective retrieval loop
// and gets study material attached.
package agent

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/spin-glass/papers-rag-agent/internal/arxiv"
	"github.com/spin-glass/papers-rag-agent/internal/enhance"
	"github.com/spin-glass/papers-rag-agent/internal/rag"
)

const arxivPrefix = "arxiv:"

type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]arxiv.Paper, error)
}

type Enricher interface {
	Enhance(ctx context.Context, question string, answer rag.Answer) enhance.Enhancement
}

type PaperSink interface {
	UpsertSearchResults(ctx context.Context, results []arxiv.Paper) (int, error)
}

type Kind string

const (
	KindArxiv Kind = "arxiv"
	KindRAG   Kind = "rag"
)

// Reply is one handled message. Markdown is always set; the structured fields
// depend on the kind.
type Reply struct {
	Kind        Kind                  `json:"kind"`
	Markdown    string                `json:"markdown"`
	Papers      []arxiv.Paper         `json:"papers,omitempty"`
	Result      *rag.CorrectionResult `json:"result,omitempty"`
	Enhancement *enhance.Enhancement  `json:"enhancement,omitempty"`
}

type Agent struct {
	controller rag.Controller
	searcher   Searcher
	enricher   Enricher
	sink       PaperSink
	maxResults int
}

// New wires the routing agent. The enricher and sink are optional; without
// them answers ship without study material and searches are not persisted.
func New(controller rag.Controller, searcher Searcher, enricher Enricher, sink PaperSink, maxResults int) (*Agent, error) {
	if controller == nil {
		return nil, fmt.Errorf("nil controller")
	}
	if searcher == nil {
		return nil, fmt.Errorf("nil searcher")
	}
	if maxResults < 1 {
		maxResults = 5
	}
	return &Agent{
		controller: controller,
		searcher:   searcher,
		enricher:   enricher,
		sink:       sink,
		maxResults: maxResults,
	}, nil
}

// HandleMessage classifies and answers one message. onStep receives loop
// progress for streaming responses and may be nil.
func (a *Agent) HandleMessage(ctx context.Context, content string, onStep func(rag.StepEvent)) (Reply, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return Reply{}, rag.ErrEmptyQuestion
	}

	if strings.HasPrefix(strings.ToLower(trimmed), arxivPrefix) {
		return a.handleSearch(ctx, trimmed)
	}
	return a.handleQuestion(ctx, trimmed, onStep)
}

func (a *Agent) handleSearch(ctx context.Context, message string) (Reply, error) {
	query := strings.TrimSpace(message[len(arxivPrefix):])
	if query == "" {
		query = extractResearchTopic(message)
	}

	results, err := a.searcher.Search(ctx, query, a.maxResults)
	if err != nil {
		return Reply{}, fmt.Errorf("arxiv search: %w", err)
	}

	if a.sink != nil && len(results) > 0 {
		if _, err := a.sink.UpsertSearchResults(ctx, results); err != nil {
			log.Printf("agent: persist search results failed err=%v", err)
		}
	}

	return Reply{
		Kind:     KindArxiv,
		Markdown: formatSearchResults(results),
		Papers:   results,
	}, nil
}

func (a *Agent) handleQuestion(ctx context.Context, question string, onStep func(rag.StepEvent)) (Reply, error) {
	result, err := a.controller.RunStream(ctx, question, onStep)
	if err != nil {
		return Reply{}, err
	}

	reply := Reply{
		Kind:   KindRAG,
		Result: &result,
	}
	if a.enricher != nil && !result.Answer.NoAnswer {
		enhancement := a.enricher.Enhance(ctx, question, result.Answer)
		if enhancement.CornellNote != nil || len(enhancement.QuizItems) > 0 {
			reply.Enhancement = &enhancement
		}
	}
	reply.Markdown = formatAnswer(result, reply.Enhancement)
	return reply, nil
}

// extractResearchTopic pulls a search topic out of a natural language
// message when no explicit query follows the prefix.
func extractResearchTopic(message string) string {
	lower := strings.ToLower(message)
	topics := []string{
		"transformer",
		"machine learning",
		"deep learning",
		"natural language processing",
		"computer vision",
		"reinforcement learning",
	}
	for _, topic := range topics {
		if strings.Contains(lower, topic) {
			return topic
		}
	}

	cleaned := strings.TrimSpace(strings.TrimPrefix(lower, arxivPrefix))
	for _, filler := range []string{"find papers about", "papers about", "recent papers on", "papers on"} {
		cleaned = strings.TrimSpace(strings.TrimPrefix(cleaned, filler))
	}
	return cleaned
}
