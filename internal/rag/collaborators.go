package rag

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// PromptResponder is the narrow slice of the language model API the
// generation-side collaborators need.
type PromptResponder interface {
	Respond(ctx context.Context, prompt string) (string, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// LLMGenerator produces an answer conditioned on the retrieved contexts.
// Citations are derived from the contexts the prompt carried, never from the
// model output, so they cannot reference sources outside the context set.
type LLMGenerator struct {
	responder PromptResponder
}

func NewLLMGenerator(responder PromptResponder) LLMGenerator {
	return LLMGenerator{responder: responder}
}

func (g LLMGenerator) Generate(ctx context.Context, question string, contexts []RetrievedContext) (Answer, error) {
	if g.responder == nil {
		return Answer{}, errors.New("generator responder unavailable")
	}
	if len(contexts) == 0 {
		return Answer{
			Text:     "No relevant papers were found for this question.",
			NoAnswer: true,
		}, nil
	}

	text, err := g.responder.Respond(ctx, buildAnswerPrompt(question, contexts))
	if err != nil {
		return Answer{}, fmt.Errorf("generate answer: %w", err)
	}

	return Answer{Text: text, Citations: citationsFromContexts(contexts)}, nil
}

func citationsFromContexts(contexts []RetrievedContext) []Citation {
	citations := make([]Citation, 0, len(contexts))
	seen := make(map[string]struct{}, len(contexts))
	for _, ctx := range contexts {
		// Distinct papers can share a title, so identity is the source id.
		if _, ok := seen[ctx.SourceID]; ok {
			continue
		}
		seen[ctx.SourceID] = struct{}{}
		citations = append(citations, Citation{SourceID: ctx.SourceID, Title: ctx.Title, URL: ctx.URL})
	}
	return citations
}

// HydeRewriter asks the model for a hypothetical paper summary that would
// answer the question, which retrieves better than the question itself.
type HydeRewriter struct {
	responder PromptResponder
}

func NewHydeRewriter(responder PromptResponder) HydeRewriter {
	return HydeRewriter{responder: responder}
}

func (h HydeRewriter) Rewrite(ctx context.Context, question string, best *RetrievedContext) (string, error) {
	if h.responder == nil {
		return "", errors.New("rewriter responder unavailable")
	}
	rewritten, err := h.responder.Respond(ctx, buildHydePrompt(question, best))
	if err != nil {
		return "", fmt.Errorf("hyde rewrite: %w", err)
	}
	return rewritten, nil
}

// CosineEvaluator scores support as the maximum cosine similarity between the
// answer embedding and the context embeddings, clamped to [0,1]. Contexts
// without an embedding are skipped; no contexts means zero support.
type CosineEvaluator struct {
	embedder Embedder
}

func NewCosineEvaluator(embedder Embedder) CosineEvaluator {
	return CosineEvaluator{embedder: embedder}
}

func (e CosineEvaluator) Score(ctx context.Context, answer Answer, contexts []RetrievedContext) (float64, error) {
	if e.embedder == nil {
		return 0, errors.New("evaluator embedder unavailable")
	}
	if len(contexts) == 0 {
		return 0, nil
	}

	answerVec, err := e.embedder.Embed(ctx, answer.Text)
	if err != nil {
		return 0, fmt.Errorf("embed answer: %w", err)
	}

	maxSim := 0.0
	for _, c := range contexts {
		if len(c.Embedding) == 0 {
			continue
		}
		if sim := CosineSimilarity(answerVec, c.Embedding); sim > maxSim {
			maxSim = sim
		}
	}
	return clamp01(maxSim), nil
}

// CosineSimilarity returns the cosine of the angle between a and b, clamped
// to zero from below. Mismatched lengths score zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denominator := math.Sqrt(normA)*math.Sqrt(normB) + 1e-8
	sim := dot / denominator
	if sim < 0 {
		return 0
	}
	return sim
}
