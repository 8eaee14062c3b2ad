package rag

import (
	"context"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusRetrying   Status = "retrying"
	StatusSufficient Status = "sufficient"
	StatusExhausted  Status = "exhausted"
)

// Query carries the original question text plus the rewritten variant once a
// correction attempt has produced one.
type Query struct {
	OriginalText  string `json:"originalText"`
	RewrittenText string `json:"rewrittenText,omitempty"`
	AttemptIndex  int    `json:"attemptIndex"`
}

// RetrievedContext is one ranked passage returned by the retriever. The
// embedding travels with the context so the evaluator can score grounding
// without re-embedding.
type RetrievedContext struct {
	SourceID  string    `json:"sourceId"`
	Title     string    `json:"title"`
	URL       string    `json:"url,omitempty"`
	Snippet   string    `json:"snippet"`
	Score     float64   `json:"score"`
	Embedding []float32 `json:"-"`
}

type Citation struct {
	SourceID string `json:"sourceId"`
	Title    string `json:"title"`
	URL      string `json:"url,omitempty"`
}

// Answer is generated text plus the citations it was conditioned on. Support
// is nil until an evaluation step has run; it is never a placeholder zero.
type Answer struct {
	Text      string     `json:"text"`
	Citations []Citation `json:"citations"`
	Support   *float64   `json:"support,omitempty"`
	NoAnswer  bool       `json:"noAnswer,omitempty"`
}

// Attempt is one per-attempt history snapshot. Index 0 is the baseline
// attempt; each rewrite increments the index. Support stays nil when the
// attempt failed before evaluation.
type Attempt struct {
	Index      int      `json:"index"`
	Query      string   `json:"query"`
	Rewritten  bool     `json:"rewritten"`
	Support    *float64 `json:"support,omitempty"`
	ContextIDs []string `json:"contextIds,omitempty"`
	Error      string   `json:"error,omitempty"`
	Forced     bool     `json:"forced,omitempty"`
}

// StepEvent is emitted by the streaming variant after each state completes.
type StepEvent struct {
	State        string   `json:"state"`
	AttemptIndex int      `json:"attemptIndex"`
	Support      *float64 `json:"support,omitempty"`
}

type CorrectionResult struct {
	Answer       Answer    `json:"answer"`
	Status       Status    `json:"status"`
	AttemptsUsed int       `json:"attemptsUsed"`
	History      []Attempt `json:"history"`
	Cancelled    bool      `json:"cancelled,omitempty"`
	ForcedStop   bool      `json:"forcedStop,omitempty"`
}

// CorrectionState is the mutable record threaded through one run. Only the
// controller touches it; it is discarded once a terminal status is reached.
type CorrectionState struct {
	Question string
	Query    Query
	Contexts []RetrievedContext
	Answer   *Answer
	Attempts int
	Status   Status
}

type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]RetrievedContext, error)
}

type Generator interface {
	Generate(ctx context.Context, question string, contexts []RetrievedContext) (Answer, error)
}

type Evaluator interface {
	Score(ctx context.Context, answer Answer, contexts []RetrievedContext) (float64, error)
}

type Rewriter interface {
	Rewrite(ctx context.Context, question string, best *RetrievedContext) (string, error)
}

// Controller is the public contract of the corrective retrieval loop. The
// Corrective state machine and the canned Fixed variant both satisfy it; the
// composition root picks one.
type Controller interface {
	Run(ctx context.Context, question string) (CorrectionResult, error)
	RunStream(ctx context.Context, question string, onStep func(StepEvent)) (CorrectionResult, error)
}
