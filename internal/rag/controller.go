package rag

import (
	"context"
	"errors"
	"strings"
)

var ErrEmptyQuestion = errors.New("question must not be empty")

type state int

const (
	stateBaseline state = iota
	stateEvaluate
	stateRewrite
	stateEnhancedRetrieval
	stateFinalizeSufficient
	stateFinalizeExhausted
)

func (s state) String() string {
	switch s {
	case stateBaseline:
		return "baseline"
	case stateEvaluate:
		return "evaluate"
	case stateRewrite:
		return "rewrite"
	case stateEnhancedRetrieval:
		return "enhanced_retrieval"
	case stateFinalizeSufficient:
		return "finalize_sufficient"
	case stateFinalizeExhausted:
		return "finalize_exhausted"
	default:
		return "unknown"
	}
}

func (s state) terminal() bool {
	return s == stateFinalizeSufficient || s == stateFinalizeExhausted
}

// Corrective runs the evaluate/rewrite loop over pluggable collaborators: a
// baseline retrieval+generation pass, a support evaluation against the
// configured threshold, and up to MaxAttempts rewrite-and-retry cycles. A
// collaborator failure zeroes the attempt's support and feeds the normal
// retry-or-exhaust decision; only the attempt ceiling or the recursion limit
// ends the run.
type Corrective struct {
	retriever Retriever
	generator Generator
	evaluator Evaluator
	rewriter  Rewriter
	cfg       Config
}

// NewCorrective validates the configuration before anything runs; a bad
// config never partially executes.
func NewCorrective(retriever Retriever, generator Generator, evaluator Evaluator, rewriter Rewriter, cfg Config) (Corrective, error) {
	if err := cfg.Validate(); err != nil {
		return Corrective{}, err
	}
	if retriever == nil {
		return Corrective{}, errors.New("retriever is required")
	}
	if generator == nil {
		return Corrective{}, errors.New("generator is required")
	}
	if evaluator == nil {
		return Corrective{}, errors.New("evaluator is required")
	}
	if rewriter == nil {
		return Corrective{}, errors.New("rewriter is required")
	}
	return Corrective{
		retriever: retriever,
		generator: generator,
		evaluator: evaluator,
		rewriter:  rewriter,
		cfg:       cfg,
	}, nil
}

func (c Corrective) Run(ctx context.Context, question string) (CorrectionResult, error) {
	return c.RunStream(ctx, question, nil)
}

func (c Corrective) RunStream(ctx context.Context, question string, onStep func(StepEvent)) (CorrectionResult, error) {
	if err := c.cfg.Validate(); err != nil {
		return CorrectionResult{Status: StatusExhausted}, err
	}
	trimmed := strings.TrimSpace(question)
	if trimmed == "" {
		return CorrectionResult{Status: StatusExhausted}, ErrEmptyQuestion
	}
	if ctx == nil {
		ctx = context.Background()
	}

	run := correctionRun{
		ctrl:   c,
		onStep: onStep,
		state: &CorrectionState{
			Question: trimmed,
			Query:    Query{OriginalText: trimmed},
			Status:   StatusPending,
		},
	}
	return run.execute(ctx), nil
}

type correctionRun struct {
	ctrl   Corrective
	onStep func(StepEvent)
	state  *CorrectionState

	history  []Attempt
	attempt  Attempt
	rewrites int
	steps    int

	best        *Answer
	bestSupport float64
	bestContext *RetrievedContext

	cancelled bool
	forced    bool
}

func (r *correctionRun) execute(ctx context.Context) CorrectionResult {
	cfg := r.ctrl.cfg
	current := stateBaseline

	for {
		// Cancellation is honored between states, never mid-state.
		if err := ctx.Err(); err != nil && !current.terminal() {
			r.cancelled = true
			r.flushPending(current)
			current = stateFinalizeExhausted
		}
		if r.steps >= cfg.RecursionLimit && !current.terminal() {
			r.flushPending(current)
			r.history = append(r.history, Attempt{
				Index:  r.rewrites,
				Query:  r.state.Query.EffectiveText(),
				Forced: true,
				Error:  "recursion limit reached",
			})
			r.forced = true
			current = stateFinalizeExhausted
		}
		r.steps++

		switch current {
		case stateBaseline:
			r.attempt = Attempt{Index: 0, Query: r.state.Question}
			r.retrieveAndGenerate(ctx, r.state.Question)
			r.emit(current)
			current = stateEvaluate

		case stateEvaluate:
			support := r.evaluate(ctx)
			r.history = append(r.history, r.attempt)
			r.trackBest(support)
			r.emitSupport(current, r.attempt.Support)
			switch {
			case r.attempt.Error == "" && r.state.Answer != nil && support >= cfg.SupportThreshold:
				current = stateFinalizeSufficient
			case r.rewrites < cfg.MaxAttempts:
				r.state.Status = StatusRetrying
				current = stateRewrite
			default:
				current = stateFinalizeExhausted
			}

		case stateRewrite:
			r.rewrites++
			r.state.Attempts = r.rewrites
			r.attempt = Attempt{Index: r.rewrites, Rewritten: true}
			rewritten, err := r.ctrl.rewriter.Rewrite(ctx, r.state.Question, r.bestContext)
			if err != nil {
				r.attempt.Error = "rewrite: " + err.Error()
			}
			rewritten = strings.TrimSpace(rewritten)
			if rewritten == "" {
				// The rewriter found no improvement; retry with the question
				// itself rather than aborting the cycle.
				rewritten = r.state.Question
			}
			r.state.Query.RewrittenText = rewritten
			r.state.Query.AttemptIndex = r.rewrites
			r.attempt.Query = rewritten
			r.emit(current)
			current = stateEnhancedRetrieval

		case stateEnhancedRetrieval:
			// Enhanced retrieval replaces the baseline contexts: the rewrite
			// is assumed strictly more targeted.
			r.retrieveAndGenerate(ctx, r.state.Query.RewrittenText)
			r.emit(current)
			current = stateEvaluate

		case stateFinalizeSufficient:
			r.state.Status = StatusSufficient
			result := CorrectionResult{
				Answer:       *r.state.Answer,
				Status:       StatusSufficient,
				AttemptsUsed: r.rewrites,
				History:      r.history,
			}
			r.emitSupport(current, r.state.Answer.Support)
			return result

		case stateFinalizeExhausted:
			r.state.Status = StatusExhausted
			result := CorrectionResult{
				Answer:       r.exhaustedAnswer(),
				Status:       StatusExhausted,
				AttemptsUsed: r.rewrites,
				History:      r.history,
				Cancelled:    r.cancelled,
				ForcedStop:   r.forced,
			}
			r.emitSupport(current, result.Answer.Support)
			return result
		}
	}
}

// flushPending records the attempt whose retrieval already ran but whose
// evaluation was cut off. Without it a forced stop between retrieval and
// evaluation would leave the attempt out of the history.
func (r *correctionRun) flushPending(current state) {
	if current != stateEvaluate {
		return
	}
	r.history = append(r.history, r.attempt)
}

func (r *correctionRun) retrieveAndGenerate(ctx context.Context, query string) {
	r.state.Answer = nil
	r.state.Contexts = nil

	contexts, err := r.ctrl.retriever.Retrieve(ctx, query, r.ctrl.cfg.TopK)
	if err != nil {
		r.attempt.Error = joinAttemptError(r.attempt.Error, "retrieve: "+err.Error())
		return
	}
	r.state.Contexts = contexts
	r.attempt.ContextIDs = contextIDs(contexts)
	if top := topContext(contexts); top != nil {
		if r.bestContext == nil || top.Score > r.bestContext.Score {
			clone := *top
			r.bestContext = &clone
		}
	}

	answer, err := r.ctrl.generator.Generate(ctx, r.state.Question, contexts)
	if err != nil {
		r.attempt.Error = joinAttemptError(r.attempt.Error, "generate: "+err.Error())
		return
	}
	r.state.Answer = &answer
}

// evaluate returns the support score used for the retry decision. A failed
// attempt counts as zero support without ever recording a fake score in the
// history.
func (r *correctionRun) evaluate(ctx context.Context) float64 {
	if r.attempt.Error != "" || r.state.Answer == nil {
		return 0
	}
	score, err := r.ctrl.evaluator.Score(ctx, *r.state.Answer, r.state.Contexts)
	if err != nil {
		r.attempt.Error = joinAttemptError(r.attempt.Error, "score: "+err.Error())
		return 0
	}
	score = clamp01(score)
	r.attempt.Support = &score
	supported := score
	r.state.Answer.Support = &supported
	return score
}

func (r *correctionRun) trackBest(support float64) {
	if r.state.Answer == nil || len(r.state.Contexts) == 0 {
		return
	}
	// Ties go to the latest attempt: it reflects the most refined query.
	if r.best == nil || support >= r.bestSupport {
		answer := *r.state.Answer
		r.best = &answer
		r.bestSupport = support
	}
}

func (r *correctionRun) exhaustedAnswer() Answer {
	if r.best != nil && !r.ctrl.cfg.NoAnswerOnExhaust {
		return *r.best
	}
	return noAnswer(r.state.Question)
}

func (r *correctionRun) emit(s state) {
	r.emitSupport(s, nil)
}

func (r *correctionRun) emitSupport(s state, support *float64) {
	if r.onStep == nil {
		return
	}
	r.onStep(StepEvent{State: s.String(), AttemptIndex: r.attempt.Index, Support: support})
}

func (q Query) EffectiveText() string {
	if strings.TrimSpace(q.RewrittenText) != "" {
		return q.RewrittenText
	}
	return q.OriginalText
}

func contextIDs(contexts []RetrievedContext) []string {
	if len(contexts) == 0 {
		return nil
	}
	ids := make([]string, 0, len(contexts))
	for _, c := range contexts {
		ids = append(ids, c.SourceID)
	}
	return ids
}

func topContext(contexts []RetrievedContext) *RetrievedContext {
	if len(contexts) == 0 {
		return nil
	}
	top := contexts[0]
	for _, c := range contexts[1:] {
		if c.Score > top.Score {
			top = c
		}
	}
	return &top
}

func joinAttemptError(existing, incoming string) string {
	if existing == "" {
		return incoming
	}
	return existing + "; " + incoming
}

func clamp01(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
