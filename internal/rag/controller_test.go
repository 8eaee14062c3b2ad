package rag

import (
	"context"
	"errors"
	"testing"
)

type retrieverStub struct {
	byQuery map[string][]RetrievedContext
	errs    []error
	calls   int
}

func (r *retrieverStub) Retrieve(_ context.Context, query string, _ int) ([]RetrievedContext, error) {
	call := r.calls
	r.calls++
	if call < len(r.errs) && r.errs[call] != nil {
		return nil, r.errs[call]
	}
	if r.byQuery == nil {
		return nil, nil
	}
	return r.byQuery[query], nil
}

type generatorStub struct {
	err   error
	calls int
}

func (g *generatorStub) Generate(_ context.Context, question string, contexts []RetrievedContext) (Answer, error) {
	g.calls++
	if g.err != nil {
		return Answer{}, g.err
	}
	return Answer{
		Text:      "answer to " + question,
		Citations: citationsFromContexts(contexts),
	}, nil
}

type evaluatorStub struct {
	scores []float64
	err    error
	calls  int
}

func (e *evaluatorStub) Score(_ context.Context, _ Answer, _ []RetrievedContext) (float64, error) {
	call := e.calls
	e.calls++
	if e.err != nil {
		return 0, e.err
	}
	if call >= len(e.scores) {
		if len(e.scores) == 0 {
			return 0, nil
		}
		return e.scores[len(e.scores)-1], nil
	}
	return e.scores[call], nil
}

type rewriterStub struct {
	rewritten string
	err       error
	calls     int
}

func (rw *rewriterStub) Rewrite(_ context.Context, question string, _ *RetrievedContext) (string, error) {
	rw.calls++
	if rw.err != nil {
		return "", rw.err
	}
	if rw.rewritten == "" {
		return question, nil
	}
	return rw.rewritten, nil
}

func testContexts(ids ...string) []RetrievedContext {
	contexts := make([]RetrievedContext, 0, len(ids))
	score := 0.9
	for _, id := range ids {
		contexts = append(contexts, RetrievedContext{
			SourceID:  id,
			Title:     "Paper " + id,
			URL:       "https://arxiv.org/abs/" + id,
			Snippet:   "abstract of " + id,
			Score:     score,
			Embedding: []float32{1, 0},
		})
		score -= 0.1
	}
	return contexts
}

func newTestController(t *testing.T, retriever Retriever, generator Generator, evaluator Evaluator, rewriter Rewriter, cfg Config) Corrective {
	t.Helper()
	ctrl, err := NewCorrective(retriever, generator, evaluator, rewriter, cfg)
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	return ctrl
}

func TestRunSufficientBaselineSkipsRewrite(t *testing.T) {
	rewriter := &rewriterStub{}
	ctrl := newTestController(t,
		&retrieverStub{byQuery: map[string][]RetrievedContext{"q": testContexts("2301.001", "2301.002")}},
		&generatorStub{},
		&evaluatorStub{scores: []float64{0.80}},
		rewriter,
		Config{TopK: 5, SupportThreshold: 0.35, MaxAttempts: 2, RecursionLimit: 10},
	)

	result, err := ctrl.Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Status != StatusSufficient {
		t.Fatalf("expected sufficient, got %s", result.Status)
	}
	if result.AttemptsUsed != 0 {
		t.Fatalf("expected 0 attempts used, got %d", result.AttemptsUsed)
	}
	if rewriter.calls != 0 {
		t.Fatalf("rewriter should not run on a sufficient baseline, got %d calls", rewriter.calls)
	}
	if len(result.History) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(result.History))
	}
	if result.History[0].Support == nil || *result.History[0].Support != 0.80 {
		t.Fatalf("expected baseline support 0.80 in history, got %+v", result.History[0].Support)
	}
}

func TestRunRewriteRecoversSupport(t *testing.T) {
	// Baseline scores 0.20 against a 0.35 threshold; the rewritten query
	// retrieves better contexts and scores 0.50.
	ctrl := newTestController(t,
		&retrieverStub{byQuery: map[string][]RetrievedContext{
			"What is a transformer?": testContexts("a1", "a2", "a3", "a4", "a5"),
			"hypothetical summary":   testContexts("b1", "b2"),
		}},
		&generatorStub{},
		&evaluatorStub{scores: []float64{0.20, 0.50}},
		&rewriterStub{rewritten: "hypothetical summary"},
		Config{TopK: 5, SupportThreshold: 0.35, MaxAttempts: 1, RecursionLimit: 10},
	)

	result, err := ctrl.Run(context.Background(), "What is a transformer?")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Status != StatusSufficient {
		t.Fatalf("expected sufficient after rewrite, got %s", result.Status)
	}
	if result.AttemptsUsed != 1 {
		t.Fatalf("expected 1 attempt used, got %d", result.AttemptsUsed)
	}
	if len(result.History) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(result.History))
	}
	if !result.History[1].Rewritten {
		t.Fatal("second history entry should be marked rewritten")
	}
	if result.History[1].Query != "hypothetical summary" {
		t.Fatalf("expected rewritten query in history, got %q", result.History[1].Query)
	}
	if result.Answer.Support == nil || *result.Answer.Support != 0.50 {
		t.Fatalf("expected final support 0.50, got %+v", result.Answer.Support)
	}
}

func TestRunExhaustionReturnsBestAttempt(t *testing.T) {
	// Both attempts stay under the threshold; the returned answer is the
	// higher-scoring second attempt.
	ctrl := newTestController(t,
		&retrieverStub{byQuery: map[string][]RetrievedContext{
			"q":       testContexts("a1"),
			"rewrite": testContexts("b1"),
		}},
		&generatorStub{},
		&evaluatorStub{scores: []float64{0.20, 0.30}},
		&rewriterStub{rewritten: "rewrite"},
		Config{TopK: 5, SupportThreshold: 0.35, MaxAttempts: 1, RecursionLimit: 10},
	)

	result, err := ctrl.Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Status != StatusExhausted {
		t.Fatalf("expected exhausted, got %s", result.Status)
	}
	if result.AttemptsUsed != 1 {
		t.Fatalf("expected 1 attempt used, got %d", result.AttemptsUsed)
	}
	if result.Answer.Support == nil || *result.Answer.Support != 0.30 {
		t.Fatalf("expected best-effort answer with support 0.30, got %+v", result.Answer.Support)
	}
	if len(result.Answer.Citations) != 1 || result.Answer.Citations[0].SourceID != "b1" {
		t.Fatalf("expected citations from the second attempt, got %+v", result.Answer.Citations)
	}
}

func TestRunExhaustionTieGoesToLatestAttempt(t *testing.T) {
	ctrl := newTestController(t,
		&retrieverStub{byQuery: map[string][]RetrievedContext{
			"q":       testContexts("a1"),
			"rewrite": testContexts("b1"),
		}},
		&generatorStub{},
		&evaluatorStub{scores: []float64{0.25, 0.25}},
		&rewriterStub{rewritten: "rewrite"},
		Config{TopK: 5, SupportThreshold: 0.5, MaxAttempts: 1, RecursionLimit: 10},
	)

	result, err := ctrl.Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(result.Answer.Citations) != 1 || result.Answer.Citations[0].SourceID != "b1" {
		t.Fatalf("tie should return the latest attempt, got %+v", result.Answer.Citations)
	}
}

func TestRunZeroAttemptsNeverRewrites(t *testing.T) {
	rewriter := &rewriterStub{}
	ctrl := newTestController(t,
		&retrieverStub{byQuery: map[string][]RetrievedContext{"q": testContexts("a1")}},
		&generatorStub{},
		&evaluatorStub{scores: []float64{0.10}},
		rewriter,
		Config{TopK: 5, SupportThreshold: 0.5, MaxAttempts: 0, RecursionLimit: 10},
	)

	result, err := ctrl.Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Status != StatusExhausted {
		t.Fatalf("expected exhausted, got %s", result.Status)
	}
	if result.AttemptsUsed != 0 || rewriter.calls != 0 {
		t.Fatalf("expected no rewrite with max_attempts=0, used=%d calls=%d", result.AttemptsUsed, rewriter.calls)
	}
}

func TestRunRetrieverFailureDoesNotAbortLoop(t *testing.T) {
	// The baseline retrieval fails; the run still reaches a terminal status
	// and the failure is recorded in history as a zero-support attempt.
	ctrl := newTestController(t,
		&retrieverStub{
			byQuery: map[string][]RetrievedContext{"rewrite": testContexts("b1")},
			errs:    []error{errors.New("index unavailable")},
		},
		&generatorStub{},
		&evaluatorStub{scores: []float64{0.70}},
		&rewriterStub{rewritten: "rewrite"},
		Config{TopK: 5, SupportThreshold: 0.35, MaxAttempts: 1, RecursionLimit: 10},
	)

	result, err := ctrl.Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Status != StatusSufficient {
		t.Fatalf("expected recovery on the second attempt, got %s", result.Status)
	}
	if result.History[0].Error == "" {
		t.Fatal("expected first attempt to record the retrieval failure")
	}
	if result.History[0].Support != nil {
		t.Fatalf("failed attempt must not record a support score, got %v", *result.History[0].Support)
	}
	if result.AttemptsUsed != 1 {
		t.Fatalf("expected 1 attempt used, got %d", result.AttemptsUsed)
	}
}

func TestRunGeneratorFailureExhaustsToNoAnswer(t *testing.T) {
	ctrl := newTestController(t,
		&retrieverStub{byQuery: map[string][]RetrievedContext{"q": testContexts("a1")}},
		&generatorStub{err: errors.New("model unreachable")},
		&evaluatorStub{},
		&rewriterStub{},
		Config{TopK: 5, SupportThreshold: 0.35, MaxAttempts: 1, RecursionLimit: 10},
	)

	result, err := ctrl.Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Status != StatusExhausted {
		t.Fatalf("expected exhausted, got %s", result.Status)
	}
	if !result.Answer.NoAnswer {
		t.Fatal("expected explicit no-answer marker when no attempt produced an answer")
	}
	for _, attempt := range result.History {
		if attempt.Error == "" && !attempt.Forced {
			t.Fatalf("expected every attempt to carry the generation error, got %+v", attempt)
		}
	}
}

func TestRunRecursionLimitForcesTermination(t *testing.T) {
	ctrl := newTestController(t,
		&retrieverStub{byQuery: map[string][]RetrievedContext{
			"q":       testContexts("a1"),
			"rewrite": testContexts("b1"),
		}},
		&generatorStub{},
		&evaluatorStub{scores: []float64{0.01}},
		&rewriterStub{rewritten: "rewrite"},
		Config{TopK: 5, SupportThreshold: 0.99, MaxAttempts: 50, RecursionLimit: 4},
	)

	result, err := ctrl.Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Status != StatusExhausted {
		t.Fatalf("expected forced exhaustion, got %s", result.Status)
	}
	if !result.ForcedStop {
		t.Fatal("expected forced stop flag")
	}
	last := result.History[len(result.History)-1]
	if !last.Forced {
		t.Fatalf("expected a distinct forced-termination history entry, got %+v", last)
	}
}

func TestRunRecursionLimitKeepsUnscoredAttempt(t *testing.T) {
	// A limit of one step stops the run after baseline retrieval but
	// before evaluation; the retrieved attempt must still be recorded.
	ctrl := newTestController(t,
		&retrieverStub{byQuery: map[string][]RetrievedContext{"q": testContexts("a1")}},
		&generatorStub{},
		&evaluatorStub{scores: []float64{0.9}},
		&rewriterStub{},
		Config{TopK: 5, SupportThreshold: 0.35, MaxAttempts: 3, RecursionLimit: 1},
	)

	result, err := ctrl.Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !result.ForcedStop {
		t.Fatal("expected forced stop flag")
	}
	if len(result.History) != 2 {
		t.Fatalf("history length = %d, want retrieved attempt plus forced entry: %+v", len(result.History), result.History)
	}
	pending := result.History[0]
	if pending.Forced {
		t.Fatalf("first entry should be the retrieved attempt, got %+v", pending)
	}
	if pending.Support != nil {
		t.Errorf("attempt was never scored, support = %v", *pending.Support)
	}
	if len(pending.ContextIDs) != 1 || pending.ContextIDs[0] != "a1" {
		t.Errorf("context ids = %v, want [a1]", pending.ContextIDs)
	}
	if !result.History[1].Forced {
		t.Fatalf("second entry should mark the forced stop, got %+v", result.History[1])
	}
}

func TestRunCancellationReturnsPartialHistory(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	ctrl := newTestController(t,
		&retrieverStub{byQuery: map[string][]RetrievedContext{"q": testContexts("a1")}},
		&generatorStub{},
		&evaluatorStub{scores: []float64{0.9}},
		&rewriterStub{},
		Config{TopK: 5, SupportThreshold: 0.35, MaxAttempts: 1, RecursionLimit: 10},
	)

	result, err := ctrl.Run(cancelled, "q")
	if err != nil {
		t.Fatalf("cancellation must yield a well-formed result, got error: %v", err)
	}
	if result.Status != StatusExhausted {
		t.Fatalf("expected exhausted on cancellation, got %s", result.Status)
	}
	if !result.Cancelled {
		t.Fatal("expected cancellation flag to distinguish from plain exhaustion")
	}
}

func TestRunCitationContainment(t *testing.T) {
	ctrl := newTestController(t,
		&retrieverStub{byQuery: map[string][]RetrievedContext{"q": testContexts("a1", "a2", "a3")}},
		&generatorStub{},
		&evaluatorStub{scores: []float64{0.9}},
		&rewriterStub{},
		Config{TopK: 3, SupportThreshold: 0.35, MaxAttempts: 1, RecursionLimit: 10},
	)

	result, err := ctrl.Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	allowed := map[string]struct{}{"a1": {}, "a2": {}, "a3": {}}
	for _, citation := range result.Answer.Citations {
		if _, ok := allowed[citation.SourceID]; !ok {
			t.Fatalf("citation %q not in the conditioned contexts", citation.SourceID)
		}
	}
}

func TestRunStreamEmitsStateSequence(t *testing.T) {
	ctrl := newTestController(t,
		&retrieverStub{byQuery: map[string][]RetrievedContext{
			"q":       testContexts("a1"),
			"rewrite": testContexts("b1"),
		}},
		&generatorStub{},
		&evaluatorStub{scores: []float64{0.20, 0.50}},
		&rewriterStub{rewritten: "rewrite"},
		Config{TopK: 5, SupportThreshold: 0.35, MaxAttempts: 1, RecursionLimit: 10},
	)

	var states []string
	result, err := ctrl.RunStream(context.Background(), "q", func(event StepEvent) {
		states = append(states, event.State)
	})
	if err != nil {
		t.Fatalf("run stream: %v", err)
	}
	if result.Status != StatusSufficient {
		t.Fatalf("expected sufficient, got %s", result.Status)
	}

	want := []string{"baseline", "evaluate", "rewrite", "enhanced_retrieval", "evaluate", "finalize_sufficient"}
	if len(states) != len(want) {
		t.Fatalf("expected %d events, got %d: %v", len(want), len(states), states)
	}
	for i, state := range want {
		if states[i] != state {
			t.Fatalf("event %d: expected %s, got %s", i, state, states[i])
		}
	}
}

func TestRunNoAnswerOnExhaustPolicy(t *testing.T) {
	ctrl := newTestController(t,
		&retrieverStub{byQuery: map[string][]RetrievedContext{"q": testContexts("a1")}},
		&generatorStub{},
		&evaluatorStub{scores: []float64{0.10}},
		&rewriterStub{},
		Config{TopK: 5, SupportThreshold: 0.9, MaxAttempts: 0, RecursionLimit: 10, NoAnswerOnExhaust: true},
	)

	result, err := ctrl.Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !result.Answer.NoAnswer {
		t.Fatal("expected no-answer marker under strict exhaust policy")
	}
}

func TestNewCorrectiveRejectsInvalidConfig(t *testing.T) {
	cases := []Config{
		{TopK: 0, SupportThreshold: 0.5, MaxAttempts: 1, RecursionLimit: 10},
		{TopK: 5, SupportThreshold: 1.5, MaxAttempts: 1, RecursionLimit: 10},
		{TopK: 5, SupportThreshold: -0.1, MaxAttempts: 1, RecursionLimit: 10},
		{TopK: 5, SupportThreshold: 0.5, MaxAttempts: -1, RecursionLimit: 10},
		{TopK: 5, SupportThreshold: 0.5, MaxAttempts: 1, RecursionLimit: 0},
	}
	for _, cfg := range cases {
		_, err := NewCorrective(&retrieverStub{}, &generatorStub{}, &evaluatorStub{}, &rewriterStub{}, cfg)
		if !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("expected invalid config error for %+v, got %v", cfg, err)
		}
	}
}

func TestRunRejectsEmptyQuestion(t *testing.T) {
	ctrl := newTestController(t,
		&retrieverStub{}, &generatorStub{}, &evaluatorStub{}, &rewriterStub{},
		DefaultConfig(),
	)
	if _, err := ctrl.Run(context.Background(), "   "); !errors.Is(err, ErrEmptyQuestion) {
		t.Fatalf("expected empty question error, got %v", err)
	}
}

func TestFixedControllerReturnsSufficient(t *testing.T) {
	var states []string
	result, err := Fixed{}.RunStream(context.Background(), "q", func(event StepEvent) {
		states = append(states, event.State)
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Status != StatusSufficient || result.AttemptsUsed != 0 {
		t.Fatalf("unexpected fixed result: %+v", result)
	}
	if len(states) != 3 || states[len(states)-1] != "finalize_sufficient" {
		t.Fatalf("unexpected fixed event sequence: %v", states)
	}
}
