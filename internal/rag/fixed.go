package rag

import (
	"context"
	"strings"
)

// Fixed is the trivial Controller: it replies with a canned answer and a
// single sufficient attempt. Useful for local development and UI work when no
// language model is reachable; the composition root selects it explicitly.
type Fixed struct {
	Text string
}

func (f Fixed) Run(ctx context.Context, question string) (CorrectionResult, error) {
	return f.RunStream(ctx, question, nil)
}

func (f Fixed) RunStream(_ context.Context, question string, onStep func(StepEvent)) (CorrectionResult, error) {
	trimmed := strings.TrimSpace(question)
	if trimmed == "" {
		return CorrectionResult{Status: StatusExhausted}, ErrEmptyQuestion
	}

	text := f.Text
	if strings.TrimSpace(text) == "" {
		text = "This is a canned development answer for: " + trimmed
	}
	support := 1.0
	answer := Answer{Text: text, Support: &support}
	attempt := Attempt{Index: 0, Query: trimmed, Support: &support}

	if onStep != nil {
		onStep(StepEvent{State: stateBaseline.String(), AttemptIndex: 0})
		onStep(StepEvent{State: stateEvaluate.String(), AttemptIndex: 0, Support: &support})
		onStep(StepEvent{State: stateFinalizeSufficient.String(), AttemptIndex: 0, Support: &support})
	}

	return CorrectionResult{
		Answer:       answer,
		Status:       StatusSufficient,
		AttemptsUsed: 0,
		History:      []Attempt{attempt},
	}, nil
}
