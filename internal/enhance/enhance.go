// Package enhance turns a finished answer into study material. It asks the
// model for a Cornell note and a short quiz and parses the line-oriented
// formats the prompts demand. Failures degrade the result instead of failing
// the request.
package enhance

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/spin-glass/papers-rag-agent/internal/rag"
)

type Responder interface {
	Respond(ctx context.Context, prompt string) (string, error)
}

type CornellNote struct {
	Cue     string `json:"cue"`
	Notes   string `json:"notes"`
	Summary string `json:"summary"`
}

type QuizOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type QuizItem struct {
	Question      string       `json:"question"`
	Options       []QuizOption `json:"options"`
	CorrectAnswer string       `json:"correctAnswer"`
}

// Enhancement carries whatever study material could be produced. Either field
// may be empty when its generation step failed.
type Enhancement struct {
	CornellNote *CornellNote `json:"cornellNote,omitempty"`
	QuizItems   []QuizItem   `json:"quizItems,omitempty"`
}

type Enhancer struct {
	responder Responder
}

func NewEnhancer(responder Responder) (*Enhancer, error) {
	if responder == nil {
		return nil, fmt.Errorf("nil responder")
	}
	return &Enhancer{responder: responder}, nil
}

// Enhance generates the note and the quiz concurrently and keeps whatever
// succeeded.
func (e *Enhancer) Enhance(ctx context.Context, question string, answer rag.Answer) Enhancement {
	var (
		wg   sync.WaitGroup
		note *CornellNote
		quiz []QuizItem
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		generated, err := e.cornellNote(ctx, question, answer)
		if err != nil {
			log.Printf("enhance: cornell note generation failed err=%v", err)
			return
		}
		note = generated
	}()
	go func() {
		defer wg.Done()
		generated, err := e.quiz(ctx, question, answer.Text)
		if err != nil {
			log.Printf("enhance: quiz generation failed err=%v", err)
			return
		}
		quiz = generated
	}()
	wg.Wait()

	return Enhancement{CornellNote: note, QuizItems: quiz}
}

func (e *Enhancer) cornellNote(ctx context.Context, question string, answer rag.Answer) (*CornellNote, error) {
	response, err := e.responder.Respond(ctx, buildCornellPrompt(question, answer))
	if err != nil {
		return nil, err
	}
	note := parseCornellNote(response)
	if note.Cue == "" && note.Notes == "" && note.Summary == "" {
		return nil, fmt.Errorf("empty cornell note response")
	}
	return &note, nil
}

func (e *Enhancer) quiz(ctx context.Context, question, answerText string) ([]QuizItem, error) {
	response, err := e.responder.Respond(ctx, buildQuizPrompt(question, answerText))
	if err != nil {
		return nil, err
	}
	items := parseQuiz(response)
	if len(items) == 0 {
		return nil, fmt.Errorf("no quiz questions parsed")
	}
	return items, nil
}

// parseCornellNote reads the CUE/NOTES/SUMMARY sections. Section bodies may
// continue over multiple lines until the next marker.
func parseCornellNote(response string) CornellNote {
	var (
		note    CornellNote
		section string
	)
	for _, raw := range strings.Split(response, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case strings.HasPrefix(line, "CUE:"):
			section = "cue"
			note.Cue = strings.TrimSpace(strings.TrimPrefix(line, "CUE:"))
		case strings.HasPrefix(line, "NOTES:"):
			section = "notes"
			note.Notes = strings.TrimSpace(strings.TrimPrefix(line, "NOTES:"))
		case strings.HasPrefix(line, "SUMMARY:"):
			section = "summary"
			note.Summary = strings.TrimSpace(strings.TrimPrefix(line, "SUMMARY:"))
		case line != "":
			switch section {
			case "cue":
				note.Cue = strings.TrimSpace(note.Cue + " " + line)
			case "notes":
				note.Notes = strings.TrimSpace(note.Notes + "\n" + line)
			case "summary":
				note.Summary = strings.TrimSpace(note.Summary + " " + line)
			}
		}
	}
	return note
}

// parseQuiz reads QUESTION n:/A)-D)/CORRECT: blocks. Questions with a
// malformed block, such as a missing option, are dropped.
func parseQuiz(response string) []QuizItem {
	var (
		items   []QuizItem
		current QuizItem
		open    bool
	)

	flush := func() {
		if open && current.Question != "" && len(current.Options) == 4 && current.CorrectAnswer != "" {
			items = append(items, current)
		}
		current = QuizItem{}
		open = false
	}

	for _, raw := range strings.Split(response, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case strings.HasPrefix(line, "QUESTION"):
			flush()
			_, text, found := strings.Cut(line, ":")
			if !found {
				continue
			}
			current.Question = strings.TrimSpace(text)
			open = true
		case len(line) >= 2 && line[1] == ')' && line[0] >= 'A' && line[0] <= 'D':
			current.Options = append(current.Options, QuizOption{
				ID:   strings.ToLower(line[:1]),
				Text: strings.TrimSpace(line[2:]),
			})
		case strings.HasPrefix(line, "CORRECT:"):
			current.CorrectAnswer = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(line, "CORRECT:")))
		}
	}
	flush()
	return items
}
