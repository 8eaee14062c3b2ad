package agent

import (
	"fmt"
	"strings"

	"github.com/spin-glass/papers-rag-agent/internal/arxiv"
	"github.com/spin-glass/papers-rag-agent/internal/enhance"
	"github.com/spin-glass/papers-rag-agent/internal/rag"
)

func formatSearchResults(results []arxiv.Paper) string {
	if len(results) == 0 {
		return "No matching papers were found."
	}

	var b strings.Builder
	b.WriteString("### ArXiv results\n")
	for _, result := range results {
		if result.PDF != "" {
			fmt.Fprintf(&b, "- [%s](%s)  •  [PDF](%s)\n", result.Title, result.Link, result.PDF)
		} else {
			fmt.Fprintf(&b, "- [%s](%s)\n", result.Title, result.Link)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatAnswer(result rag.CorrectionResult, enhancement *enhance.Enhancement) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Answer\n\n%s\n", result.Answer.Text)

	if len(result.Answer.Citations) > 0 {
		b.WriteString("\n## Citations\n\n")
		for i, citation := range result.Answer.Citations {
			fmt.Fprintf(&b, "%d. [%s](%s)\n", i+1, citation.Title, citation.URL)
		}
	}

	if enhancement != nil && enhancement.CornellNote != nil {
		note := enhancement.CornellNote
		fmt.Fprintf(&b, "\n## Cornell Note\n\n### Cue\n\n%s\n", note.Cue)
		fmt.Fprintf(&b, "\n### Notes\n\n%s\n", note.Notes)
		fmt.Fprintf(&b, "\n### Summary\n\n%s\n", note.Summary)
	}

	if enhancement != nil && len(enhancement.QuizItems) > 0 {
		b.WriteString("\n## Check your understanding\n")
		for i, quiz := range enhancement.QuizItems {
			fmt.Fprintf(&b, "\n### Question %d\n\n%s\n\n", i+1, quiz.Question)
			for _, option := range quiz.Options {
				marker := ""
				if option.ID == quiz.CorrectAnswer {
					marker = "✓ "
				}
				fmt.Fprintf(&b, "- %s%s: %s\n", marker, strings.ToUpper(option.ID), option.Text)
			}
		}
	}

	b.WriteString("\n## Retrieval quality\n\n")
	if result.Answer.Support != nil {
		support := *result.Answer.Support
		fmt.Fprintf(&b, "**Support: %s (score=%.3f)**\n", supportLevel(support), support)
	} else {
		b.WriteString("**Support: unavailable**\n")
	}
	fmt.Fprintf(&b, "**Status: %s, attempts used: %d**\n", result.Status, result.AttemptsUsed)

	if result.AttemptsUsed > 0 {
		b.WriteString("\n*Ran corrective retrieval with a rewritten query.*\n")
	}
	if result.ForcedStop {
		b.WriteString("\n*The loop hit its step ceiling and was stopped.*\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

func supportLevel(support float64) string {
	switch {
	case support >= 0.8:
		return "high"
	case support >= 0.5:
		return "medium"
	default:
		return "low"
	}
}
