package enhance

import (
	"fmt"
	"strings"

	"github.com/spin-glass/papers-rag-agent/internal/rag"
)

func buildCornellPrompt(question string, answer rag.Answer) string {
	var citations strings.Builder
	for _, citation := range answer.Citations {
		link := strings.Replace(citation.URL, "http://", "https://", 1)
		fmt.Fprintf(&citations, "- %s -> %s\n", citation.Title, link)
	}

	var b strings.Builder
	b.WriteString("You will create a Cornell Note. Use only the papers listed below when describing content.\n")
	b.WriteString("Each paper title already has its correct URL. Copy it exactly and make the title itself\n")
	b.WriteString("a Markdown link like [Title](URL). Do NOT make the title bold.\n\n")
	b.WriteString("CITATIONS (use exactly these titles and URLs, no others):\n")
	b.WriteString(citations.String())
	b.WriteString("\nRules for links/titles in NOTES:\n")
	b.WriteString("- Only use URLs that appear in CITATIONS. Never output any other URL or arXiv ID.\n")
	b.WriteString("- When you refer to a paper, use the exact title from CITATIONS.\n")
	b.WriteString("- The link must appear only in the title field (as a Markdown link).\n")
	b.WriteString("- If a paper is not in CITATIONS, omit it completely.\n")
	b.WriteString("- Do NOT include any explanation, prose, or commentary outside the sections.\n\n")
	b.WriteString("Based on the following question and answer, create a Cornell Note:\n\n")
	fmt.Fprintf(&b, "Question: %s\n\n", question)
	fmt.Fprintf(&b, "Answer: %s\n\n", answer.Text)
	b.WriteString("Generate a Cornell Note with:\n")
	b.WriteString("1. cue: Key concepts and terms (1-2 short phrases)\n")
	b.WriteString("2. notes: A list of papers, each with its title as a Markdown link and 2-4 concise points\n")
	b.WriteString("3. summary: 1-2 sentence summary of all papers\n\n")
	b.WriteString("Format your response exactly as:\n\n")
	b.WriteString("CUE: [your cue here]\n\n")
	b.WriteString("NOTES: [your notes here]\n\n")
	b.WriteString("SUMMARY: [your summary here]\n")
	return b.String()
}

func buildQuizPrompt(question, answerText string) string {
	var b strings.Builder
	b.WriteString("Based on the following question and answer, create 2 multiple-choice quiz questions to test understanding.\n\n")
	fmt.Fprintf(&b, "Question: %s\n\n", question)
	fmt.Fprintf(&b, "Answer: %s\n\n", answerText)
	b.WriteString("Generate 2 quiz questions with 4 options each. Format your response exactly as:\n\n")
	b.WriteString("QUESTION 1: [your question here]\n")
	b.WriteString("A) [option A]\n")
	b.WriteString("B) [option B]\n")
	b.WriteString("C) [option C]\n")
	b.WriteString("D) [option D]\n")
	b.WriteString("CORRECT: [A/B/C/D]\n\n")
	b.WriteString("QUESTION 2: [your question here]\n")
	b.WriteString("A) [option A]\n")
	b.WriteString("B) [option B]\n")
	b.WriteString("C) [option C]\n")
	b.WriteString("D) [option D]\n")
	b.WriteString("CORRECT: [A/B/C/D]\n\n")
	b.WriteString("Make sure the questions test key concepts from the answer and have clear correct answers.\n")
	return b.String()
}
