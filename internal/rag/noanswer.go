package rag

import (
	"fmt"
	"strings"
)

// noAnswer builds the explicit insufficient-evidence answer, with hints about
// what the question might be missing so the user can retry a sharper one.
func noAnswer(question string) Answer {
	var b strings.Builder
	b.WriteString("I could not find enough supporting evidence to answer this question. ")
	b.WriteString("The following details might be missing:\n\n")
	for i, element := range missingElements(question) {
		fmt.Fprintf(&b, "%d. %s\n", i+1, element)
	}
	b.WriteString("\nPlease retry with a more specific time range, method name, or dataset.")

	return Answer{
		Text:     b.String(),
		NoAnswer: true,
	}
}

var (
	timeIndicators = []string{
		"year", "recent", "latest", "since", "before", "after",
		"2023", "2024", "2025", "2026",
	}
	methodIndicators = []string{
		"algorithm", "method", "model", "approach", "technique", "framework",
		"architecture", "transformer", "bert", "gpt", "neural",
		"deep learning", "machine learning",
	}
	datasetIndicators = []string{
		"dataset", "data", "benchmark", "corpus", "evaluation",
		"imagenet", "coco", "glue", "squad",
	}
	domainIndicators = []string{
		"computer vision", "nlp", "natural language", "speech",
		"robotics", "medical",
	}
)

// missingElements guesses which qualifiers the question lacks. Pure
// heuristics; at most three suggestions.
func missingElements(question string) []string {
	lower := strings.ToLower(question)
	suggestions := make([]string, 0, 3)

	if !containsAny(lower, timeIndicators) {
		suggestions = append(suggestions, "a concrete time frame (for example: since 2023, recent work)")
	}
	if !containsAny(lower, methodIndicators) {
		suggestions = append(suggestions, "a specific method or algorithm name (for example: Transformer, BERT, CNN)")
	}
	if !containsAny(lower, datasetIndicators) {
		suggestions = append(suggestions, "a target dataset or benchmark (for example: ImageNet, GLUE, COCO)")
	}
	if !containsAny(lower, domainIndicators) {
		suggestions = append(suggestions, "the research area (for example: computer vision, NLP, speech recognition)")
	}

	if len(suggestions) == 0 {
		suggestions = []string{
			"a more specific research field or application area",
			"particular technical requirements or constraints",
			"an existing method to compare against",
		}
	}
	if len(suggestions) > 3 {
		suggestions = suggestions[:3]
	}
	return suggestions
}

func containsAny(haystack string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}
