package rag

import (
	"fmt"
	"strings"
)

func buildAnswerPrompt(question string, contexts []RetrievedContext) string {
	var ctxText strings.Builder
	for i, ctx := range contexts {
		fmt.Fprintf(&ctxText, "%d) %s\n%s\n\n", i+1, ctx.Title, ctx.Snippet)
	}

	return fmt.Sprintf(`You are a careful scientific assistant. Use ONLY the provided contexts.
If the contexts are insufficient, say you cannot answer and list what is missing.

Question:
%s

Contexts:
%s

Requirements:
- Bullet the key points clearly.
- Cite at least 2 sources from the contexts as titles with their arXiv abstract URLs.
- Do not invent facts not supported by the contexts.

Citations:
`, question, strings.TrimSpace(ctxText.String()))
}

func buildHydePrompt(question string, best *RetrievedContext) string {
	var hint string
	if best != nil {
		hint = fmt.Sprintf("\nThe most relevant paper found so far was %q: %s\n", best.Title, trimToRunes(best.Snippet, 400))
	}

	return fmt.Sprintf(`Generate a hypothetical academic paper summary (150-250 words) that would contain the information needed to answer this question: %q
%s
Write as if you're summarizing a research paper that directly addresses this question. Include:
- Technical terms and methodology keywords relevant to the question
- Specific concepts, algorithms, or approaches that would be discussed
- Academic language typical of research abstracts

Focus on creating searchable content rather than answering the question directly.

Question: %s

Hypothetical paper summary:`, question, hint, question)
}

func trimToRunes(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}
