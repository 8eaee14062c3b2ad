// Package index holds the in-memory cosine-similarity index the retriever
// runs against. The whole corpus is embedded up front; queries embed once and
// rank against every document.
package index

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/spin-glass/papers-rag-agent/internal/rag"
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Document struct {
	ID      string
	Title   string
	URL     string
	Summary string
}

type embeddedDocument struct {
	doc       Document
	embedding []float32
}

type Index struct {
	embedder  Embedder
	documents []embeddedDocument
}

// Build embeds title+summary for every document. Documents that fail to embed
// are skipped so one bad entry cannot block the whole corpus; an index that
// ends up empty is still valid, it just retrieves nothing.
func Build(ctx context.Context, embedder Embedder, docs []Document) (*Index, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	embedded := make([]embeddedDocument, 0, len(docs))
	for _, doc := range docs {
		text := strings.TrimSpace(doc.Title + "\n\n" + doc.Summary)
		if text == "" {
			continue
		}
		vector, err := embedder.Embed(ctx, text)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("index build: skipping document %s: %v", doc.ID, err)
			continue
		}
		embedded = append(embedded, embeddedDocument{doc: doc, embedding: vector})
	}

	return &Index{embedder: embedder, documents: embedded}, nil
}

func (ix *Index) Size() int {
	if ix == nil {
		return 0
	}
	return len(ix.documents)
}

// Retrieve ranks every document by cosine similarity against the query
// embedding and returns the top k. Satisfies rag.Retriever.
func (ix *Index) Retrieve(ctx context.Context, query string, topK int) ([]rag.RetrievedContext, error) {
	if ix == nil || len(ix.documents) == 0 {
		return nil, nil
	}
	if topK < 1 {
		return nil, fmt.Errorf("top_k must be >= 1, got %d", topK)
	}

	queryVec, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	contexts := make([]rag.RetrievedContext, 0, len(ix.documents))
	for _, item := range ix.documents {
		contexts = append(contexts, rag.RetrievedContext{
			SourceID:  item.doc.ID,
			Title:     item.doc.Title,
			URL:       item.doc.URL,
			Snippet:   item.doc.Summary,
			Score:     rag.CosineSimilarity(queryVec, item.embedding),
			Embedding: item.embedding,
		})
	}

	sort.SliceStable(contexts, func(i, j int) bool {
		return contexts[i].Score > contexts[j].Score
	})
	if len(contexts) > topK {
		contexts = contexts[:topK]
	}
	return contexts, nil
}
