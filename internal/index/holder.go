package index

import (
	"context"
	"errors"
	"sync"

	"github.com/spin-glass/papers-rag-agent/internal/rag"
)

var ErrNotReady = errors.New("rag index is not ready")

// Holder is the swap point between index rebuilds and in-flight queries. A
// rebuild installs a whole new Index; readers never see a partial one.
type Holder struct {
	mu    sync.RWMutex
	index *Index
}

func NewHolder() *Holder {
	return &Holder{}
}

func (h *Holder) Set(ix *Index) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.index = ix
}

func (h *Holder) IsReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.index != nil && len(h.index.documents) > 0
}

func (h *Holder) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.index.Size()
}

// Retrieve delegates to the current index. Satisfies rag.Retriever; a
// not-ready holder reports a collaborator error, which the controller
// records as a zero-support attempt.
func (h *Holder) Retrieve(ctx context.Context, query string, topK int) ([]rag.RetrievedContext, error) {
	h.mu.RLock()
	current := h.index
	h.mu.RUnlock()

	if current == nil || len(current.documents) == 0 {
		return nil, ErrNotReady
	}
	return current.Retrieve(ctx, query, topK)
}
