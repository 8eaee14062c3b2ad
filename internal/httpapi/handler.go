package httpapi

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spin-glass/papers-rag-agent/internal/agent"
	"github.com/spin-glass/papers-rag-agent/internal/arxiv"
	"github.com/spin-glass/papers-rag-agent/internal/config"
	"github.com/spin-glass/papers-rag-agent/internal/digest"
	"github.com/spin-glass/papers-rag-agent/internal/index"
	"github.com/spin-glass/papers-rag-agent/internal/papers"
	"github.com/spin-glass/papers-rag-agent/internal/rag"
)

type PaperStore interface {
	UpsertSearchResults(ctx context.Context, results []arxiv.Paper) (int, error)
	List(ctx context.Context) ([]papers.Paper, error)
	Count(ctx context.Context) (int, error)
}

type DigestBuilder interface {
	Build(ctx context.Context, category string, days, limit int) ([]digest.Item, error)
}

type Handler struct {
	cfg        config.Config
	chat       *agent.Agent
	controller rag.Controller
	searcher   agent.Searcher
	store      PaperStore
	embedder   index.Embedder
	holder     *index.Holder
	digests    DigestBuilder
}

func NewHandler(cfg config.Config, chat *agent.Agent, controller rag.Controller, searcher agent.Searcher, store PaperStore, embedder index.Embedder, holder *index.Holder, digests DigestBuilder) Handler {
	return Handler{
		cfg:        cfg,
		chat:       chat,
		controller: controller,
		searcher:   searcher,
		store:      store,
		embedder:   embedder,
		holder:     holder,
		digests:    digests,
	}
}

// ragReady reports whether questions can be answered. A nil holder means the
// canned development controller is in use, which needs no index.
func (h Handler) ragReady() bool {
	return h.holder == nil || h.holder.IsReady()
}

func (h Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	count := 0
	if h.store != nil {
		stored, err := h.store.Count(r.Context())
		if err != nil {
			log.Printf("healthz count failed err=%v", err)
		} else {
			count = stored
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"ragReady": h.ragReady(),
		"papers":   count,
	})
}

type askRequest struct {
	Question string `json:"question"`
}

func (h Handler) RagAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidJSON, "request body must be valid JSON")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "question must not be empty")
		return
	}
	if !h.ragReady() {
		writeError(w, http.StatusServiceUnavailable, codeRagNotReady, "the retrieval index is not built yet")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.RAGTimeout)
	defer cancel()

	startedAt := time.Now()
	result, err := h.controller.Run(ctx, req.Question)
	if err != nil {
		if errors.Is(err, rag.ErrEmptyQuestion) {
			writeError(w, http.StatusBadRequest, codeInvalidRequest, "question must not be empty")
			return
		}
		log.Printf("rag ask failed err=%v", err)
		writeError(w, http.StatusInternalServerError, codeRagFailed, "answer generation failed")
		return
	}

	log.Printf("rag ask done status=%s attempts=%d forced=%t elapsed=%s",
		result.Status, result.AttemptsUsed, result.ForcedStop, time.Since(startedAt).Round(time.Millisecond))
	writeJSON(w, http.StatusOK, result)
}

func (h Handler) RagStream(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidJSON, "request body must be valid JSON")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "question must not be empty")
		return
	}
	if !h.ragReady() {
		writeError(w, http.StatusServiceUnavailable, codeRagNotReady, "the retrieval index is not built yet")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, codeStreamingUnsupported, "response writer does not support streaming")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.RAGTimeout)
	defer cancel()

	setSSEHeaders(w)

	result, err := h.controller.RunStream(ctx, req.Question, func(event rag.StepEvent) {
		_ = writeSSEEvent(w, map[string]any{
			"type":         "step",
			"state":        event.State,
			"attemptIndex": event.AttemptIndex,
			"support":      event.Support,
		})
		flusher.Flush()
	})
	if err != nil {
		_ = writeSSEEvent(w, map[string]any{"type": "error", "message": "answer generation failed"})
		writeSSEDone(w)
		flusher.Flush()
		return
	}

	_ = writeSSEEvent(w, map[string]any{"type": "result", "result": result})
	writeSSEDone(w)
	flusher.Flush()
}

type chatMessageRequest struct {
	Content string `json:"content"`
}

func (h Handler) ChatMessages(w http.ResponseWriter, r *http.Request) {
	var req chatMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidJSON, "request body must be valid JSON")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "content must not be empty")
		return
	}
	if !h.ragReady() {
		writeError(w, http.StatusServiceUnavailable, codeRagNotReady, "the retrieval index is not built yet")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, codeStreamingUnsupported, "response writer does not support streaming")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.RAGTimeout)
	defer cancel()

	setSSEHeaders(w)

	reply, err := h.chat.HandleMessage(ctx, req.Content, func(event rag.StepEvent) {
		_ = writeSSEEvent(w, map[string]any{
			"type":         "step",
			"state":        event.State,
			"attemptIndex": event.AttemptIndex,
			"support":      event.Support,
		})
		flusher.Flush()
	})
	if err != nil {
		log.Printf("chat message failed err=%v", err)
		_ = writeSSEEvent(w, map[string]any{"type": "error", "message": "message handling failed"})
		writeSSEDone(w)
		flusher.Flush()
		return
	}

	_ = writeSSEEvent(w, map[string]any{"type": "reply", "reply": reply})
	writeSSEDone(w)
	flusher.Flush()
}

type arxivSearchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"maxResults"`
}

func (h Handler) ArxivSearch(w http.ResponseWriter, r *http.Request) {
	var req arxivSearchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidJSON, "request body must be valid JSON")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "query must not be empty")
		return
	}
	maxResults := req.MaxResults
	if maxResults < 1 || maxResults > h.cfg.ArxivMaxResults {
		maxResults = h.cfg.ArxivMaxResults
	}

	results, err := h.searcher.Search(r.Context(), req.Query, maxResults)
	if err != nil {
		if arxiv.IsRateLimited(err) {
			writeError(w, http.StatusTooManyRequests, codeRateLimited, "arxiv asked us to slow down")
			return
		}
		log.Printf("arxiv search failed err=%v", err)
		writeError(w, http.StatusBadGateway, codeArxivFailed, "arxiv search failed")
		return
	}

	if h.store != nil && len(results) > 0 {
		if _, err := h.store.UpsertSearchResults(r.Context(), results); err != nil {
			log.Printf("persist search results failed err=%v", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"count": len(results), "items": results})
}

// Digest serves a filtered reading list for one arXiv category. Query
// parameters: cat (default cs.LG), days (1..7, default 2), limit (1..50,
// default 10).
func (h Handler) Digest(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	days, err := queryIntOrDefault(query.Get("days"), digest.DefaultDays)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "days must be an integer")
		return
	}
	limit, err := queryIntOrDefault(query.Get("limit"), digest.DefaultLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "limit must be an integer")
		return
	}
	if days < 1 || days > digest.MaxDays {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "days must be within [1,7]")
		return
	}
	if limit < 1 || limit > digest.MaxLimit {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "limit must be within [1,50]")
		return
	}

	items, err := h.digests.Build(r.Context(), query.Get("cat"), days, limit)
	if err != nil {
		if arxiv.IsRateLimited(err) {
			writeError(w, http.StatusTooManyRequests, codeRateLimited, "arxiv asked us to slow down")
			return
		}
		log.Printf("digest build failed err=%v", err)
		writeError(w, http.StatusBadGateway, codeDigestFailed, "building the digest failed")
		return
	}
	if items == nil {
		items = []digest.Item{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"count": len(items), "items": items})
}

func queryIntOrDefault(raw string, fallback int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	return strconv.Atoi(strings.TrimSpace(raw))
}

type indexInitRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"maxResults"`
}

// AdminIndexInit optionally fetches fresh papers, then rebuilds the retrieval
// index from everything in the store and swaps it in.
func (h Handler) AdminIndexInit(w http.ResponseWriter, r *http.Request) {
	if h.holder == nil || h.embedder == nil {
		writeError(w, http.StatusConflict, codeMockAgent, "index management is disabled for the canned agent")
		return
	}

	var req indexInitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidJSON, "request body must be valid JSON")
		return
	}

	fetched := 0
	if query := strings.TrimSpace(req.Query); query != "" {
		maxResults := req.MaxResults
		if maxResults < 1 || maxResults > h.cfg.ArxivMaxResults {
			maxResults = h.cfg.ArxivMaxResults
		}
		results, err := h.searcher.Search(r.Context(), query, maxResults)
		if err != nil {
			log.Printf("index init search failed err=%v", err)
			writeError(w, http.StatusBadGateway, codeArxivFailed, "arxiv search failed")
			return
		}
		stored, err := h.store.UpsertSearchResults(r.Context(), results)
		if err != nil {
			log.Printf("index init store failed err=%v", err)
			writeError(w, http.StatusInternalServerError, codeStoreFailed, "persisting papers failed")
			return
		}
		fetched = stored
	}

	stored, err := h.store.List(r.Context())
	if err != nil {
		log.Printf("index init list failed err=%v", err)
		writeError(w, http.StatusInternalServerError, codeStoreFailed, "listing papers failed")
		return
	}
	if len(stored) == 0 {
		writeError(w, http.StatusConflict, codeNoPapers, "no papers stored; pass a query to fetch some")
		return
	}

	built, err := index.Build(r.Context(), h.embedder, documentsFromPapers(stored))
	if err != nil {
		log.Printf("index build failed err=%v", err)
		writeError(w, http.StatusInternalServerError, codeIndexFailed, "building the index failed")
		return
	}
	h.holder.Set(built)

	log.Printf("index rebuilt papers=%d indexed=%d fetched=%d", len(stored), built.Size(), fetched)
	writeJSON(w, http.StatusOK, map[string]any{
		"papers":  len(stored),
		"indexed": built.Size(),
		"fetched": fetched,
	})
}

func documentsFromPapers(stored []papers.Paper) []index.Document {
	docs := make([]index.Document, 0, len(stored))
	for _, paper := range stored {
		docs = append(docs, index.Document{
			ID:      paper.ID,
			Title:   paper.Title,
			URL:     paper.URL,
			Summary: paper.Summary,
		})
	}
	return docs
}
