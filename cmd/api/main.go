package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spin-glass/papers-rag-agent/internal/agent"
	"github.com/spin-glass/papers-rag-agent/internal/arxiv"
	"github.com/spin-glass/papers-rag-agent/internal/config"
	"github.com/spin-glass/papers-rag-agent/internal/db"
	"github.com/spin-glass/papers-rag-agent/internal/digest"
	"github.com/spin-glass/papers-rag-agent/internal/enhance"
	"github.com/spin-glass/papers-rag-agent/internal/httpapi"
	"github.com/spin-glass/papers-rag-agent/internal/index"
	"github.com/spin-glass/papers-rag-agent/internal/openai"
	"github.com/spin-glass/papers-rag-agent/internal/papers"
	"github.com/spin-glass/papers-rag-agent/internal/rag"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	database, err := db.Open(cfg)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer database.Close()

	if err := db.Migrate(context.Background(), database); err != nil {
		log.Fatalf("migrate db: %v", err)
	}

	store := papers.NewStore(database)
	searcher := arxiv.NewClient(cfg, nil)

	var (
		controller rag.Controller
		enricher   agent.Enricher
		embedder   index.Embedder
		holder     *index.Holder
	)
	if cfg.UseMockAgent {
		log.Printf("using canned agent, no model calls will be made")
		controller = rag.Fixed{}
	} else {
		client := openai.NewClient(cfg, nil)
		embedder = client
		holder = index.NewHolder()

		corrective, err := rag.NewCorrective(
			holder,
			rag.NewLLMGenerator(client),
			rag.NewCosineEvaluator(client),
			rag.NewHydeRewriter(client),
			rag.Config{
				TopK:             cfg.TopK,
				SupportThreshold: cfg.SupportThreshold,
				MaxAttempts:      cfg.MaxAttempts,
				RecursionLimit:   cfg.RecursionLimit,
			},
		)
		if err != nil {
			log.Fatalf("build controller: %v", err)
		}
		controller = corrective

		enhancer, err := enhance.NewEnhancer(client)
		if err != nil {
			log.Fatalf("build enhancer: %v", err)
		}
		enricher = enhancer

		if err := buildInitialIndex(context.Background(), store, client, holder); err != nil {
			log.Printf("initial index build skipped err=%v", err)
		}
	}

	chat, err := agent.New(controller, searcher, enricher, store, cfg.ArxivMaxResults)
	if err != nil {
		log.Fatalf("build agent: %v", err)
	}

	digests, err := digest.NewService(cfg, searcher)
	if err != nil {
		log.Fatalf("build digest service: %v", err)
	}

	h := httpapi.NewHandler(cfg, chat, controller, searcher, store, embedder, holder, digests)
	handler := httpapi.NewRouter(cfg, h)

	srv := &http.Server{
		Addr:         cfg.ListenAddress(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RAGTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("api listening on %s", cfg.ListenAddress())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

// buildInitialIndex restores the retrieval index from previously stored
// papers. An empty store is not an error; the index stays unavailable until
// the admin init endpoint fetches papers.
func buildInitialIndex(ctx context.Context, store papers.Store, embedder index.Embedder, holder *index.Holder) error {
	buildCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	stored, err := store.List(buildCtx)
	if err != nil {
		return err
	}
	if len(stored) == 0 {
		log.Printf("no stored papers, rag endpoints return 503 until the index is initialized")
		return nil
	}

	docs := make([]index.Document, 0, len(stored))
	for _, paper := range stored {
		docs = append(docs, index.Document{
			ID:      paper.ID,
			Title:   paper.Title,
			URL:     paper.URL,
			Summary: paper.Summary,
		})
	}

	built, err := index.Build(buildCtx, embedder, docs)
	if err != nil {
		return err
	}
	holder.Set(built)
	log.Printf("index restored papers=%d indexed=%d", len(stored), built.Size())
	return nil
}
