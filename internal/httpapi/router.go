package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/spin-glass/papers-rag-agent/internal/config"
)

func NewRouter(cfg config.Config, h Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.Healthz)

	r.Route("/v1", func(v1 chi.Router) {
		v1.Route("/rag", func(ragR chi.Router) {
			ragR.Post("/ask", h.RagAsk)
			ragR.Post("/stream", h.RagStream)
		})
		v1.Post("/chat/messages", h.ChatMessages)
		v1.Post("/arxiv/search", h.ArxivSearch)
		v1.Get("/digest", h.Digest)
		v1.Post("/admin/index/init", h.AdminIndexInit)
	})

	return r
}
