package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPort            = "8080"
	defaultFrontendOrigin  = "http://localhost:8501"
	defaultDatabaseURL     = "file:papers.db"
	defaultOpenAIBaseURL   = "https://api.openai.com/v1"
	defaultChatModel       = "gpt-4o-mini"
	defaultEmbedModel      = "text-embedding-3-small"
	defaultArxivBaseURL    = "https://export.arxiv.org/api/query"
	defaultArxivMaxResults = 10
	defaultTopK            = 5
	defaultThreshold       = 0.62
	defaultMaxAttempts     = 1
	defaultRecursionLimit  = 10
	defaultRAGTimeoutSecs  = 120
	defaultDigestMin       = 3
)

type Config struct {
	Port              string
	Environment       string
	FrontendOrigin    string
	AllowedOrigins    []string
	DatabaseURL       string
	DatabaseAuthToken string
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	ChatModel         string
	EmbedModel        string
	ArxivBaseURL      string
	ArxivMaxResults   int
	TopK              int
	SupportThreshold  float64
	MaxAttempts       int
	RecursionLimit    int
	RAGTimeout        time.Duration
	UseMockAgent      bool
	DigestInclude     []string
	DigestExclude     []string
	DigestMinResults  int
}

func (c Config) ListenAddress() string {
	return fmt.Sprintf(":%s", c.Port)
}

func Load() (Config, error) {
	cfg := Config{
		Port:              envOrDefault("PORT", defaultPort),
		Environment:       envOrDefault("APP_ENV", "development"),
		FrontendOrigin:    envOrDefault("FRONTEND_ORIGIN", defaultFrontendOrigin),
		DatabaseURL:       envOrDefault("DATABASE_URL", defaultDatabaseURL),
		DatabaseAuthToken: strings.TrimSpace(os.Getenv("DATABASE_AUTH_TOKEN")),
		OpenAIAPIKey:      strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL:     envOrDefault("OPENAI_BASE_URL", defaultOpenAIBaseURL),
		ChatModel:         envOrDefault("OPENAI_MODEL", defaultChatModel),
		EmbedModel:        envOrDefault("OPENAI_EMBED_MODEL", defaultEmbedModel),
		ArxivBaseURL:      envOrDefault("ARXIV_BASE_URL", defaultArxivBaseURL),
		ArxivMaxResults:   intOrDefault("ARXIV_MAX_RESULTS", defaultArxivMaxResults),
		TopK:              intOrDefault("TOP_K", defaultTopK),
		SupportThreshold:  floatOrDefault("SUPPORT_THRESHOLD", defaultThreshold),
		MaxAttempts:       intOrDefault("MAX_ATTEMPTS", defaultMaxAttempts),
		RecursionLimit:    intOrDefault("GRAPH_RECURSION_LIMIT", defaultRecursionLimit),
		UseMockAgent:      boolOrDefault("USE_MOCK_AGENT", false),
		DigestInclude:     parseList(os.Getenv("PREFER_KEYWORDS_INCLUDE")),
		DigestExclude:     parseList(os.Getenv("PREFER_KEYWORDS_EXCLUDE")),
		DigestMinResults:  intOrDefault("DIGEST_MIN_RESULTS", defaultDigestMin),
	}

	ragTimeoutSecs := intOrDefault("RAG_TIMEOUT_SECONDS", defaultRAGTimeoutSecs)
	if ragTimeoutSecs <= 0 {
		return Config{}, errors.New("RAG_TIMEOUT_SECONDS must be > 0")
	}
	cfg.RAGTimeout = time.Duration(ragTimeoutSecs) * time.Second

	origins := parseList(envOrDefault("CORS_ALLOWED_ORIGINS", cfg.FrontendOrigin+",http://localhost:5173"))
	if len(origins) == 0 {
		return Config{}, errors.New("CORS_ALLOWED_ORIGINS must include at least one origin")
	}
	cfg.AllowedOrigins = origins

	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return Config{}, errors.New("DATABASE_URL is required")
	}
	if strings.HasPrefix(cfg.DatabaseURL, "libsql://") && cfg.DatabaseAuthToken == "" {
		return Config{}, errors.New("DATABASE_AUTH_TOKEN is required for libsql:// URLs")
	}

	if cfg.TopK < 1 {
		return Config{}, fmt.Errorf("TOP_K must be >= 1, got %d", cfg.TopK)
	}
	if cfg.SupportThreshold < 0 || cfg.SupportThreshold > 1 {
		return Config{}, fmt.Errorf("SUPPORT_THRESHOLD must be within [0,1], got %g", cfg.SupportThreshold)
	}
	if cfg.MaxAttempts < 0 {
		return Config{}, fmt.Errorf("MAX_ATTEMPTS must be >= 0, got %d", cfg.MaxAttempts)
	}
	if cfg.RecursionLimit < 1 {
		return Config{}, fmt.Errorf("GRAPH_RECURSION_LIMIT must be >= 1, got %d", cfg.RecursionLimit)
	}
	if cfg.ArxivMaxResults < 1 {
		return Config{}, fmt.Errorf("ARXIV_MAX_RESULTS must be >= 1, got %d", cfg.ArxivMaxResults)
	}
	if cfg.DigestMinResults < 1 || cfg.DigestMinResults > 10 {
		return Config{}, fmt.Errorf("DIGEST_MIN_RESULTS must be within [1,10], got %d", cfg.DigestMinResults)
	}
	if !cfg.UseMockAgent && cfg.OpenAIAPIKey == "" {
		return Config{}, errors.New("OPENAI_API_KEY is required unless USE_MOCK_AGENT=true")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func boolOrDefault(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func intOrDefault(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func floatOrDefault(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseList(raw string) []string {
	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
