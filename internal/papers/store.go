// Package papers persists arXiv paper metadata so the retrieval index can be
// rebuilt without refetching the feed.
package papers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spin-glass/papers-rag-agent/internal/arxiv"
)

var ErrNotFound = errors.New("paper not found")

type Paper struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	URL       string    `json:"url,omitempty"`
	PDFURL    string    `json:"pdfUrl,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	Authors   []string  `json:"authors,omitempty"`
	Published time.Time `json:"publishedAt,omitzero"`
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) Store {
	return Store{db: db}
}

// Upsert writes one paper, keyed by its arXiv id. Papers without an id get a
// generated one so hand-seeded entries can still be stored.
func (s Store) Upsert(ctx context.Context, paper Paper) (Paper, error) {
	if strings.TrimSpace(paper.Title) == "" {
		return Paper{}, fmt.Errorf("empty paper title")
	}
	if strings.TrimSpace(paper.ID) == "" {
		paper.ID = uuid.NewString()
	}

	query := `
INSERT INTO papers (id, title, url, pdf_url, summary, authors, published_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  title = excluded.title,
  url = excluded.url,
  pdf_url = excluded.pdf_url,
  summary = excluded.summary,
  authors = excluded.authors,
  published_at = excluded.published_at,
  updated_at = CURRENT_TIMESTAMP;
`

	published := ""
	if !paper.Published.IsZero() {
		published = paper.Published.UTC().Format(time.RFC3339)
	}

	if _, err := s.db.ExecContext(ctx, query,
		paper.ID,
		strings.TrimSpace(paper.Title),
		strings.TrimSpace(paper.URL),
		strings.TrimSpace(paper.PDFURL),
		strings.TrimSpace(paper.Summary),
		joinAuthors(paper.Authors),
		published,
	); err != nil {
		return Paper{}, fmt.Errorf("upsert paper: %w", err)
	}

	return paper, nil
}

// UpsertSearchResults stores every paper of an arXiv search and reports how
// many rows were written.
func (s Store) UpsertSearchResults(ctx context.Context, results []arxiv.Paper) (int, error) {
	stored := 0
	for _, result := range results {
		paper := Paper{
			ID:        result.ID,
			Title:     result.Title,
			URL:       result.Link,
			PDFURL:    result.PDF,
			Summary:   result.Summary,
			Authors:   result.Authors,
			Published: result.Published,
		}
		if _, err := s.Upsert(ctx, paper); err != nil {
			return stored, err
		}
		stored++
	}
	return stored, nil
}

func (s Store) Get(ctx context.Context, id string) (Paper, error) {
	query := `
SELECT id, title, url, pdf_url, summary, authors, published_at
FROM papers
WHERE id = ?
LIMIT 1;
`

	row := s.db.QueryRowContext(ctx, query, id)
	paper, err := scanPaper(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Paper{}, ErrNotFound
	}
	if err != nil {
		return Paper{}, fmt.Errorf("get paper: %w", err)
	}
	return paper, nil
}

// List returns every stored paper, newest first.
func (s Store) List(ctx context.Context) ([]Paper, error) {
	query := `
SELECT id, title, url, pdf_url, summary, authors, published_at
FROM papers
ORDER BY published_at DESC, id ASC;
`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list papers: %w", err)
	}
	defer rows.Close()

	var out []Paper
	for rows.Next() {
		paper, err := scanPaper(rows)
		if err != nil {
			return nil, fmt.Errorf("scan paper: %w", err)
		}
		out = append(out, paper)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate papers: %w", err)
	}
	return out, nil
}

func (s Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM papers;`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count papers: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPaper(row rowScanner) (Paper, error) {
	var (
		paper     Paper
		authors   string
		published string
	)
	if err := row.Scan(&paper.ID, &paper.Title, &paper.URL, &paper.PDFURL, &paper.Summary, &authors, &published); err != nil {
		return Paper{}, err
	}
	paper.Authors = splitAuthors(authors)
	if published != "" {
		if parsed, err := time.Parse(time.RFC3339, published); err == nil {
			paper.Published = parsed
		}
	}
	return paper, nil
}

func joinAuthors(authors []string) string {
	cleaned := make([]string, 0, len(authors))
	for _, author := range authors {
		if trimmed := strings.TrimSpace(author); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return strings.Join(cleaned, "; ")
}

func splitAuthors(joined string) []string {
	if strings.TrimSpace(joined) == "" {
		return nil
	}
	parts := strings.Split(joined, "; ")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
