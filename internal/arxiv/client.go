// Package arxiv queries the arXiv Atom API. arXiv asks clients to keep about
// three seconds between requests, so every search passes through a shared
// rate limiter.
package arxiv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/time/rate"

	"github.com/spin-glass/papers-rag-agent/internal/config"
)

const (
	maxErrorBodyBytes = 8 * 1024
	userAgent         = "papers-rag-agent/1.0 (https://github.com/spin-glass/papers-rag-agent)"
)

var versionSuffix = regexp.MustCompile(`v\d+$`)

type APIError struct {
	StatusCode int
	Body       string
}

func (e APIError) Error() string {
	return fmt.Sprintf("arxiv returned %d: %s", e.StatusCode, e.Body)
}

type Paper struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Link       string    `json:"link"`
	PDF        string    `json:"pdf,omitempty"`
	Summary    string    `json:"summary,omitempty"`
	Authors    []string  `json:"authors,omitempty"`
	Categories []string  `json:"categories,omitempty"`
	Published  time.Time `json:"published,omitzero"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	parser     *gofeed.Parser
	limiter    *rate.Limiter
}

func NewClient(cfg config.Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.ArxivBaseURL), "/"),
		httpClient: httpClient,
		parser:     gofeed.NewParser(),
		limiter:    rate.NewLimiter(rate.Every(3*time.Second), 1),
	}
}

// Search queries arXiv for the newest submissions matching the query.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]Paper, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, nil
	}
	return c.search(ctx, "all:"+trimmed, maxResults)
}

// SearchCategory queries one arXiv category for papers submitted within
// [since, until]. The range uses arXiv's submittedDate day wildcards.
func (c *Client) SearchCategory(ctx context.Context, category string, since, until time.Time, maxResults int) ([]Paper, error) {
	trimmed := strings.TrimSpace(category)
	if trimmed == "" {
		return nil, nil
	}
	query := fmt.Sprintf("cat:%s AND submittedDate:[%s* TO %s*]",
		trimmed, since.UTC().Format("20060102"), until.UTC().Format("20060102"))
	return c.search(ctx, query, maxResults)
}

func (c *Client) search(ctx context.Context, query string, maxResults int) ([]Paper, error) {
	if maxResults < 1 {
		maxResults = 5
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("search_query", query)
	params.Set("sortBy", "submittedDate")
	params.Set("sortOrder", "descending")
	params.Set("max_results", fmt.Sprintf("%d", maxResults))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build arxiv request: %w", err)
	}
	httpReq.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request arxiv: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	feed, err := c.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse arxiv feed: %w", err)
	}
	return papersFromFeed(feed, maxResults), nil
}

func papersFromFeed(feed *gofeed.Feed, limit int) []Paper {
	if feed == nil {
		return nil
	}

	papers := make([]Paper, 0, len(feed.Items))
	for _, item := range feed.Items {
		paper := Paper{
			ID:      idFromEntry(item),
			Title:   strings.Join(strings.Fields(item.Title), " "),
			Link:    strings.TrimSpace(item.Link),
			PDF:     pdfLink(item.Links),
			Summary: strings.TrimSpace(item.Description),
		}
		if paper.Summary == "" {
			paper.Summary = strings.TrimSpace(item.Content)
		}
		for _, author := range item.Authors {
			if author != nil && strings.TrimSpace(author.Name) != "" {
				paper.Authors = append(paper.Authors, strings.TrimSpace(author.Name))
			}
		}
		for _, category := range item.Categories {
			if trimmed := strings.TrimSpace(category); trimmed != "" {
				paper.Categories = append(paper.Categories, trimmed)
			}
		}
		if item.PublishedParsed != nil {
			paper.Published = *item.PublishedParsed
		}
		if paper.ID == "" && paper.Link == "" {
			continue
		}
		papers = append(papers, paper)
		if len(papers) >= limit {
			break
		}
	}
	return papers
}

// idFromEntry reduces an Atom id like http://arxiv.org/abs/2301.00001v2 to
// the bare arXiv id without the version suffix.
func idFromEntry(item *gofeed.Item) string {
	raw := strings.TrimSpace(item.GUID)
	if raw == "" {
		raw = strings.TrimSpace(item.Link)
	}
	if raw == "" {
		return ""
	}
	segments := strings.Split(raw, "/")
	core := segments[len(segments)-1]
	return versionSuffix.ReplaceAllString(core, "")
}

func pdfLink(links []string) string {
	for _, link := range links {
		if strings.Contains(link, "/pdf/") {
			return link
		}
	}
	return ""
}

// IsRateLimited reports whether the error is arXiv telling us to slow down.
func IsRateLimited(err error) bool {
	var apiErr APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}
