package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/abhisek/answerbot/internal/question"
)

const (
	DefaultBaseURL    = "https://api.exa.ai"
	DefaultNumResults = 3
	DefaultTimeout    = 30 * time.Second

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Config holds the Exa client settings.
type Config struct {
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url"`
	NumResults int           `yaml:"num_results"`
	Timeout    time.Duration `yaml:"timeout"`
	IncludeURL bool          `yaml:"include_url"`
}

// Enabled reports whether search is configured.
func (c Config) Enabled() bool {
	return c.APIKey != ""
}

// ExaClient implements Searcher against the Exa search API.
type ExaClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewExaClient creates a client. Zero fields in cfg take the defaults.
func NewExaClient(cfg Config) *ExaClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.NumResults <= 0 {
		cfg.NumResults = DefaultNumResults
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &ExaClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type exaRequest struct {
	Query         string      `json:"query"`
	UseAutoprompt bool        `json:"useAutoprompt"`
	NumResults    int         `json:"numResults"`
	Contents      exaContents `json:"contents"`
}

type exaContents struct {
	Text       bool `json:"text"`
	Highlights bool `json:"highlights"`
}

type exaResponse struct {
	Results []exaResult `json:"results"`
}

type exaResult struct {
	Title      string   `json:"title"`
	URL        string   `json:"url"`
	Highlights []string `json:"highlights"`
}

// Search queries Exa and formats each result as one snippet.
func (c *ExaClient) Search(ctx context.Context, q question.Question) ([]string, error) {
	body, err := json.Marshal(exaRequest{
		Query:         BuildQuery(q),
		UseAutoprompt: true,
		NumResults:    c.cfg.NumResults,
		Contents:      exaContents{Text: false, Highlights: true},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/search"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("search: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out exaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	results := out.Results
	if len(results) > c.cfg.NumResults {
		results = results[:c.cfg.NumResults]
	}
	snippets := make([]string, 0, len(results))
	for i, r := range results {
		snippets = append(snippets, formatResult(i+1, r, c.cfg.IncludeURL))
	}
	return snippets, nil
}

func formatResult(n int, r exaResult, includeURL bool) string {
	title := r.Title
	if title == "" {
		title = "无标题"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "【结果 %d】\n标题: %s\n", n, title)
	if includeURL && r.URL != "" {
		fmt.Fprintf(&b, "来源: %s\n", r.URL)
	}
	if len(r.Highlights) == 0 {
		b.WriteString("相关内容: 无高亮内容")
		return b.String()
	}
	b.WriteString("相关内容:")
	for _, h := range r.Highlights {
		fmt.Fprintf(&b, "\n  - %s", h)
	}
	return b.String()
}
