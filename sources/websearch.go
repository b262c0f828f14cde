package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/BaSui01/researchflow/types"
)

const defaultWebSearchBaseURL = "https://serpapi.com"

// WebSearch queries a SerpAPI-compatible web search endpoint. Without an
// API key the source returns no items.
type WebSearch struct {
	baseURL    string
	apiKey     string
	maxResults int
	client     *http.Client
}

// NewWebSearch creates the web search source.
func NewWebSearch(cfg Config, client *http.Client) *WebSearch {
	base := cfg.WebSearchBaseURL
	if base == "" {
		base = defaultWebSearchBaseURL
	}
	return &WebSearch{
		baseURL:    strings.TrimRight(base, "/"),
		apiKey:     cfg.WebSearchAPIKey,
		maxResults: cfg.MaxResults,
		client:     client,
	}
}

func (w *WebSearch) Name() string { return "WebSearch" }

type webSearchResponse struct {
	OrganicResults []struct {
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
		Link    string `json:"link"`
	} `json:"organic_results"`
}

// Fetch runs a web search and maps organic results to context items.
func (w *WebSearch) Fetch(ctx context.Context, query string) ([]types.ContextItem, error) {
	if w.apiKey == "" {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/search?q=%s&api_key=%s&num=%d",
		w.baseURL, url.QueryEscape(query), url.QueryEscape(w.apiKey), w.maxResults)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, types.Retryable(types.ErrSourceUnavailable, "web search request failed").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.Retryable(types.ErrSourceUnavailable,
			fmt.Sprintf("web search returned status %d", resp.StatusCode))
	}

	var data webSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, types.Retryable(types.ErrSourceUnavailable, "failed to decode web search response").WithCause(err)
	}

	items := make([]types.ContextItem, 0, len(data.OrganicResults))
	for _, result := range data.OrganicResults {
		title := result.Title
		if title == "" {
			title = "Untitled"
		}
		items = append(items, types.ContextItem{
			Source: "websearch",
			Text:   result.Snippet,
			Title:  title,
			URL:    result.Link,
		})
	}
	return items, nil
}
