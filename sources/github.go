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

const defaultGitHubBaseURL = "https://api.github.com"

// GitHub searches repositories via the GitHub REST search API. Without a
// token the source is a no-op: it returns no items rather than failing,
// matching the other sources' degrade-to-empty behavior.
type GitHub struct {
	baseURL    string
	token      string
	maxResults int
	client     *http.Client
}

// NewGitHub creates the GitHub source.
func NewGitHub(cfg Config, client *http.Client) *GitHub {
	base := cfg.GitHubBaseURL
	if base == "" {
		base = defaultGitHubBaseURL
	}
	return &GitHub{
		baseURL:    strings.TrimRight(base, "/"),
		token:      cfg.GitHubToken,
		maxResults: cfg.MaxResults,
		client:     client,
	}
}

func (g *GitHub) Name() string { return "GitHub" }

type githubSearchResponse struct {
	Items []struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		HTMLURL     string `json:"html_url"`
	} `json:"items"`
}

// Fetch searches repositories by stars, mapping each hit to a context item.
func (g *GitHub) Fetch(ctx context.Context, query string) ([]types.ContextItem, error) {
	if g.token == "" {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/search/repositories?q=%s&per_page=%d&sort=stars",
		g.baseURL, url.QueryEscape(query), g.maxResults)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, types.Retryable(types.ErrSourceUnavailable, "github request failed").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.Retryable(types.ErrSourceUnavailable,
			fmt.Sprintf("github returned status %d", resp.StatusCode))
	}

	var data githubSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, types.Retryable(types.ErrSourceUnavailable, "failed to decode github response").WithCause(err)
	}

	items := make([]types.ContextItem, 0, len(data.Items))
	for _, repo := range data.Items {
		text := repo.Description
		if text == "" {
			text = repo.Name
		}
		title := repo.Name
		if title == "" {
			title = "Untitled"
		}
		items = append(items, types.ContextItem{
			Source: "github",
			Text:   text,
			Title:  title,
			URL:    repo.HTMLURL,
		})
	}
	return items, nil
}
