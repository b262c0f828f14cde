package sources

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/BaSui01/researchflow/types"
)

const defaultArxivBaseURL = "http://export.arxiv.org"

// Arxiv searches the ArXiv paper index via its public Atom API.
type Arxiv struct {
	baseURL    string
	maxResults int
	client     *http.Client
}

// NewArxiv creates the ArXiv source.
func NewArxiv(cfg Config, client *http.Client) *Arxiv {
	base := cfg.ArxivBaseURL
	if base == "" {
		base = defaultArxivBaseURL
	}
	return &Arxiv{
		baseURL:    strings.TrimRight(base, "/"),
		maxResults: cfg.MaxResults,
		client:     client,
	}
}

func (a *Arxiv) Name() string { return "ArXiv" }

// Atom feed structs for the ArXiv query API.

type arxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	Title   string      `xml:"title"`
	Summary string      `xml:"summary"`
	Links   []arxivLink `xml:"link"`
}

type arxivLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

func (e arxivEntry) url() string {
	for _, l := range e.Links {
		if l.Rel == "alternate" || l.Type == "text/html" {
			return l.Href
		}
	}
	if len(e.Links) > 0 {
		return e.Links[0].Href
	}
	return ""
}

// Fetch queries the ArXiv search API and maps Atom entries to context items.
func (a *Arxiv) Fetch(ctx context.Context, query string) ([]types.ContextItem, error) {
	endpoint := fmt.Sprintf("%s/api/query?search_query=%s&max_results=%d",
		a.baseURL, url.QueryEscape("all:"+query), a.maxResults)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, types.Retryable(types.ErrSourceUnavailable, "arxiv request failed").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.Retryable(types.ErrSourceUnavailable,
			fmt.Sprintf("arxiv returned status %d", resp.StatusCode))
	}

	var feed arxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, types.Retryable(types.ErrSourceUnavailable, "failed to decode arxiv feed").WithCause(err)
	}

	items := make([]types.ContextItem, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		title := strings.TrimSpace(entry.Title)
		if title == "" {
			title = "Untitled"
		}
		items = append(items, types.ContextItem{
			Source: "arxiv",
			Text:   strings.TrimSpace(entry.Summary),
			Title:  title,
			URL:    entry.url(),
		})
	}
	return items, nil
}
