package sources

import (
	"context"
	"net/http"
	"time"

	"github.com/BaSui01/researchflow/types"
)

// Source fetches research context items for a query. Implementations are
// independent: the gather step runs all registered sources concurrently and
// tolerates individual failures.
type Source interface {
	// Name returns the source's display name, used in source-result events.
	Name() string

	// Fetch returns context items relevant to query. An empty slice with a
	// nil error means the source found nothing (or is not configured).
	Fetch(ctx context.Context, query string) ([]types.ContextItem, error)
}

// Config holds the shared knobs for the built-in sources.
type Config struct {
	// ArxivBaseURL overrides the ArXiv API root. Empty uses the public API.
	ArxivBaseURL string `json:"arxiv_base_url" yaml:"arxiv_base_url"`

	// GitHubBaseURL overrides the GitHub API root. Empty uses api.github.com.
	GitHubBaseURL string `json:"github_base_url" yaml:"github_base_url"`

	// GitHubToken authorizes repository search. Empty disables the source.
	GitHubToken string `json:"github_token" yaml:"github_token"`

	// WebSearchBaseURL overrides the search API root.
	WebSearchBaseURL string `json:"websearch_base_url" yaml:"websearch_base_url"`

	// WebSearchAPIKey authorizes web search. Empty disables the source.
	WebSearchAPIKey string `json:"websearch_api_key" yaml:"websearch_api_key"`

	// VectorDBBaseURL points at the vector index query service. Empty falls
	// back to a built-in document set.
	VectorDBBaseURL string `json:"vectordb_base_url" yaml:"vectordb_base_url"`

	// VectorDBAPIKey authorizes vector index queries.
	VectorDBAPIKey string `json:"vectordb_api_key" yaml:"vectordb_api_key"`

	// MaxResults caps items returned per source. Defaults to 5.
	MaxResults int `json:"max_results" yaml:"max_results"`

	// Timeout bounds each source HTTP request. Defaults to 15s.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// DefaultConfig returns the source defaults.
func DefaultConfig() Config {
	return Config{
		MaxResults: 5,
		Timeout:    15 * time.Second,
	}
}

func (c *Config) normalize() {
	if c.MaxResults <= 0 {
		c.MaxResults = 5
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
}

// All returns the full built-in source set in display order.
func All(cfg Config) []Source {
	cfg.normalize()
	client := &http.Client{Timeout: cfg.Timeout}
	return []Source{
		NewArxiv(cfg, client),
		NewGitHub(cfg, client),
		NewVectorDB(cfg, client),
		NewWebSearch(cfg, client),
	}
}
