package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/BaSui01/researchflow/types"
)

// builtinDocuments back the vector source when no index is configured, so
// local development still exercises the full gather pipeline.
var builtinDocuments = []string{
	"Machine learning is a subset of artificial intelligence that focuses on learning from data. It enables systems to improve from experience without being explicitly programmed.",
	"Transformer architectures revolutionized natural language processing by introducing self-attention mechanisms. They enable models to process entire sequences in parallel rather than sequentially.",
	"Retrieval-augmented generation (RAG) combines information retrieval with language generation. It allows models to access external knowledge bases to produce more accurate and up-to-date responses.",
}

// VectorDB queries an external vector index over HTTP. Without a base URL
// it serves a small built-in document set instead.
type VectorDB struct {
	baseURL    string
	apiKey     string
	maxResults int
	client     *http.Client
}

// NewVectorDB creates the vector index source.
func NewVectorDB(cfg Config, client *http.Client) *VectorDB {
	return &VectorDB{
		baseURL:    strings.TrimRight(cfg.VectorDBBaseURL, "/"),
		apiKey:     cfg.VectorDBAPIKey,
		maxResults: cfg.MaxResults,
		client:     client,
	}
}

func (v *VectorDB) Name() string { return "VectorDB" }

type vectorQueryRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type vectorQueryResponse struct {
	Matches []struct {
		Text  string  `json:"text"`
		Title string  `json:"title"`
		URL   string  `json:"url"`
		Score float64 `json:"score"`
	} `json:"matches"`
}

// Fetch runs a similarity query against the index, or serves the built-in
// documents when no index is configured.
func (v *VectorDB) Fetch(ctx context.Context, query string) ([]types.ContextItem, error) {
	if v.baseURL == "" {
		return v.builtin(), nil
	}

	payload, err := json.Marshal(vectorQueryRequest{Query: query, TopK: v.maxResults})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/query", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if v.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+v.apiKey)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		// The index being down should not sink the whole gather step.
		return v.builtin(), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.Retryable(types.ErrSourceUnavailable,
			fmt.Sprintf("vector index returned status %d", resp.StatusCode))
	}

	var data vectorQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, types.Retryable(types.ErrSourceUnavailable, "failed to decode vector index response").WithCause(err)
	}

	items := make([]types.ContextItem, 0, len(data.Matches))
	for _, match := range data.Matches {
		title := match.Title
		if title == "" {
			title = "Vector DB Result"
		}
		items = append(items, types.ContextItem{
			Source:    "vectordb",
			Text:      match.Text,
			Title:     title,
			URL:       match.URL,
			Relevance: match.Score,
		})
	}
	return items, nil
}

func (v *VectorDB) builtin() []types.ContextItem {
	items := make([]types.ContextItem, 0, len(builtinDocuments))
	for _, text := range builtinDocuments {
		title := text
		if len(title) > 50 {
			title = title[:50] + "..."
		}
		items = append(items, types.ContextItem{
			Source: "vectordb",
			Text:   text,
			Title:  title,
		})
	}
	return items
}
