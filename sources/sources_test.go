package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/researchflow/types"
)

func TestArxivFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/query", r.URL.Path)
		assert.Contains(t, r.URL.RawQuery, "max_results=5")
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <title>Quantum Error Correction</title>
    <summary>A survey of stabilizer codes.</summary>
    <link href="http://arxiv.org/abs/1234.5678" rel="alternate" type="text/html"/>
  </entry>
  <entry>
    <title>  Surface Codes  </title>
    <summary>Topological protection of qubits.</summary>
    <link href="http://arxiv.org/abs/2345.6789" rel="alternate" type="text/html"/>
  </entry>
</feed>`)
	}))
	defer srv.Close()

	src := NewArxiv(Config{ArxivBaseURL: srv.URL, MaxResults: 5}, srv.Client())
	items, err := src.Fetch(context.Background(), "quantum error correction")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "arxiv", items[0].Source)
	assert.Equal(t, "Quantum Error Correction", items[0].Title)
	assert.Equal(t, "A survey of stabilizer codes.", items[0].Text)
	assert.Equal(t, "http://arxiv.org/abs/1234.5678", items[0].URL)
	assert.Equal(t, "Surface Codes", items[1].Title)
}

func TestArxivServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	src := NewArxiv(Config{ArxivBaseURL: srv.URL, MaxResults: 5}, srv.Client())
	_, err := src.Fetch(context.Background(), "anything")
	require.Error(t, err)
	assert.Equal(t, types.ErrSourceUnavailable, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err))
}

func TestGitHubFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/repositories", r.URL.Path)
		assert.Equal(t, "Bearer gh-token", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"items":[
			{"name":"qiskit","description":"Quantum SDK","html_url":"https://github.com/Qiskit/qiskit"},
			{"name":"cirq","description":"","html_url":"https://github.com/quantumlib/Cirq"}
		]}`)
	}))
	defer srv.Close()

	src := NewGitHub(Config{GitHubBaseURL: srv.URL, GitHubToken: "gh-token", MaxResults: 5}, srv.Client())
	items, err := src.Fetch(context.Background(), "quantum")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "github", items[0].Source)
	assert.Equal(t, "Quantum SDK", items[0].Text)

	// Empty description falls back to the repo name.
	assert.Equal(t, "cirq", items[1].Text)
}

func TestGitHubWithoutToken(t *testing.T) {
	src := NewGitHub(Config{MaxResults: 5}, http.DefaultClient)
	items, err := src.Fetch(context.Background(), "quantum")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestWebSearchFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "serp-key", r.URL.Query().Get("api_key"))
		fmt.Fprint(w, `{"organic_results":[
			{"title":"Quantum computing basics","snippet":"An introduction.","link":"https://example.com/qc"}
		]}`)
	}))
	defer srv.Close()

	src := NewWebSearch(Config{WebSearchBaseURL: srv.URL, WebSearchAPIKey: "serp-key", MaxResults: 5}, srv.Client())
	items, err := src.Fetch(context.Background(), "quantum computing")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "websearch", items[0].Source)
	assert.Equal(t, "Quantum computing basics", items[0].Title)
	assert.Equal(t, "https://example.com/qc", items[0].URL)
}

func TestWebSearchWithoutKey(t *testing.T) {
	src := NewWebSearch(Config{MaxResults: 5}, http.DefaultClient)
	items, err := src.Fetch(context.Background(), "quantum")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestVectorDBFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/query", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		fmt.Fprint(w, `{"matches":[
			{"text":"RAG combines retrieval with generation.","title":"RAG","score":0.92}
		]}`)
	}))
	defer srv.Close()

	src := NewVectorDB(Config{VectorDBBaseURL: srv.URL, MaxResults: 5}, srv.Client())
	items, err := src.Fetch(context.Background(), "rag")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "vectordb", items[0].Source)
	assert.InDelta(t, 0.92, items[0].Relevance, 1e-9)
}

func TestVectorDBBuiltinFallback(t *testing.T) {
	src := NewVectorDB(Config{MaxResults: 5}, http.DefaultClient)
	items, err := src.Fetch(context.Background(), "machine learning")
	require.NoError(t, err)
	require.Len(t, items, len(builtinDocuments))
	for _, item := range items {
		assert.Equal(t, "vectordb", item.Source)
		assert.NotEmpty(t, item.Text)
	}
}

func TestAllSources(t *testing.T) {
	all := All(DefaultConfig())
	require.Len(t, all, 4)
	names := make([]string, 0, len(all))
	for _, s := range all {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"ArXiv", "GitHub", "VectorDB", "WebSearch"}, names)
}
