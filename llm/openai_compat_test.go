package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/researchflow/types"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *OpenAICompatProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAICompatProvider(OpenAICompatConfig{
		ProviderName: "test-provider",
		APIKey:       "test-key",
		BaseURL:      srv.URL,
		DefaultModel: "gpt-4-turbo-preview",
	})
}

func TestCompletion(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body oaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4-turbo-preview", body.Model)
		assert.False(t, body.Stream)

		json.NewEncoder(w).Encode(oaResponse{
			ID:    "cmpl-1",
			Model: body.Model,
			Choices: []oaChoice{{
				Message:      &oaMessage{Role: "assistant", Content: "quantum computing uses qubits"},
				FinishReason: "stop",
			}},
			Usage: &oaUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		})
	})

	resp, err := p.Completion(context.Background(), &ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "what is quantum computing"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "quantum computing uses qubits", resp.Content)
	assert.Equal(t, "test-provider", resp.Provider)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
	assert.Equal(t, "stop", resp.FinishReason)
}

func TestCompletionUsesRequestModel(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var body oaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "mistral-large-latest", body.Model)
		json.NewEncoder(w).Encode(oaResponse{
			Choices: []oaChoice{{Message: &oaMessage{Content: "ok"}}},
		})
	})

	_, err := p.Completion(context.Background(), &ChatRequest{
		Model:    "mistral-large-latest",
		Messages: []Message{{Role: RoleUser, Content: "classify this"}},
	})
	require.NoError(t, err)
}

func TestStream(t *testing.T) {
	deltas := []string{"Hello", ", ", "world"}
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var body oaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.True(t, body.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		for _, d := range deltas {
			chunk := oaResponse{
				ID:      "cmpl-2",
				Model:   "gpt-4-turbo-preview",
				Choices: []oaChoice{{Delta: &oaMessage{Content: d}}},
			}
			raw, _ := json.Marshal(chunk)
			fmt.Fprintf(w, "data: %s\n\n", raw)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	ch, err := p.Stream(context.Background(), &ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "greet"}},
	})
	require.NoError(t, err)

	var got []string
	for chunk := range ch {
		require.NoError(t, chunk.Err)
		got = append(got, chunk.Delta)
	}
	assert.Equal(t, deltas, got)
}

func TestStreamCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		chunk := oaResponse{Choices: []oaChoice{{Delta: &oaMessage{Content: "partial"}}}}
		raw, _ := json.Marshal(chunk)
		fmt.Fprintf(w, "data: %s\n\n", raw)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})

	ch, err := p.Stream(ctx, &ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "greet"}},
	})
	require.NoError(t, err)

	first := <-ch
	assert.Equal(t, "partial", first.Delta)

	cancel()
	for range ch {
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		status    int
		code      types.ErrorCode
		retryable bool
	}{
		{http.StatusTooManyRequests, types.ErrRateLimited, true},
		{http.StatusUnauthorized, types.ErrUnauthorized, false},
		{http.StatusBadRequest, types.ErrInvalidRequest, false},
		{http.StatusInternalServerError, types.ErrUpstreamError, true},
		{http.StatusGatewayTimeout, types.ErrUpstreamTimeout, true},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprintf("status_%d", tc.status), func(t *testing.T) {
			p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				fmt.Fprint(w, `{"error":{"message":"upstream says no"}}`)
			})

			_, err := p.Completion(context.Background(), &ChatRequest{
				Messages: []Message{{Role: RoleUser, Content: "hi"}},
			})
			require.Error(t, err)
			assert.Equal(t, tc.code, types.GetErrorCode(err))
			assert.Equal(t, tc.retryable, types.IsRetryable(err))
			assert.Contains(t, err.Error(), "upstream says no")
		})
	}
}
