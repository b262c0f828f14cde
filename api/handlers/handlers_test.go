package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/researchflow/api"
	"github.com/BaSui01/researchflow/api/auth"
	"github.com/BaSui01/researchflow/events"
	"github.com/BaSui01/researchflow/types"
	"github.com/BaSui01/researchflow/workflow"
)

type fakeRunner struct {
	mu      sync.Mutex
	queries []workflow.Query
	done    chan struct{}
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{done: make(chan struct{}, 8)}
}

func (f *fakeRunner) Execute(ctx context.Context, q workflow.Query) (*events.FinalResult, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	f.done <- struct{}{}
	return &events.FinalResult{Answer: "done"}, nil
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestSubmitAccepted(t *testing.T) {
	runner := newFakeRunner()
	h := NewResearchHandler(runner, nil, nil)

	body, _ := json.Marshal(api.ResearchRequest{Query: "quantum", SessionID: "sess-1", UserID: "alice"})
	rec := httptest.NewRecorder()
	h.Submit(rec, httptest.NewRequest(http.MethodPost, "/v1/research", bytes.NewReader(body)))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)

	select {
	case <-runner.done:
	case <-time.After(2 * time.Second):
		t.Fatal("engine was never invoked")
	}

	runner.mu.Lock()
	defer runner.mu.Unlock()
	require.Len(t, runner.queries, 1)
	assert.Equal(t, "quantum", runner.queries[0].Query)
	assert.Equal(t, "sess-1", runner.queries[0].SessionID)
}

func TestSubmitGeneratesSessionID(t *testing.T) {
	runner := newFakeRunner()
	h := NewResearchHandler(runner, nil, nil)

	body, _ := json.Marshal(api.ResearchRequest{Query: "quantum", UserID: "alice"})
	rec := httptest.NewRecorder()
	h.Submit(rec, httptest.NewRequest(http.MethodPost, "/v1/research", bytes.NewReader(body)))

	assert.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		Data api.ResearchAccepted `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp.Data.SessionID)
	assert.NotEmpty(t, resp.Data.RunID)
	<-runner.done
}

func TestSubmitRejectsEmptyQuery(t *testing.T) {
	h := NewResearchHandler(newFakeRunner(), nil, nil)

	body, _ := json.Marshal(api.ResearchRequest{SessionID: "sess-1"})
	rec := httptest.NewRecorder()
	h.Submit(rec, httptest.NewRequest(http.MethodPost, "/v1/research", bytes.NewReader(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, string(types.ErrInvalidRequest), resp.Error.Code)
}

func TestSubmitRejectsMalformedBody(t *testing.T) {
	h := NewResearchHandler(newFakeRunner(), nil, nil)

	rec := httptest.NewRecorder()
	h.Submit(rec, httptest.NewRequest(http.MethodPost, "/v1/research", strings.NewReader("{not json")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type blockedLimiter struct{}

func (blockedLimiter) Allow(context.Context, string) error {
	return types.Terminal(types.ErrRateLimited, "quota exceeded").WithHTTPStatus(429)
}

func TestSubmitThrottled(t *testing.T) {
	runner := newFakeRunner()
	h := NewResearchHandler(runner, blockedLimiter{}, nil)

	body, _ := json.Marshal(api.ResearchRequest{Query: "q", SessionID: "sess-1", UserID: "alice"})
	rec := httptest.NewRecorder()
	h.Submit(rec, httptest.NewRequest(http.MethodPost, "/v1/research", bytes.NewReader(body)))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Empty(t, runner.queries)
}

func testIssuer(t *testing.T) *auth.Issuer {
	t.Helper()
	cfg := auth.DefaultConfig()
	cfg.Secret = "test-secret"
	issuer, err := auth.NewIssuer(cfg)
	require.NoError(t, err)
	return issuer
}

func TestTokenIssue(t *testing.T) {
	issuer := testIssuer(t)
	h := NewTokenHandler(issuer, nil)

	body, _ := json.Marshal(api.TokenRequest{SessionID: "sess-1", UserID: "alice"})
	rec := httptest.NewRecorder()
	h.Issue(rec, httptest.NewRequest(http.MethodPost, "/v1/research/token", bytes.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data api.TokenResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp.Data.Token)
	assert.Equal(t, "sess-1", resp.Data.SessionID)
	assert.Equal(t, 300, resp.Data.ExpiresIn)

	// The issued token verifies against its own session only.
	_, err := issuer.Verify(resp.Data.Token, "sess-1")
	assert.NoError(t, err)
	_, err = issuer.Verify(resp.Data.Token, "sess-other")
	assert.Error(t, err)
}

func TestTokenRequiresSession(t *testing.T) {
	h := NewTokenHandler(testIssuer(t), nil)

	body, _ := json.Marshal(api.TokenRequest{UserID: "alice"})
	rec := httptest.NewRecorder()
	h.Issue(rec, httptest.NewRequest(http.MethodPost, "/v1/research/token", bytes.NewReader(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	Health("1.2.3")(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data api.HealthResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Data.Status)
	assert.Equal(t, "1.2.3", resp.Data.Version)
}

func TestSubscribeForwardsEvents(t *testing.T) {
	bus := events.NewMemoryBus(events.DefaultConfig(), nil)
	t.Cleanup(func() { bus.Close() })

	issuer := testIssuer(t)
	h := NewSubscribeHandler(bus, issuer, nil)

	srv := httptest.NewServer(http.HandlerFunc(h.Subscribe))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Events published before the client attaches arrive via replay.
	require.NoError(t, bus.Publish(ctx, "sess-1", events.TopicProgress,
		events.ProgressUpdate{Step: "search-sources", Status: events.StepInProgress}))

	token, err := issuer.Issue("sess-1", "alice")
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?sessionId=sess-1&token=" + token
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var event events.Event
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, events.TopicProgress, event.Topic)

	// Live events keep flowing on the same connection.
	require.NoError(t, bus.Publish(ctx, "sess-1", events.TopicAIChunk,
		events.AIChunk{Chunk: "hello"}))

	_, data, err = conn.Read(ctx)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, events.TopicAIChunk, event.Topic)
}

func TestSubscribeRejectsBadToken(t *testing.T) {
	bus := events.NewMemoryBus(events.DefaultConfig(), nil)
	t.Cleanup(func() { bus.Close() })

	h := NewSubscribeHandler(bus, testIssuer(t), nil)

	rec := httptest.NewRecorder()
	h.Subscribe(rec, httptest.NewRequest(http.MethodGet, "/v1/research/subscribe?sessionId=sess-1&token=garbage", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	h.Subscribe(rec, httptest.NewRequest(http.MethodGet, "/v1/research/subscribe", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitRunIDMatchesEngine(t *testing.T) {
	runner := newFakeRunner()
	h := NewResearchHandler(runner, nil, nil)

	body, _ := json.Marshal(api.ResearchRequest{Query: "quantum", SessionID: "sess-1", UserID: "alice"})
	rec := httptest.NewRecorder()
	h.Submit(rec, httptest.NewRequest(http.MethodPost, "/v1/research", bytes.NewReader(body)))

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		Data api.ResearchAccepted `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp.Data.RunID)

	select {
	case <-runner.done:
	case <-time.After(2 * time.Second):
		t.Fatal("engine was never invoked")
	}

	// The run ID returned to the client is the one the engine executes under.
	runner.mu.Lock()
	defer runner.mu.Unlock()
	require.Len(t, runner.queries, 1)
	assert.Equal(t, resp.Data.RunID, runner.queries[0].RunID)
}
