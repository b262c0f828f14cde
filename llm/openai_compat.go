package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/researchflow/types"
)

// OpenAICompatConfig configures an OpenAI-compatible chat endpoint.
// Most hosted providers (OpenAI, Mistral, many gateways and local servers)
// speak this protocol, so one client covers them all.
type OpenAICompatConfig struct {
	// ProviderName is the label used in logs, events, and errors.
	ProviderName string `json:"provider_name" yaml:"provider_name"`

	// APIKey is sent as a Bearer token.
	APIKey string `json:"api_key" yaml:"api_key"`

	// BaseURL is the API root, e.g. "https://api.openai.com".
	BaseURL string `json:"base_url" yaml:"base_url"`

	// DefaultModel is used when the request does not name a model.
	DefaultModel string `json:"default_model" yaml:"default_model"`

	// EndpointPath is the completion path. Defaults to /v1/chat/completions.
	EndpointPath string `json:"endpoint_path" yaml:"endpoint_path"`

	// Timeout bounds each HTTP request. Defaults to 120s; streams run until
	// the body is drained or the context is cancelled.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// OpenAICompatProvider is a Provider over any OpenAI-compatible API.
type OpenAICompatProvider struct {
	cfg    OpenAICompatConfig
	client *http.Client
}

// NewOpenAICompatProvider creates a provider for an OpenAI-compatible API.
func NewOpenAICompatProvider(cfg OpenAICompatConfig) *OpenAICompatProvider {
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/v1/chat/completions"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &OpenAICompatProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the configured provider name.
func (p *OpenAICompatProvider) Name() string {
	return p.cfg.ProviderName
}

func (p *OpenAICompatProvider) endpoint() string {
	return strings.TrimRight(p.cfg.BaseURL, "/") + p.cfg.EndpointPath
}

func (p *OpenAICompatProvider) buildHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}
}

// Wire-format structs for the OpenAI chat completions protocol.

type oaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaRequest struct {
	Model       string      `json:"model"`
	Messages    []oaMessage `json:"messages"`
	MaxTokens   int         `json:"max_tokens,omitempty"`
	Temperature float64     `json:"temperature,omitempty"`
	TopP        float64     `json:"top_p,omitempty"`
	Stop        []string    `json:"stop,omitempty"`
	Stream      bool        `json:"stream,omitempty"`
}

type oaChoice struct {
	Index        int        `json:"index"`
	Message      *oaMessage `json:"message,omitempty"`
	Delta        *oaMessage `json:"delta,omitempty"`
	FinishReason string     `json:"finish_reason,omitempty"`
}

type oaUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type oaResponse struct {
	ID      string     `json:"id"`
	Model   string     `json:"model"`
	Created int64      `json:"created"`
	Choices []oaChoice `json:"choices"`
	Usage   *oaUsage   `json:"usage,omitempty"`
}

func (p *OpenAICompatProvider) buildBody(req *ChatRequest, stream bool) oaRequest {
	model := req.Model
	if model == "" {
		model = p.cfg.DefaultModel
	}
	messages := make([]oaMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, oaMessage{Role: string(m.Role), Content: m.Content})
	}
	return oaRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.Stop,
		Stream:      stream,
	}
}

func (p *OpenAICompatProvider) post(ctx context.Context, body oaRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, types.Retryable(types.ErrUpstreamError, err.Error()).
			WithHTTPStatus(http.StatusBadGateway)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		msg := readErrorMessage(resp.Body)
		return nil, mapHTTPError(resp.StatusCode, p.cfg.ProviderName, msg)
	}
	return resp, nil
}

// Completion performs a non-streaming chat completion.
func (p *OpenAICompatProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	resp, err := p.post(ctx, p.buildBody(req, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var oa oaResponse
	if err := json.NewDecoder(resp.Body).Decode(&oa); err != nil {
		return nil, types.Retryable(types.ErrUpstreamError, "failed to decode response").
			WithHTTPStatus(http.StatusBadGateway).WithCause(err)
	}

	result := &ChatResponse{
		ID:       oa.ID,
		Provider: p.cfg.ProviderName,
		Model:    oa.Model,
	}
	if len(oa.Choices) > 0 {
		choice := oa.Choices[0]
		if choice.Message != nil {
			result.Content = choice.Message.Content
		}
		result.FinishReason = choice.FinishReason
	}
	if oa.Usage != nil {
		result.Usage = ChatUsage{
			PromptTokens:     oa.Usage.PromptTokens,
			CompletionTokens: oa.Usage.CompletionTokens,
			TotalTokens:      oa.Usage.TotalTokens,
		}
	}
	if oa.Created != 0 {
		result.CreatedAt = time.Unix(oa.Created, 0)
	}
	return result, nil
}

// Stream performs a streaming chat completion via SSE.
func (p *OpenAICompatProvider) Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error) {
	resp, err := p.post(ctx, p.buildBody(req, true))
	if err != nil {
		return nil, err
	}
	return streamSSE(ctx, resp.Body, p.cfg.ProviderName), nil
}

// streamSSE parses an OpenAI-style SSE body into a chunk channel. The
// stream ends on "data: [DONE]", EOF, or context cancellation.
func streamSSE(ctx context.Context, body io.ReadCloser, providerName string) <-chan StreamChunk {
	ch := make(chan StreamChunk)
	go func() {
		defer body.Close()
		defer close(ch)
		reader := bufio.NewReader(body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err != io.EOF {
					chunk := StreamChunk{
						Provider: providerName,
						Err: types.Retryable(types.ErrUpstreamError, err.Error()).
							WithHTTPStatus(http.StatusBadGateway),
					}
					select {
					case <-ctx.Done():
					case ch <- chunk:
					}
				}
				return
			}
			line = strings.TrimSpace(line)
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}

			var oa oaResponse
			if err := json.Unmarshal([]byte(data), &oa); err != nil {
				chunk := StreamChunk{
					Provider: providerName,
					Err: types.Retryable(types.ErrUpstreamError, err.Error()).
						WithHTTPStatus(http.StatusBadGateway),
				}
				select {
				case <-ctx.Done():
				case ch <- chunk:
				}
				return
			}

			for _, choice := range oa.Choices {
				chunk := StreamChunk{
					ID:           oa.ID,
					Provider:     providerName,
					Model:        oa.Model,
					FinishReason: choice.FinishReason,
				}
				if choice.Delta != nil {
					chunk.Delta = choice.Delta.Content
				}
				select {
				case <-ctx.Done():
					return
				case ch <- chunk:
				}
			}
		}
	}()
	return ch
}

// readErrorMessage extracts a human-readable message from an error body.
func readErrorMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &envelope) == nil {
		if envelope.Error.Message != "" {
			return envelope.Error.Message
		}
		if envelope.Message != "" {
			return envelope.Message
		}
	}
	return strings.TrimSpace(string(raw))
}

// mapHTTPError converts an upstream HTTP status into the engine's error
// taxonomy. 429 and 5xx are retryable, everything else is terminal.
func mapHTTPError(status int, providerName, msg string) *types.Error {
	if msg == "" {
		msg = http.StatusText(status)
	}
	msg = fmt.Sprintf("%s: %s", providerName, msg)
	switch {
	case status == http.StatusTooManyRequests:
		return types.Retryable(types.ErrRateLimited, msg).WithHTTPStatus(status)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return types.Terminal(types.ErrUnauthorized, msg).WithHTTPStatus(status)
	case status == http.StatusGatewayTimeout:
		return types.Retryable(types.ErrUpstreamTimeout, msg).WithHTTPStatus(status)
	case status >= 500:
		return types.Retryable(types.ErrUpstreamError, msg).WithHTTPStatus(status)
	default:
		return types.Terminal(types.ErrInvalidRequest, msg).WithHTTPStatus(status)
	}
}
