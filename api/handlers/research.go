package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/researchflow/api"
	"github.com/BaSui01/researchflow/events"
	"github.com/BaSui01/researchflow/internal/throttle"
	"github.com/BaSui01/researchflow/types"
	"github.com/BaSui01/researchflow/workflow"
)

// Runner executes a research query to completion.
type Runner interface {
	Execute(ctx context.Context, q workflow.Query) (*events.FinalResult, error)
}

// ResearchHandler accepts query submissions and runs them asynchronously.
// Clients follow progress on the session's event stream.
type ResearchHandler struct {
	engine  Runner
	limiter throttle.Limiter
	timeout time.Duration
	logger  *zap.Logger
}

// NewResearchHandler creates the submission handler. limiter may be nil.
func NewResearchHandler(engine Runner, limiter throttle.Limiter, logger *zap.Logger) *ResearchHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResearchHandler{
		engine:  engine,
		limiter: limiter,
		timeout: 10 * time.Minute,
		logger:  logger.With(zap.String("component", "research_handler")),
	}
}

// Submit handles POST /v1/research. It validates and throttles
// synchronously, then detaches the run and answers 202.
func (h *ResearchHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req api.ResearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, types.Terminal(types.ErrInvalidRequest, "malformed request body").WithHTTPStatus(400), h.logger)
		return
	}
	if req.Query == "" {
		WriteError(w, types.Terminal(types.ErrInvalidRequest, "query must not be empty").WithHTTPStatus(400), h.logger)
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	if h.limiter != nil {
		if err := h.limiter.Allow(r.Context(), req.UserID); err != nil {
			WriteError(w, err, h.logger)
			return
		}
	}

	runID := uuid.NewString()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()

		if _, err := h.engine.Execute(ctx, workflow.Query{
			Query:     req.Query,
			SessionID: req.SessionID,
			UserID:    req.UserID,
			RunID:     runID,
		}); err != nil {
			h.logger.Warn("research run failed",
				zap.String("run_id", runID),
				zap.String("session_id", req.SessionID),
				zap.Error(err),
			)
		}
	}()

	WriteAccepted(w, api.ResearchAccepted{
		RunID:     runID,
		SessionID: req.SessionID,
		Status:    "accepted",
	})
}
