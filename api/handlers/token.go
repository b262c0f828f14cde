package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/researchflow/api"
	"github.com/BaSui01/researchflow/api/auth"
	"github.com/BaSui01/researchflow/types"
)

// TokenHandler issues session-scoped subscription tokens.
type TokenHandler struct {
	issuer *auth.Issuer
	logger *zap.Logger
}

// NewTokenHandler creates the token handler.
func NewTokenHandler(issuer *auth.Issuer, logger *zap.Logger) *TokenHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenHandler{
		issuer: issuer,
		logger: logger.With(zap.String("component", "token_handler")),
	}
}

// Issue handles POST /v1/research/token.
func (h *TokenHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req api.TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, types.Terminal(types.ErrInvalidRequest, "malformed request body").WithHTTPStatus(400), h.logger)
		return
	}
	if req.SessionID == "" {
		WriteError(w, types.Terminal(types.ErrInvalidRequest, "sessionId must not be empty").WithHTTPStatus(400), h.logger)
		return
	}

	token, err := h.issuer.Issue(req.SessionID, req.UserID)
	if err != nil {
		WriteError(w, types.NewError(types.ErrInternalError, "failed to sign token").WithCause(err), h.logger)
		return
	}

	WriteSuccess(w, api.TokenResponse{
		Token:     token,
		SessionID: req.SessionID,
		ExpiresIn: int(h.issuer.TTL().Seconds()),
	})
}
