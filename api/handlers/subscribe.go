package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/BaSui01/researchflow/api/auth"
	"github.com/BaSui01/researchflow/events"
	"github.com/BaSui01/researchflow/types"
)

// SubscribeHandler upgrades clients to a websocket and forwards the
// session's event stream. A valid session-scoped token is required; the
// stream starts with the session's replay buffer so late subscribers see
// events published before they attached.
type SubscribeHandler struct {
	bus    events.Bus
	issuer *auth.Issuer
	logger *zap.Logger
}

// NewSubscribeHandler creates the subscription handler.
func NewSubscribeHandler(bus events.Bus, issuer *auth.Issuer, logger *zap.Logger) *SubscribeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubscribeHandler{
		bus:    bus,
		issuer: issuer,
		logger: logger.With(zap.String("component", "subscribe_handler")),
	}
}

// Subscribe handles GET /v1/research/subscribe?sessionId=...&token=...
func (h *SubscribeHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	token := r.URL.Query().Get("token")
	if sessionID == "" {
		WriteError(w, types.Terminal(types.ErrInvalidRequest, "sessionId is required").WithHTTPStatus(400), h.logger)
		return
	}

	claims, err := h.issuer.Verify(token, sessionID)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	sub, cancel, err := h.bus.Subscribe(r.Context(), sessionID)
	if err != nil {
		WriteError(w, types.NewError(types.ErrInternalError, "failed to subscribe").WithCause(err), h.logger)
		return
	}
	defer cancel()

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closed")

	h.logger.Info("subscriber attached",
		zap.String("session_id", sessionID),
		zap.String("user_id", claims.UserID),
	)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "context done")
			return
		case event, ok := <-sub:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "stream ended")
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Warn("failed to marshal event", zap.Error(err))
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				h.logger.Debug("subscriber write failed, detaching",
					zap.String("session_id", sessionID),
					zap.Error(err),
				)
				return
			}
		}
	}
}
