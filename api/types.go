// Package api defines the HTTP request and response shapes for the
// research service.
package api

// ResearchRequest submits a query for asynchronous execution.
type ResearchRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
}

// ResearchAccepted acknowledges a submitted query. Progress and the final
// result arrive on the session's event stream.
type ResearchAccepted struct {
	RunID     string `json:"runId"`
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
}

// TokenRequest asks for a subscription token scoped to one session.
type TokenRequest struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
}

// TokenResponse carries a short-lived subscription token.
type TokenResponse struct {
	Token     string `json:"token"`
	SessionID string `json:"sessionId"`
	ExpiresIn int    `json:"expiresIn"` // seconds
}

// HealthResponse reports service liveness.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}
