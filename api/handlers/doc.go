// Package handlers implements the HTTP endpoints: query submission, token
// issuance, the websocket event subscription, and health.
package handlers
