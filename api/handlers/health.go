package handlers

import (
	"net/http"

	"github.com/BaSui01/researchflow/api"
)

// Health reports service liveness.
func Health(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, api.HealthResponse{Status: "ok", Version: version})
	}
}
