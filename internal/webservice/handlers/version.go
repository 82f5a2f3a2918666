package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/cargodocs/cargodocs/internal/constants"
)

// VersionHandler reports the running service version as JSON.
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{"version": constants.Version}); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
