package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/shelf/internal/httpserver/deps"
)

// Extension upgrades the request to the extension WebSocket.
func Extension(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Hub == nil {
			http.Error(w, "extension bridge disabled", http.StatusServiceUnavailable)
			return
		}
		d.Hub.ServeHTTP(w, r)
	}
}
