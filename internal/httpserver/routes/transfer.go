package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/shelf/internal/httpserver/deps"
	"github.com/MrSnakeDoc/shelf/internal/httpserver/handlers"
)

func init() { Register(registerTransfer) }

// Imports wait for every batch and enrichment, so they skip the request
// deadline of the other API routes.
func registerTransfer(r chi.Router, d deps.Deps) {
	g := guarded(r, d)
	g.Post("/api/import/preview", handlers.ImportPreview(d))
	g.Post("/api/import", handlers.Import(d))
	g.Get("/api/export", handlers.Export(d))
}
