package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/shelf/internal/httpserver/deps"
	"github.com/MrSnakeDoc/shelf/internal/httpserver/handlers"
)

func init() { Register(registerExtension) }

func registerExtension(r chi.Router, d deps.Deps) {
	guarded(r, d).Get("/ws/extension", handlers.Extension(d))
}
