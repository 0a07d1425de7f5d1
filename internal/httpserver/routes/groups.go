package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/shelf/internal/httpserver/deps"
	"github.com/MrSnakeDoc/shelf/internal/httpserver/handlers"
)

func init() { Register(registerGroups) }

func registerGroups(r chi.Router, d deps.Deps) {
	a := api(r, d)
	a.Get("/api/groups", handlers.ListGroups(d))
	a.Post("/api/groups", handlers.CreateGroup(d))
	a.Post("/api/groups/reorder", handlers.ReorderGroups(d))
	a.Patch("/api/groups/{id}", handlers.UpdateGroup(d))
	a.Delete("/api/groups/{id}", handlers.DeleteGroup(d))
	a.Post("/api/groups/{id}/open", handlers.OpenGroup(d))
}
