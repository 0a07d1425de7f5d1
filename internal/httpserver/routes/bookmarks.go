package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/shelf/internal/httpserver/deps"
	"github.com/MrSnakeDoc/shelf/internal/httpserver/handlers"
)

func init() { Register(registerBookmarks) }

func registerBookmarks(r chi.Router, d deps.Deps) {
	a := api(r, d)
	a.Get("/api/bookmarks", handlers.ListBookmarks(d))
	a.Post("/api/bookmarks", handlers.AddBookmark(d))
	a.Delete("/api/bookmarks", handlers.DeleteBookmarks(d))
	a.Post("/api/bookmarks/reorder", handlers.ReorderBookmarks(d))
	a.Post("/api/bookmarks/move", handlers.MoveBookmarks(d))
	a.Patch("/api/bookmarks/{id}", handlers.UpdateBookmark(d))
	a.Post("/api/bookmarks/{id}/retry", handlers.RetryBookmark(d))

	a.Get("/api/selection", handlers.Selection(d))
	a.Post("/api/selection", handlers.Select(d))
	a.Delete("/api/selection", handlers.ClearSelection(d))
	a.Post("/api/selection/delete", handlers.DeleteSelected(d))
	a.Post("/api/selection/move", handlers.MoveSelected(d))

	a.Get("/api/duplicates", handlers.Duplicates(d))
	a.Delete("/api/duplicates", handlers.DeleteDuplicates(d))

	a.Get("/api/undo", handlers.LatestUndo(d))
	a.Get("/api/undo/{id}", handlers.UndoEntry(d))
	a.Post("/api/undo/{id}", handlers.Undo(d))
}
