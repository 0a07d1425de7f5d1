package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/httpserver/deps"
)

type undoResponse struct {
	ID string `json:"id"`
}

// Undo reverses a recorded delete while its window is open. An expired or
// unknown entry answers 404.
func Undo(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		op, err := d.Engine.Undo(r.Context(), id)
		if err != nil {
			writeError(w, d, err)
			return
		}
		settle(w, r, d, op, http.StatusOK, undoResponse{ID: id})
	}
}

// LatestUndo returns the most recent entry still inside its window, the one
// an "Undo" affordance offers. 204 when there is none.
func LatestUndo(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry, ok := d.Engine.Ledger().Latest()
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, entry)
	}
}

func UndoEntry(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		entry, ok := d.Engine.Ledger().Peek(id)
		if !ok {
			writeError(w, d, &domain.NotFoundError{Entity: "undo entry", ID: id})
			return
		}
		writeJSON(w, http.StatusOK, entry)
	}
}
