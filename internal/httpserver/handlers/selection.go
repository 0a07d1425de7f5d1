package handlers

import (
	"net/http"
	"strings"

	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/httpserver/deps"
)

type selectRequest struct {
	IDs []string `json:"ids"`
	// Mode is "select" (default) or "toggle".
	Mode string `json:"mode"`
}

func Selection(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, idsRequest{IDs: d.Engine.Selection().IDs()})
	}
}

// Select adds ids to the selection or toggles them.
func Select(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req selectRequest
		if err := decode(r, &req); err != nil {
			writeError(w, d, err)
			return
		}
		if len(req.IDs) == 0 {
			writeError(w, d, &domain.ValidationError{Field: "ids", Reason: "at least one id is required"})
			return
		}

		if req.Mode != "" && req.Mode != "select" && req.Mode != "toggle" {
			writeError(w, d, &domain.ValidationError{Field: "mode", Reason: "must be select or toggle"})
			return
		}
		ids, err := d.Engine.ResolveBookmarks(req.IDs)
		if err != nil {
			writeError(w, d, err)
			return
		}

		sel := d.Engine.Selection()
		if req.Mode == "toggle" {
			for _, id := range ids {
				sel.Toggle(id)
			}
		} else {
			sel.Select(ids...)
		}
		writeJSON(w, http.StatusOK, idsRequest{IDs: sel.IDs()})
	}
}

func ClearSelection(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d.Engine.Selection().Clear()
		w.WriteHeader(http.StatusNoContent)
	}
}

func DeleteSelected(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry, op, err := d.Engine.DeleteSelected(r.Context())
		if err != nil {
			writeError(w, d, err)
			return
		}
		settle(w, r, d, op, http.StatusOK, deleteResponse{Undo: entry})
	}
}

type moveSelectedRequest struct {
	GroupID string `json:"groupId"`
}

func MoveSelected(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req moveSelectedRequest
		if err := decode(r, &req); err != nil {
			writeError(w, d, err)
			return
		}
		ids := d.Engine.Selection().IDs()
		op, err := d.Engine.MoveSelected(r.Context(), strings.TrimSpace(req.GroupID))
		if err != nil {
			writeError(w, d, err)
			return
		}
		settle(w, r, d, op, http.StatusOK, idsRequest{IDs: ids})
	}
}
