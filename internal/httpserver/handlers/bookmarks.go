package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/shelf/internal/dedup"
	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/engine"
	"github.com/MrSnakeDoc/shelf/internal/httpserver/deps"
	"github.com/MrSnakeDoc/shelf/internal/undo"
)

type bookmarksResponse struct {
	Bookmarks []*domain.Bookmark `json:"bookmarks"`
	Version   uint64             `json:"version"`
}

type deleteResponse struct {
	Undo undo.Entry `json:"undo"`
}

// ListBookmarks returns the collection in display order. ?group=<id>
// narrows it to one group, ?group= (empty) to ungrouped bookmarks.
func ListBookmarks(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		coll := d.Engine.Collection()
		all := coll.Bookmarks()

		if r.URL.Query().Has("group") {
			groupID := r.URL.Query().Get("group")
			filtered := make([]*domain.Bookmark, 0, len(all))
			for _, b := range all {
				if (groupID == "" && b.GroupID == nil) || (groupID != "" && b.InGroup(groupID)) {
					filtered = append(filtered, b)
				}
			}
			all = filtered
		}

		writeJSON(w, http.StatusOK, bookmarksResponse{Bookmarks: all, Version: coll.Version()})
	}
}

// AddBookmark inserts optimistically. A duplicate URL answers 409 with the
// existing id unless allowDuplicate is set.
func AddBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req engine.AddRequest
		if err := decode(r, &req); err != nil {
			writeError(w, d, err)
			return
		}
		b, op, err := d.Engine.AddBookmark(r.Context(), req)
		if err != nil {
			writeError(w, d, err)
			return
		}
		settle(w, r, d, op, http.StatusCreated, b)
	}
}

// UpdateBookmark applies a partial patch to one bookmark.
func UpdateBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch domain.BookmarkPatch
		if err := decode(r, &patch); err != nil {
			writeError(w, d, err)
			return
		}
		b, op, err := d.Engine.UpdateBookmark(r.Context(), chi.URLParam(r, "id"), patch)
		if err != nil {
			writeError(w, d, err)
			return
		}
		settle(w, r, d, op, http.StatusOK, b)
	}
}

// DeleteBookmarks removes the bookmarks named in the body and returns the
// undo entry that reverses it.
func DeleteBookmarks(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req idsRequest
		if err := decode(r, &req); err != nil {
			writeError(w, d, err)
			return
		}
		if err := req.validate(); err != nil {
			writeError(w, d, err)
			return
		}
		entry, op, err := d.Engine.DeleteBookmarks(r.Context(), req.IDs)
		if err != nil {
			writeError(w, d, err)
			return
		}
		settle(w, r, d, op, http.StatusOK, deleteResponse{Undo: entry})
	}
}

// RetryBookmark reruns the save or metadata step of a failed bookmark.
func RetryBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, op, err := d.Engine.RetryEnrichment(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, d, err)
			return
		}
		settle(w, r, d, op, http.StatusOK, b)
	}
}

type moveRequest struct {
	IDs []string `json:"ids"`
	// GroupID is the target group, empty to ungroup.
	GroupID string `json:"groupId"`
}

func MoveBookmarks(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req moveRequest
		if err := decode(r, &req); err != nil {
			writeError(w, d, err)
			return
		}
		op, err := d.Engine.MoveBookmarks(r.Context(), req.IDs, strings.TrimSpace(req.GroupID))
		if err != nil {
			writeError(w, d, err)
			return
		}
		settle(w, r, d, op, http.StatusOK, idsRequest{IDs: req.IDs})
	}
}

// ReorderBookmarks takes the full display sequence of ids.
func ReorderBookmarks(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req idsRequest
		if err := decode(r, &req); err != nil {
			writeError(w, d, err)
			return
		}
		if err := req.validate(); err != nil {
			writeError(w, d, err)
			return
		}
		op, err := d.Engine.ReorderBookmarks(r.Context(), req.IDs)
		if err != nil {
			writeError(w, d, err)
			return
		}
		settle(w, r, d, op, http.StatusOK, req)
	}
}

type duplicatesResponse struct {
	Sets    []dedup.Set `json:"sets"`
	Default []string    `json:"defaultSelection"`
}

// Duplicates lists duplicate sets and the ids the default cleanup would
// delete. ?url= checks a single prospective URL instead.
func Duplicates(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if raw := r.URL.Query().Get("url"); raw != "" {
			if c := d.Engine.CheckDuplicate(raw); c != nil {
				writeJSON(w, http.StatusOK, c)
				return
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		sets := d.Engine.Duplicates()
		writeJSON(w, http.StatusOK, duplicatesResponse{Sets: sets, Default: dedup.DefaultSelection(sets)})
	}
}

// DeleteDuplicates runs the default cleanup selection.
func DeleteDuplicates(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry, op, err := d.Engine.DeleteDuplicates(r.Context())
		if err != nil {
			writeError(w, d, err)
			return
		}
		settle(w, r, d, op, http.StatusOK, deleteResponse{Undo: entry})
	}
}
