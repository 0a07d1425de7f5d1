package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/shelf/internal/bridge"
	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/engine"
	"github.com/MrSnakeDoc/shelf/internal/httpserver/deps"
	"github.com/MrSnakeDoc/shelf/internal/index"
	"github.com/MrSnakeDoc/shelf/internal/logger"
	"github.com/MrSnakeDoc/shelf/internal/undo"
)

type groupsResponse struct {
	Groups  []*domain.Group `json:"groups"`
	Version uint64          `json:"version"`
}

func ListGroups(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		coll := d.Engine.Collection()
		writeJSON(w, http.StatusOK, groupsResponse{Groups: coll.Groups(), Version: coll.Version()})
	}
}

// CreateGroup waits for the store to assign the group id.
func CreateGroup(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in engine.GroupInput
		if err := decode(r, &in); err != nil {
			writeError(w, d, err)
			return
		}
		g, err := d.Engine.CreateGroup(r.Context(), in)
		if err != nil {
			writeError(w, d, err)
			return
		}
		writeJSON(w, http.StatusCreated, g)
	}
}

func UpdateGroup(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch domain.GroupPatch
		if err := decode(r, &patch); err != nil {
			writeError(w, d, err)
			return
		}
		g, err := d.Engine.UpdateGroup(r.Context(), chi.URLParam(r, "id"), patch)
		if err != nil {
			writeError(w, d, err)
			return
		}
		writeJSON(w, http.StatusOK, g)
	}
}

type deleteGroupResponse struct {
	Undo     undo.Entry        `json:"undo"`
	Failures map[string]string `json:"failures,omitempty"`
}

// DeleteGroup removes the group and ungroups its members. Members that
// could not be ungrouped remotely are listed next to the undo entry.
func DeleteGroup(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry, err := d.Engine.DeleteGroup(r.Context(), chi.URLParam(r, "id"))
		var batch *domain.BatchError
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, deleteGroupResponse{Undo: entry})
		case errors.As(err, &batch) && entry.ID != "":
			resp := deleteGroupResponse{Undo: entry, Failures: make(map[string]string, len(batch.Failures))}
			for id, ferr := range batch.Failures {
				resp.Failures[id] = ferr.Error()
			}
			writeJSON(w, http.StatusOK, resp)
		default:
			writeError(w, d, err)
		}
	}
}

func ReorderGroups(d deps.Deps) http.HandlerFunc {
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
		op, err := d.Engine.ReorderGroups(r.Context(), req.IDs)
		if err != nil {
			writeError(w, d, err)
			return
		}
		settle(w, r, d, op, http.StatusOK, req)
	}
}

// Who opened the tabs of a group.
const (
	OpenedByExtension = "extension"
	OpenedByClient    = "client"
)

type openGroupResponse struct {
	OpenedBy string           `json:"openedBy"`
	URLs     []string         `json:"urls"`
	Response *bridge.Response `json:"response,omitempty"`
}

// OpenGroup asks a connected extension to open every member of the group.
// When none answers in time the URLs are returned so the caller opens
// them itself.
func OpenGroup(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var (
			found bool
			urls  []string
		)
		d.Engine.Collection().View(func(s *index.State) {
			if _, found = s.Group(id); !found {
				return
			}
			for _, b := range s.Members(id) {
				urls = append(urls, b.Href())
			}
		})
		if !found {
			writeError(w, d, &domain.NotFoundError{Entity: "group", ID: id})
			return
		}
		if len(urls) == 0 {
			writeError(w, d, &domain.ValidationError{Field: "group", Reason: "group has no bookmarks"})
			return
		}

		if d.Hub == nil {
			writeJSON(w, http.StatusOK, openGroupResponse{OpenedBy: OpenedByClient, URLs: urls})
			return
		}
		resp, err := d.Hub.OpenGroup(r.Context(), id, urls)
		switch {
		case errors.Is(err, bridge.ErrNoResponder):
			d.Logger.Debug("no extension answered, client opens the group", logger.String("group", id))
			writeJSON(w, http.StatusOK, openGroupResponse{OpenedBy: OpenedByClient, URLs: urls})
		case err != nil:
			writeError(w, d, err)
		default:
			writeJSON(w, http.StatusOK, openGroupResponse{OpenedBy: OpenedByExtension, URLs: urls, Response: &resp})
		}
	}
}
