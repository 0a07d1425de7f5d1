package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/MrSnakeDoc/shelf/internal/bridge"
	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/engine"
	"github.com/MrSnakeDoc/shelf/internal/httpserver/deps"
	"github.com/MrSnakeDoc/shelf/internal/logger"
	"github.com/MrSnakeDoc/shelf/internal/remote"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error    string            `json:"error"`
	Existing string            `json:"existingId,omitempty"`
	Failures map[string]string `json:"failures,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the domain error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, d deps.Deps, err error) {
	resp := errorResponse{Error: err.Error()}
	status := http.StatusInternalServerError

	var (
		batch  *domain.BatchError
		dupURL *domain.DuplicateURLError
		dupGrp *domain.DuplicateGroupError
	)
	switch {
	case errors.As(err, &batch):
		status = http.StatusBadGateway
		resp.Failures = make(map[string]string, len(batch.Failures))
		for id, ferr := range batch.Failures {
			resp.Failures[id] = ferr.Error()
		}
	case errors.As(err, &dupURL):
		status = http.StatusConflict
		resp.Existing = dupURL.ExistingID
	case errors.As(err, &dupGrp):
		status = http.StatusConflict
		resp.Existing = dupGrp.ExistingID
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, remote.ErrUnavailable), errors.Is(err, bridge.ErrNoResponder):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		d.Logger.Warn("request failed", logger.Int("status", status), logger.Error(err))
	} else {
		d.Logger.Debug("request rejected", logger.Int("status", status), logger.Error(err))
	}
	writeJSON(w, status, resp)
}

// decode reads a JSON body into v, rejecting unknown fields.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &domain.ValidationError{Field: "body", Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return nil
}

// settle answers a mutation that continues in the background. With
// ?wait=true the handler blocks on op and reports its outcome; otherwise
// the optimistic result is returned as 202 Accepted.
func settle(w http.ResponseWriter, r *http.Request, d deps.Deps, op *engine.Op, okStatus int, body any) {
	if op == nil || r.URL.Query().Get("wait") != "true" {
		writeJSON(w, http.StatusAccepted, body)
		return
	}
	if err := op.Wait(r.Context()); err != nil {
		writeError(w, d, err)
		return
	}
	writeJSON(w, okStatus, body)
}

type idsRequest struct {
	IDs []string `json:"ids"`
}

func (req idsRequest) validate() error {
	if len(req.IDs) == 0 {
		return &domain.ValidationError{Field: "ids", Reason: "at least one id is required"}
	}
	return nil
}
