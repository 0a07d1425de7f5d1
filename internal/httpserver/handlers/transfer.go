package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/httpserver/deps"
	"github.com/MrSnakeDoc/shelf/internal/logger"
	"github.com/MrSnakeDoc/shelf/internal/sources/homepage"
	"github.com/MrSnakeDoc/shelf/internal/transfer"
)

const maxDocumentBytes = 16 << 20

// Document formats accepted by the import routes (?format=).
const (
	FormatHTML             = "html"
	FormatHomepageBookmark = "homepage-bookmarks"
	FormatHomepageServices = "homepage-services"
)

// readEntries parses the request body according to ?format=, html when
// absent.
func readEntries(r *http.Request) ([]transfer.Entry, error) {
	body := io.LimitReader(r.Body, maxDocumentBytes)
	format := strings.ToLower(r.URL.Query().Get("format"))
	switch format {
	case "", FormatHTML:
		entries, err := transfer.ParseHTML(body)
		if err != nil {
			return nil, &domain.ValidationError{Field: "document", Reason: err.Error()}
		}
		return entries, nil
	case FormatHomepageBookmark, FormatHomepageServices:
		kind := homepage.KindBookmarks
		if format == FormatHomepageServices {
			kind = homepage.KindServices
		}
		links, err := homepage.Read(body, kind)
		if err != nil {
			return nil, &domain.ValidationError{Field: "document", Reason: err.Error()}
		}
		return transfer.FromHomepage(links), nil
	default:
		return nil, &domain.ValidationError{Field: "format", Reason: fmt.Sprintf("unknown format %q", format)}
	}
}

// ImportPreview parses an uploaded document and reports per-group counts
// and duplicates against the live collection. Nothing is written.
func ImportPreview(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := readEntries(r)
		if err != nil {
			writeError(w, d, err)
			return
		}
		writeJSON(w, http.StatusOK, transfer.Plan(entries, d.Engine.Bookmarks()))
	}
}

type progressLine struct {
	Progress *transfer.Progress     `json:"progress,omitempty"`
	Result   *transfer.ImportResult `json:"result,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

// Import plans and applies an uploaded document in one request. Options
// come from the query: action=skip|override and repeated group=<name>.
// With stream=true progress is written as NDJSON lines while it runs.
func Import(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := readEntries(r)
		if err != nil {
			writeError(w, d, err)
			return
		}
		q := r.URL.Query()
		opts := transfer.ImportOptions{
			Action:    transfer.Action(q.Get("action")),
			Groups:    q["group"],
			BatchSize: d.ImportBatchSize,
		}
		preview := transfer.Plan(entries, d.Engine.Bookmarks())

		if q.Get("stream") != "true" {
			res, err := d.Importer.Apply(r.Context(), preview, opts, nil)
			if err != nil {
				writeError(w, d, err)
				return
			}
			writeJSON(w, http.StatusOK, res)
			return
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		rc := http.NewResponseController(w)
		enc := json.NewEncoder(w)
		emit := func(line progressLine) {
			if err := enc.Encode(line); err != nil {
				d.Logger.Debug("failed to write progress", logger.Error(err))
				return
			}
			_ = rc.Flush()
		}

		res, err := d.Importer.Apply(r.Context(), preview, opts, func(p transfer.Progress) {
			emit(progressLine{Progress: &p})
		})
		if err != nil {
			emit(progressLine{Error: err.Error()})
			return
		}
		emit(progressLine{Result: &res})
	}
}

// Export streams the collection as a bookmark file. Repeated group=<name>
// narrows the export.
func Export(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts := transfer.ExportOptions{
			Groups:    r.URL.Query()["group"],
			BatchSize: d.ExportBatchSize,
		}
		name := fmt.Sprintf("bookmarks-%s.html", d.Now().Format("2006-01-02"))

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
		start := time.Now()
		res, err := transfer.Export(w, d.Engine.Bookmarks(), d.Engine.Groups(), opts, nil)
		if err != nil {
			d.Logger.Error("export failed", logger.Error(err))
			return
		}
		d.Logger.Info("export finished",
			logger.Int("groups", res.Groups),
			logger.Int("bookmarks", res.Bookmarks),
			logger.Duration("duration", time.Since(start)))
	}
}
