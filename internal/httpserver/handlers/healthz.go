package handlers

import (
	"net/http"
	"time"

	"github.com/MrSnakeDoc/shelf/internal/httpserver/deps"
)

type buildInfo struct {
	Version   string `json:"version,omitempty"`
	Commit    string `json:"commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
	GoVersion string `json:"go_version,omitempty"`
}

type collectionHealth struct {
	Loaded     bool       `json:"loaded"`
	Version    uint64     `json:"version"`
	Bookmarks  int        `json:"bookmarks"`
	Groups     int        `json:"groups"`
	LastReload *time.Time `json:"last_reload,omitempty"`
}

type healthzResponse struct {
	Status        string            `json:"status"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	Build         buildInfo         `json:"build"`
	Collection    *collectionHealth `json:"collection,omitempty"`
	Extensions    int               `json:"extensions"`
}

// Healthz reports liveness along with the in-memory collection state. It
// never touches the remote store; /readyz does.
func Healthz(d deps.Deps) http.HandlerFunc {
	build := buildInfo{Version: d.Version, Commit: d.Commit, BuildDate: d.BuildDate, GoVersion: d.GoVersion}
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthzResponse{
			Status:        "ok",
			UptimeSeconds: d.Now().Sub(d.StartTime).Seconds(),
			Build:         build,
		}
		if d.Engine != nil {
			coll := d.Engine.Collection()
			ch := &collectionHealth{
				Loaded:    coll.Loaded(),
				Version:   coll.Version(),
				Bookmarks: coll.Count(),
				Groups:    coll.GroupCount(),
			}
			if at := coll.GetLastReload(); !at.IsZero() {
				ch.LastReload = &at
			}
			resp.Collection = ch
		}
		if d.Hub != nil {
			resp.Extensions = d.Hub.Clients()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
