package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/shelf/internal/httpserver/deps"
)

type componentStatus struct {
	OK         bool   `json:"ok"`
	Bookmarks  *int   `json:"bookmarks,omitempty"`
	Groups     *int   `json:"groups,omitempty"`
	Clients    *int   `json:"clients,omitempty"`
	Entries    *int   `json:"entries,omitempty"`
	Orphans    *int   `json:"orphans,omitempty"`
	LastReload string `json:"last_reload,omitempty"`
	Mode       string `json:"mode,omitempty"`
	Impact     string `json:"impact,omitempty"`
	Error      string `json:"error,omitempty"`
}

type infraResponse struct {
	SyncMode   string                     `json:"sync_mode"`
	Components map[string]componentStatus `json:"components"`
}

func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		coll := d.Engine.Collection()
		bookmarks := coll.Count()
		groups := coll.GroupCount()
		lastReload := coll.GetLastReload()
		lastReloadStr := "never"
		if !lastReload.IsZero() {
			lastReloadStr = lastReload.Format("2006-01-02 15:04:05")
		}
		undoEntries := d.Engine.Ledger().Len()

		components := map[string]componentStatus{
			"collection": {
				OK:         coll.Loaded(),
				Bookmarks:  &bookmarks,
				Groups:     &groups,
				LastReload: lastReloadStr,
			},
			"store": checkStore(r.Context(), d),
			"undo": {
				OK:      true,
				Entries: &undoEntries,
			},
		}
		if d.Realtime != nil {
			orphans := d.Realtime.Orphans()
			components["realtime"] = componentStatus{OK: true, Orphans: &orphans}
		}
		if d.Hub != nil {
			clients := d.Hub.Clients()
			mode := "extension"
			if clients == 0 {
				mode = "client-fallback"
			}
			components["extension"] = componentStatus{OK: true, Clients: &clients, Mode: mode}
		}

		writeJSON(w, http.StatusOK, infraResponse{
			SyncMode:   determineSyncMode(components),
			Components: components,
		})
	}
}

func determineSyncMode(components map[string]componentStatus) string {
	if coll, exists := components["collection"]; exists && !coll.OK {
		return "critical" // nothing loaded yet
	}
	if store, exists := components["store"]; exists && !store.OK {
		return "degraded" // showing last-known state, writes will fail
	}
	return "live"
}

func checkStore(ctx context.Context, d deps.Deps) componentStatus {
	if d.Store == nil {
		return componentStatus{
			OK:     false,
			Mode:   "degraded",
			Impact: "writes-disabled",
			Error:  "store not initialized",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := d.Store.Ping(ctx); err != nil {
		return componentStatus{
			OK:     false,
			Mode:   "degraded",
			Impact: "last-known-state",
			Error:  err.Error(),
		}
	}

	return componentStatus{
		OK:     true,
		Mode:   "optimal",
		Impact: "realtime",
	}
}
