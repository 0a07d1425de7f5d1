package deps

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/shelf/internal/bridge"
	"github.com/MrSnakeDoc/shelf/internal/engine"
	"github.com/MrSnakeDoc/shelf/internal/logger"
	"github.com/MrSnakeDoc/shelf/internal/transfer"
)

// Pinger reports whether the remote store answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Trigger requests an out-of-band snapshot reload. It reports false when
// one is already queued.
type Trigger interface {
	Trigger() bool
}

// Buffered counts realtime updates held back waiting for their insert.
type Buffered interface {
	Orphans() int
}

type Deps struct {
	Logger          logger.Logger
	StartTime       time.Time
	Version         string
	Commit          string
	BuildDate       string
	GoVersion       string
	TimeNow         func() time.Time   // for testing, defaults to time.Now
	AllowedHosts    []string           // Host headers allowed to access the server
	AllowedCIDRS    []string           // IPs allowed to access the API
	TrustProxy      bool               // true if running behind a trusted reverse proxy (e.g., cloudflared)
	RateLimit       int                // writes per minute per client IP, 0 = unlimited
	RequestTimeout  time.Duration      // per-request deadline of /api routes
	Engine          *engine.Engine     // the owner's collection and its mutations
	Store           Pinger             // remote store, checked by /readyz
	Hub             *bridge.Hub        // extension connections
	Reloader        Trigger            // manual snapshot reload
	Realtime        Buffered           // realtime reconciler, reported by /infra
	Importer        *transfer.Importer // streams accepted import entries into Engine
	ImportBatchSize int
	ExportBatchSize int
}

// Now returns d.TimeNow() or time.Now().
func (d Deps) Now() time.Time {
	if d.TimeNow != nil {
		return d.TimeNow()
	}
	return time.Now()
}
