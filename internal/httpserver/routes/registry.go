package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/shelf/internal/httpserver/deps"
	"github.com/MrSnakeDoc/shelf/internal/httpserver/mw"
)

type (
	Registrar  func(r chi.Router, d deps.Deps)
	Middleware = func(http.Handler) http.Handler
)

type entry struct {
	reg Registrar
	mws []Middleware
}

var registry []entry

// Register a registrar with optional per-route middlewares.
func Register(reg Registrar, mws ...Middleware) {
	registry = append(registry, entry{reg: reg, mws: mws})
}

// Called once from server.New()
func RegisterAll(r chi.Router, d deps.Deps) {
	for _, e := range registry {
		if len(e.mws) == 0 {
			e.reg(r, d)
			continue
		}
		sub := r.With(e.mws...) // apply per-route middlewares
		e.reg(sub, d)
	}
}

// guarded restricts a route to the allowed CIDRs and Host headers.
func guarded(r chi.Router, d deps.Deps) chi.Router {
	return r.With(
		mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger),
		mw.EnforceHost(d.AllowedHosts, d.Logger),
	)
}

// api is guarded plus the per-client write budget and the request deadline.
// Long transfers and the WebSocket do not go through it.
func api(r chi.Router, d deps.Deps) chi.Router {
	g := guarded(r, d)
	if d.RateLimit > 0 {
		g = g.With(mw.RateLimit(mw.RateLimitConfig{
			PerMinute:  d.RateLimit,
			TrustProxy: d.TrustProxy,
			Now:        d.TimeNow,
		}, d.Logger))
	}
	if d.RequestTimeout > 0 {
		g = g.With(middleware.Timeout(d.RequestTimeout))
	}
	return g
}
