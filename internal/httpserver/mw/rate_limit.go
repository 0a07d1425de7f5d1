package mw

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/MrSnakeDoc/shelf/internal/logger"
	"github.com/MrSnakeDoc/shelf/internal/utils"
)

// RateLimitConfig bounds how fast one client can issue writes. Every
// mutation fans out into remote calls, so reads are not counted.
type RateLimitConfig struct {
	PerMinute  int // sustained writes per client
	Burst      int // writes allowed back to back, defaults to PerMinute
	MaxClients int // tracked clients before idle ones are evicted
	IdleTTL    time.Duration
	TrustProxy bool
	Now        func() time.Time
}

type tokens struct {
	level float64
	at    time.Time
}

// writeBudget is a token bucket per client address.
type writeBudget struct {
	cfg     RateLimitConfig
	perSec  float64
	mu      sync.Mutex
	clients map[string]*tokens
}

func newWriteBudget(cfg RateLimitConfig) *writeBudget {
	if cfg.PerMinute < 1 {
		cfg.PerMinute = 1
	}
	if cfg.Burst < 1 {
		cfg.Burst = cfg.PerMinute
	}
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = 10_000
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 15 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &writeBudget{
		cfg:     cfg,
		perSec:  float64(cfg.PerMinute) / 60,
		clients: make(map[string]*tokens),
	}
}

// spend takes one token for client. When none is left it returns how long
// until the next one refills.
func (b *writeBudget) spend(client string) (ok bool, left int, retry time.Duration) {
	now := b.cfg.Now()
	burst := float64(b.cfg.Burst)

	b.mu.Lock()
	defer b.mu.Unlock()

	t, found := b.clients[client]
	if !found {
		if len(b.clients) >= b.cfg.MaxClients {
			b.evictIdle(now)
		}
		t = &tokens{level: burst, at: now}
		b.clients[client] = t
	}

	t.level = min(burst, t.level+now.Sub(t.at).Seconds()*b.perSec)
	t.at = now
	if t.level < 1 {
		missing := (1 - t.level) / b.perSec
		return false, 0, time.Duration(missing * float64(time.Second))
	}
	t.level--
	return true, int(t.level), 0
}

func (b *writeBudget) evictIdle(now time.Time) {
	for client, t := range b.clients {
		if now.Sub(t.at) > b.cfg.IdleTTL {
			delete(b.clients, client)
		}
	}
}

func isRead(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// RateLimit rejects writes beyond the client's budget with 429 and a
// Retry-After header.
func RateLimit(cfg RateLimitConfig, log logger.Logger) func(http.Handler) http.Handler {
	b := newWriteBudget(cfg)
	limit := strconv.Itoa(b.cfg.Burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isRead(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			client := utils.ClientIP(r, b.cfg.TrustProxy)
			ok, left, retry := b.spend(client)
			w.Header().Set("X-RateLimit-Limit", limit)
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(left))
			if !ok {
				secs := max(1, int((retry+time.Second-1)/time.Second))
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				log.Debug("write rate limited",
					logger.String("client_ip", client),
					logger.String("path", r.URL.Path),
					logger.Int("retry_after_s", secs))
				deny(w, http.StatusTooManyRequests, "too many writes, retry later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
