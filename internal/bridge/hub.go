// Package bridge talks to sibling surfaces, mainly the browser extension,
// over WebSocket connections.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/events"
	"github.com/MrSnakeDoc/shelf/internal/logger"
)

// ErrNoResponder is returned when no connected surface answered in time.
// Callers fall back to handling the request themselves.
var ErrNoResponder = errors.New("no extension responded")

const DefaultTimeout = 250 * time.Millisecond

// Message types.
const (
	TypeOpenGroup         = "open_group"
	TypeOpenGroupResponse = "open_group_response"
	TypeBroadcastBookmark = "broadcast_bookmark"
	TypeOpenMenu          = "open_menu"
	TypeStartTour         = "start_tour"
)

// Message is the envelope of every frame in both directions.
type Message struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	GroupID   string          `json:"groupId,omitempty"`
	URLs      []string        `json:"urls,omitempty"`
	Response  *Response       `json:"response,omitempty"`
	Bookmark  json.RawMessage `json:"bookmark,omitempty"`
	ItemID    string          `json:"itemId,omitempty"`
	Step      string          `json:"step,omitempty"`
}

// Response is the extension's answer to open_group.
type Response struct {
	OK    bool   `json:"ok"`
	Count int    `json:"count,omitempty"`
	Error string `json:"error,omitempty"`
}

// BroadcastFunc merges a bookmark pushed by a surface.
type BroadcastFunc func(raw json.RawMessage) error

// Options configures a Hub.
type Options struct {
	Logger logger.Logger
	Bus    *events.Bus
	// Timeout bounds a round trip, DefaultTimeout when zero.
	Timeout time.Duration
	// OriginPatterns are passed to websocket.Accept.
	OriginPatterns []string
	OnBroadcast    BroadcastFunc
}

// Hub keeps the connected surfaces and correlates requests with responses.
type Hub struct {
	log         logger.Logger
	bus         *events.Bus
	timeout     time.Duration
	origins     []string
	onBroadcast BroadcastFunc

	mu      sync.RWMutex
	clients map[*websocket.Conn]struct{}

	pendingMu sync.Mutex
	pending   map[string]chan Response

	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub returns a Hub with no connected extensions.
func NewHub(opts Options) *Hub {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		log:         opts.Logger,
		bus:         opts.Bus,
		timeout:     opts.Timeout,
		origins:     opts.OriginPatterns,
		onBroadcast: opts.OnBroadcast,
		clients:     make(map[*websocket.Conn]struct{}),
		pending:     make(map[string]chan Response),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// SetBroadcastHandler replaces the handler of broadcast_bookmark frames.
func (h *Hub) SetBroadcastHandler(fn BroadcastFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onBroadcast = fn
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", logger.Error(err))
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	h.log.Info("Extension connected", logger.Int("clients", count))

	h.readLoop(conn)
}

// Clients returns the number of connected surfaces.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// OpenGroup asks a connected extension to open urls as tabs. The first
// response wins; ErrNoResponder is returned when nothing is connected or
// nobody answers within the timeout.
func (h *Hub) OpenGroup(ctx context.Context, groupID string, urls []string) (Response, error) {
	conns := h.snapshot()
	if len(conns) == 0 {
		return Response{}, ErrNoResponder
	}

	id := uuid.NewString()
	reply := make(chan Response, 1)
	h.pendingMu.Lock()
	h.pending[id] = reply
	h.pendingMu.Unlock()
	defer func() {
		h.pendingMu.Lock()
		delete(h.pending, id)
		h.pendingMu.Unlock()
	}()

	data, err := json.Marshal(Message{Type: TypeOpenGroup, RequestID: id, GroupID: groupID, URLs: urls})
	if err != nil {
		return Response{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	sent := 0
	for _, conn := range conns {
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			h.log.Debug("Failed to send to extension", logger.Error(err))
			h.remove(conn)
			continue
		}
		sent++
	}
	if sent == 0 {
		return Response{}, ErrNoResponder
	}

	select {
	case resp := <-reply:
		return resp, nil
	case <-ctx.Done():
		h.log.Debug("Extension did not answer", logger.String("request_id", id))
		return Response{}, ErrNoResponder
	}
}

// Close disconnects every surface.
func (h *Hub) Close() error {
	h.cancel()
	for _, conn := range h.snapshot() {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		h.remove(conn)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────
// internals
// ─────────────────────────────────────────────────────────────────

func (h *Hub) readLoop(conn *websocket.Conn) {
	defer h.remove(conn)

	for {
		_, data, err := conn.Read(h.ctx)
		if err != nil {
			return
		}
		h.dispatch(data)
	}
}

func (h *Hub) dispatch(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		h.log.Debug("Ignoring malformed frame", logger.Error(err))
		return
	}

	switch msg.Type {
	case TypeOpenGroupResponse:
		if msg.Response == nil {
			return
		}
		h.pendingMu.Lock()
		reply, ok := h.pending[msg.RequestID]
		h.pendingMu.Unlock()
		if !ok {
			return
		}
		select {
		case reply <- *msg.Response:
		default:
		}

	case TypeBroadcastBookmark:
		if len(msg.Bookmark) == 0 {
			return
		}
		h.mu.RLock()
		fn := h.onBroadcast
		h.mu.RUnlock()
		if fn != nil {
			if err := fn(msg.Bookmark); err != nil {
				h.log.Warn("Rejected bookmark broadcast", logger.Error(err))
				return
			}
		}
		var b domain.Bookmark
		if err := json.Unmarshal(msg.Bookmark, &b); err == nil {
			events.Publish(h.bus, events.BookmarkBroadcast, b)
		}

	case TypeOpenMenu:
		if msg.ItemID == "" {
			return
		}
		events.Publish(h.bus, events.OpenMenu, events.MenuRequest{ItemID: msg.ItemID})

	case TypeStartTour:
		events.Publish(h.bus, events.StartTour, events.TourRequest{Step: msg.Step})

	default:
		h.log.Debug("Ignoring unknown frame", logger.String("type", msg.Type))
	}
}

func (h *Hub) snapshot() []*websocket.Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		out = append(out, conn)
	}
	return out
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, conn)
	count := len(h.clients)
	h.mu.Unlock()

	_ = conn.Close(websocket.StatusNormalClosure, "")
	h.log.Info("Extension disconnected", logger.Int("clients", count))
}
