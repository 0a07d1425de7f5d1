package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/events"
	"github.com/MrSnakeDoc/shelf/internal/logger"
)

func startHub(t *testing.T, opts Options) (*Hub, string) {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = logger.New("error", false)
	}
	hub := NewHub(opts)
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		_ = hub.Close()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, hub *Hub, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })

	want := hub.Clients() + 1
	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() < want && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.Clients() < want {
		t.Fatal("hub never registered the connection")
	}
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg Message) {
	t.Helper()
	data, _ := json.Marshal(msg)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
}

func TestOpenGroupWithoutClients(t *testing.T) {
	hub, _ := startHub(t, Options{})

	start := time.Now()
	if _, err := hub.OpenGroup(context.Background(), "g1", []string{"https://a.io"}); !errors.Is(err, ErrNoResponder) {
		t.Fatalf("OpenGroup() error = %v, want ErrNoResponder", err)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("no clients should fail fast")
	}
}

func TestOpenGroupRoundTrip(t *testing.T) {
	hub, url := startHub(t, Options{Timeout: 2 * time.Second})
	conn := dial(t, hub, url)

	go func() {
		_, data, err := conn.Read(context.Background())
		if err != nil {
			return
		}
		var req Message
		if json.Unmarshal(data, &req) != nil || req.Type != TypeOpenGroup {
			return
		}
		reply, _ := json.Marshal(Message{
			Type:      TypeOpenGroupResponse,
			RequestID: req.RequestID,
			Response:  &Response{OK: true, Count: len(req.URLs)},
		})
		_ = conn.Write(context.Background(), websocket.MessageText, reply)
	}()

	resp, err := hub.OpenGroup(context.Background(), "g1", []string{"https://a.io", "https://b.io"})
	if err != nil {
		t.Fatalf("OpenGroup() error = %v", err)
	}
	if !resp.OK || resp.Count != 2 {
		t.Errorf("OpenGroup() = %+v", resp)
	}
}

func TestOpenGroupTimesOut(t *testing.T) {
	hub, url := startHub(t, Options{Timeout: 50 * time.Millisecond})
	conn := dial(t, hub, url)

	go func() {
		// Read but never answer; also swallow a response for the wrong request.
		_, _, _ = conn.Read(context.Background())
		data, _ := json.Marshal(Message{Type: TypeOpenGroupResponse, RequestID: "other", Response: &Response{OK: true}})
		_ = conn.Write(context.Background(), websocket.MessageText, data)
	}()

	_, err := hub.OpenGroup(context.Background(), "g1", []string{"https://a.io"})
	if !errors.Is(err, ErrNoResponder) {
		t.Fatalf("OpenGroup() error = %v, want ErrNoResponder", err)
	}
}

func TestBroadcastBookmark(t *testing.T) {
	bus := events.NewBus()
	var (
		mu        sync.Mutex
		merged    []string
		published []domain.Bookmark
	)
	events.Subscribe(bus, events.BookmarkBroadcast, func(b domain.Bookmark) {
		mu.Lock()
		published = append(published, b)
		mu.Unlock()
	})

	hub, url := startHub(t, Options{
		Bus: bus,
		OnBroadcast: func(raw json.RawMessage) error {
			if !strings.Contains(string(raw), "https://") {
				return errors.New("invalid")
			}
			mu.Lock()
			merged = append(merged, string(raw))
			mu.Unlock()
			return nil
		},
	})
	conn := dial(t, hub, url)

	send(t, conn, Message{Type: TypeBroadcastBookmark, Bookmark: json.RawMessage(`{"id":"bad","url":"ftp://x"}`)})
	send(t, conn, Message{Type: "unknown"})
	send(t, conn, Message{Type: TypeBroadcastBookmark, Bookmark: json.RawMessage(`{"id":"e1","url":"https://ext.io"}`)})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(published)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(merged) != 1 {
		t.Errorf("merged %d broadcasts, want 1", len(merged))
	}
	if len(published) != 1 || published[0].ID != "e1" {
		t.Errorf("published = %+v", published)
	}
}

func TestDisconnectUnregisters(t *testing.T) {
	hub, url := startHub(t, Options{})
	conn := dial(t, hub, url)

	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.Clients() != 0 {
		t.Errorf("Clients() = %d after disconnect", hub.Clients())
	}
}

func TestUIRequestsReachTheBus(t *testing.T) {
	bus := events.NewBus()
	menus := make(chan events.MenuRequest, 2)
	tours := make(chan events.TourRequest, 1)
	events.Subscribe(bus, events.OpenMenu, func(m events.MenuRequest) { menus <- m })
	events.Subscribe(bus, events.StartTour, func(r events.TourRequest) { tours <- r })

	hub, url := startHub(t, Options{Bus: bus})
	conn := dial(t, hub, url)

	send(t, conn, Message{Type: TypeOpenMenu})
	send(t, conn, Message{Type: TypeOpenMenu, ItemID: "b1"})
	send(t, conn, Message{Type: TypeStartTour, Step: "groups"})

	select {
	case m := <-menus:
		if m.ItemID != "b1" {
			t.Errorf("menu request = %+v, want item b1", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("open_menu never published")
	}
	select {
	case r := <-tours:
		if r.Step != "groups" {
			t.Errorf("tour request = %+v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("start_tour never published")
	}
}
