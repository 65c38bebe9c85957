package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func wsDial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func wsRead(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var m wsMessage
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("read: %v", err)
	}
	return m
}

func TestSolveEventsWSStream(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(http.HandlerFunc(s.SolveEventsWSHandler))
	defer ts.Close()

	conn := wsDial(t, ts)
	defer func() { _ = conn.Close() }()

	if err := conn.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		t.Fatalf("init: %v", err)
	}
	if m := wsRead(t, conn); m.Type != "connection_ack" {
		t.Fatalf("got %q, want connection_ack", m.Type)
	}

	// Two subscriptions on the tenant stream: every publish fans out
	// through two goroutines writing the same connection.
	for _, id := range []string{"1", "2"} {
		if err := conn.WriteJSON(wsMessage{Type: "subscribe", ID: id}); err != nil {
			t.Fatalf("subscribe %s: %v", id, err)
		}
	}
	waitForSubscribers(t, s.Broker.(*Broker), "tenant:t_demo", 2)

	const n = 5
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Broker.Publish("tenant:t_demo", SSEEvent{Type: "solve.completed", Data: map[string]any{"status": "optimal"}})
		}()
	}
	wg.Wait()

	seen := map[string]int{}
	for got := 0; got < 2*n; {
		m := wsRead(t, conn)
		switch m.Type {
		case "next":
			seen[m.ID]++
			got++
		case "ping", "pong":
		default:
			t.Fatalf("unexpected frame %q", m.Type)
		}
	}
	if seen["1"] != n || seen["2"] != n {
		t.Fatalf("fan-out counts %v, want %d each", seen, n)
	}
}

func TestSolveEventsWSComplete(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(http.HandlerFunc(s.SolveEventsWSHandler))
	defer ts.Close()

	conn := wsDial(t, ts)
	defer func() { _ = conn.Close() }()

	if err := conn.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		t.Fatalf("init: %v", err)
	}
	if m := wsRead(t, conn); m.Type != "connection_ack" {
		t.Fatalf("got %q, want connection_ack", m.Type)
	}
	if err := conn.WriteJSON(wsMessage{Type: "subscribe", ID: "1"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	waitForSubscribers(t, s.Broker.(*Broker), "tenant:t_demo", 1)

	// Unsubscribing closes the fan-out channel, which emits complete.
	if err := conn.WriteJSON(wsMessage{Type: "complete", ID: "1"}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	for {
		m := wsRead(t, conn)
		if m.Type == "complete" {
			if m.ID != "1" {
				t.Fatalf("complete for %q, want 1", m.ID)
			}
			return
		}
	}
}

func waitForSubscribers(t *testing.T, b *Broker, topic string, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		b.mu.Lock()
		n := len(b.subs[topic])
		b.mu.Unlock()
		if n >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("topic %s never reached %d subscribers", topic, want)
}
