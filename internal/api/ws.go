package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket bridge for solve events, mirroring the SSE stream for
// clients that prefer a bidirectional transport.

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type wsSubscribePayload struct {
	SolveID string `json:"solveId"`
}

// SolveEventsWSHandler handles /v1/ws. Clients send connection_init,
// then subscribe with an optional solveId; without one they receive the
// tenant-wide stream.
func (s *Server) SolveEventsWSHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	type sub struct {
		topic string
		ch    chan SSEEvent
	}
	subs := map[string]sub{}

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

	// The keepalive and fan-out goroutines share the connection with the
	// read loop; gorilla permits one concurrent writer, so serialize.
	var writeMu sync.Mutex
	write := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(v)
	}

	_, tenant := s.withTenant(r)

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Type {
		case "connection_init":
			_ = write(wsMessage{Type: "connection_ack"})
			go func() {
				ticker := time.NewTicker(20 * time.Second)
				defer ticker.Stop()
				for range ticker.C {
					if err := write(wsMessage{Type: "ping"}); err != nil {
						return
					}
				}
			}()
		case "ping":
			_ = write(wsMessage{Type: "pong"})
		case "subscribe":
			var pl wsSubscribePayload
			_ = json.Unmarshal(msg.Payload, &pl)
			topic := "tenant:" + tenant
			if pl.SolveID != "" {
				topic = pl.SolveID
			}
			ch := s.Broker.Subscribe(topic)
			subs[msg.ID] = sub{topic: topic, ch: ch}
			go func(id string, c chan SSEEvent) {
				for evt := range c {
					payload, _ := json.Marshal(map[string]any{"type": evt.Type, "data": evt.Data})
					_ = write(wsMessage{Type: "next", ID: id, Payload: payload})
				}
				_ = write(wsMessage{Type: "complete", ID: id})
			}(msg.ID, ch)
		case "complete":
			if s0, ok := subs[msg.ID]; ok {
				s.Broker.Unsubscribe(s0.topic, s0.ch)
				delete(subs, msg.ID)
			}
		default:
			// ignore
		}
	}
	for id, s0 := range subs {
		s.Broker.Unsubscribe(s0.topic, s0.ch)
		delete(subs, id)
	}
}
