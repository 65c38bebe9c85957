// Package main runs a demo WebSocket client for solve events.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Connect WS and subscribe to the tenant-wide solve stream first so
	// the synchronous solve below is observed.
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/ws"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	hdr.Set("X-Role", "admin")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}
	var ack wsMessage
	if err := c.ReadJSON(&ack); err != nil || ack.Type != "connection_ack" {
		log.Fatalf("no connection_ack: %v (%+v)", err, ack)
	}
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: json.RawMessage(`{}`)}); err != nil {
		log.Fatal(err)
	}

	go func() {
		time.Sleep(500 * time.Millisecond)
		body := []byte(`{"instance":{"counties":[{"id":"c1","x":0,"y":0,"demand":10}],"hospitals":[{"id":"h1","x":3,"y":4,"baseCapacity":20}],"costs":{"perDistance":1,"maxExpansion":0,"fixedSetup":0,"perUnit":0}}}`)
		req, _ := http.NewRequest(http.MethodPost, base+"/v1/solve", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-Id", "t_demo")
		req.Header.Set("X-Role", "admin")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			log.Printf("solve: %v", err)
			return
		}
		defer func() { _ = resp.Body.Close() }()
		var rec struct {
			ID        string  `json:"id"`
			Status    string  `json:"status"`
			Objective float64 `json:"objective"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&rec)
		log.Printf("solve %s: %s objective=%g", rec.ID, rec.Status, rec.Objective)
	}()

	_ = c.SetReadDeadline(time.Now().Add(10 * time.Second))
	for {
		var msg wsMessage
		if err := c.ReadJSON(&msg); err != nil {
			log.Fatal(err)
		}
		switch msg.Type {
		case "ping":
			_ = c.WriteJSON(wsMessage{Type: "pong"})
		case "next":
			log.Printf("event: %s", string(msg.Payload))
			_ = c.WriteJSON(wsMessage{Type: "complete", ID: "1"})
			return
		}
	}
}
