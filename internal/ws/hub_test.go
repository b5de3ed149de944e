// Argus - Security Decision Monitoring and Alerting
// Copyright 2026 The Argus Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-sec/argus

package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/argus-sec/argus/internal/alert"
)

func dialTestHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount() = %d, want %d", hub.ClientCount(), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHub_BroadcastsAlertToClient(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Serve(ctx) }()

	conn := dialTestHub(t, hub)
	waitForClients(t, hub, 1)

	hub.BroadcastAlert(&alert.Alert{
		ID:        "a1",
		Severity:  alert.SeverityHigh,
		SessionID: "s1",
	})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type string `json:"type"`
		Data struct {
			ID       string `json:"id"`
			Severity string `json:"severity"`
		} `json:"data"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if msg.Type != MessageTypeAlert {
		t.Errorf("Type = %q, want %q", msg.Type, MessageTypeAlert)
	}
	if msg.Data.ID != "a1" || msg.Data.Severity != "high" {
		t.Errorf("Data = %+v", msg.Data)
	}
}

func TestHub_PingGetsPong(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Serve(ctx) }()

	conn := dialTestHub(t, hub)
	waitForClients(t, hub, 1)

	if err := conn.WriteJSON(Message{Type: MessageTypePing}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if msg.Type != MessageTypePong {
		t.Errorf("Type = %q, want %q", msg.Type, MessageTypePong)
	}
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = hub.Serve(ctx) }()

	dialTestHub(t, hub)
	waitForClients(t, hub, 1)

	cancel()
	waitForClients(t, hub, 0)
}
