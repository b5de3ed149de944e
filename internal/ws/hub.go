// Argus - Security Decision Monitoring and Alerting
// Copyright 2026 The Argus Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-sec/argus

// Package ws streams generated alerts to connected WebSocket clients
// so operator dashboards see anomalies as they happen.
package ws

import (
	"context"
	"sort"
	"sync"

	"github.com/argus-sec/argus/internal/alert"
	"github.com/argus-sec/argus/internal/logging"
)

// Message types for the alert feed.
const (
	MessageTypeAlert = "alert"
	MessageTypePing  = "ping"
	MessageTypePong  = "pong"
)

// Message is one frame on the alert feed.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub tracks connected clients and fans alerts out to them. It
// satisfies suture.Service.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Serve runs the hub loop until the context is canceled, then closes
// all clients.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			logging.Info().Str("component", "ws-hub").Msg("alert feed stopped")
			return ctx.Err()

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			logging.Info().Int("total_clients", total).Msg("alert feed client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			logging.Info().Int("total_clients", total).Msg("alert feed client disconnected")

		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

// BroadcastAlert queues an alert for all connected clients. Drops the
// frame rather than blocking when the broadcast buffer is full.
func (h *Hub) BroadcastAlert(a *alert.Alert) {
	select {
	case h.broadcast <- Message{Type: MessageTypeAlert, Data: a}:
	default:
		logging.Warn().Str("alert_id", a.ID).Msg("alert feed buffer full, frame dropped")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// broadcastToClients delivers one frame to every client, in client-id
// order so delivery is reproducible. A client with a full send buffer
// is dropped.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	for _, client := range clients {
		select {
		case client.send <- message:
		default:
			close(client.send)
			delete(h.clients, client)
		}
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}
