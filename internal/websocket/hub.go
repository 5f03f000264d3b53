// Package websocket delivers platform events to authenticated browser
// sessions and tears connections down when the session behind them is
// revoked.
package websocket

import (
	"encoding/json"
	"log/slog"

	"go-blog-platform/internal/event"
)

type Hub struct {
	clients map[*Client]bool

	// byUser indexes live clients so targeted events and forced logouts
	// find every connection a user holds.
	byUser map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client

	bus event.Bus
}

func NewHub(bus event.Bus) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		byUser:     make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		bus:        bus,
	}
}

func (h *Hub) Run() {
	events, unsubscribe := h.bus.Subscribe()
	defer unsubscribe()

	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			if h.byUser[client.userID] == nil {
				h.byUser[client.userID] = make(map[*Client]bool)
			}
			h.byUser[client.userID][client] = true

		case client := <-h.unregister:
			h.drop(client)

		case e := <-events:
			h.dispatch(e)
		}
	}
}

func (h *Hub) dispatch(e event.Event) {
	// A revoked session closes the user's sockets instead of notifying them.
	if e.Type == event.TypeSessionRevoked {
		for client := range h.byUser[e.TargetUserID] {
			h.drop(client)
		}
		return
	}

	message, err := json.Marshal(e)
	if err != nil {
		slog.Error("failed to marshal event", "type", e.Type, "error", err)
		return
	}

	if e.TargetUserID != "" {
		for client := range h.byUser[e.TargetUserID] {
			h.deliver(client, message)
		}
		return
	}

	for client := range h.clients {
		h.deliver(client, message)
	}
}

func (h *Hub) deliver(client *Client, message []byte) {
	select {
	case client.send <- message:
	default:
		// Slow consumer; evict rather than block the hub loop.
		h.drop(client)
	}
}

func (h *Hub) drop(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	if peers, ok := h.byUser[client.userID]; ok {
		delete(peers, client)
		if len(peers) == 0 {
			delete(h.byUser, client.userID)
		}
	}
	close(client.send)
}
