// Package realtime pushes analysis events to websocket clients watching an app.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Eagleeye1811/insightify-sub000/internal/domain"
)

// room groups the clients of one user watching one app.
type room struct {
	userID string
	appID  string
}

// Hub tracks connected clients and their app rooms.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]map[room]struct{}
	rooms   map[room]map[*Client]struct{}

	events chan domain.AnalysisEvent
}

var _ domain.EventPublisher = (*Hub)(nil)

// NewHub creates a Hub. Call Run to start delivering events.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]map[room]struct{}),
		rooms:   make(map[room]map[*Client]struct{}),
		events:  make(chan domain.AnalysisEvent, 256),
	}
}

// Run delivers published events until ctx is done, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case ev := <-h.events:
			h.deliver(ev)
		}
	}
}

// PublishAnalysisEvent queues ev for the clients in its app room.
func (h *Hub) PublishAnalysisEvent(ctx context.Context, ev domain.AnalysisEvent) error {
	select {
	case h.events <- ev:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("op=realtime.publish: %w", ctx.Err())
	}
}

func (h *Hub) deliver(ev domain.AnalysisEvent) {
	msg, err := json.Marshal(ev)
	if err != nil {
		slog.Error("encoding analysis event failed", slog.Any("error", err))
		return
	}
	key := room{userID: ev.UserID, appID: ev.AppID}

	h.mu.RLock()
	var slow []*Client
	for c := range h.rooms[key] {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	delivered := len(h.rooms[key]) - len(slow)
	h.mu.RUnlock()

	for _, c := range slow {
		slog.Warn("dropping slow websocket client", slog.String("client_id", c.id))
		h.remove(c)
	}
	slog.Debug("analysis event delivered",
		slog.String("type", ev.Type),
		slog.String("app_id", ev.AppID),
		slog.Int("clients", delivered))
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c] = make(map[room]struct{})
	h.mu.Unlock()
}

// remove unregisters c and closes its send channel once.
func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	joined, ok := h.clients[c]
	if !ok {
		return
	}
	for r := range joined {
		h.leaveLocked(c, r)
	}
	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) join(c *Client, appID string) bool {
	r := room{userID: c.userID, appID: appID}
	h.mu.Lock()
	defer h.mu.Unlock()
	joined, ok := h.clients[c]
	if !ok {
		return false
	}
	joined[r] = struct{}{}
	if h.rooms[r] == nil {
		h.rooms[r] = make(map[*Client]struct{})
	}
	h.rooms[r][c] = struct{}{}
	return true
}

func (h *Hub) leave(c *Client, appID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room{userID: c.userID, appID: appID})
}

func (h *Hub) leaveLocked(c *Client, r room) {
	if joined, ok := h.clients[c]; ok {
		delete(joined, r)
	}
	if members, ok := h.rooms[r]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, r)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
	}
	h.clients = make(map[*Client]map[room]struct{})
	h.rooms = make(map[room]map[*Client]struct{})
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Watchers returns how many clients of userID watch appID.
func (h *Hub) Watchers(userID, appID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room{userID: userID, appID: appID}])
}
