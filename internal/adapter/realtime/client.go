package realtime

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
)

// Client is one websocket connection.
type Client struct {
	id     string
	userID string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
}

// controlMessage is what clients send to pick the apps they watch.
type controlMessage struct {
	Action string `json:"action"`
	AppID  string `json:"appId"`
}

type ackMessage struct {
	Type  string `json:"type"`
	AppID string `json:"appId,omitempty"`
	Error string `json:"error,omitempty"`
}

func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket read failed", slog.String("client_id", c.id), slog.Any("error", err))
			}
			return
		}
		c.handle(data)
	}
}

func (c *Client) handle(data []byte) {
	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.AppID == "" {
		c.reply(ackMessage{Type: "error", Error: "expected {\"action\":\"join|leave\",\"appId\":\"...\"}"})
		return
	}
	switch msg.Action {
	case "join":
		if c.hub.join(c, msg.AppID) {
			c.reply(ackMessage{Type: "joined", AppID: msg.AppID})
		}
	case "leave":
		c.hub.leave(c, msg.AppID)
		c.reply(ackMessage{Type: "left", AppID: msg.AppID})
	default:
		c.reply(ackMessage{Type: "error", AppID: msg.AppID, Error: "unknown action " + msg.Action})
	}
}

// reply queues an acknowledgement without blocking the read loop.
func (c *Client) reply(a ackMessage) {
	b, err := json.Marshal(a)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- b:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
