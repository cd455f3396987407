package realtime

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Eagleeye1811/insightify-sub000/internal/observability"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS layer in front of the router.
	CheckOrigin: func(*http.Request) bool { return true },
}

// ServeWS upgrades the request and registers the client. The user comes
// from the identity middleware; an appId query parameter joins that room.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := observability.UserIDFromContext(r.Context())
	if userID == "" {
		userID = r.URL.Query().Get("userId")
	}
	if userID == "" {
		userID = "anonymous"
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}
	c := &Client{
		id:     uuid.NewString(),
		userID: userID,
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 64),
	}
	h.add(c)
	if appID := r.URL.Query().Get("appId"); appID != "" && h.join(c, appID) {
		c.reply(ackMessage{Type: "joined", AppID: appID})
	}
	go c.writePump()
	go c.readPump()
	slog.Info("websocket client connected", slog.String("client_id", c.id), slog.String("user_id", userID))
}
