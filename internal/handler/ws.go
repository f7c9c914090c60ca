package handler

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"damdam/internal/broadcast"
	"damdam/internal/pkg/ctxutil"
	httputil "damdam/internal/pkg/http"
	"damdam/internal/service"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxFrameSize = 32 * 1024
)

// wsConn serializes writes: the event loop and error reporting from
// the read loop share one connection, and gorilla allows a single
// concurrent writer.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsConn) writeJSON(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteJSON(v)
}

func (w *wsConn) writeControl(messageType int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteMessage(messageType, nil)
}

// wsFrame is one inbound client frame on the realtime channel.
type wsFrame struct {
	Message  string `json:"message"`
	IsVoice  bool   `json:"isVoice"`
	AudioURL string `json:"audioUrl"`
	// Informational; record timestamps are assigned server-side.
	ClientTimestamp string `json:"clientTimestamp,omitempty"`
}

// WSHandler bridges room subscriptions to websocket connections and
// feeds inbound frames into the counseling pipeline.
type WSHandler struct {
	svc      *service.CounselService
	hub      *broadcast.Hub
	upgrader websocket.Upgrader
}

// NewWSHandler creates the realtime channel handler.
func NewWSHandler(svc *service.CounselService, hub *broadcast.Hub) *WSHandler {
	return &WSHandler{
		svc: svc,
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Token auth happens before the upgrade; origins are not
			// re-checked here.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Serve upgrades the request and runs the connection until either side
// closes. Outbound events for the room are pushed as JSON frames in
// publish order; inbound frames become chat messages from the
// authenticated user.
func (h *WSHandler) Serve(c *gin.Context) {
	roomID := c.Param("room_id")

	userID, ok := ctxutil.GetUserID(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httputil.NewErrorResponse(40101, "Unauthorized"))
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("room_id", roomID).Msg("websocket upgrade failed")
		return
	}
	conn := &wsConn{conn: raw}

	sub := h.hub.Subscribe(roomID)

	log.Info().
		Str("room_id", roomID).
		Str("user_id", userID).
		Msg("websocket subscriber connected")

	go h.writeLoop(conn, sub)
	h.readLoop(c, conn, sub, roomID, userID)
}

// readLoop consumes inbound frames until the connection drops. Pipeline
// errors are reported back on the socket but do not end the session.
func (h *WSHandler) readLoop(c *gin.Context, conn *wsConn, sub *broadcast.Subscriber, roomID, userID string) {
	defer func() {
		sub.Close()
		conn.conn.Close()
	}()

	conn.conn.SetReadLimit(maxFrameSize)
	_ = conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame wsFrame
		if err := conn.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("room_id", roomID).Msg("websocket read failed")
			}
			return
		}
		if frame.Message == "" && frame.AudioURL == "" {
			continue
		}

		ctx := c.Request.Context()
		if frame.IsVoice {
			audioRef := frame.AudioURL
			if audioRef == "" {
				audioRef = frame.Message
			}
			if _, err := h.svc.HandleVoicePlaceholder(ctx, roomID, userID, audioRef); err != nil {
				h.writeError(conn, err)
			}
			continue
		}
		if _, err := h.svc.HandleTextMessage(ctx, roomID, userID, frame.Message); err != nil {
			h.writeError(conn, err)
		}
	}
}

// writeLoop pushes room events and keepalive pings. It exits when the
// subscription closes, either by readLoop teardown or a hub drop.
func (h *WSHandler) writeLoop(conn *wsConn, sub *broadcast.Subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.conn.Close()
	}()

	for {
		select {
		case event, ok := <-sub.Events():
			if !ok {
				_ = conn.writeControl(websocket.CloseMessage)
				return
			}
			if err := conn.writeJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.writeControl(websocket.PingMessage); err != nil {
				return
			}
		}
	}
}

func (h *WSHandler) writeError(conn *wsConn, err error) {
	_ = conn.writeJSON(gin.H{"error": err.Error()})
}
