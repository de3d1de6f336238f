package handlers

import (
	"net/http"
	"time"

	"sevaboard/services/channel"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	socketWriteWait  = 10 * time.Second
	socketPongWait   = 60 * time.Second
	socketPingPeriod = (socketPongWait * 9) / 10
	socketReadLimit  = 512
)

// SocketHandler serves the live notification channel over WebSocket.
// Clients only listen; anything they send is read and discarded.
type SocketHandler struct {
	channel    channel.Channel
	upgrader   websocket.Upgrader
	logger     *zap.Logger
	pingPeriod time.Duration
	pongWait   time.Duration
}

// NewSocketHandler creates a handler that subscribes each connection to ch.
func NewSocketHandler(ch channel.Channel, logger *zap.Logger) *SocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SocketHandler{
		channel: ch,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Any origin may connect.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:     logger,
		pingPeriod: socketPingPeriod,
		pongWait:   socketPongWait,
	}
}

// ServeSocket upgrades the request and streams events until either side goes away.
func (h *SocketHandler) ServeSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		h.logger.Warn("websocket upgrade failed", zap.Error(err), zap.String("ip", c.ClientIP()))
		return
	}
	defer conn.Close()

	sub := h.channel.Connect()
	defer h.channel.Disconnect(sub.ID)

	done := make(chan struct{})
	go h.readLoop(conn, sub.ID, done)
	h.writeLoop(conn, sub, done)
}

// readLoop keeps the read deadline fresh from pongs and notices when the peer leaves.
func (h *SocketHandler) readLoop(conn *websocket.Conn, id string, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(socketReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(h.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read ended", zap.String("id", id), zap.Error(err))
			}
			return
		}
	}
}

func (h *SocketHandler) writeLoop(conn *websocket.Conn, sub *channel.Subscriber, done <-chan struct{}) {
	ticker := time.NewTicker(h.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-sub.C:
			_ = conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
			if !ok {
				// Hub closed this subscriber, e.g. on shutdown.
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Debug("websocket write failed", zap.String("id", sub.ID), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
