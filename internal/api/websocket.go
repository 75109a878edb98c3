package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/labgate/labgate-core/internal/infrastructure/config"
	"github.com/labgate/labgate-core/internal/relay"
)

// defaultSendBufferSize is the per-connection outbound buffer when the
// configuration does not set one.
const defaultSendBufferSize = 64

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// relayConn adapts one WebSocket connection to the relay's Sender contract:
// Send is non-blocking and best-effort. A full buffer or a closed channel
// drops the message; the protocol tolerates lost notifications.
type relayConn struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// Send queues a message for the write pump, dropping it if the connection
// is congested or already closed.
func (c *relayConn) Send(data []byte) {
	// Absorb send-on-closed-channel during teardown.
	defer func() { _ = recover() }()

	select {
	case c.send <- data:
	default:
		// Buffer full, skip
	}
}

// close shuts the send channel exactly once so the write pump exits.
func (c *relayConn) close() {
	c.once.Do(func() { close(c.send) })
}

// handleRelaySocket upgrades the HTTP connection and hands it to the relay
// router. The connection stays role-less until its first register message.
func (s *Server) handleRelaySocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	bufSize := s.wsCfg.SendBufferSize
	if bufSize <= 0 {
		bufSize = defaultSendBufferSize
	}
	rc := &relayConn{
		conn: ws,
		send: make(chan []byte, bufSize),
	}

	conn := s.relayRouter.HandleConnect(rc)

	go rc.writePump(s.wsCfg)
	go s.readPump(rc, conn)
}

// readPump reads frames from the WebSocket and feeds them to the relay
// router. On exit it detaches the connection from its session, leaving the
// session itself to the reaper's grace period.
func (s *Server) readPump(rc *relayConn, conn *relay.Connection) {
	defer func() {
		s.relayRouter.HandleDisconnect(conn)
		rc.close()
		rc.conn.Close()
	}()

	rc.conn.SetReadLimit(int64(s.wsCfg.MaxMessageSize))
	pingInterval := time.Duration(s.wsCfg.PingInterval) * time.Second
	pongWait := time.Duration(s.wsCfg.PongTimeout) * time.Second
	// Best-effort deadline on connection setup.
	_ = rc.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	rc.conn.SetPongHandler(func(string) error {
		return rc.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := rc.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", "error", err)
			} else {
				s.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		// Any client message resets the read deadline (keeps connection alive
		// even if the client doesn't respond to protocol-level pings).
		_ = rc.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		s.relayRouter.HandleMessage(conn, message)
	}
}

// writePump writes queued messages to the WebSocket connection and sends
// periodic pings.
func (c *relayConn) writePump(cfg config.WebSocketConfig) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	pongWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// Read pump closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
