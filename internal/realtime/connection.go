package realtime

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// closeReason is the close frame a connection ends with.
type closeReason struct {
	code int
	text string
}

var (
	closePeerLeft = closeReason{websocket.CloseNormalClosure, ""}
	closeShutdown = closeReason{websocket.CloseGoingAway, "server shutting down"}
	// closeBackpressure evicts a client that stopped draining its queue; it may reconnect.
	closeBackpressure = closeReason{websocket.CloseTryAgainLater, "send buffer full"}
)

type controlMessage struct {
	Action string `json:"action"`
}

// connection is one websocket client. readLoop and writeLoop own the socket; everything
// else talks to the client through enqueue and close.
type connection struct {
	id       string
	gateway  *Gateway
	socket   *websocket.Conn
	identity Identity
	rooms    []string // guarded by gateway.mu

	mu     sync.Mutex
	send   chan Message
	closed bool
	reason closeReason
	once   sync.Once
}

func newConnection(g *Gateway, socket *websocket.Conn, identity Identity, buffer int) *connection {
	return &connection{
		id:       newConnectionID(),
		gateway:  g,
		socket:   socket,
		identity: identity,
		send:     make(chan Message, buffer),
	}
}

// enqueue never blocks. false means the queue is full or the connection is closing.
func (c *connection) enqueue(message Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

// close leaves every room and tells the writer to finish with reason. Only the first call
// has an effect.
func (c *connection) close(reason closeReason) {
	c.once.Do(func() {
		if c.gateway != nil {
			c.gateway.unregister(c)
		}
		c.mu.Lock()
		c.closed = true
		c.reason = reason
		close(c.send)
		c.mu.Unlock()
	})
}

func (c *connection) finalReason() closeReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

func (c *connection) logger() *zap.Logger {
	return c.gateway.log.With(zap.String("connection_id", c.id), zap.String("user_id", c.identity.UserID))
}

func (c *connection) readLoop() {
	defer c.close(closePeerLeft)

	c.socket.SetReadLimit(maxMessageSize)
	extend := func(string) error { return c.socket.SetReadDeadline(time.Now().Add(pongWait)) }
	_ = extend("")
	c.socket.SetPongHandler(extend)

	log := c.logger()
	for {
		_, payload, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("unexpected close", zap.Error(err))
			}
			return
		}
		if len(payload) > 0 {
			c.handleControl(log, payload)
		}
	}
}

func (c *connection) handleControl(log *zap.Logger, payload []byte) {
	var ctrl controlMessage
	if err := json.Unmarshal(payload, &ctrl); err != nil {
		log.Debug("invalid control payload", zap.Error(err))
		return
	}
	switch strings.ToLower(strings.TrimSpace(ctrl.Action)) {
	case "ping":
		c.enqueue(Message{Event: EventPong, Data: map[string]int64{"ts": time.Now().UnixMilli()}})
	default:
		log.Debug("unsupported control action", zap.String("action", ctrl.Action))
	}
}

// writeLoop is the socket's only writer. It ends with a close frame once the queue is
// closed, and owns closing the socket.
func (c *connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close(closePeerLeft)
		_ = c.socket.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				reason := c.finalReason()
				_ = c.socket.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(reason.code, reason.text))
				return
			}
			if err := c.socket.WriteJSON(message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
