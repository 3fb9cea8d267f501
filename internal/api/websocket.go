package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/felshare-bridge/internal/infrastructure/logging"
)

// WebSocket message types.
const (
	WSTypeState   = "state"
	WSTypeRefresh = "refresh"
	WSTypePing    = "ping"
	WSTypePong    = "pong"
	WSTypeError   = "error"
)

const (
	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 32

	wsMaxMessageSize = 4096
	wsPingInterval   = 30 * time.Second
	wsPongWait       = 10 * time.Second
)

// WSMessage represents a message sent to/from a WebSocket client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// stateStream fans state snapshots out to WebSocket clients.
type stateStream struct {
	logger  *logging.Logger
	clients map[*wsClient]struct{}
	mu      sync.RWMutex
}

// wsClient represents a connected WebSocket client.
type wsClient struct {
	stream   *stateStream
	conn     *websocket.Conn
	send     chan []byte
	snapshot func() any
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

func newStateStream(logger *logging.Logger) *stateStream {
	return &stateStream{
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

func (st *stateStream) register(c *wsClient) {
	st.mu.Lock()
	st.clients[c] = struct{}{}
	n := len(st.clients)
	st.mu.Unlock()
	st.logger.Debug("websocket client connected", "clients", n)
}

// unregister removes a client. Only the caller that removed it from the
// map closes the send channel.
func (st *stateStream) unregister(c *wsClient) {
	st.mu.Lock()
	_, existed := st.clients[c]
	delete(st.clients, c)
	n := len(st.clients)
	st.mu.Unlock()

	if existed {
		close(c.send)
	}
	st.logger.Debug("websocket client disconnected", "clients", n)
}

// Broadcast sends a state message to every client.
func (st *stateStream) Broadcast(payload any) {
	data, err := encodeWSMessage(WSMessage{Type: WSTypeState, Payload: payload})
	if err != nil {
		st.logger.Error("failed to marshal state message", "error", err)
		return
	}

	st.mu.RLock()
	clients := make([]*wsClient, 0, len(st.clients))
	for c := range st.clients {
		clients = append(clients, c)
	}
	st.mu.RUnlock()

	for _, c := range clients {
		c.trySend(data)
	}
}

// ClientCount returns the number of connected clients.
func (st *stateStream) ClientCount() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.clients)
}

// closeAll disconnects all clients so their pumps exit.
func (st *stateStream) closeAll() {
	st.mu.Lock()
	defer st.mu.Unlock()

	for c := range st.clients {
		close(c.send)
		if c.conn != nil {
			c.conn.Close()
		}
		delete(st.clients, c)
	}
}

// handleWebSocket upgrades the connection and sends the current snapshot
// before any broadcast.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &wsClient{
		stream:   s.stream,
		conn:     conn,
		send:     make(chan []byte, wsSendBufferSize),
		snapshot: func() any { return s.stateView(s.hub.State()) },
	}
	c.sendMessage(WSMessage{Type: WSTypeState, Payload: c.snapshot()})
	s.stream.register(c)

	go c.writePump()
	go c.readPump()
}

func (c *wsClient) readPump() {
	defer func() {
		c.stream.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(wsMaxMessageSize)
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(wsPingInterval + wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPingInterval + wsPongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.stream.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(wsPingInterval + wsPongWait))
		c.handleMessage(message)
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(wsPongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(wsPongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendMessage(WSMessage{Type: WSTypeError, Payload: map[string]string{"message": "invalid JSON message"}})
		return
	}

	switch msg.Type {
	case WSTypePing:
		c.sendMessage(WSMessage{Type: WSTypePong, ID: msg.ID})
	case WSTypeRefresh:
		c.sendMessage(WSMessage{Type: WSTypeState, ID: msg.ID, Payload: c.snapshot()})
	default:
		c.sendMessage(WSMessage{
			Type:    WSTypeError,
			ID:      msg.ID,
			Payload: map[string]string{"message": "unknown message type: " + msg.Type},
		})
	}
}

func (c *wsClient) sendMessage(msg WSMessage) {
	data, err := encodeWSMessage(msg)
	if err != nil {
		return
	}
	c.trySend(data)
}

// trySend drops the message when the client is gone or its buffer is full.
func (c *wsClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
	default:
	}
}

func encodeWSMessage(msg WSMessage) ([]byte, error) {
	if msg.Timestamp == "" {
		msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	return json.Marshal(msg)
}
