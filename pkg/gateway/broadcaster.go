package gateway

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// EventMessage is a server-initiated event pushed to websocket clients
type EventMessage struct {
	Event          string `json:"event"`
	ConversationID string `json:"conversation_id,omitempty"`
	Category       string `json:"category,omitempty"`
	Strategy       string `json:"strategy,omitempty"`
	Tool           string `json:"tool,omitempty"`
	Seq            int64  `json:"seq"`
	Timestamp      int64  `json:"timestamp"`
}

// clientSendBuffer bounds the per-client event queue; a client that cannot
// keep up loses events rather than stalling the reasoning loop.
const clientSendBuffer = 64

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan EventMessage
}

// Broadcaster fans routing and tool events out to connected websocket
// clients. It satisfies the engine's notifier contract: event delivery
// never blocks the caller.
type Broadcaster struct {
	upgrader websocket.Upgrader
	logger   zerolog.Logger
	seq      uint64

	mu      sync.Mutex
	clients map[string]*wsClient
	closed  bool
}

// NewBroadcaster creates an event broadcaster
func NewBroadcaster(logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:  logger,
		clients: make(map[string]*wsClient),
	}
}

// QueryRouted publishes a routing decision
func (b *Broadcaster) QueryRouted(conversationID, category, strategy string) {
	b.publish(EventMessage{
		Event:          "query_routed",
		ConversationID: conversationID,
		Category:       category,
		Strategy:       strategy,
	})
}

// ToolInvoked publishes a tool invocation
func (b *Broadcaster) ToolInvoked(conversationID, tool string) {
	b.publish(EventMessage{
		Event:          "tool_invoked",
		ConversationID: conversationID,
		Tool:           tool,
	})
}

func (b *Broadcaster) publish(msg EventMessage) {
	msg.Seq = int64(atomic.AddUint64(&b.seq, 1))
	msg.Timestamp = time.Now().UnixMilli()

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, client := range b.clients {
		select {
		case client.send <- msg:
		default:
			b.logger.Warn().
				Str("client_id", client.id).
				Str("event", msg.Event).
				Msg("Client event buffer full, dropping event")
		}
	}
}

// HandleWebSocket upgrades the request and streams events until the client
// disconnects
func (b *Broadcaster) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	client := &wsClient{
		id:   gonanoid.Must(12),
		conn: conn,
		send: make(chan EventMessage, clientSendBuffer),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		conn.Close()
		return
	}
	b.clients[client.id] = client
	b.mu.Unlock()

	b.logger.Info().Str("client_id", client.id).Str("remote", r.RemoteAddr).Msg("Event client connected")

	go b.writeLoop(client)
	b.readLoop(client)
}

// writeLoop is the single writer for a connection, as the websocket
// library requires
func (b *Broadcaster) writeLoop(client *wsClient) {
	for msg := range client.send {
		client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := client.conn.WriteJSON(msg); err != nil {
			b.logger.Debug().Err(err).Str("client_id", client.id).Msg("Event write failed")
			client.conn.Close()
			return
		}
	}
	client.conn.Close()
}

// readLoop drains inbound frames so close handshakes and pings are
// processed; clients have nothing meaningful to send
func (b *Broadcaster) readLoop(client *wsClient) {
	defer b.remove(client)
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				b.logger.Debug().Err(err).Str("client_id", client.id).Msg("Event client read error")
			}
			return
		}
	}
}

func (b *Broadcaster) remove(client *wsClient) {
	b.mu.Lock()
	if _, ok := b.clients[client.id]; ok {
		delete(b.clients, client.id)
		close(client.send)
	}
	b.mu.Unlock()
	b.logger.Info().Str("client_id", client.id).Msg("Event client disconnected")
}

// Close disconnects all clients and rejects new connections
func (b *Broadcaster) Close() {
	b.mu.Lock()
	b.closed = true
	for id, client := range b.clients {
		delete(b.clients, id)
		close(client.send)
	}
	b.mu.Unlock()
}
