package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/sweeney/spa-bridge/internal/status"
)

const (
	writeWait    = 2 * time.Second
	sendQueueLen = 16
	maxReadBytes = 1024
)

var (
	errBusy     = errors.New("command queue full")
	errReadOnly = errors.New("commands disabled")
)

// Message is the envelope sent to WebSocket clients.
//
// Types: "state" (full status on connect), "change" (one attribute changed,
// with the decoded panel state), "ack" and "error" (command replies).
type Message struct {
	Type      string              `json:"type"`
	Attribute string              `json:"attribute,omitempty"`
	Intent    string              `json:"intent,omitempty"`
	Error     string              `json:"error,omitempty"`
	Spa       *status.SpaJSON     `json:"spa,omitempty"`
	Status    *status.StatusInner `json:"status,omitempty"`
}

// Command is sent by WebSocket clients.
type Command struct {
	Type   string `json:"type"` // "set"
	Target string `json:"target"`
	Value  string `json:"value"`
}

// upgrader allows any origin: the daemon serves a LAN-only page.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsClient owns one connection. Only its writer goroutine writes to conn.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func (c *wsClient) writeLoop() {
	for b := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
			c.conn.Close()
			// Drain so queue() never blocks on a dead client.
			for range c.send {
			}
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	c.conn.Close()
}

// hub fans messages out to every client. Slow clients miss messages rather
// than stalling the main loop.
type hub struct {
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

func newHub() *hub {
	return &hub{clients: make(map[*wsClient]struct{})}
}

func (h *hub) add(conn *websocket.Conn) *wsClient {
	c := &wsClient{conn: conn, send: make(chan []byte, sendQueueLen)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	go c.writeLoop()
	return c
}

func (h *hub) remove(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *hub) len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// queue sends to one client if it is still registered. Caller must not hold h.mu.
func (h *hub) queue(c *wsClient, msg Message) {
	b, _ := json.Marshal(msg)
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- b:
	default:
	}
}

func (h *hub) broadcast(msg Message) {
	// Marshal once for all clients.
	b, _ := json.Marshal(msg)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
		}
	}
}

// handleWS registers the client, sends the current status and then reads
// commands until the client disconnects.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(maxReadBytes)
	client := s.hub.add(conn)
	defer s.hub.remove(client)

	inner := status.BuildInner(s.tracker.Snapshot())
	s.hub.queue(client, Message{Type: "state", Status: &inner})

	for {
		var cmd Command
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("web: websocket closed")
			}
			return
		}
		if cmd.Type != "set" {
			s.hub.queue(client, Message{Type: "error", Error: "unknown message type " + cmd.Type})
			continue
		}
		in, err := s.submit(cmd.Target, cmd.Value)
		if err != nil {
			s.hub.queue(client, Message{Type: "error", Error: err.Error()})
			continue
		}
		s.hub.queue(client, Message{Type: "ack", Intent: in.String()})
	}
}
