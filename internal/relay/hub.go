package relay

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
	sendQueueLen = 16
)

type outbound struct {
	kind int
	data []byte
}

type viewer struct {
	conn *websocket.Conn
	send chan outbound
	once sync.Once
}

// Hub fans packets out to connected WebSocket viewers. Broadcast never blocks
// the liveview read loop: a viewer whose queue is full is disconnected.
type Hub struct {
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	viewers  map[*viewer]struct{}
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
			// Origin policy is enforced by the CORS middleware in front of the router.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		viewers: make(map[*viewer]struct{}),
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewers)
}

// ServeHTTP upgrades the request and registers the viewer until it leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("component", "relay.hub").Msg("websocket upgrade failed")
		return
	}
	v := &viewer{conn: conn, send: make(chan outbound, sendQueueLen)}
	h.mu.Lock()
	h.viewers[v] = struct{}{}
	h.mu.Unlock()
	log.Debug().Str("component", "relay.hub").Str("remote", r.RemoteAddr).Msg("viewer joined")

	go h.writePump(v)
	h.readPump(v)
}

func (h *Hub) BroadcastText(data []byte) {
	h.broadcast(outbound{kind: websocket.TextMessage, data: data})
}

func (h *Hub) BroadcastBinary(data []byte) {
	h.broadcast(outbound{kind: websocket.BinaryMessage, data: data})
}

func (h *Hub) broadcast(msg outbound) {
	var slow []*viewer
	h.mu.RLock()
	for v := range h.viewers {
		select {
		case v.send <- msg:
		default:
			slow = append(slow, v)
		}
	}
	h.mu.RUnlock()
	for _, v := range slow {
		log.Debug().Str("component", "relay.hub").Msg("dropping slow viewer")
		h.remove(v)
	}
}

// Close disconnects every viewer.
func (h *Hub) Close() {
	h.mu.RLock()
	all := make([]*viewer, 0, len(h.viewers))
	for v := range h.viewers {
		all = append(all, v)
	}
	h.mu.RUnlock()
	for _, v := range all {
		h.remove(v)
	}
}

func (h *Hub) remove(v *viewer) {
	v.once.Do(func() {
		h.mu.Lock()
		delete(h.viewers, v)
		h.mu.Unlock()
		close(v.send)
	})
}

// readPump drains control frames; viewers are not expected to send data.
func (h *Hub) readPump(v *viewer) {
	defer func() {
		h.remove(v)
		_ = v.conn.Close()
	}()
	v.conn.SetReadLimit(4096)
	_ = v.conn.SetReadDeadline(time.Now().Add(2 * pingInterval))
	v.conn.SetPongHandler(func(string) error {
		return v.conn.SetReadDeadline(time.Now().Add(2 * pingInterval))
	})
	for {
		if _, _, err := v.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(v *viewer) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = v.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-v.send:
			_ = v.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = v.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := v.conn.WriteMessage(msg.kind, msg.data); err != nil {
				return
			}
		case <-ticker.C:
			_ = v.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := v.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
