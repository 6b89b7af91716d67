package messaging

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Event types pushed to channel subscribers.
const (
	EventMessageNew    = "message_new"
	EventPresenceJoin  = "presence_join"
	EventPresenceLeave = "presence_leave"
)

type wsEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type hub struct {
	channelID string
	clients   map[*websocket.Conn]bool
	mu        sync.Mutex
}

func (h *hub) broadcast(evt wsEvent) {
	payload, _ := json.Marshal(evt)
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
			delete(h.clients, c)
			_ = c.Close()
		}
	}
}

func (h *hub) register(c *websocket.Conn) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
}

// unregister reports whether the hub is now empty.
func (h *hub) unregister(c *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
	return len(h.clients) == 0
}

// Hubs fans messages out to the websocket subscribers of each channel.
type Hubs struct {
	mu   sync.Mutex
	hubs map[string]*hub
}

func NewHubs() *Hubs {
	return &Hubs{hubs: make(map[string]*hub)}
}

// Broadcast sends an event to every subscriber of the channel. Channels
// with no subscribers are skipped.
func (hs *Hubs) Broadcast(channelID, typ string, data interface{}) {
	hs.mu.Lock()
	h, ok := hs.hubs[channelID]
	hs.mu.Unlock()
	if !ok {
		return
	}
	h.broadcast(wsEvent{Type: typ, Data: data})
}

func (hs *Hubs) join(channelID string, c *websocket.Conn) *hub {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	h, ok := hs.hubs[channelID]
	if !ok {
		h = &hub{channelID: channelID, clients: make(map[*websocket.Conn]bool)}
		hs.hubs[channelID] = h
	}
	h.register(c)
	return h
}

func (hs *Hubs) leave(h *hub, c *websocket.Conn) {
	if !h.unregister(c) {
		return
	}
	hs.mu.Lock()
	if cur, ok := hs.hubs[h.channelID]; ok && cur == h {
		h.mu.Lock()
		if len(h.clients) == 0 {
			delete(hs.hubs, h.channelID)
		}
		h.mu.Unlock()
	}
	hs.mu.Unlock()
}

// Upgrader is shared by every websocket endpoint in the service.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}
