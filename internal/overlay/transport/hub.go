package transport

import (
	"sync"

	"github.com/clovis-agent/clovis/pkg/logger"
)

// Registry is the snapshot source replayed to a newly connected client
// (component B's live entity registry, queried without locking the Hub).
type Registry interface {
	Snapshot() []Outbound
}

// Hub fans out broadcast frames to every connected overlay client and
// replays the current draw-entity snapshot to new connections. The design
// expects a single overlay peer at a time, but the Hub tolerates more so a
// renderer reload never race-drops frames meant for the old connection.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]bool
	registry Registry

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}
}

// NewHub creates a Hub. registry may be nil if snapshot replay is not needed
// (e.g. in unit tests that only exercise fan-out).
func NewHub(registry Registry) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		registry:   registry,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
	}
}

// Run is the Hub's single-consumer event loop. It must run in its own
// goroutine for the lifetime of the transport.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.replaySnapshot(c)
			logger.Info().Str("client_id", c.id).Msg("overlay client connected")
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			logger.Info().Str("client_id", c.id).Msg("overlay client disconnected")
		case data := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- data:
				default:
					// slow/stale client: drop rather than block the loop
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Stop tears down the Hub's loop. Connected clients are left for their own
// readPump/writePump to unwind.
func (h *Hub) Stop() {
	close(h.done)
}

// Register admits a client to the fan-out set.
func (h *Hub) Register(c *Client) { h.register <- c }

// Unregister removes a client from the fan-out set.
func (h *Hub) Unregister(c *Client) { h.unregister <- c }

// Broadcast sends a pre-built outbound payload to every connected client.
// Send failures prune the peer on its own writePump rather than here.
func (h *Hub) Broadcast(payload Outbound) error {
	data, err := payload.Marshal()
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- data:
	default:
		// broadcast channel full: this frame is dropped, the
		// renderer is not keeping up; prefer losing a frame over stalling
		// the whole orchestrator loop.
	}
	return nil
}

// ClientCount reports the number of connected overlay peers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) replaySnapshot(c *Client) {
	if h.registry == nil {
		return
	}
	for _, payload := range h.registry.Snapshot() {
		data, err := payload.Marshal()
		if err != nil {
			continue
		}
		select {
		case c.send <- data:
		default:
		}
	}
}
