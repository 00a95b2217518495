package api

import (
	"sync"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/seisvol/seisvol/internal/batch"
	"github.com/seisvol/seisvol/pkg/logger"
)

// Hub fans batch progress events out to connected websocket clients.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]struct{})}
}

// Broadcast is the batch runner's notify callback.
func (h *Hub) Broadcast(ev batch.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		if err := c.WriteJSON(ev); err != nil {
			logger.Debug("Dropping progress client", zap.Error(err))
			c.Close()
			delete(h.clients, c)
		}
	}
}

// HandleConnection parks a client on the hub until it disconnects.
func (h *Hub) HandleConnection(c *websocket.Conn) {
	logger.Info("Progress client connected")
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		c.Close()
		logger.Info("Progress client disconnected")
	}()

	// Clients only listen; reads just detect the close.
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}
