package live

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pobtrack/pob-backend/internal/config"
	"github.com/pobtrack/pob-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// Hub fans live events out to every connected dashboard. Publishing never blocks the caller:
// a full hub queue drops the event and a client that cannot keep up is disconnected.
type Hub struct {
	// Connected dashboards by client id
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}

	sendBuffer int
	pingPeriod time.Duration
	logger     *logrus.Logger

	mu sync.RWMutex
}

// NewHub creates a new Hub. Call Run to start delivering.
func NewHub(cfg config.LiveConfig, logger *logrus.Logger) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = 54 * time.Second
	}
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
		sendBuffer: cfg.SendBuffer,
		pingPeriod: cfg.PingPeriod,
		logger:     logger,
	}
}

// Run is the hub's main loop. It returns when ctx is done, after disconnecting every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.WithFields(logrus.Fields{"client_id": client.ID, "clients": n}).Debug("Dashboard connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.send)
				h.logger.WithField("client_id", client.ID).Debug("Dashboard disconnected")
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for id, client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow consumer, drop it rather than stall everyone else
					delete(h.clients, id)
					close(client.send)
					h.logger.WithField("client_id", id).Warn("Dropping slow dashboard client")
				}
			}
			h.mu.Unlock()

		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for id, client := range h.clients {
				delete(h.clients, id)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("Live hub stopped")
			return
		}
	}
}

// ClientCount returns the number of connected dashboards
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// PublishNewLog pushes a committed scan to all dashboards
func (h *Hub) PublishNewLog(payload models.NewLogPayload) {
	h.publish(models.LiveEnvelope{Event: models.LiveEventNewLog, Data: payload})
}

// PublishDashboardUpdate tells dashboards to refetch their statistics
func (h *Hub) PublishDashboardUpdate() {
	h.publish(models.LiveEnvelope{Event: models.LiveEventDashboardUpdate})
}

func (h *Hub) publish(env models.LiveEnvelope) {
	message, err := json.Marshal(env)
	if err != nil {
		h.logger.WithError(err).WithField("event", env.Event).Error("Failed to encode live event")
		return
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.WithField("event", env.Event).Warn("Live hub queue full, event dropped")
	}
}
