package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/apex/log"

	"github.com/Abhinavsb985/Smart-Traffic-Control/models"
)

// MessageTypeReports tags a full feed snapshot.
const MessageTypeReports = "reports"

// Hub fans feed snapshots out to every listening client. All membership
// changes happen on the Run goroutine.
type Hub struct {
	clients map[*Client]struct{}

	feed   chan []byte
	joins  chan *Client
	leaves chan *Client
	done   chan struct{}

	mu            sync.RWMutex
	listeners     int
	lastBroadcast time.Time
}

// NewHub creates a hub. Start it with Run.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		feed:    make(chan []byte, 256),
		joins:   make(chan *Client),
		leaves:  make(chan *Client),
		done:    make(chan struct{}),
	}
}

// Run serves joins, leaves and broadcasts until Stop.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.joins:
			h.clients[c] = struct{}{}
			h.setListeners()
			log.Infof("Feed listener joined. Total listeners: %d", len(h.clients))
		case c := <-h.leaves:
			if h.drop(c) {
				h.setListeners()
				log.Infof("Feed listener left. Total listeners: %d", len(h.clients))
			}
		case msg := <-h.feed:
			for c := range h.clients {
				if !c.Send(msg) {
					log.Warn("Dropping slow feed listener")
					h.drop(c)
				}
			}
			h.setListeners()
		case <-h.done:
			for c := range h.clients {
				h.drop(c)
			}
			h.setListeners()
			return
		}
	}
}

func (h *Hub) drop(c *Client) bool {
	if _, ok := h.clients[c]; !ok {
		return false
	}
	delete(h.clients, c)
	close(c.send)
	return true
}

func (h *Hub) setListeners() {
	h.mu.Lock()
	h.listeners = len(h.clients)
	h.mu.Unlock()
}

// Add hands client to the hub. It reports false once the hub has stopped.
func (h *Hub) Add(client *Client) bool {
	select {
	case h.joins <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(client *Client) {
	select {
	case h.leaves <- client:
	case <-h.done:
	}
}

// Stop ends Run and disconnects every client.
func (h *Hub) Stop() {
	close(h.done)
}

// SnapshotMessage encodes reports as a feed message.
func SnapshotMessage(reports []models.Report, at time.Time) ([]byte, error) {
	return json.Marshal(models.BroadcastMessage{
		Type:      MessageTypeReports,
		Data:      models.ReportsResponse{Reports: reports, Count: len(reports)},
		Timestamp: at,
	})
}

// BroadcastReports queues the full feed for every listener. It never blocks;
// when the queue is full the update is dropped and the next refresh carries
// the newer view anyway.
func (h *Hub) BroadcastReports(reports []models.Report) {
	now := time.Now()
	data, err := SnapshotMessage(reports, now)
	if err != nil {
		log.WithError(err).Error("Failed to encode feed snapshot")
		return
	}

	select {
	case h.feed <- data:
	default:
		log.Warn("Broadcast queue full, dropping feed update")
		return
	}

	h.mu.Lock()
	h.lastBroadcast = now
	listeners := h.listeners
	h.mu.Unlock()
	log.Debugf("Queued %d reports for %d listeners", len(reports), listeners)
}

// GetStats returns the number of listeners and the time of the last broadcast.
func (h *Hub) GetStats() (int, time.Time) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.listeners, h.lastBroadcast
}
