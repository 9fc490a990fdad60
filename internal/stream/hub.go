package stream

import (
	"bufio"
	"bytes"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Message is one server-sent event.
type Message struct {
	ID    int64
	Event string // empty means the default "message" event
	Data  []byte
}

// Hub fans snapshots out to the connected SSE clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]chan Message
	closed  bool
	buffer  int
	logger  *slog.Logger
	seq     atomic.Int64
}

// NewHub creates a Hub whose per-client queues hold buffer messages.
func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[string]chan Message),
		buffer:  buffer,
		logger:  logger,
	}
}

// AddClient registers a client and returns its message channel. The channel is
// closed on RemoveClient or Close. A closed hub returns an already closed channel.
func (h *Hub) AddClient(clientID string) <-chan Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Message, h.buffer)
	if h.closed {
		close(ch)
		return ch
	}

	if existing, ok := h.clients[clientID]; ok {
		close(existing)
	}
	h.clients[clientID] = ch

	h.logger.Debug("sse client connected", "client_id", clientID, "total", len(h.clients))
	return ch
}

// RemoveClient unregisters a client. Unknown ids are ignored.
func (h *Hub) RemoveClient(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.clients[clientID]; ok {
		close(ch)
		delete(h.clients, clientID)
		h.logger.Debug("sse client disconnected", "client_id", clientID, "remaining", len(h.clients))
	}
}

// NextID returns the next event id. Ids increase strictly for the life of the hub.
func (h *Hub) NextID() int64 {
	return h.seq.Add(1)
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// Broadcast queues msg for every client. A client whose queue is full misses
// this message; the next snapshot supersedes it anyway.
func (h *Hub) Broadcast(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if msg.ID == 0 {
		msg.ID = h.NextID()
	}

	for id, ch := range h.clients {
		select {
		case ch <- msg:
		default:
			h.logger.Warn("sse client queue full, skipping message", "client_id", id)
		}
	}
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.clients {
		close(ch)
		delete(h.clients, id)
	}
}

// WriteMessage writes msg in event-stream framing and flushes it.
func WriteMessage(w *bufio.Writer, msg Message) error {
	if msg.ID != 0 {
		if _, err := fmt.Fprintf(w, "id: %d\n", msg.ID); err != nil {
			return err
		}
	}
	if msg.Event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", msg.Event); err != nil {
			return err
		}
	}

	data := msg.Data
	if len(data) == 0 {
		data = []byte("{}")
	}
	for _, line := range bytes.Split(data, []byte("\n")) {
		if _, err := fmt.Fprintf(w, "data: %s\n", line); err != nil {
			return err
		}
	}

	if err := w.WriteByte('\n'); err != nil {
		return err
	}
	return w.Flush()
}

// WriteRetry sets the client's reconnection delay.
func WriteRetry(w *bufio.Writer, d time.Duration) error {
	if _, err := fmt.Fprintf(w, "retry: %d\n\n", d.Milliseconds()); err != nil {
		return err
	}
	return w.Flush()
}

// WriteComment writes a keepalive comment line.
func WriteComment(w *bufio.Writer, text string) error {
	if _, err := fmt.Fprintf(w, ": %s\n\n", text); err != nil {
		return err
	}
	return w.Flush()
}
