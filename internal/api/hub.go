package api

import (
	"sync"
	"time"
)

// Change is sent to watchers after every successful write to their key.
type Change struct {
	Key       string    `json:"key"`
	DeviceID  string    `json:"device_id"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Hub fans out changes to watchers of a bucket/key topic. Publishing never
// blocks; a watcher that falls behind misses changes.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[chan Change]struct{}
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan Change]struct{})}
}

func topic(bucket, key string) string {
	return bucket + "/" + key
}

// Subscribe registers a watcher. The channel is closed by cancel or Close.
func (h *Hub) Subscribe(topic string) (<-chan Change, func()) {
	ch := make(chan Change, 8)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[chan Change]struct{})
	}
	h.subs[topic][ch] = struct{}{}

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[topic][ch]; !ok {
			return
		}
		delete(h.subs[topic], ch)
		if len(h.subs[topic]) == 0 {
			delete(h.subs, topic)
		}
		close(ch)
	}
}

// Publish delivers c to every watcher of topic.
func (h *Hub) Publish(topic string, c Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[topic] {
		select {
		case ch <- c:
		default:
		}
	}
}

// Count returns the number of registered watchers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, set := range h.subs {
		n += len(set)
	}
	return n
}

// Close disconnects all watchers; later subscriptions are closed immediately.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for t, set := range h.subs {
		for ch := range set {
			close(ch)
		}
		delete(h.subs, t)
	}
}
