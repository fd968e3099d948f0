package ups

import (
	"log/slog"
	"slices"
	"sync"
)

const subscriptionBuffer = 16

// Hub fans out snapshot changes to subscribers. Each subscriber watches its
// own field list and only receives non-empty diffs.
type Hub struct {
	mu     sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64
	logger *slog.Logger
}

// NewHub returns a Hub. A nil logger discards.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Hub{subs: make(map[uint64]*Subscription), logger: logger}
}

// Subscription delivers DiffResults on C until Cancel is called.
type Subscription struct {
	C <-chan DiffResult

	c       chan DiffResult
	watched []string
	hub     *Hub
	id      uint64
	once    sync.Once
}

// Watched returns the fields this subscription compares.
func (s *Subscription) Watched() []string { return slices.Clone(s.watched) }

// Cancel stops delivery and closes C. It is safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s.id)
		close(s.c)
		s.hub.mu.Unlock()
	})
}

// Subscribe registers interest in changes to watched. An empty list still
// reports device name/description changes and devices appearing or
// disappearing.
func (h *Hub) Subscribe(watched []string) *Subscription {
	c := make(chan DiffResult, subscriptionBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	sub := &Subscription{C: c, c: c, watched: slices.Clone(watched), hub: h, id: h.nextID}
	h.subs[sub.id] = sub
	return sub
}

// Len returns the number of active subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Publish diffs prev against curr for every subscriber. Delivery never
// blocks; a subscriber whose buffer is full misses that result.
func (h *Hub) Publish(prev, curr *Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.subs {
		res := Diff(prev, curr, sub.watched)
		if !res.Changed {
			continue
		}
		select {
		case sub.c <- res:
		default:
			h.logger.Warn("subscriber too slow, dropping change", "subscription", id)
		}
	}
}
