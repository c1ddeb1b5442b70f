package event

import (
	"log/slog"
	"sync"
	"time"
)

// defaultHistory is the number of events retained for late joiners.
const defaultHistory = 1000

type subscriber struct {
	id int
	ch chan Event
}

// Hub fans coordination events out to subscribers and keeps a bounded
// history for replay. Publishing never blocks: a subscriber whose buffer is
// full misses the event.
type Hub struct {
	mu      sync.RWMutex
	subs    []subscriber
	nextID  int
	history []Event
	maxHist int
	logger  *slog.Logger
}

// NewHub creates a Hub with a 1000-event history cap.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		maxHist: defaultHistory,
		logger:  logger,
	}
}

// Publish stamps the event and delivers it to all subscribers. Events are
// appended to the history in publish order, which is the order every
// subscriber observes.
func (h *Hub) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.history = append(h.history, ev)
	if len(h.history) > h.maxHist {
		h.history = h.history[len(h.history)-h.maxHist:]
	}

	// Fan out under the same lock that guards unsubscribe, so a channel is
	// never closed mid-send. Sends never block: a slow subscriber misses the
	// event instead of stalling the publisher.
	for _, s := range h.subs {
		select {
		case s.ch <- ev:
		default:
		}
	}
}

// Subscribe registers a new observer. The returned channel receives every
// subsequent event until unsubscribe is called, which also closes it.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	s := subscriber{id: h.nextID, ch: make(chan Event, 64)}
	h.subs = append(h.subs, s)

	return s.ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for i, cur := range h.subs {
			if cur.id == s.id {
				h.subs = append(h.subs[:i], h.subs[i+1:]...)
				close(cur.ch)
				return
			}
		}
	}
}

// Recent returns up to n of the most recent events in insertion order.
// n <= 0 returns the full retained history.
func (h *Hub) Recent(n int) []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()

	start := 0
	if n > 0 && len(h.history) > n {
		start = len(h.history) - n
	}
	out := make([]Event, len(h.history)-start)
	copy(out, h.history[start:])
	return out
}

// ByType returns up to n of the most recent events of the given type, in
// insertion order.
func (h *Hub) ByType(t Type, n int) []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []Event
	for i := len(h.history) - 1; i >= 0; i-- {
		if h.history[i].Type == t {
			out = append(out, h.history[i])
			if n > 0 && len(out) >= n {
				break
			}
		}
	}
	for l, r := 0, len(out)-1; l < r; l, r = l+1, r-1 {
		out[l], out[r] = out[r], out[l]
	}
	return out
}
