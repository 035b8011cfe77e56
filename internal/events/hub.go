package events

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"crowdsale-ledger/internal/domain"
	"crowdsale-ledger/internal/observability"
)

// DefaultSubscriberBuffer is the per-subscriber queue length.
const DefaultSubscriberBuffer = 256

// Subscription is one subscriber's event queue. C is closed when the
// subscription ends.
type Subscription struct {
	C <-chan *domain.Event

	ch      chan *domain.Event
	sale    domain.Pubkey
	dropped atomic.Uint64
}

// Dropped returns the number of events discarded because the queue was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Subscription) wants(e *domain.Event) bool {
	return s.sale.IsZero() || s.sale == e.Sale
}

// Hub fans committed events out to in-process subscribers. Publish never
// blocks: a subscriber whose queue is full misses the event.
type Hub struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	buffer int
	logger *zap.Logger
}

// NewHub creates a Hub. buffer <= 0 selects DefaultSubscriberBuffer.
func NewHub(buffer int, logger *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
		logger: logger.Named("hub"),
	}
}

// Subscribe registers a subscriber for events of sale, or of every sale
// when sale is the zero key.
func (h *Hub) Subscribe(sale domain.Pubkey) *Subscription {
	ch := make(chan *domain.Event, h.buffer)
	s := &Subscription{C: ch, ch: ch, sale: sale}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()

	observability.SetWSSubscribers(n)
	return s
}

// Unsubscribe removes s and closes its channel. It is safe to call twice.
func (h *Hub) Unsubscribe(s *Subscription) {
	h.mu.Lock()
	_, ok := h.subs[s]
	if ok {
		delete(h.subs, s)
		close(s.ch)
	}
	n := len(h.subs)
	h.mu.Unlock()

	if ok {
		observability.SetWSSubscribers(n)
	}
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Publish implements Sink.
func (h *Hub) Publish(_ context.Context, e *domain.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.subs {
		if !s.wants(e) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			dropped := s.dropped.Add(1)
			h.logger.Warn("subscriber queue full, event dropped",
				zap.String("event_id", e.ID),
				zap.Stringer("sale", e.Sale),
				zap.Uint64("dropped", dropped),
			)
		}
	}
	return nil
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	for s := range h.subs {
		delete(h.subs, s)
		close(s.ch)
	}
	h.mu.Unlock()
	observability.SetWSSubscribers(0)
}
