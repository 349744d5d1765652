package stream

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-bonding-curve/internal/models"
)

// DefaultBuffer is the per-subscriber queue length used when none is given.
const DefaultBuffer = 64

// Filter selects trades by mint and side. Empty fields match everything.
type Filter struct {
	Mint string
	Side string
}

func (f Filter) Match(t *models.TradeEvent) bool {
	if f.Mint != "" && f.Mint != t.Mint {
		return false
	}
	return f.Side == "" || f.Side == t.Side
}

// Subscription is one consumer of a Hub.
type Subscription struct {
	hub    *Hub
	filter Filter
	ch     chan *models.TradeEvent
	once   sync.Once
}

// C delivers matching trades. It is closed when the subscription or the hub closes.
func (s *Subscription) C() <-chan *models.TradeEvent {
	return s.ch
}

func (s *Subscription) Close() {
	s.hub.remove(s)
}

// Hub fans committed trades out to in-process subscribers.
// Publishing never blocks: a subscriber whose queue is full misses the trade.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
	buffer int
	logger *logrus.Logger

	dropped atomic.Uint64
}

func NewHub(buffer int, logger *logrus.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Hub{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a consumer. On a closed hub the returned channel is already closed.
func (h *Hub) Subscribe(f Filter) *Subscription {
	s := &Subscription{hub: h, filter: f, ch: make(chan *models.TradeEvent, h.buffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		s.once.Do(func() { close(s.ch) })
		return s
	}
	h.subs[s] = struct{}{}
	return s
}

// PublishTrade implements storage.TradeSink.
func (h *Hub) PublishTrade(_ context.Context, event *models.TradeEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.subs {
		if !s.filter.Match(event) {
			continue
		}
		select {
		case s.ch <- event:
		default:
			h.dropped.Add(1)
			h.logger.WithFields(logrus.Fields{
				"mint": event.Mint,
				"side": event.Side,
			}).Debug("stream subscriber lagging, trade dropped")
		}
	}
	return nil
}

// Len reports the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped reports how many deliveries were skipped because a queue was full.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close ends every subscription. Later publishes are no-ops.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for s := range h.subs {
		delete(h.subs, s)
		s.once.Do(func() { close(s.ch) })
	}
	return nil
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, s)
	s.once.Do(func() { close(s.ch) })
}
