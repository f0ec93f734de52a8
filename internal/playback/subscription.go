package playback

import (
	"sync"

	"go.uber.org/zap"
)

// Observer receives session events.
type Observer interface {
	Notify(e Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(e Event)

func (f ObserverFunc) Notify(e Event) { f(e) }

// Subscription is the handle returned by Hub.Subscribe.
type Subscription struct {
	hub  *Hub
	id   uint64
	once sync.Once
}

// Unsubscribe removes the observer. It is safe to call more than once and
// after the session has stopped.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.hub.remove(s.id)
	})
}

type observerEntry struct {
	id       uint64
	observer Observer
}

// Hub fans events out to observers in registration order.
type Hub struct {
	logger *zap.Logger

	mu        sync.Mutex
	nextID    uint64
	observers []observerEntry
	closed    bool
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{logger: logger}
}

// Subscribe registers o. Subscribing to a closed hub returns a subscription
// that never receives events.
func (h *Hub) Subscribe(o Observer) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	sub := &Subscription{hub: h, id: h.nextID}
	if !h.closed {
		h.observers = append(h.observers, observerEntry{id: sub.id, observer: o})
	}
	return sub
}

// Publish delivers e to every observer synchronously. Observers may call
// Subscribe or Unsubscribe from Notify; the set seen by one Publish is
// fixed when it starts.
func (h *Hub) Publish(e Event) {
	h.mu.Lock()
	observers := make([]observerEntry, len(h.observers))
	copy(observers, h.observers)
	h.mu.Unlock()

	for _, entry := range observers {
		h.deliver(entry, e)
	}
}

func (h *Hub) deliver(entry observerEntry, e Event) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("observer panicked",
				zap.Uint64("observer", entry.id),
				zap.Any("panic", r),
			)
		}
	}()
	entry.observer.Notify(e)
}

// Len returns the number of registered observers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.observers)
}

// Close drops every observer. Later Subscribe calls are inert.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.observers = nil
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, entry := range h.observers {
		if entry.id == id {
			h.observers = append(h.observers[:i:i], h.observers[i+1:]...)
			return
		}
	}
}

// eventPump delivers events to a hub from a single goroutine, in the order
// they were queued. Queuing never blocks.
type eventPump struct {
	hub *Hub

	mu      sync.Mutex
	pending []Event
	closing bool

	wake chan struct{}
	done chan struct{}
}

func newEventPump(hub *Hub) *eventPump {
	p := &eventPump{
		hub:  hub,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *eventPump) send(e Event) {
	p.mu.Lock()
	if p.closing {
		p.mu.Unlock()
		return
	}
	p.pending = append(p.pending, e)
	p.mu.Unlock()
	p.signal()
}

// close stops accepting events. Already queued events are still delivered,
// then the hub is closed.
func (p *eventPump) close() {
	p.mu.Lock()
	p.closing = true
	p.mu.Unlock()
	p.signal()
}

func (p *eventPump) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *eventPump) run() {
	defer close(p.done)
	for range p.wake {
		p.mu.Lock()
		batch := p.pending
		p.pending = nil
		closing := p.closing
		p.mu.Unlock()

		for _, e := range batch {
			p.hub.Publish(e)
		}
		if closing {
			// send refuses events once closing is set, so nothing is left.
			p.hub.Close()
			return
		}
	}
}
