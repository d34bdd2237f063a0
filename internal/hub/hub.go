// Package hub implements the broadcast hub of the Drone Control Gateway.
//
// The hub keeps a subscriber set per drone and fans out telemetry and
// state-change events in emission order. A slow subscriber never blocks
// publication: each subscription carries a bounded ring buffer that
// drops its oldest event on overflow and counts the drop.
package hub

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	nuts "github.com/vaudience/go-nuts"
)

// EventType classifies hub events.
type EventType string

const (
	EventTelemetry EventType = "telemetry"
	EventState     EventType = "state"
	EventOffline   EventType = "offline"
	EventCommand   EventType = "commandResult"
)

// Causes attached to state-change events.
const (
	CauseCommand    = "command"
	CauseTelemetry  = "telemetry"
	CauseTimeout    = "timeout"
	CauseDisconnect = "disconnect"
)

// Event is a single hub event for one drone. Seq is the per-drone
// emission counter; events for the same drone are delivered to every
// subscriber in Seq order.
type Event struct {
	DroneID   string         `json:"droneId"`
	Type      EventType      `json:"type"`
	Seq       int64          `json:"seq"`
	State     string         `json:"state,omitempty"`
	Cause     string         `json:"cause,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"ts"`
}

// SendFunc delivers an event to an operator. The hub never holds
// connection handles; the gateway resolves the operator id through the
// session registry on each send.
type SendFunc func(operatorID string, ev Event) error

// Hub maintains per-drone subscriber sets and performs ordered,
// non-blocking fan-out.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[string]*subscriber // droneID -> operatorID -> sub
	pubMu  map[string]*sync.Mutex            // per-drone publish order lock
	seqs   map[string]*int64                 // per-drone emission counters
	send   SendFunc
	cap    int
	done   chan struct{}
	closed bool
	wg     sync.WaitGroup
}

// subscriber is one (drone, operator) subscription with its bounded
// outbound buffer and writer goroutine.
type subscriber struct {
	droneID    string
	operatorID string

	mu      sync.Mutex
	buf     *queue.Queue
	dropped uint64 // atomic

	notify chan struct{}
	quit   chan struct{}
	once   sync.Once
}

// New creates a hub. capacity bounds each subscriber's outbound buffer.
func New(capacity int, send SendFunc) *Hub {
	return &Hub{
		subs:  make(map[string]map[string]*subscriber),
		pubMu: make(map[string]*sync.Mutex),
		seqs:  make(map[string]*int64),
		send:  send,
		cap:   capacity,
		done:  make(chan struct{}),
	}
}

// Subscribe registers an operator's interest in a drone. Subscribing
// twice to the same drone is a no-op.
func (h *Hub) Subscribe(operatorID, droneID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	byOp, ok := h.subs[droneID]
	if !ok {
		byOp = make(map[string]*subscriber)
		h.subs[droneID] = byOp
	}
	if _, exists := byOp[operatorID]; exists {
		return
	}

	sub := &subscriber{
		droneID:    droneID,
		operatorID: operatorID,
		buf:        queue.New(),
		notify:     make(chan struct{}, 1),
		quit:       make(chan struct{}),
	}
	byOp[operatorID] = sub

	h.wg.Add(1)
	go h.writeLoop(sub)
}

// Unsubscribe removes one (operator, drone) subscription. Idempotent.
func (h *Hub) Unsubscribe(operatorID, droneID string) {
	h.mu.Lock()
	sub := h.takeLocked(operatorID, droneID)
	h.mu.Unlock()

	if sub != nil {
		sub.stop()
	}
}

// UnsubscribeAll removes every subscription held by an operator. Called
// when an operator session is destroyed.
func (h *Hub) UnsubscribeAll(operatorID string) {
	h.mu.Lock()
	var stopped []*subscriber
	for droneID := range h.subs {
		if sub := h.takeLocked(operatorID, droneID); sub != nil {
			stopped = append(stopped, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range stopped {
		sub.stop()
	}
}

// takeLocked removes and returns a subscription; caller holds h.mu.
func (h *Hub) takeLocked(operatorID, droneID string) *subscriber {
	byOp, ok := h.subs[droneID]
	if !ok {
		return nil
	}
	sub, ok := byOp[operatorID]
	if !ok {
		return nil
	}
	delete(byOp, operatorID)
	if len(byOp) == 0 {
		delete(h.subs, droneID)
	}
	return sub
}

// Publish delivers an event to every current subscriber of the drone.
// Emission order per drone is preserved; independent drones' streams
// have no ordering relationship. Publish never blocks on a subscriber.
func (h *Hub) Publish(droneID string, ev Event) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	lock, ok := h.pubMu[droneID]
	if !ok {
		lock = &sync.Mutex{}
		h.pubMu[droneID] = lock
	}
	counter, ok := h.seqs[droneID]
	if !ok {
		var initial int64
		counter = &initial
		h.seqs[droneID] = counter
	}
	h.mu.Unlock()

	// The per-drone lock spans seq assignment and all enqueues so two
	// concurrent publishers cannot interleave a drone's event order.
	lock.Lock()
	defer lock.Unlock()

	ev.DroneID = droneID
	ev.Seq = atomic.AddInt64(counter, 1)
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	h.mu.RLock()
	targets := make([]*subscriber, 0, len(h.subs[droneID]))
	for _, sub := range h.subs[droneID] {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	for _, sub := range targets {
		sub.enqueue(ev, h.cap)
	}
}

// Dropped reports how many events have been dropped for one
// subscription because its buffer overflowed. The counter only grows.
func (h *Hub) Dropped(operatorID, droneID string) uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if sub, ok := h.subs[droneID][operatorID]; ok {
		return atomic.LoadUint64(&sub.dropped)
	}
	return 0
}

// Stop tears down every subscription and waits for writer goroutines.
func (h *Hub) Stop() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	close(h.done)
	var all []*subscriber
	for _, byOp := range h.subs {
		for _, sub := range byOp {
			all = append(all, sub)
		}
	}
	h.subs = make(map[string]map[string]*subscriber)
	h.mu.Unlock()

	for _, sub := range all {
		sub.stop()
	}
	h.wg.Wait()
}

// enqueue adds an event to the subscriber buffer, dropping the oldest
// buffered event when the buffer is at capacity.
func (s *subscriber) enqueue(ev Event, capacity int) {
	s.mu.Lock()
	if s.buf.Length() >= capacity {
		s.buf.Remove()
		atomic.AddUint64(&s.dropped, 1)
	}
	s.buf.Add(ev)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscriber) stop() {
	s.once.Do(func() {
		close(s.quit)
	})
}

// writeLoop drains a subscriber's buffer to the operator connection.
// A send failure ends the subscription; the operator resubscribes on
// reconnect.
func (h *Hub) writeLoop(sub *subscriber) {
	defer h.wg.Done()

	for {
		select {
		case <-sub.quit:
			return
		case <-h.done:
			return
		case <-sub.notify:
		}

		for {
			sub.mu.Lock()
			if sub.buf.Length() == 0 {
				sub.mu.Unlock()
				break
			}
			ev := sub.buf.Remove().(Event)
			sub.mu.Unlock()

			if err := h.send(sub.operatorID, ev); err != nil {
				nuts.L.Debugf("[Hub] Dropping subscription %s/%s: %v", sub.operatorID, sub.droneID, err)
				h.mu.Lock()
				h.takeLocked(sub.operatorID, sub.droneID)
				h.mu.Unlock()
				sub.stop()
				return
			}
		}
	}
}
