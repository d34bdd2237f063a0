package hub

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// collector is a SendFunc that records deliveries per operator.
type collector struct {
	mu     sync.Mutex
	byOp   map[string][]Event
	gate   chan struct{} // if set, every send blocks until the gate yields
	failOp string        // sends to this operator fail
}

func newCollector() *collector {
	return &collector{byOp: make(map[string][]Event)}
}

func (c *collector) send(operatorID string, ev Event) error {
	if c.gate != nil {
		<-c.gate
	}
	if operatorID == c.failOp {
		return errors.New("write: broken pipe")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byOp[operatorID] = append(c.byOp[operatorID], ev)
	return nil
}

func (c *collector) events(operatorID string) []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.byOp[operatorID]...)
}

// waitFor polls until the operator has received n events or the deadline
// passes.
func (c *collector) waitFor(t *testing.T, operatorID string, n int) []Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if evs := c.events(operatorID); len(evs) >= n {
			return evs
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("operator %s received %d events, want %d", operatorID, len(c.events(operatorID)), n)
	return nil
}

func TestPublishFansOutInOrder(t *testing.T) {
	c := newCollector()
	h := New(64, c.send)
	defer h.Stop()

	h.Subscribe("o1", "d1")
	h.Subscribe("o2", "d1")

	for i := 0; i < 10; i++ {
		h.Publish("d1", Event{Type: EventTelemetry})
	}

	for _, op := range []string{"o1", "o2"} {
		evs := c.waitFor(t, op, 10)
		for i, ev := range evs {
			if ev.Seq != int64(i+1) {
				t.Errorf("operator %s event %d has seq %d, want %d", op, i, ev.Seq, i+1)
			}
			if ev.DroneID != "d1" {
				t.Errorf("event carries drone %q, want d1", ev.DroneID)
			}
		}
	}
}

func TestDroneStreamsAreIndependent(t *testing.T) {
	c := newCollector()
	h := New(64, c.send)
	defer h.Stop()

	h.Subscribe("o1", "d1")
	h.Subscribe("o1", "d2")

	h.Publish("d1", Event{Type: EventTelemetry})
	h.Publish("d2", Event{Type: EventTelemetry})
	h.Publish("d1", Event{Type: EventTelemetry})

	evs := c.waitFor(t, "o1", 3)
	var d1Seqs, d2Seqs []int64
	for _, ev := range evs {
		switch ev.DroneID {
		case "d1":
			d1Seqs = append(d1Seqs, ev.Seq)
		case "d2":
			d2Seqs = append(d2Seqs, ev.Seq)
		}
	}
	// Per-drone counters start at 1 independently.
	if len(d1Seqs) != 2 || d1Seqs[0] != 1 || d1Seqs[1] != 2 {
		t.Errorf("d1 seqs = %v, want [1 2]", d1Seqs)
	}
	if len(d2Seqs) != 1 || d2Seqs[0] != 1 {
		t.Errorf("d2 seqs = %v, want [1]", d2Seqs)
	}
}

func TestOverflowDropsOldestAndCounts(t *testing.T) {
	const capacity = 4

	c := newCollector()
	c.gate = make(chan struct{})
	h := New(capacity, c.send)
	defer h.Stop()

	h.Subscribe("o1", "d1")

	// The writer pulls the first event and blocks in send, leaving the
	// buffer empty.
	h.Publish("d1", Event{Type: EventTelemetry})
	h.mu.RLock()
	sub := h.subs["d1"]["o1"]
	h.mu.RUnlock()
	deadline := time.Now().Add(2 * time.Second)
	for {
		sub.mu.Lock()
		pulled := sub.buf.Length() == 0
		sub.mu.Unlock()
		if pulled {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("writer never pulled the first event")
		}
		time.Sleep(time.Millisecond)
	}

	// Overfill the buffer while the writer is stuck.
	const extra = 5
	for i := 0; i < capacity+extra; i++ {
		h.Publish("d1", Event{Type: EventTelemetry})
	}
	if got := h.Dropped("o1", "d1"); got != extra {
		t.Errorf("dropped = %d, want %d", got, extra)
	}

	// Release the writer and drain everything.
	close(c.gate)
	evs := c.waitFor(t, "o1", 1+capacity)

	if len(evs) != 1+capacity {
		t.Fatalf("delivered %d events, want %d", len(evs), 1+capacity)
	}
	// The survivors are the most recent ones, still in order.
	if evs[0].Seq != 1 {
		t.Errorf("first delivered seq = %d, want 1", evs[0].Seq)
	}
	total := int64(1 + capacity + extra)
	for i, ev := range evs[1:] {
		want := total - int64(capacity) + int64(i) + 1
		if ev.Seq != want {
			t.Errorf("delivered event %d has seq %d, want %d", i+1, ev.Seq, want)
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	c := newCollector()
	h := New(64, c.send)
	defer h.Stop()

	h.Subscribe("o1", "d1")
	h.Publish("d1", Event{Type: EventTelemetry})
	c.waitFor(t, "o1", 1)

	h.Unsubscribe("o1", "d1")
	h.Publish("d1", Event{Type: EventTelemetry})

	time.Sleep(50 * time.Millisecond)
	if got := len(c.events("o1")); got != 1 {
		t.Errorf("events after unsubscribe = %d, want 1", got)
	}
}

func TestUnsubscribeAllRemovesEverySubscription(t *testing.T) {
	c := newCollector()
	h := New(64, c.send)
	defer h.Stop()

	h.Subscribe("o1", "d1")
	h.Subscribe("o1", "d2")
	h.Subscribe("o2", "d1")

	h.UnsubscribeAll("o1")
	h.Publish("d1", Event{Type: EventTelemetry})
	h.Publish("d2", Event{Type: EventTelemetry})

	c.waitFor(t, "o2", 1)
	time.Sleep(50 * time.Millisecond)
	if got := len(c.events("o1")); got != 0 {
		t.Errorf("o1 received %d events after UnsubscribeAll", got)
	}
}

func TestSendFailureEndsSubscription(t *testing.T) {
	c := newCollector()
	c.failOp = "o1"
	h := New(64, c.send)
	defer h.Stop()

	h.Subscribe("o1", "d1")
	h.Subscribe("o2", "d1")

	h.Publish("d1", Event{Type: EventTelemetry})
	c.waitFor(t, "o2", 1)

	// The failed subscription is removed; a healthy peer is unaffected
	// and the dead one reports zero because it no longer exists.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h.mu.RLock()
		_, exists := h.subs["d1"]["o1"]
		h.mu.RUnlock()
		if !exists {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Error("failed subscription was not removed")
}
