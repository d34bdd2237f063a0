package command

import (
	"fmt"
	"sync"
	"time"

	nuts "github.com/vaudience/go-nuts"

	"github.com/drone-control/dcg/internal/hub"
	"github.com/drone-control/dcg/internal/session"
	"github.com/drone-control/dcg/internal/state"
)

// pending is one queued command with its ack deadline.
type pending struct {
	cmd    *Command
	timer  *time.Timer
	sentAt time.Time
}

// droneQueue is the ordered pending-command queue of one drone. Its
// contents are guarded by that drone's session lock; at most the head
// is ever in flight.
type droneQueue struct {
	items    []*pending
	inflight bool
}

// Dispatcher serializes validated commands per drone and delivers them
// to the drone connection, tracking acknowledgement.
type Dispatcher struct {
	registry   *session.Registry
	hub        *hub.Hub
	validator  *Validator
	ackTimeout time.Duration

	audit   AuditLogger
	results ResultFunc

	qmu    sync.Mutex
	queues map[string]*droneQueue
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(registry *session.Registry, broadcast *hub.Hub, validator *Validator, ackTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		registry:   registry,
		hub:        broadcast,
		validator:  validator,
		ackTimeout: ackTimeout,
		queues:     make(map[string]*droneQueue),
	}
}

// SetAuditLogger installs the audit sink.
func (d *Dispatcher) SetAuditLogger(audit AuditLogger) {
	d.audit = audit
}

// SetResultFunc installs the asynchronous result callback.
func (d *Dispatcher) SetResultFunc(fn ResultFunc) {
	d.results = fn
}

// queue returns the pending queue for a drone, creating it on first
// use. Only the map itself is guarded here; queue contents belong to
// the drone's session lock.
func (d *Dispatcher) queue(droneID string) *droneQueue {
	d.qmu.Lock()
	defer d.qmu.Unlock()

	q, ok := d.queues[droneID]
	if !ok {
		q = &droneQueue{}
		d.queues[droneID] = q
	}
	return q
}

// Submit validates a command, assigns its monotonic id, enqueues it,
// and attempts delivery if it reaches the queue head. EmergencyStop
// jumps ahead of every queued command. Returns the command id, or the
// validation/delivery error surfaced synchronously to the caller.
func (d *Dispatcher) Submit(cmd *Command) (int64, error) {
	start := time.Now()
	if cmd.IssuedAt.IsZero() {
		cmd.IssuedAt = start
	}

	sess, err := d.registry.Drone(cmd.DroneID)
	if err != nil {
		d.logAudit("submit", cmd, "UNKNOWN_DRONE", time.Since(start))
		return 0, fmt.Errorf("%w: %s", ErrUnknownDrone, cmd.DroneID)
	}
	q := d.queue(cmd.DroneID)

	sess.Lock()
	phase := sess.Machine().Phase()
	if err := d.validator.Validate(cmd, phase, sess.LastIssuedID()); err != nil {
		sess.Unlock()
		d.logAudit("submit", cmd, "REJECTED", time.Since(start))
		return 0, err
	}
	cmd.ID = sess.NextCommandID()

	p := &pending{cmd: cmd}
	if cmd.Kind == state.KindEmergencyStop {
		// Queue-jump: ahead of everything not already in flight.
		idx := 0
		if q.inflight {
			idx = 1
		}
		q.items = append(q.items, nil)
		copy(q.items[idx+1:], q.items[idx:])
		q.items[idx] = p
	} else {
		q.items = append(q.items, p)
	}

	failed := d.deliverLocked(sess, q)
	sess.Unlock()

	// The submitted command failing its own delivery is surfaced
	// synchronously; anything else that failed in the same pass is
	// notified through the result callback.
	var submitFailed bool
	for _, f := range failed {
		if f.cmd == cmd {
			submitFailed = true
			continue
		}
		d.notify(Result{
			CommandID:  f.cmd.ID,
			DroneID:    f.cmd.DroneID,
			OperatorID: f.cmd.OperatorID,
			Outcome:    OutcomeError,
			Reason:     ErrDroneUnreachable.Error(),
		})
		d.logAudit("deliver", f.cmd, "DRONE_UNREACHABLE", time.Since(f.cmd.IssuedAt))
	}
	if submitFailed {
		d.logAudit("submit", cmd, "DRONE_UNREACHABLE", time.Since(start))
		return 0, fmt.Errorf("%w: %s", ErrDroneUnreachable, cmd.DroneID)
	}

	d.logAudit("submit", cmd, "ACCEPTED", time.Since(start))
	return cmd.ID, nil
}

// deliverLocked pushes queue heads to the drone until one is in flight
// or the queue drains. Each command gets exactly one delivery attempt;
// failures are popped and returned. Caller holds the session lock.
func (d *Dispatcher) deliverLocked(sess *session.DroneSession, q *droneQueue) []*pending {
	var failed []*pending

	for !q.inflight && len(q.items) > 0 {
		head := q.items[0]
		delivery := session.CommandDelivery{
			CommandID: head.cmd.ID,
			Kind:      head.cmd.Kind.String(),
			Payload:   head.cmd.Payload,
		}
		if err := sess.Send(delivery); err != nil {
			nuts.L.Warnf("[Dispatcher] Drone %s unreachable for command %d: %v", sess.ID, head.cmd.ID, err)
			q.items = q.items[1:]
			failed = append(failed, head)
			continue
		}

		q.inflight = true
		head.sentAt = time.Now()
		droneID, cmdID := head.cmd.DroneID, head.cmd.ID
		head.timer = time.AfterFunc(d.ackTimeout, func() {
			d.expire(droneID, cmdID)
		})
	}

	return failed
}

// Ack records the drone's reply for the in-flight command. A successful
// outcome drives the state-machine transition; failure just drops the
// command. Replies for anything but the current in-flight command are
// ignored (they raced a timeout).
func (d *Dispatcher) Ack(droneID string, commandID int64, outcome Outcome, reason string) error {
	sess, err := d.registry.Drone(droneID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownDrone, droneID)
	}
	q := d.queue(droneID)

	sess.Lock()
	if !q.inflight || len(q.items) == 0 || q.items[0].cmd.ID != commandID {
		sess.Unlock()
		nuts.L.Debugf("[Dispatcher] Drone %s stray ack for command %d, ignored", droneID, commandID)
		return nil
	}

	head := q.items[0]
	head.timer.Stop()
	q.items = q.items[1:]
	q.inflight = false

	if outcome == OutcomeAck {
		if newPhase, ok := sess.Machine().ApplyCommandAck(head.cmd.Kind); ok {
			d.hub.Publish(droneID, hub.Event{
				Type:  hub.EventState,
				State: newPhase.String(),
				Cause: hub.CauseCommand,
			})
		} else {
			// The phase moved underneath an already-dispatched
			// command (e.g. a forced Fault); the ack no longer
			// drives a transition.
			nuts.L.Warnf("[Dispatcher] Drone %s acked %s but phase %s does not permit it", droneID, head.cmd.Kind, sess.Machine().Phase())
		}
	}

	failed := d.deliverLocked(sess, q)
	sess.Unlock()

	d.notify(Result{
		CommandID:  head.cmd.ID,
		DroneID:    droneID,
		OperatorID: head.cmd.OperatorID,
		Outcome:    outcome,
		Reason:     reason,
	})
	d.logAudit("ack", head.cmd, string(outcome), time.Since(head.cmd.IssuedAt))
	d.notifyFailures(failed)

	return nil
}

// expire drops an in-flight command whose acknowledgement never
// arrived. The issuing operator is notified and must resubmit
// explicitly; auto-retrying physical actuation is unsafe.
func (d *Dispatcher) expire(droneID string, commandID int64) {
	sess, err := d.registry.Drone(droneID)
	if err != nil {
		return // session already destroyed, queue dropped with it
	}
	q := d.queue(droneID)

	sess.Lock()
	if !q.inflight || len(q.items) == 0 || q.items[0].cmd.ID != commandID {
		sess.Unlock()
		return // ack won the race
	}
	head := q.items[0]
	q.items = q.items[1:]
	q.inflight = false
	failed := d.deliverLocked(sess, q)
	sess.Unlock()

	nuts.L.Warnf("[Dispatcher] Drone %s command %d timed out awaiting ack", droneID, commandID)
	d.notify(Result{
		CommandID:  head.cmd.ID,
		DroneID:    droneID,
		OperatorID: head.cmd.OperatorID,
		Outcome:    OutcomeTimeout,
		Reason:     ErrCommandTimedOut.Error(),
	})
	d.logAudit("timeout", head.cmd, "COMMAND_TIMED_OUT", time.Since(head.cmd.IssuedAt))
	d.notifyFailures(failed)
}

// DropPending discards every queued command for a drone. Called when
// the drone's session is destroyed; issuing operators are notified so
// they are not left waiting on a vanished queue.
func (d *Dispatcher) DropPending(droneID string) {
	d.qmu.Lock()
	q, ok := d.queues[droneID]
	delete(d.queues, droneID)
	d.qmu.Unlock()
	if !ok {
		return
	}

	// The session may already be unregistered; the queue map entry is
	// detached above, so no new submits can race this drain.
	var dropped []*pending
	if sess, err := d.registry.Drone(droneID); err == nil {
		sess.Lock()
		dropped = q.items
		q.items = nil
		q.inflight = false
		sess.Unlock()
	} else {
		dropped = q.items
		q.items = nil
		q.inflight = false
	}

	for _, p := range dropped {
		if p.timer != nil {
			p.timer.Stop()
		}
		d.notify(Result{
			CommandID:  p.cmd.ID,
			DroneID:    droneID,
			OperatorID: p.cmd.OperatorID,
			Outcome:    OutcomeError,
			Reason:     "SESSION_CLOSED",
		})
		d.logAudit("drop", p.cmd, "SESSION_CLOSED", time.Since(p.cmd.IssuedAt))
	}
}

// QueueDepth reports how many commands are pending for a drone.
func (d *Dispatcher) QueueDepth(droneID string) int {
	d.qmu.Lock()
	q, ok := d.queues[droneID]
	d.qmu.Unlock()
	if !ok {
		return 0
	}

	sess, err := d.registry.Drone(droneID)
	if err != nil {
		return 0
	}
	sess.Lock()
	defer sess.Unlock()
	return len(q.items)
}

func (d *Dispatcher) notify(res Result) {
	if d.results != nil {
		d.results(res)
	}
}

func (d *Dispatcher) notifyFailures(failed []*pending) {
	for _, f := range failed {
		d.notify(Result{
			CommandID:  f.cmd.ID,
			DroneID:    f.cmd.DroneID,
			OperatorID: f.cmd.OperatorID,
			Outcome:    OutcomeError,
			Reason:     ErrDroneUnreachable.Error(),
		})
		d.logAudit("deliver", f.cmd, "DRONE_UNREACHABLE", time.Since(f.cmd.IssuedAt))
	}
}

func (d *Dispatcher) logAudit(action string, cmd *Command, outcome string, latency time.Duration) {
	if d.audit != nil {
		d.audit.LogAction(action, cmd.DroneID, cmd.OperatorID, cmd.ID, outcome, latency)
	}
}
