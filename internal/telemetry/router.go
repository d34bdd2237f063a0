package telemetry

import (
	"time"

	nuts "github.com/vaudience/go-nuts"

	"github.com/drone-control/dcg/internal/hub"
	"github.com/drone-control/dcg/internal/session"
	"github.com/drone-control/dcg/internal/state"
)

// Router applies telemetry frames in drone-assigned sequence order and
// republishes them to subscribed operators through the broadcast hub.
type Router struct {
	registry  *session.Registry
	hub       *hub.Hub
	landedMax float64
}

// NewRouter creates a telemetry router. landedMax is the altitude at or
// below which a landing drone is considered on the ground.
func NewRouter(registry *session.Registry, broadcast *hub.Hub, landedMax float64) *Router {
	return &Router{
		registry:  registry,
		hub:       broadcast,
		landedMax: landedMax,
	}
}

// Ingest applies one telemetry frame. A frame whose sequence number is
// at or below the last applied sequence for the drone is a duplicate or
// out-of-order retransmit and is silently discarded: ingest is
// idempotent under retransmission and never surfaces that as an error.
func (r *Router) Ingest(frame Frame) error {
	sess, err := r.registry.Drone(frame.DroneID)
	if err != nil {
		return err
	}

	if frame.ReceivedAt.IsZero() {
		frame.ReceivedAt = time.Now().UTC()
	}

	sess.Lock()
	m := sess.Machine()
	if frame.Seq <= m.LastSeq() {
		sess.Unlock()
		nuts.L.Debugf("[Router] Drone %s frame seq %d <= last %d, discarded", frame.DroneID, frame.Seq, m.LastSeq())
		return nil
	}

	snap := state.Snapshot{
		Latitude:  frame.Payload.Latitude,
		Longitude: frame.Payload.Longitude,
		Altitude:  frame.Payload.Altitude,
		Battery:   frame.Payload.Battery,
		UpdatedAt: frame.ReceivedAt,
	}
	phase, transitioned := m.ApplyTelemetry(frame.Seq, snap, r.landedMax)

	// Publishing under the session lock keeps telemetry and
	// state-change events for this drone in emission order; the hub
	// only enqueues, it never waits on subscribers.
	r.hub.Publish(frame.DroneID, hub.Event{
		Type:      hub.EventTelemetry,
		Timestamp: frame.ReceivedAt,
		Data: map[string]any{
			"seq":     frame.Seq,
			"payload": frame.Payload,
		},
	})
	if transitioned {
		nuts.L.Infof("[Router] Drone %s touched down, phase %s", frame.DroneID, phase)
		r.hub.Publish(frame.DroneID, hub.Event{
			Type:  hub.EventState,
			State: phase.String(),
			Cause: hub.CauseTelemetry,
		})
	}
	sess.Unlock()

	// Telemetry counts as proof of life.
	sess.Touch(frame.ReceivedAt)

	return nil
}
