// Package gateway assembles the Drone Control Gateway core and exposes
// its operations as plain function calls.
//
// The transport layer feeds connect/disconnect notifications, telemetry
// frames, command submissions, and subscription changes into this
// facade; the facade owns the session registry, state machines, command
// dispatch, and broadcast fan-out behind it.
package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	nuts "github.com/vaudience/go-nuts"

	"github.com/drone-control/dcg/internal/command"
	"github.com/drone-control/dcg/internal/config"
	"github.com/drone-control/dcg/internal/hub"
	"github.com/drone-control/dcg/internal/session"
	"github.com/drone-control/dcg/internal/state"
	"github.com/drone-control/dcg/internal/telemetry"
)

// Gateway is the real-time session/command/telemetry engine.
type Gateway struct {
	cfg        *config.Config
	registry   *session.Registry
	hub        *hub.Hub
	validator  *command.Validator
	dispatcher *command.Dispatcher
	router     *telemetry.Router
	started    time.Time
}

// DroneStatus is the status-query view of one drone.
type DroneStatus struct {
	DroneID    string         `json:"droneId"`
	Phase      string         `json:"phase"`
	LastSeen   time.Time      `json:"lastSeen"`
	QueueDepth int            `json:"queueDepth"`
	Snapshot   state.Snapshot `json:"snapshot"`
}

// Summary is the gateway-wide status view.
type Summary struct {
	UptimeSeconds float64  `json:"uptimeSeconds"`
	Drones        []string `json:"drones"`
}

// New wires the gateway core. auditLogger may be nil.
func New(cfg *config.Config, auditLogger command.AuditLogger) *Gateway {
	g := &Gateway{
		cfg:     cfg,
		started: time.Now(),
	}

	g.registry = session.NewRegistry(cfg.Timing.LivenessTimeout, cfg.Timing.SweepInterval)
	g.hub = hub.New(cfg.Timing.SubscriberBufferSize, g.sendToOperator)
	g.validator = command.NewValidator()
	g.dispatcher = command.NewDispatcher(g.registry, g.hub, g.validator, cfg.Timing.CommandAckTimeout)
	g.dispatcher.SetResultFunc(g.deliverResult)
	if auditLogger != nil {
		g.dispatcher.SetAuditLogger(auditLogger)
	}
	g.router = telemetry.NewRouter(g.registry, g.hub, cfg.Timing.LandedAltitudeMax)
	g.registry.SetEvictionHandler(g)

	return g
}

// Start launches background work (the liveness sweep).
func (g *Gateway) Start() {
	g.registry.Start()
	nuts.L.Infof("[Gateway] Core started (liveness %v, ack timeout %v)", g.cfg.Timing.LivenessTimeout, g.cfg.Timing.CommandAckTimeout)
}

// Stop halts background work and tears down fan-out.
func (g *Gateway) Stop() {
	g.registry.Stop()
	g.hub.Stop()
	nuts.L.Infof("[Gateway] Core stopped")
}

// sendToOperator is the hub's send function: subscriptions hold only
// operator ids, resolved through the registry on every delivery.
func (g *Gateway) sendToOperator(operatorID string, ev hub.Event) error {
	sess, err := g.registry.Operator(operatorID)
	if err != nil {
		return err
	}
	return sess.SendEvent(ev)
}

// deliverResult pushes an asynchronous command result to the issuing
// operator only. Delivery failures are logged, never propagated: a gone
// operator does not affect the drone's queue.
func (g *Gateway) deliverResult(res command.Result) {
	sess, err := g.registry.Operator(res.OperatorID)
	if err != nil {
		nuts.L.Debugf("[Gateway] Result for command %d undeliverable, operator %s gone", res.CommandID, res.OperatorID)
		return
	}
	ev := hub.Event{
		DroneID:   res.DroneID,
		Type:      hub.EventCommand,
		Timestamp: time.Now().UTC(),
		Data: map[string]any{
			"commandId": res.CommandID,
			"outcome":   string(res.Outcome),
		},
	}
	if res.Reason != "" {
		ev.Data["reason"] = res.Reason
	}
	if err := sess.SendEvent(ev); err != nil {
		nuts.L.Debugf("[Gateway] Result for command %d failed to send: %v", res.CommandID, err)
	}
}

// DroneConnected registers a drone connection. Fails with
// DUPLICATE_SESSION if the drone already has an active session.
func (g *Gateway) DroneConnected(droneID string, conn session.DroneConn) error {
	_, err := g.registry.RegisterDrone(droneID, conn)
	return err
}

// DroneDisconnected destroys a drone session after an orderly or
// unexpected transport close. A drone that vanishes mid-air is forced
// into Fault so observers don't keep believing it is flying.
func (g *Gateway) DroneDisconnected(droneID string) {
	sess, err := g.registry.Drone(droneID)
	if err != nil {
		return
	}

	sess.Lock()
	phase := sess.Machine().Phase()
	if phase == state.PhaseFlying || phase == state.PhaseLanding {
		sess.Machine().Fault()
		g.hub.Publish(droneID, hub.Event{
			Type:  hub.EventState,
			State: state.PhaseFault.String(),
			Cause: hub.CauseDisconnect,
		})
	}
	sess.Unlock()

	g.dispatcher.DropPending(droneID)
	g.hub.Publish(droneID, hub.Event{
		Type:  hub.EventOffline,
		Cause: hub.CauseDisconnect,
	})
	g.registry.Unregister(droneID)
}

// OperatorConnected registers an operator connection.
func (g *Gateway) OperatorConnected(operatorID string, conn session.OperatorConn) error {
	_, err := g.registry.RegisterOperator(operatorID, conn)
	return err
}

// OperatorDisconnected destroys an operator session and all its
// subscriptions. Pending commands it issued are unaffected.
func (g *Gateway) OperatorDisconnected(operatorID string) {
	g.hub.UnsubscribeAll(operatorID)
	g.registry.Unregister(operatorID)
}

// SubmitCommand validates and dispatches one operator command,
// returning the assigned command id. All validator and dispatcher
// rejections surface synchronously here.
func (g *Gateway) SubmitCommand(operatorID, droneID, kind string, payload json.RawMessage) (int64, error) {
	k, ok := state.ParseKind(kind)
	if !ok {
		return 0, fmt.Errorf("%w: unknown command kind %q", command.ErrMalformedPayload, kind)
	}

	return g.dispatcher.Submit(&command.Command{
		DroneID:    droneID,
		OperatorID: operatorID,
		Kind:       k,
		Payload:    payload,
		IssuedAt:   time.Now(),
	})
}

// Ack records a drone's reply to a dispatched command.
func (g *Gateway) Ack(droneID string, commandID int64, accepted bool, reason string) error {
	outcome := command.OutcomeAck
	if !accepted {
		outcome = command.OutcomeNack
	}
	return g.dispatcher.Ack(droneID, commandID, outcome, reason)
}

// IngestTelemetry routes one telemetry frame.
func (g *Gateway) IngestTelemetry(frame telemetry.Frame) error {
	return g.router.Ingest(frame)
}

// IngestSensorLine decodes a raw flight-controller sensor line and
// routes it as a telemetry frame.
func (g *Gateway) IngestSensorLine(droneID string, seq uint64, line string) error {
	payload, err := telemetry.ParseSensorLine(line)
	if err != nil {
		return err
	}
	return g.router.Ingest(telemetry.Frame{
		DroneID: droneID,
		Seq:     seq,
		Payload: payload,
	})
}

// Heartbeat refreshes a session's liveness.
func (g *Gateway) Heartbeat(id string) error {
	return g.registry.Heartbeat(id, time.Now())
}

// Subscribe registers an operator's interest in a drone's events. The
// drone id is a weak reference: subscribing to a drone that has not
// connected yet is allowed and delivers events once it appears.
func (g *Gateway) Subscribe(operatorID, droneID string) error {
	if _, err := g.registry.Operator(operatorID); err != nil {
		return err
	}
	g.hub.Subscribe(operatorID, droneID)
	return nil
}

// Unsubscribe removes an operator's interest in a drone.
func (g *Gateway) Unsubscribe(operatorID, droneID string) {
	g.hub.Unsubscribe(operatorID, droneID)
}

// DroneStatus answers a status query for one drone.
func (g *Gateway) DroneStatus(droneID string) (DroneStatus, error) {
	sess, err := g.registry.Drone(droneID)
	if err != nil {
		return DroneStatus{}, err
	}

	sess.Lock()
	phase := sess.Machine().Phase()
	snap := sess.Machine().Snapshot()
	sess.Unlock()

	return DroneStatus{
		DroneID:    droneID,
		Phase:      phase.String(),
		LastSeen:   sess.LastSeen(),
		QueueDepth: g.dispatcher.QueueDepth(droneID),
		Snapshot:   snap,
	}, nil
}

// Status answers the gateway-wide status query.
func (g *Gateway) Status() Summary {
	return Summary{
		UptimeSeconds: time.Since(g.started).Seconds(),
		Drones:        g.registry.DroneIDs(),
	}
}

// DroneEvicted implements session.EvictionHandler: a drone that missed
// the liveness timeout is forced to Fault and its queue dropped, so
// subscribers are never left believing a silent drone is still mid-air.
func (g *Gateway) DroneEvicted(droneID string) {
	sess, err := g.registry.Drone(droneID)
	if err != nil {
		return
	}

	sess.Lock()
	faulted := sess.Machine().Fault()
	if faulted {
		g.hub.Publish(droneID, hub.Event{
			Type:  hub.EventState,
			State: state.PhaseFault.String(),
			Cause: hub.CauseTimeout,
		})
	}
	sess.Unlock()

	g.dispatcher.DropPending(droneID)
	g.hub.Publish(droneID, hub.Event{
		Type:  hub.EventOffline,
		Cause: hub.CauseTimeout,
	})
}

// OperatorEvicted implements session.EvictionHandler.
func (g *Gateway) OperatorEvicted(operatorID string) {
	g.hub.UnsubscribeAll(operatorID)
}
