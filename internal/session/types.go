package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/drone-control/dcg/internal/hub"
	"github.com/drone-control/dcg/internal/state"
)

// CommandDelivery is the wire shape of a command pushed down a drone
// connection.
type CommandDelivery struct {
	CommandID int64           `json:"commandId"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// DroneConn is the drone-facing half of a session. Implementations are
// provided by the transport layer; the registry owns them exclusively.
type DroneConn interface {
	// SendCommand writes one command delivery. It is attempted once;
	// the dispatcher never retries a failed physical command.
	SendCommand(delivery CommandDelivery) error
	Close() error
}

// OperatorConn is the operator-facing half of a session.
type OperatorConn interface {
	SendEvent(ev hub.Event) error
	Close() error
}

// DroneSession is the live state of one connected drone.
//
// The session lock (Lock/Unlock) serializes command submission,
// acknowledgement, and telemetry ingestion for this drone: only one
// state-machine transition is ever evaluated at a time, and one drone's
// processing never blocks on another drone's lock. The connection
// handle is set at registration and never reassigned.
type DroneSession struct {
	ID   string
	conn DroneConn

	mu      sync.Mutex // the per-drone serialization lock
	machine *state.Machine

	// nextCommandID is the monotonic per-drone command id counter,
	// guarded by mu.
	nextCommandID int64

	seenMu   sync.Mutex
	lastSeen time.Time
}

// Lock acquires this drone's serialization lock.
func (s *DroneSession) Lock() { s.mu.Lock() }

// Unlock releases this drone's serialization lock.
func (s *DroneSession) Unlock() { s.mu.Unlock() }

// Machine returns the drone's state machine. The caller must hold the
// session lock for anything beyond a point-in-time read.
func (s *DroneSession) Machine() *state.Machine { return s.machine }

// NextCommandID issues the next monotonic command id. Caller holds the
// session lock.
func (s *DroneSession) NextCommandID() int64 {
	s.nextCommandID++
	return s.nextCommandID
}

// LastIssuedID returns the most recently issued command id. Caller
// holds the session lock.
func (s *DroneSession) LastIssuedID() int64 { return s.nextCommandID }

// Send writes a command delivery to the drone connection.
func (s *DroneSession) Send(delivery CommandDelivery) error {
	return s.conn.SendCommand(delivery)
}

// Touch updates the liveness timestamp. Safe to call with or without
// the session lock held.
func (s *DroneSession) Touch(now time.Time) {
	s.seenMu.Lock()
	s.lastSeen = now
	s.seenMu.Unlock()
}

// LastSeen returns the liveness timestamp.
func (s *DroneSession) LastSeen() time.Time {
	s.seenMu.Lock()
	defer s.seenMu.Unlock()
	return s.lastSeen
}

// OperatorSession is the live state of one connected operator. The
// subscription set lives in the broadcast hub; this records identity,
// connection, and liveness only.
type OperatorSession struct {
	ID        string
	SessionID string // unique per connection, for audit correlation
	conn      OperatorConn

	seenMu   sync.Mutex
	lastSeen time.Time
}

// SendEvent writes an event to the operator connection.
func (s *OperatorSession) SendEvent(ev hub.Event) error {
	return s.conn.SendEvent(ev)
}

// Touch updates the liveness timestamp.
func (s *OperatorSession) Touch(now time.Time) {
	s.seenMu.Lock()
	s.lastSeen = now
	s.seenMu.Unlock()
}

// LastSeen returns the liveness timestamp.
func (s *OperatorSession) LastSeen() time.Time {
	s.seenMu.Lock()
	defer s.seenMu.Unlock()
	return s.lastSeen
}
