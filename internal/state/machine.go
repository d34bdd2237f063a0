package state

import "time"

// Phase is the authoritative flight phase of a drone.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseArmed
	PhaseFlying
	PhaseLanding
	PhaseFault
)

// String returns the wire name of a phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseArmed:
		return "armed"
	case PhaseFlying:
		return "flying"
	case PhaseLanding:
		return "landing"
	case PhaseFault:
		return "fault"
	default:
		return "unknown"
	}
}

// Kind enumerates the control commands a drone accepts.
type Kind int

const (
	KindArm Kind = iota
	KindDisarm
	KindTakeoff
	KindLand
	KindMove
	KindEmergencyStop
)

var kindNames = map[Kind]string{
	KindArm:           "arm",
	KindDisarm:        "disarm",
	KindTakeoff:       "takeoff",
	KindLand:          "land",
	KindMove:          "move",
	KindEmergencyStop: "emergencyStop",
}

// String returns the wire name of a command kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseKind maps a wire name back to a command kind.
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return k, true
		}
	}
	return 0, false
}

// commandTable maps (current phase, acknowledged command) to the next
// phase. Anything absent here is illegal, except EmergencyStop which is
// valid from every phase. Move keeps a flying drone flying; it is listed
// so the kind is ever legal at all.
var commandTable = map[Phase]map[Kind]Phase{
	PhaseIdle: {
		KindArm: PhaseArmed,
	},
	PhaseArmed: {
		KindDisarm:  PhaseIdle,
		KindTakeoff: PhaseFlying,
	},
	PhaseFlying: {
		KindLand: PhaseLanding,
		KindMove: PhaseFlying,
	},
}

// NextForCommand returns the phase an acknowledged command leads to, and
// whether the command is legal from the given phase.
func NextForCommand(from Phase, kind Kind) (Phase, bool) {
	if kind == KindEmergencyStop {
		return PhaseFault, true
	}
	to, ok := commandTable[from][kind]
	return to, ok
}

// Snapshot is the last-known telemetry of a drone. The fields are passed
// through from telemetry; the core interprets only Altitude (landing
// detection).
type Snapshot struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  float64   `json:"altitude"`
	Battery   float64   `json:"battery"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Machine holds a single drone's phase, latest telemetry snapshot, and
// the last applied telemetry sequence number.
//
// Machine is not self-synchronized: the owning drone session's lock
// serializes all access, so exactly one transition is evaluated at a
// time for a given drone.
type Machine struct {
	phase   Phase
	lastSeq uint64
	snap    Snapshot
}

// NewMachine returns a machine in the Idle phase.
func NewMachine() *Machine {
	return &Machine{phase: PhaseIdle}
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	return m.phase
}

// Snapshot returns the last-known telemetry snapshot.
func (m *Machine) Snapshot() Snapshot {
	return m.snap
}

// LastSeq returns the highest telemetry sequence number applied so far.
func (m *Machine) LastSeq() uint64 {
	return m.lastSeq
}

// ApplyCommandAck transitions the machine for an acknowledged command.
// It returns the new phase and false if the command is not legal from
// the current phase.
func (m *Machine) ApplyCommandAck(kind Kind) (Phase, bool) {
	next, ok := NextForCommand(m.phase, kind)
	if !ok {
		return m.phase, false
	}
	m.phase = next
	return next, true
}

// ApplyTelemetry records a telemetry snapshot with its sequence number
// and evaluates the landing condition: a drone in Landing whose altitude
// is at or below landedMax returns to Idle. The boolean reports whether
// a phase transition occurred.
func (m *Machine) ApplyTelemetry(seq uint64, snap Snapshot, landedMax float64) (Phase, bool) {
	m.lastSeq = seq
	m.snap = snap

	if m.phase == PhaseLanding && snap.Altitude <= landedMax {
		m.phase = PhaseIdle
		return m.phase, true
	}
	return m.phase, false
}

// Fault forces the machine into the Fault phase. Used for liveness
// timeouts and mid-air disconnects. Returns false if the machine was
// already in Fault.
func (m *Machine) Fault() bool {
	if m.phase == PhaseFault {
		return false
	}
	m.phase = PhaseFault
	return true
}
