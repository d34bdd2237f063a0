package command

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/drone-control/dcg/internal/state"
)

// Normalized command error codes surfaced to the submitting operator.
var (
	ErrUnknownDrone      = errors.New("UNKNOWN_DRONE")
	ErrIllegalTransition = errors.New("ILLEGAL_TRANSITION")
	ErrStaleCommand      = errors.New("STALE_COMMAND")
	ErrMalformedPayload  = errors.New("MALFORMED_PAYLOAD")
	ErrDroneUnreachable  = errors.New("DRONE_UNREACHABLE")
	ErrCommandTimedOut   = errors.New("COMMAND_TIMED_OUT")
)

// Command is one control command. Immutable once created; it lives from
// validation until acknowledgement or timeout, then is dropped from the
// active queue.
type Command struct {
	ID         int64           `json:"id"`
	DroneID    string          `json:"droneId"`
	OperatorID string          `json:"operatorId"`
	Kind       state.Kind      `json:"kind"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	IssuedAt   time.Time       `json:"issuedAt"`
}

// Outcome is the terminal disposition of a dispatched command.
type Outcome string

const (
	OutcomeAck     Outcome = "ack"
	OutcomeNack    Outcome = "nack"
	OutcomeTimeout Outcome = "timeout"
	OutcomeError   Outcome = "error"
)

// Result notifies the issuing operator of a command's disposition.
// Operators must explicitly resubmit after a timeout: the dispatcher
// never auto-retries a physical actuation command.
type Result struct {
	CommandID  int64   `json:"commandId"`
	DroneID    string  `json:"droneId"`
	OperatorID string  `json:"operatorId"`
	Outcome    Outcome `json:"outcome"`
	Reason     string  `json:"reason,omitempty"`
}

// ResultFunc delivers asynchronous command results. Called outside any
// drone lock.
type ResultFunc func(res Result)

// AuditLogger records command actions for the audit trail.
type AuditLogger interface {
	LogAction(action, droneID, operatorID string, commandID int64, outcome string, latency time.Duration)
}
