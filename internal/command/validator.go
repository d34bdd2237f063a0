package command

import (
	"encoding/json"
	"fmt"

	"github.com/drone-control/dcg/internal/state"
)

// movePayload is the required shape of a Move command payload.
type movePayload struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Altitude  *float64 `json:"altitude"`
}

// Validator checks a command's shape, ordering, and legality against
// the drone's current phase. It is stateless; callers supply the phase
// and last issued command id read under the drone's lock.
type Validator struct{}

// NewValidator creates a validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate returns nil if the command may be dispatched from the given
// phase. EmergencyStop is valid from every phase, Fault included, and
// bypasses the ordering check.
func (v *Validator) Validate(cmd *Command, phase state.Phase, lastIssuedID int64) error {
	if err := v.checkPayload(cmd); err != nil {
		return err
	}

	if cmd.Kind == state.KindEmergencyStop {
		return nil
	}

	if cmd.ID != 0 && cmd.ID != lastIssuedID+1 {
		return fmt.Errorf("%w: id %d, expected %d", ErrStaleCommand, cmd.ID, lastIssuedID+1)
	}

	if _, ok := state.NextForCommand(phase, cmd.Kind); !ok {
		return fmt.Errorf("%w: %s not permitted from %s", ErrIllegalTransition, cmd.Kind, phase)
	}

	return nil
}

// checkPayload validates per-kind payload shape. Move requires a full
// target position; all other kinds carry an optional opaque payload
// that must at least be valid JSON.
func (v *Validator) checkPayload(cmd *Command) error {
	switch cmd.Kind {
	case state.KindMove:
		var mp movePayload
		if len(cmd.Payload) == 0 {
			return fmt.Errorf("%w: move requires a target position", ErrMalformedPayload)
		}
		if err := json.Unmarshal(cmd.Payload, &mp); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		if mp.Latitude == nil || mp.Longitude == nil || mp.Altitude == nil {
			return fmt.Errorf("%w: move requires latitude, longitude, altitude", ErrMalformedPayload)
		}
	case state.KindArm, state.KindDisarm, state.KindTakeoff, state.KindLand, state.KindEmergencyStop:
		if len(cmd.Payload) > 0 && !json.Valid(cmd.Payload) {
			return fmt.Errorf("%w: payload is not valid JSON", ErrMalformedPayload)
		}
	default:
		return fmt.Errorf("%w: unknown command kind", ErrMalformedPayload)
	}
	return nil
}
