package command

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/drone-control/dcg/internal/state"
)

func TestValidateRejections(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name    string
		cmd     *Command
		phase   state.Phase
		lastID  int64
		wantErr error
	}{
		{
			name:    "illegal transition takeoff from idle",
			cmd:     &Command{Kind: state.KindTakeoff},
			phase:   state.PhaseIdle,
			wantErr: ErrIllegalTransition,
		},
		{
			name:    "illegal transition arm while flying",
			cmd:     &Command{Kind: state.KindArm},
			phase:   state.PhaseFlying,
			wantErr: ErrIllegalTransition,
		},
		{
			name:    "stale command id behind the counter",
			cmd:     &Command{ID: 3, Kind: state.KindArm},
			phase:   state.PhaseIdle,
			lastID:  5,
			wantErr: ErrStaleCommand,
		},
		{
			name:    "command id skips ahead",
			cmd:     &Command{ID: 8, Kind: state.KindArm},
			phase:   state.PhaseIdle,
			lastID:  5,
			wantErr: ErrStaleCommand,
		},
		{
			name:    "move without payload",
			cmd:     &Command{Kind: state.KindMove},
			phase:   state.PhaseFlying,
			wantErr: ErrMalformedPayload,
		},
		{
			name:    "move payload missing altitude",
			cmd:     &Command{Kind: state.KindMove, Payload: json.RawMessage(`{"latitude":1,"longitude":2}`)},
			phase:   state.PhaseFlying,
			wantErr: ErrMalformedPayload,
		},
		{
			name:    "move payload not JSON",
			cmd:     &Command{Kind: state.KindMove, Payload: json.RawMessage(`{{`)},
			phase:   state.PhaseFlying,
			wantErr: ErrMalformedPayload,
		},
		{
			name:    "arm payload not JSON",
			cmd:     &Command{Kind: state.KindArm, Payload: json.RawMessage(`not-json`)},
			phase:   state.PhaseIdle,
			wantErr: ErrMalformedPayload,
		},
		{
			name:    "unknown kind",
			cmd:     &Command{Kind: state.Kind(99)},
			phase:   state.PhaseIdle,
			wantErr: ErrMalformedPayload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.cmd, tt.phase, tt.lastID)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateAccepts(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name   string
		cmd    *Command
		phase  state.Phase
		lastID int64
	}{
		{
			name:  "arm from idle",
			cmd:   &Command{Kind: state.KindArm},
			phase: state.PhaseIdle,
		},
		{
			name:   "next id in sequence",
			cmd:    &Command{ID: 6, Kind: state.KindArm},
			phase:  state.PhaseIdle,
			lastID: 5,
		},
		{
			name:  "move with full target",
			cmd:   &Command{Kind: state.KindMove, Payload: json.RawMessage(`{"latitude":48.1,"longitude":11.5,"altitude":30}`)},
			phase: state.PhaseFlying,
		},
		{
			name:  "land from flying",
			cmd:   &Command{Kind: state.KindLand, Payload: json.RawMessage(`{}`)},
			phase: state.PhaseFlying,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := v.Validate(tt.cmd, tt.phase, tt.lastID); err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
		})
	}
}

// EmergencyStop must be accepted from every phase, Fault included, and
// regardless of the ordering counter.
func TestValidateEmergencyStopAlwaysAccepted(t *testing.T) {
	v := NewValidator()
	phases := []state.Phase{
		state.PhaseIdle, state.PhaseArmed, state.PhaseFlying,
		state.PhaseLanding, state.PhaseFault,
	}

	for _, phase := range phases {
		cmd := &Command{ID: 42, Kind: state.KindEmergencyStop}
		if err := v.Validate(cmd, phase, 3); err != nil {
			t.Errorf("estop from %s rejected: %v", phase, err)
		}
	}
}
