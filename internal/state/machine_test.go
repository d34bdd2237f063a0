package state

import (
	"testing"
	"time"
)

func TestCommandTableIsExhaustiveAndExclusive(t *testing.T) {
	phases := []Phase{PhaseIdle, PhaseArmed, PhaseFlying, PhaseLanding, PhaseFault}
	kinds := []Kind{KindArm, KindDisarm, KindTakeoff, KindLand, KindMove, KindEmergencyStop}

	legal := map[Phase]map[Kind]Phase{
		PhaseIdle:    {KindArm: PhaseArmed},
		PhaseArmed:   {KindDisarm: PhaseIdle, KindTakeoff: PhaseFlying},
		PhaseFlying:  {KindLand: PhaseLanding, KindMove: PhaseFlying},
		PhaseLanding: {},
		PhaseFault:   {},
	}

	for _, from := range phases {
		for _, kind := range kinds {
			got, ok := NextForCommand(from, kind)

			if kind == KindEmergencyStop {
				if !ok || got != PhaseFault {
					t.Errorf("EmergencyStop from %s: got (%s, %v), want (fault, true)", from, got, ok)
				}
				continue
			}

			want, wantOK := legal[from][kind]
			if ok != wantOK {
				t.Errorf("%s from %s: legality %v, want %v", kind, from, ok, wantOK)
				continue
			}
			if ok && got != want {
				t.Errorf("%s from %s: got %s, want %s", kind, from, got, want)
			}
		}
	}
}

func TestFlyingRequiresTakeoffFromArmed(t *testing.T) {
	// No phase other than Armed may reach Flying, and only via Takeoff.
	phases := []Phase{PhaseIdle, PhaseArmed, PhaseFlying, PhaseLanding, PhaseFault}
	kinds := []Kind{KindArm, KindDisarm, KindTakeoff, KindLand, KindMove, KindEmergencyStop}

	for _, from := range phases {
		for _, kind := range kinds {
			got, ok := NextForCommand(from, kind)
			if !ok || got != PhaseFlying {
				continue
			}
			entering := from != PhaseFlying
			if entering && !(from == PhaseArmed && kind == KindTakeoff) {
				t.Errorf("unexpected path into Flying: %s from %s", kind, from)
			}
		}
	}
}

func TestMachineApplyCommandAck(t *testing.T) {
	m := NewMachine()

	if _, ok := m.ApplyCommandAck(KindTakeoff); ok {
		t.Fatal("takeoff from idle should be rejected")
	}
	if m.Phase() != PhaseIdle {
		t.Fatalf("rejected command mutated phase to %s", m.Phase())
	}

	steps := []struct {
		kind Kind
		want Phase
	}{
		{KindArm, PhaseArmed},
		{KindTakeoff, PhaseFlying},
		{KindMove, PhaseFlying},
		{KindLand, PhaseLanding},
	}
	for _, step := range steps {
		got, ok := m.ApplyCommandAck(step.kind)
		if !ok || got != step.want {
			t.Fatalf("ApplyCommandAck(%s): got (%s, %v), want (%s, true)", step.kind, got, ok, step.want)
		}
	}
}

func TestMachineLandingDetection(t *testing.T) {
	m := NewMachine()
	m.ApplyCommandAck(KindArm)
	m.ApplyCommandAck(KindTakeoff)
	m.ApplyCommandAck(KindLand)

	// Still descending: no transition.
	phase, transitioned := m.ApplyTelemetry(1, Snapshot{Altitude: 12.5, UpdatedAt: time.Now()}, 0.5)
	if transitioned || phase != PhaseLanding {
		t.Fatalf("descent frame: got (%s, %v), want (landing, false)", phase, transitioned)
	}

	phase, transitioned = m.ApplyTelemetry(2, Snapshot{Altitude: 0.2, UpdatedAt: time.Now()}, 0.5)
	if !transitioned || phase != PhaseIdle {
		t.Fatalf("touchdown frame: got (%s, %v), want (idle, true)", phase, transitioned)
	}
}

func TestMachineLandingConditionOnlyAppliesInLanding(t *testing.T) {
	m := NewMachine()

	// A grounded Idle drone reporting zero altitude must not transition.
	phase, transitioned := m.ApplyTelemetry(1, Snapshot{Altitude: 0}, 0.5)
	if transitioned || phase != PhaseIdle {
		t.Fatalf("idle frame: got (%s, %v), want (idle, false)", phase, transitioned)
	}
}

func TestMachineFault(t *testing.T) {
	m := NewMachine()
	m.ApplyCommandAck(KindArm)

	if !m.Fault() {
		t.Fatal("first Fault() should report a transition")
	}
	if m.Phase() != PhaseFault {
		t.Fatalf("phase = %s, want fault", m.Phase())
	}
	if m.Fault() {
		t.Fatal("second Fault() should be a no-op")
	}

	// Nothing but EmergencyStop validates out of Fault.
	for _, kind := range []Kind{KindArm, KindDisarm, KindTakeoff, KindLand, KindMove} {
		if _, ok := NextForCommand(PhaseFault, kind); ok {
			t.Errorf("%s legal from fault", kind)
		}
	}
}

func TestKindRoundTrip(t *testing.T) {
	for _, kind := range []Kind{KindArm, KindDisarm, KindTakeoff, KindLand, KindMove, KindEmergencyStop} {
		parsed, ok := ParseKind(kind.String())
		if !ok || parsed != kind {
			t.Errorf("ParseKind(%q) = (%v, %v), want (%v, true)", kind.String(), parsed, ok, kind)
		}
	}
	if _, ok := ParseKind("selfDestruct"); ok {
		t.Error("ParseKind accepted an unknown kind")
	}
}
