// Package state implements the per-drone flight state machine.
//
// A drone's phase only moves along the explicit transition table in this
// package, driven by acknowledged commands or qualifying telemetry. No
// other component writes a phase directly, which keeps transition
// legality centrally auditable.
package state
