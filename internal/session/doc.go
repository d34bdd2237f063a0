// Package session implements the session registry of the Drone Control
// Gateway.
//
// The registry is the only owner of connection handles. Every other
// component refers to sessions by identifier and resolves them here, so
// a disconnect can never leave a dangling handle. A background sweep
// evicts sessions that miss the liveness timeout.
package session
