// Package telemetry implements the telemetry router of the Drone
// Control Gateway.
//
// The router ingests sensor frames from drone connections in
// drone-assigned sequence order, updates the authoritative state
// snapshot, evaluates landing detection, and forwards frames to the
// broadcast hub. Routing is fire-and-forget from the drone's
// perspective: no frame ever waits on a slow subscriber.
package telemetry
