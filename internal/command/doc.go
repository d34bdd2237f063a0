// Package command implements command validation and dispatch for the
// Drone Control Gateway.
//
// The validator checks a command's shape, ordering, and legality
// against the drone's current phase. The dispatcher queues validated
// commands per drone, delivers them strictly in order with a single
// attempt, and tracks acknowledgements under a bounded timeout.
// EmergencyStop is the one deliberate break in ordering: it jumps the
// queue so a stop is never blocked by backlog.
package command
