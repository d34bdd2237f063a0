// Package transport carries drone and operator WebSocket channels plus
// the status endpoints, translating socket traffic into plain calls on
// the gateway core.
//
// The core never sees sockets: this package registers connection
// handles with the session registry on connect, feeds frames, commands,
// and acknowledgements inward, and writes events outward. Everything
// here is replaceable without touching the engine.
package transport
