// Package tunnel maintains auto-reconnecting port-forward sessions from
// local ports to pods.
//
// # Session lifecycle
//
// A Session moves through Init -> Binding -> Relaying, with Reconnecting
// entered whenever the relay drops, and two terminals: Closed (explicit
// close or teardown) and Failed (bind failure or reconnect budget
// exhausted). The relay runs in a background goroutine for the session's
// whole lifetime; Open returns to the caller only once a liveness probe
// confirms the local port actually accepts connections.
//
// Reconnects are bounded: after RetryLimit failed attempts the session
// transitions to Failed and its goroutine exits. The failure is recorded
// on the session and visible on the next status query, never delivered
// asynchronously.
//
// # Registry
//
// The Registry tracks sessions keyed by (pod name, local port) under a
// single mutex that guards the whole check-then-act sequence. Opening a
// duplicate key supersedes the previous session (it is closed first).
// Close is idempotent, and CloseAll walks a snapshot of the keys so
// concurrent modification during teardown cannot skip entries.
//
// The forwarding transport itself is client-go's SPDY port-forwarder,
// injected as a RelayFunc so tests can substitute fakes.
package tunnel
