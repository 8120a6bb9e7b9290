// Package session manages the per-session connection state machines
// and the multiplexer that routes many independent session streams
// through one dispatch API.
//
// Each session id owns at most one live Manager. A Manager drives one
// transport through Disconnected -> Connecting -> Connected, queues
// outbound sends while connecting, and classifies closes into the
// reconnect policy (normal and idle closes are final; capacity and
// transient closes retry with exponential backoff). The Mux owns the
// sessionID -> Manager registry and is the only type the application
// layer talks to.
package session
