// Package api provides the REST client for the session directory.
//
// The directory lists the chat sessions an account can attach to and
// owns their lifecycle; streaming happens over per-session WebSockets
// managed elsewhere.
package api
