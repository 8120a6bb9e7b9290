// Package model defines the canonical message envelope exchanged with
// the chat backend, plus the session directory types returned by the
// REST API.
//
// The backend historically produced two wire shapes: a legacy flat
// form with payload fields at the top level, and the current
// structured form with a kind-specific payload object. Both decode
// into the single Envelope type here; the flat form is mapped in one
// place (DecodeJSON) and never leaks past this package.
package model
