// Package poller keeps the live session set in sync with the
// directory.
//
// On every cycle it lists the directory, attaches any active session
// that is not yet streaming, and detaches sessions the directory no
// longer reports as active.
package poller
