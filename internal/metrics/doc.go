// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Frame and text-message throughput per channel
//   - Recoverable decode faults by kind
//   - Reconnect attempts and exhausted sessions
//   - Live session gauge
//   - Transcript archive rows and flushes
package metrics
