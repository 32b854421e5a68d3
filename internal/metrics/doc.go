// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Scanner link state, transitions and dial outcomes
//   - Frames received, bytes and header length mismatches
//   - Stop outcome (voluntary or forced) and duration
//   - Router queue depth and sink failures
//   - Scan history writer inserts, conflicts and errors
package metrics
