// Package poller implements the Connection Status Poller component.
//
// The Connection Status Poller:
//   - Polls the connection manager every second for a watch list of keys
//   - Reports Live/Connecting transitions to a handler
//   - Keeps the latest status per key for the health endpoint
package poller
