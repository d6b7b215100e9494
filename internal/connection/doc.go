// Package connection implements the real-time stream Connection Manager.
//
// The Connection Manager:
//   - Keeps at most one WebSocket per (channel, params) key
//   - Builds endpoints per channel, with a bearer token for the "user" channel
//   - Dispatches parsed frames to subscribers by "message" and by frame "type"
//   - Reconnects after unplanned closures, a bounded number of times, with a fixed delay
//
// Transport and timers are injected (SocketFactory, Scheduler) so the state
// machine can be driven deterministically in tests.
package connection
