// Package feed decodes stream events into typed messages.
//
// The Feed subscribes to the well-known event types of the "orderbook",
// "trades" and "user" channels, decodes them with decimal prices, and pushes
// the results into growable queues for downstream consumers.
package feed
