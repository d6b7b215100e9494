// Package relay republishes stream events to pub/sub backends.
//
// The Relay subscribes to manager events, wraps each one in an Envelope,
// batches envelopes by size or interval, and hands each batch to every
// configured Publisher (Redis PUBLISH, RabbitMQ fanout). Publish failures are
// logged and counted; they never stop the stream.
package relay
