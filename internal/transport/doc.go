// Package transport defines the network side of the gateway and provides a
// WebSocket server implementation.
//
// A Transport delivers client activity as a stream of typed Events instead of
// callbacks, so a single goroutine can dispatch transport messages, process
// exit and signals in arrival order.
package transport
