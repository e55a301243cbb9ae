// Package session implements the bridge session: one stdio server, one
// network transport and one shutdown coordinator.
//
// A Session is constructed once and run once. Run starts the stdio server,
// the transport and the health responder, then dispatches every event
// (transport messages, child exit, OS signals, context cancellation) from a
// single goroutine until the coordinator tears the session down. Child
// output is relayed by two pump goroutines managed by an errgroup:
//   - stdout is framed into JSON values and sent to the transport in order
//   - stderr is logged line by line and never forwarded
//
// Run returns the process exit code implied by the teardown cause.
package session
