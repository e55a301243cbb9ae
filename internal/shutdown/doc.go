// Package shutdown coordinates gateway teardown across independent trigger
// sources: OS signals, child exit, fatal startup errors and transport loss.
//
// The first trigger wins. It closes the transport asynchronously and kills
// the child if it is still running, or after a signal asks it to stop and
// kills it once the grace period has passed; every later trigger is a no-op.
// The winning cause, together with the child's final status, determines the
// gateway exit code.
package shutdown
