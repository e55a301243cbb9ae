// Package subprocess supervises the stdio server child process.
//
// The command is interpreted by the platform shell (see package shell), so it
// may contain pipelines, redirects and quoted arguments. Process owns the
// child for the lifetime of a session: it exposes the stdout and stderr byte
// streams for the relay, serializes writes to stdin, observes the exit in a
// background goroutine, and forcefully terminates the child (and, on Unix,
// its whole process group) on Kill. Terminate sends SIGTERM first and
// escalates to Kill after a grace period.
package subprocess
