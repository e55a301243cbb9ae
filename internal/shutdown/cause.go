package shutdown

import (
	"fmt"
	"os"
)

// CauseKind identifies what triggered teardown.
type CauseKind int

const (
	// CauseSignal is an OS signal such as SIGINT or SIGTERM.
	CauseSignal CauseKind = iota + 1
	// CauseProcessExit is the child exiting on its own.
	CauseProcessExit
	// CauseFatal is an unrecoverable error, typically during startup.
	CauseFatal
	// CauseTransportClosed is the client detaching while exit-on-disconnect
	// is enabled.
	CauseTransportClosed
	// CauseCancelled is the caller's context being cancelled.
	CauseCancelled
)

func (k CauseKind) String() string {
	switch k {
	case CauseSignal:
		return "signal"
	case CauseProcessExit:
		return "process_exit"
	case CauseFatal:
		return "fatal"
	case CauseTransportClosed:
		return "transport_closed"
	case CauseCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ExitStatus is the part of a child exit status the coordinator needs.
type ExitStatus interface {
	ExitCode() int
	String() string
}

// Cause describes why the gateway is shutting down.
type Cause struct {
	Kind   CauseKind
	Signal os.Signal
	Err    error

	exitCode int
	detail   string
}

// Signal returns the cause for a received OS signal. Its exit code is 1, the
// code of a child that had to be killed; a child that exits on its own while
// shutting down reports its own code instead (see ExitCodeFor).
func Signal(sig os.Signal) Cause {
	return Cause{Kind: CauseSignal, Signal: sig, exitCode: 1, detail: sig.String()}
}

// ProcessExit returns the cause for the child exiting; the gateway exits with
// the child's code.
func ProcessExit(status ExitStatus) Cause {
	return Cause{Kind: CauseProcessExit, exitCode: status.ExitCode(), detail: status.String()}
}

// Fatal returns the cause for an unrecoverable error.
func Fatal(err error) Cause {
	return Cause{Kind: CauseFatal, Err: err, exitCode: 1, detail: err.Error()}
}

// TransportClosed returns the cause for a client disconnect.
func TransportClosed() Cause {
	return Cause{Kind: CauseTransportClosed}
}

// Cancelled returns the cause for context cancellation.
func Cancelled() Cause {
	return Cause{Kind: CauseCancelled}
}

// ExitCodeFor returns the gateway exit code for cause once the child's final
// status is known. After a signal the child is given the chance to exit on
// its own, so its status decides; exited is false if it never did.
func ExitCodeFor(cause Cause, status ExitStatus, exited bool) int {
	if cause.Kind == CauseSignal && exited && status != nil {
		return status.ExitCode()
	}

	return cause.ExitCode()
}

// ExitCode returns the gateway exit code implied by the cause.
func (c Cause) ExitCode() int {
	return c.exitCode
}

func (c Cause) String() string {
	if c.detail == "" {
		return c.Kind.String()
	}

	return fmt.Sprintf("%s (%s)", c.Kind, c.detail)
}
