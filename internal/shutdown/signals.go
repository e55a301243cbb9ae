package shutdown

import (
	"os"
	"os/signal"
	"syscall"
)

// DefaultSignals are the signals that trigger teardown.
var DefaultSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// SignalSource registers for OS signal delivery.
type SignalSource interface {
	// Notify relays the given signals to ch until stop is called.
	Notify(ch chan<- os.Signal, sigs ...os.Signal) (stop func())
}

// OSSignals is the SignalSource backed by os/signal.
type OSSignals struct{}

// Compile-time verification that OSSignals implements SignalSource.
var _ SignalSource = OSSignals{}

// Notify implements SignalSource.
func (OSSignals) Notify(ch chan<- os.Signal, sigs ...os.Signal) func() {
	signal.Notify(ch, sigs...)

	return func() { signal.Stop(ch) }
}
