package relay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/wagiedev/stdio-gateway/internal/errors"
	"github.com/wagiedev/stdio-gateway/internal/framer"
	"github.com/wagiedev/stdio-gateway/internal/message"
)

const readChunkSize = 32 * 1024

// LineWriter accepts one newline-terminated line at a time.
type LineWriter interface {
	Write(line []byte) error
}

// Sender delivers one JSON value to the network side.
type Sender interface {
	Send(ctx context.Context, msg json.RawMessage) error
}

// Stats is a snapshot of relay counters.
type Stats struct {
	MessagesIn       uint64 `json:"messages_in"`
	MessagesOut      uint64 `json:"messages_out"`
	DecodeErrors     uint64 `json:"decode_errors"`
	DeliveryFailures uint64 `json:"delivery_failures"`
}

// Option configures a Relay.
type Option func(*Relay)

// WithMaxLineSize bounds the size of a single stdout line.
func WithMaxLineSize(n int) Option {
	return func(r *Relay) {
		r.maxLineSize = n
	}
}

// Relay connects a child process to a transport.
type Relay struct {
	log         *slog.Logger
	baseLog     *slog.Logger
	child       LineWriter
	sender      Sender
	maxLineSize int

	inMu     sync.Mutex
	inQueue  []json.RawMessage
	inWake   chan struct{}
	inStop   chan struct{}
	stopOnce sync.Once

	messagesIn       atomic.Uint64
	messagesOut      atomic.Uint64
	decodeErrors     atomic.Uint64
	deliveryFailures atomic.Uint64
}

// New creates a Relay writing to child and sending to sender.
func New(log *slog.Logger, child LineWriter, sender Sender, opts ...Option) *Relay {
	r := &Relay{
		log:         log.With("component", "relay"),
		baseLog:     log,
		child:       child,
		sender:      sender,
		maxLineSize: framer.DefaultMaxLineSize,
		inWake:      make(chan struct{}, 1),
		inStop:      make(chan struct{}),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Enqueue queues one transport message for PumpInput and returns without
// waiting for the child to read it. Messages are written in Enqueue order.
// After StopInput the message is dropped.
func (r *Relay) Enqueue(msg json.RawMessage) {
	select {
	case <-r.inStop:
		r.log.Debug("Dropping message after input stopped", "rpc", message.Describe(msg))

		return
	default:
	}

	r.inMu.Lock()
	r.inQueue = append(r.inQueue, msg)
	r.inMu.Unlock()

	select {
	case r.inWake <- struct{}{}:
	default:
	}
}

// PumpInput writes queued messages to the child's stdin until StopInput is
// called or ctx is done. A write that blocks on a full pipe only holds up
// this goroutine; closing stdin releases it.
func (r *Relay) PumpInput(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.inStop:
			return nil
		case <-r.inWake:
		}

		for {
			msg, ok := r.dequeue()
			if !ok {
				break
			}

			select {
			case <-r.inStop:
				return nil
			default:
			}

			// Failures are logged and counted by Deliver.
			_ = r.Deliver(msg)
		}
	}
}

// StopInput ends PumpInput. Queued messages that were not written are
// dropped. It is safe to call more than once.
func (r *Relay) StopInput() {
	r.stopOnce.Do(func() {
		close(r.inStop)

		r.inMu.Lock()
		dropped := len(r.inQueue)
		r.inQueue = nil
		r.inMu.Unlock()

		if dropped > 0 {
			r.log.Warn("Dropped undelivered messages", "count", dropped)
		}
	})
}

// Pending returns the number of queued messages not yet handed to the child.
func (r *Relay) Pending() int {
	r.inMu.Lock()
	defer r.inMu.Unlock()

	return len(r.inQueue)
}

func (r *Relay) dequeue() (json.RawMessage, bool) {
	r.inMu.Lock()
	defer r.inMu.Unlock()

	if len(r.inQueue) == 0 {
		return nil, false
	}

	msg := r.inQueue[0]
	r.inQueue[0] = nil
	r.inQueue = r.inQueue[1:]

	return msg, true
}

// Deliver writes one transport message to the child as a single line and
// returns once the write completes.
//
// Calls must not overlap if lines are to reach the child in arrival order;
// the session calls it only from PumpInput. A failure is logged, counted and
// returned as a DeliveryError; the relay keeps running.
func (r *Relay) Deliver(msg json.RawMessage) error {
	r.log.Debug("WebSocket → Child", "rpc", message.Describe(msg))

	var line bytes.Buffer

	line.Grow(len(msg) + 1)

	if err := json.Compact(&line, msg); err != nil {
		return r.deliveryFailed(errors.ToProcess, fmt.Errorf("compact message: %w", err))
	}

	line.WriteByte('\n')

	if err := r.child.Write(line.Bytes()); err != nil {
		return r.deliveryFailed(errors.ToProcess, err)
	}

	r.messagesIn.Add(1)

	return nil
}

// PumpOutput reads the child's stdout until EOF, sending every decoded JSON
// value to the transport in order. It returns nil at EOF or when the stream
// is closed, and a wrapped error for any other read failure.
func (r *Relay) PumpOutput(ctx context.Context, stdout io.Reader) error {
	f := framer.New(r.baseLog,
		framer.WithMaxLineSize(r.maxLineSize),
		framer.WithErrorHook(func(error) { r.decodeErrors.Add(1) }),
	)

	buf := make([]byte, readChunkSize)

	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			r.forward(ctx, f.Feed(buf[:n]))
		}

		if err != nil {
			r.forward(ctx, f.Flush())

			if err == io.EOF || stderrors.Is(err, os.ErrClosed) {
				r.log.Debug("Child stdout closed")

				return nil
			}

			return fmt.Errorf("read child stdout: %w", err)
		}
	}
}

func (r *Relay) forward(ctx context.Context, msgs []json.RawMessage) {
	for _, msg := range msgs {
		r.log.Debug("Child → WebSocket", "rpc", message.Describe(msg))

		if err := r.sender.Send(ctx, msg); err != nil {
			_ = r.deliveryFailed(errors.ToTransport, err)

			continue
		}

		r.messagesOut.Add(1)
	}
}

// PumpDiagnostics logs the child's stderr line by line until EOF. Stderr is
// never forwarded to the transport.
func (r *Relay) PumpDiagnostics(ctx context.Context, stderr io.Reader) error {
	reader := bufio.NewReader(stderr)

	for {
		line, err := reader.ReadBytes('\n')

		if text := string(bytes.TrimRight(line, "\r\n")); text != "" {
			r.log.InfoContext(ctx, "Child stderr", "line", text)
		}

		if err != nil {
			if err == io.EOF || stderrors.Is(err, os.ErrClosed) {
				return nil
			}

			return fmt.Errorf("read child stderr: %w", err)
		}
	}
}

// Stats returns a snapshot of the relay counters.
func (r *Relay) Stats() Stats {
	return Stats{
		MessagesIn:       r.messagesIn.Load(),
		MessagesOut:      r.messagesOut.Load(),
		DecodeErrors:     r.decodeErrors.Load(),
		DeliveryFailures: r.deliveryFailures.Load(),
	}
}

func (r *Relay) deliveryFailed(dir errors.Direction, err error) error {
	r.deliveryFailures.Add(1)

	deliveryErr := &errors.DeliveryError{Direction: dir, Err: err}
	r.log.Error("Failed to relay message", "direction", string(dir), "error", err)

	return deliveryErr
}
