package framer

import (
	"bytes"
	"encoding/json"
	"log/slog"

	"github.com/wagiedev/stdio-gateway/internal/errors"
)

// DefaultMaxLineSize is the largest line the framer buffers before giving up
// on it. Lines from well-behaved stdio servers are far smaller.
const DefaultMaxLineSize = 16 * 1024 * 1024 // 16MB

// Option configures a Framer.
type Option func(*Framer)

// WithMaxLineSize sets the maximum number of bytes buffered for a single
// unterminated line. Values <= 0 disable the limit.
func WithMaxLineSize(n int) Option {
	return func(f *Framer) {
		f.maxLineSize = n
	}
}

// WithErrorHook registers a function called for every decode error after it
// has been logged.
func WithErrorHook(hook func(error)) Option {
	return func(f *Framer) {
		f.onError = hook
	}
}

// Framer decodes newline-delimited JSON from an arbitrarily chunked byte
// stream.
//
// The buffer holds exactly the bytes received so far that follow the last
// line terminator. A Framer is not safe for concurrent use; it is owned by the
// single goroutine reading the stream.
type Framer struct {
	log         *slog.Logger
	buf         []byte
	maxLineSize int
	onError     func(error)
	discarding  bool
}

// New creates a Framer. Decode errors are logged to log and otherwise skipped.
func New(log *slog.Logger, opts ...Option) *Framer {
	f := &Framer{
		log:         log.With("component", "framer"),
		maxLineSize: DefaultMaxLineSize,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Feed appends chunk to the decode buffer and returns the JSON values of every
// line the chunk completes, in the order the lines terminate.
//
// Lines are split on '\n' with an optional preceding '\r'. Empty and
// whitespace-only lines yield nothing. A line that is not valid JSON is
// reported as a DecodeError and skipped; it never stops processing.
func (f *Framer) Feed(chunk []byte) []json.RawMessage {
	var out []json.RawMessage

	for len(chunk) > 0 {
		idx := bytes.IndexByte(chunk, '\n')
		if idx < 0 {
			f.buffer(chunk)

			break
		}

		line := chunk[:idx]
		chunk = chunk[idx+1:]

		if f.discarding {
			// Tail of an oversized line; resynchronise on the terminator.
			f.discarding = false

			continue
		}

		if len(f.buf) > 0 {
			f.buf = append(f.buf, line...)
			line = f.buf
		}

		if msg, ok := f.decode(line); ok {
			out = append(out, msg)
		}

		f.buf = f.buf[:0]
	}

	return out
}

// Flush decodes whatever is left in the buffer as a final line. It is called
// once the stream reaches EOF so a last line without terminator is not lost.
func (f *Framer) Flush() []json.RawMessage {
	if f.discarding {
		f.discarding = false
		f.buf = f.buf[:0]

		return nil
	}

	if len(f.buf) == 0 {
		return nil
	}

	f.log.Debug("Flushing unterminated final line", "bytes", len(f.buf))

	msg, ok := f.decode(f.buf)
	f.buf = f.buf[:0]

	if !ok {
		return nil
	}

	return []json.RawMessage{msg}
}

// Buffered returns the number of bytes held for an incomplete line.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// buffer retains a trailing partial line, enforcing the line size limit.
func (f *Framer) buffer(partial []byte) {
	if f.discarding {
		return
	}

	if f.maxLineSize > 0 && len(f.buf)+len(partial) > f.maxLineSize {
		f.report(&errors.DecodeError{
			RawLine: truncate(f.buf, 256),
			Err:     errors.ErrLineTooLong,
		})

		f.buf = f.buf[:0]
		f.discarding = true

		return
	}

	f.buf = append(f.buf, partial...)
}

// decode parses one complete line. The returned message owns its memory.
func (f *Framer) decode(line []byte) (json.RawMessage, bool) {
	line = bytes.TrimSuffix(line, []byte{'\r'})

	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return nil, false
	}

	if !json.Valid(trimmed) {
		var probe any

		err := json.Unmarshal(trimmed, &probe)
		f.report(&errors.DecodeError{RawLine: string(line), Err: err})

		return nil, false
	}

	msg := make(json.RawMessage, len(trimmed))
	copy(msg, trimmed)

	return msg, true
}

func (f *Framer) report(err *errors.DecodeError) {
	f.log.Error("Child non-JSON output", "error", err.Err, "line", err.RawLine)

	if f.onError != nil {
		f.onError(err)
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}

	return string(b[:n]) + "..."
}
