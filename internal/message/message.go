package message

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// Kind classifies a relayed JSON value.
type Kind string

const (
	// KindRequest is a call that expects a response.
	KindRequest Kind = "request"
	// KindNotification is a request without id.
	KindNotification Kind = "notification"
	// KindResponse is a successful response.
	KindResponse Kind = "response"
	// KindError is an error response.
	KindError Kind = "error"
	// KindBatch is a JSON array of messages.
	KindBatch Kind = "batch"
	// KindUnknown is any other JSON value.
	KindUnknown Kind = "unknown"
)

// Description summarizes a relayed value for logging.
type Description struct {
	Kind   Kind
	Method string
	ID     string
	Size   int
}

// Compile-time verification that Description implements slog.LogValuer.
var _ slog.LogValuer = Description{}

// Describe classifies raw without altering it. It never fails.
func Describe(raw json.RawMessage) Description {
	d := Description{Kind: KindUnknown, Size: len(raw)}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		d.Kind = KindBatch

		return d
	}

	msg, err := jsonrpc.DecodeMessage(trimmed)
	if err != nil {
		return d
	}

	switch m := msg.(type) {
	case *jsonrpc.Request:
		d.Method = m.Method
		d.Kind = KindNotification

		if m.ID.IsValid() {
			d.Kind = KindRequest
			d.ID = formatID(m.ID)
		}
	case *jsonrpc.Response:
		d.Kind = KindResponse
		if m.Error != nil {
			d.Kind = KindError
		}

		d.ID = formatID(m.ID)
	}

	return d
}

// LogValue implements slog.LogValuer.
func (d Description) LogValue() slog.Value {
	attrs := []slog.Attr{slog.String("kind", string(d.Kind))}

	if d.Method != "" {
		attrs = append(attrs, slog.String("method", d.Method))
	}

	if d.ID != "" {
		attrs = append(attrs, slog.String("id", d.ID))
	}

	attrs = append(attrs, slog.Int("bytes", d.Size))

	return slog.GroupValue(attrs...)
}

func formatID(id jsonrpc.ID) string {
	if !id.IsValid() {
		return ""
	}

	switch v := id.Raw().(type) {
	case string:
		return fmt.Sprintf("%q", v)
	default:
		return fmt.Sprint(v)
	}
}
