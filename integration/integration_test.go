//go:build integration

package integration

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/stretchr/testify/require"

	gateway "github.com/wagiedev/stdio-gateway"
)

// result is what a gateway run returned.
type result struct {
	code int
	err  error
}

// running is a gateway started in the background on free local ports.
type running struct {
	wsURL      string
	healthURL  string
	done       chan result
	cancel     context.CancelFunc
	httpClient *http.Client
}

// freePort asks the kernel for an unused TCP port on the loopback interface.
func freePort(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	return port
}

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	if testing.Verbose() {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startGateway runs command behind a WebSocket gateway and waits until the
// health endpoint answers.
func startGateway(t *testing.T, command string, opts ...gateway.Option) *running {
	t.Helper()

	port := freePort(t)
	healthPort := freePort(t)

	ctx, cancel := context.WithCancel(context.Background())

	r := &running{
		wsURL:      fmt.Sprintf("ws://127.0.0.1:%d", port),
		healthURL:  "http://" + net.JoinHostPort("127.0.0.1", strconv.Itoa(healthPort)),
		done:       make(chan result, 1),
		cancel:     cancel,
		httpClient: cleanhttp.DefaultClient(),
	}

	all := append([]gateway.Option{
		gateway.WithCommand(command),
		gateway.WithHost("127.0.0.1"),
		gateway.WithPort(port),
		gateway.WithHealthPort(healthPort),
		gateway.WithLogger(testLogger(t)),
	}, opts...)

	go func() {
		code, err := gateway.Run(ctx, all...)
		r.done <- result{code: code, err: err}
	}()

	t.Cleanup(func() {
		cancel()

		select {
		case <-r.done:
		case <-time.After(10 * time.Second):
			t.Error("gateway did not stop after cancellation")
		}
	})

	require.Eventually(t, func() bool {
		resp, err := r.httpClient.Get(r.healthURL + "/health")
		if err != nil {
			return false
		}
		defer resp.Body.Close()

		return resp.StatusCode == http.StatusOK
	}, 10*time.Second, 25*time.Millisecond, "gateway never became healthy")

	return r
}

// dial connects a WebSocket client to the gateway.
func (r *running) dial(t *testing.T) *websocket.Conn {
	t.Helper()

	conn, resp, err := websocket.DefaultDialer.Dial(r.wsURL, nil)
	require.NoError(t, err)

	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	t.Cleanup(func() { conn.Close() })

	return conn
}

// wait blocks until the gateway run returns.
func (r *running) wait(t *testing.T) result {
	t.Helper()

	select {
	case res := <-r.done:
		// Put it back so the cleanup does not block.
		r.done <- res

		return res
	case <-time.After(10 * time.Second):
		t.Fatal("timeout waiting for gateway to exit")

		return result{}
	}
}

// readJSON reads one text frame with a deadline.
func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))

	return msg
}
