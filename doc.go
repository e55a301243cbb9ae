// Package gateway exposes a stdio JSON-RPC server as a network endpoint.
//
// A stdio server is any program that reads newline-delimited JSON-RPC
// messages on stdin and writes them on stdout, such as a local MCP server.
// The gateway spawns the program through the system shell and relays every
// message between its stdio and a WebSocket client. Stderr output of the
// program is logged and never forwarded.
//
// # Basic Usage
//
// Run blocks until the gateway shuts down and returns the exit code a
// command-line wrapper should exit with:
//
//	code, err := gateway.Run(ctx,
//	    gateway.WithCommand("npx -y @modelcontextprotocol/server-filesystem ./"),
//	    gateway.WithPort(8000),
//	    gateway.WithLogger(slog.Default()),
//	)
//	if err != nil {
//	    log.Printf("gateway failed to start: %v", err)
//	}
//	os.Exit(code)
//
// # Shutdown
//
// The gateway tears down exactly once, on whichever happens first:
//   - the stdio server exits (the gateway reports its exit code, or 1 when it
//     was killed by a signal)
//   - SIGINT or SIGTERM is received (the stdio server is sent SIGTERM; its
//     exit code is reported if it stops within WithKillGrace, otherwise it
//     is killed and the exit code is 1)
//   - ctx is cancelled (exit code 0)
//   - the client disconnects and WithExitOnDisconnect is set (exit code 0)
//
// Teardown closes the transport and stops the stdio server: forcefully,
// except after a signal, where it first gets the grace period.
//
// # Trust
//
// The command is interpreted by the shell, so it may contain pipes,
// redirects and quoting. Never build it from untrusted input.
//
// # Error Handling
//
// Startup failures are returned as typed errors:
//
//	code, err := gateway.Run(ctx, opts...)
//	if listenErr, ok := errors.AsType[*gateway.ListenError](err); ok {
//	    log.Printf("port in use: %s", listenErr.Addr)
//	}
//
// Errors while relaying individual messages are logged and never end the
// session.
package gateway
