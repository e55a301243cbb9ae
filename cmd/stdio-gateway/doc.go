// Command stdio-gateway exposes a stdio JSON-RPC server over WebSocket.
//
// Usage:
//
//	stdio-gateway --stdio "<command>" [--port 8000] [--host addr]
//	    [--health-port n] [--exit-on-disconnect]
//	    [--log-level info] [--log-format text]
//
// The PORT, STDIO_GATEWAY_HEALTH_PORT, LOG_LEVEL and LOG_FORMAT environment
// variables override the corresponding flags. The process exits with the
// stdio server's exit code, or 1 on startup failure. On SIGINT or SIGTERM the
// stdio server gets SIGTERM and its own exit code is used if it stops within
// the grace period; otherwise it is killed and the exit code is 1.
package main
