// Package health serves the gateway's HTTP liveness endpoints on a port
// separate from the transport.
//
// GET /health answers 200 "OK" whenever the gateway process is alive,
// independent of bridge state. GET /version reports the server identity and
// GET /status, when configured, reports session state and relay counters.
package health
