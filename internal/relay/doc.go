// Package relay moves JSON-RPC messages between the stdio server and the
// network transport.
//
// Messages are relayed without inspection beyond framing. Transport messages
// are compacted to a single line before they reach the child's stdin; child
// stdout is framed by package framer and every decoded value is sent to the
// transport in the order its line terminated. Failures in either direction
// are logged and counted, and never stop the relay.
package relay
