// Package message annotates relayed JSON-RPC values for logging.
//
// The gateway never interprets the messages it relays. Describe only extracts
// the kind, method and id so debug logs can be correlated; a value that is not
// a JSON-RPC message is still relayed and is described as KindUnknown.
package message
