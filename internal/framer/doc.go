// Package framer reassembles newline-delimited JSON values from a chunked
// byte stream.
//
// A stdio server writes one JSON value per line, but the operating system
// delivers its output in arbitrary chunks that may end mid-line or carry
// several lines at once. Framer keeps the trailing partial line between calls
// to Feed and emits each complete value in the order its line terminates:
//
//	f := framer.New(log)
//	for _, msg := range f.Feed(chunk) {
//	    // forward msg
//	}
//
// Lines that are not valid JSON are logged and dropped without affecting the
// surrounding lines.
package framer
