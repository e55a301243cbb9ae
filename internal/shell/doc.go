// Package shell resolves the shell used to interpret the stdio server command
// and builds the argument vector and environment for it.
//
// The command string is handed to the shell verbatim, so pipelines, quoting
// and variable expansion behave exactly as they would in an interactive
// shell. That makes the command a trust boundary: it must come from the
// operator, never from a network peer.
//
// # Shell Discovery
//
// Discover searches in the following order:
//  1. The explicit path in Config.Path (if provided)
//  2. "sh" on the system PATH (ComSpec, then "cmd.exe" on Windows)
//  3. Common locations (/bin/sh, /usr/bin/sh)
//
// # Command Building
//
//	shellPath, err := shell.Discover(&shell.Config{Logger: log})
//	args := shell.Args(shellPath, "npx -y @modelcontextprotocol/server-filesystem /data")
//	env := shell.BuildEnvironment(map[string]string{"DEBUG": "1"})
package shell
