//go:build windows

package subprocess

import (
	"os"
	"os/exec"
	"strings"
	"syscall"
)

// configureCommand passes the cmd.exe arguments verbatim; Go's default
// argument escaping would re-quote the /s /c command string.
func configureCommand(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CmdLine: syscall.EscapeArg(cmd.Args[0]) + " " + strings.Join(cmd.Args[1:], " "),
	}
}

func terminate(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}

func signalName(*os.ProcessState) string {
	return ""
}

// interrupt kills the child: Windows has no SIGTERM for console processes.
func interrupt(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}
