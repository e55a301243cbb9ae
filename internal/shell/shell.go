package shell

import (
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/exec"
	"runtime"
	"slices"

	"github.com/wagiedev/stdio-gateway/internal/errors"
)

// Config holds configuration for shell discovery.
type Config struct {
	// Path is an explicit shell path that skips the PATH search.
	Path string

	// Logger is an optional logger for discovery operations.
	// If nil, a no-op logger is used.
	Logger *slog.Logger
}

// commonPaths lists fallback shell locations checked after PATH.
var commonPaths = []string{
	"/bin/sh",
	"/usr/bin/sh",
}

// Discover locates the shell used to run the stdio server command.
// Returns ShellNotFoundError listing every location searched on failure.
func Discover(cfg *Config) (string, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	log = log.With("component", "shell")

	if cfg.Path != "" {
		log.Debug("Using explicit shell path", "shell_path", cfg.Path)

		if _, err := os.Stat(cfg.Path); err == nil {
			return cfg.Path, nil
		}

		return "", &errors.ShellNotFoundError{SearchedPaths: []string{cfg.Path}}
	}

	if runtime.GOOS == "windows" {
		return discoverWindows(log)
	}

	searchedPaths := make([]string, 0, len(commonPaths)+1)

	if path, err := exec.LookPath("sh"); err == nil {
		log.Debug("Found 'sh' in PATH", "path", path)

		return path, nil
	}

	searchedPaths = append(searchedPaths, "$PATH")

	for _, path := range commonPaths {
		searchedPaths = append(searchedPaths, path)

		if _, err := os.Stat(path); err == nil {
			log.Debug("Found shell at common path", "path", path)

			return path, nil
		}
	}

	log.Warn("Shell not found in any searched paths", "searched_paths", searchedPaths)

	return "", &errors.ShellNotFoundError{SearchedPaths: searchedPaths}
}

func discoverWindows(log *slog.Logger) (string, error) {
	if comspec := os.Getenv("ComSpec"); comspec != "" {
		log.Debug("Using ComSpec shell", "path", comspec)

		return comspec, nil
	}

	if path, err := exec.LookPath("cmd.exe"); err == nil {
		return path, nil
	}

	return "", &errors.ShellNotFoundError{SearchedPaths: []string{"%ComSpec%", "$PATH"}}
}

// Args returns the argument vector, program first, that makes shellPath
// interpret command.
func Args(shellPath, command string) []string {
	if runtime.GOOS == "windows" {
		return []string{shellPath, "/d", "/s", "/c", `"` + command + `"`}
	}

	return []string{shellPath, "-c", command}
}

// BuildEnvironment returns the parent environment with extra variables
// appended in a stable order. Later entries win, so extra overrides inherited
// values.
func BuildEnvironment(extra map[string]string) []string {
	env := os.Environ()

	for _, key := range slices.Sorted(maps.Keys(extra)) {
		env = append(env, fmt.Sprintf("%s=%s", key, extra[key]))
	}

	return env
}
