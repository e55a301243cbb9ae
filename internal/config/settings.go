package config

import (
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/spf13/pflag"

	"github.com/wagiedev/stdio-gateway/internal/errors"
)

// Log output formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Settings is the CLI configuration.
type Settings struct {
	Options Options

	LogLevel  slog.Level
	LogFormat string

	ShowVersion bool
	ShowHelp    bool
}

// environment holds the variables that override flags. Environment wins over
// flags, so PORT set by a process manager takes effect regardless of --port.
type environment struct {
	Port       string `env:"PORT"`
	HealthPort string `env:"STDIO_GATEWAY_HEALTH_PORT"`
	LogLevel   string `env:"LOG_LEVEL"`
	LogFormat  string `env:"LOG_FORMAT"`
}

// NewFlagSet returns the CLI flag set bound to s.
func NewFlagSet(name string, s *Settings) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.SortFlags = false

	flagSet.StringVar(&s.Options.Command, "stdio", "", "shell command that starts the stdio server (required)")
	flagSet.IntVar(&s.Options.Port, "port", DefaultPort, "WebSocket listen port (env PORT overrides)")
	flagSet.StringVar(&s.Options.Host, "host", "", "interface to bind (default all interfaces)")
	flagSet.IntVar(&s.Options.HealthPort, "health-port", 0,
		"health endpoint port, -1 to disable (default port+1, env STDIO_GATEWAY_HEALTH_PORT overrides)")
	flagSet.BoolVar(&s.Options.ExitOnDisconnect, "exit-on-disconnect", false,
		"exit with code 0 when the WebSocket client disconnects")
	flagSet.String("log-level", "info", "log level: debug, info, warn, error (env LOG_LEVEL overrides)")
	flagSet.StringVar(&s.LogFormat, "log-format", LogFormatText, "log format: text or json (env LOG_FORMAT overrides)")
	flagSet.BoolVar(&s.ShowVersion, "version", false, "print version and exit")
	flagSet.BoolVarP(&s.ShowHelp, "help", "h", false, "show help")

	return flagSet
}

// Load parses CLI arguments (without the program name), applies environment
// overrides and validates the result. Help and version requests are reported
// through Settings and skip validation.
func Load(args []string) (*Settings, error) {
	return load(args, envdecode.Decode)
}

func load(args []string, decode func(any) error) (*Settings, error) {
	s := &Settings{}

	flagSet := NewFlagSet("stdio-gateway", s)

	if err := flagSet.Parse(args); err != nil {
		if stderrors.Is(err, pflag.ErrHelp) {
			s.ShowHelp = true

			return s, nil
		}

		return nil, &errors.ConfigError{Field: "arguments", Reason: err.Error()}
	}

	if s.ShowHelp || s.ShowVersion {
		return s, nil
	}

	if rest := flagSet.Args(); len(rest) > 0 {
		return nil, &errors.ConfigError{Field: "arguments", Reason: fmt.Sprintf("unexpected argument %q", rest[0])}
	}

	levelFlag, _ := flagSet.GetString("log-level")

	var env environment

	if err := decode(&env); err != nil && !stderrors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, &errors.ConfigError{Field: "environment", Reason: err.Error()}
	}

	if err := s.applyEnvironment(&env, &levelFlag); err != nil {
		return nil, err
	}

	level, err := ParseLogLevel(levelFlag)
	if err != nil {
		return nil, err
	}

	s.LogLevel = level

	format, err := ParseLogFormat(s.LogFormat)
	if err != nil {
		return nil, err
	}

	s.LogFormat = format

	if err := s.Options.Validate(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Settings) applyEnvironment(env *environment, level *string) error {
	if env.Port != "" {
		port, err := parsePort("PORT", env.Port)
		if err != nil {
			return err
		}

		s.Options.Port = port
	}

	if env.HealthPort != "" {
		port, err := parsePort("STDIO_GATEWAY_HEALTH_PORT", env.HealthPort)
		if err != nil {
			return err
		}

		s.Options.HealthPort = port
	}

	if env.LogLevel != "" {
		*level = env.LogLevel
	}

	if env.LogFormat != "" {
		s.LogFormat = env.LogFormat
	}

	return nil
}

func parsePort(field, value string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, &errors.ConfigError{Field: field, Reason: fmt.Sprintf("%q is not a number", value)}
	}

	return port, nil
}

// logLevelAliases maps accepted spellings to slog level names.
var logLevelAliases = map[string]string{
	"warning": "warn",
	"err":     "error",
	"trace":   "debug",
}

// ParseLogLevel parses a log level name. Names are case-insensitive and the
// aliases "warning", "err" and "trace" are accepted.
func ParseLogLevel(name string) (slog.Level, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := logLevelAliases[normalized]; ok {
		normalized = alias
	}

	var level slog.Level

	if err := level.UnmarshalText([]byte(normalized)); err != nil {
		return 0, &errors.ConfigError{Field: "log level", Reason: fmt.Sprintf("unknown level %q", name)}
	}

	return level, nil
}

// ParseLogFormat validates a log format name.
func ParseLogFormat(name string) (string, error) {
	switch format := strings.ToLower(strings.TrimSpace(name)); format {
	case LogFormatText, LogFormatJSON:
		return format, nil
	default:
		return "", &errors.ConfigError{Field: "log format", Reason: fmt.Sprintf("unknown format %q", name)}
	}
}

// PrintUsage writes CLI help to w.
func PrintUsage(w io.Writer, name string) {
	flagSet := NewFlagSet(name, &Settings{})

	fmt.Fprintf(w, `%s exposes a stdio JSON-RPC server over WebSocket.

The --stdio command is run through the system shell and may contain pipes,
redirects and quoting. Only pass commands from trusted sources.

Usage:
  %s --stdio "<command>" [flags]

Examples:
  # Serve an MCP filesystem server on port 8000
  %s --stdio "npx -y @modelcontextprotocol/server-filesystem ./"

  # Pick the port from the environment and log as JSON
  PORT=9000 %s --stdio "./server" --log-format json

Flags:
%s`, name, name, name, name, flagSet.FlagUsages())
}
