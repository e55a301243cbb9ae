package config

import (
	"bytes"
	stderrors "errors"
	"log/slog"
	"testing"

	"github.com/joeshaw/envdecode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wagiedev/stdio-gateway/internal/errors"
)

// withEnv returns a decoder that fills the environment struct from values.
func withEnv(values environment) func(any) error {
	return func(target any) error {
		env, ok := target.(*environment)
		if !ok {
			return stderrors.New("unexpected target")
		}

		*env = values

		if values == (environment{}) {
			return envdecode.ErrNoTargetFieldsAreSet
		}

		return nil
	}
}

func TestLoad_Defaults(t *testing.T) {
	s, err := load([]string{"--stdio", "npx server"}, withEnv(environment{}))
	require.NoError(t, err)

	assert.Equal(t, "npx server", s.Options.Command)
	assert.Equal(t, DefaultPort, s.Options.Port)
	assert.Equal(t, 8001, s.Options.ResolvedHealthPort())
	assert.Empty(t, s.Options.Host)
	assert.False(t, s.Options.ExitOnDisconnect)
	assert.Equal(t, slog.LevelInfo, s.LogLevel)
	assert.Equal(t, LogFormatText, s.LogFormat)
}

func TestLoad_Flags(t *testing.T) {
	s, err := load([]string{
		"--stdio=./server --flag",
		"--port", "9000",
		"--host", "127.0.0.1",
		"--health-port", "-1",
		"--exit-on-disconnect",
		"--log-level", "DEBUG",
		"--log-format", "json",
	}, withEnv(environment{}))
	require.NoError(t, err)

	assert.Equal(t, "./server --flag", s.Options.Command)
	assert.Equal(t, 9000, s.Options.Port)
	assert.Equal(t, "127.0.0.1", s.Options.Host)
	assert.False(t, s.Options.HealthEnabled())
	assert.True(t, s.Options.ExitOnDisconnect)
	assert.Equal(t, slog.LevelDebug, s.LogLevel)
	assert.Equal(t, LogFormatJSON, s.LogFormat)
}

func TestLoad_EnvironmentOverridesFlags(t *testing.T) {
	s, err := load([]string{"--stdio", "cat", "--port", "9000", "--log-level", "debug"}, withEnv(environment{
		Port:       "7000",
		HealthPort: "7100",
		LogLevel:   "warning",
		LogFormat:  "JSON",
	}))
	require.NoError(t, err)

	assert.Equal(t, 7000, s.Options.Port)
	assert.Equal(t, 7100, s.Options.ResolvedHealthPort())
	assert.Equal(t, slog.LevelWarn, s.LogLevel)
	assert.Equal(t, LogFormatJSON, s.LogFormat)
}

func TestLoad_RealEnvironment(t *testing.T) {
	t.Setenv("PORT", "7001")
	t.Setenv("STDIO_GATEWAY_HEALTH_PORT", "")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("LOG_FORMAT", "")

	s, err := Load([]string{"--stdio", "cat"})
	require.NoError(t, err)

	assert.Equal(t, 7001, s.Options.Port)
	assert.Equal(t, 7002, s.Options.ResolvedHealthPort())
	assert.Equal(t, slog.LevelError, s.LogLevel)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		env   environment
		field string
	}{
		{name: "missing stdio", args: []string{}, field: "command"},
		{name: "unknown flag", args: []string{"--stdio", "cat", "--bogus"}, field: "arguments"},
		{name: "bad port value", args: []string{"--stdio", "cat", "--port", "abc"}, field: "arguments"},
		{name: "positional argument", args: []string{"--stdio", "cat", "extra"}, field: "arguments"},
		{name: "bad PORT", args: []string{"--stdio", "cat"}, env: environment{Port: "eighty"}, field: "PORT"},
		{name: "bad health port env", args: []string{"--stdio", "cat"}, env: environment{HealthPort: "x"}, field: "STDIO_GATEWAY_HEALTH_PORT"},
		{name: "port out of range", args: []string{"--stdio", "cat"}, env: environment{Port: "99999"}, field: "port"},
		{name: "bad log level", args: []string{"--stdio", "cat", "--log-level", "loud"}, field: "log level"},
		{name: "bad log format", args: []string{"--stdio", "cat", "--log-format", "xml"}, field: "log format"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := load(tc.args, withEnv(tc.env))

			configErr, ok := stderrors.AsType[*errors.ConfigError](err)
			require.True(t, ok, "expected ConfigError, got %v", err)
			assert.Equal(t, tc.field, configErr.Field)
		})
	}
}

func TestLoad_DecodeFailure(t *testing.T) {
	_, err := load([]string{"--stdio", "cat"}, func(any) error { return stderrors.New("boom") })

	configErr, ok := stderrors.AsType[*errors.ConfigError](err)
	require.True(t, ok)
	assert.Equal(t, "environment", configErr.Field)
}

func TestLoad_HelpAndVersionSkipValidation(t *testing.T) {
	s, err := load([]string{"--help"}, withEnv(environment{}))
	require.NoError(t, err)
	assert.True(t, s.ShowHelp)

	s, err = load([]string{"-h"}, withEnv(environment{}))
	require.NoError(t, err)
	assert.True(t, s.ShowHelp)

	s, err = load([]string{"--version"}, withEnv(environment{}))
	require.NoError(t, err)
	assert.True(t, s.ShowVersion)
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "trace", want: slog.LevelDebug},
		{in: "Info", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: " ERROR ", want: slog.LevelError},
		{in: "err", want: slog.LevelError},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()

			got, err := ParseLogLevel(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := ParseLogLevel("verbose")
	require.Error(t, err)
}

func TestPrintUsage(t *testing.T) {
	var buf bytes.Buffer

	PrintUsage(&buf, "stdio-gateway")

	out := buf.String()
	assert.Contains(t, out, "--stdio")
	assert.Contains(t, out, "--exit-on-disconnect")
	assert.Contains(t, out, "trusted")
}
