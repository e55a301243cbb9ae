package main

import (
	"context"
	"fmt"
	"io"
	"os"

	gateway "github.com/wagiedev/stdio-gateway"
	"github.com/wagiedev/stdio-gateway/internal/config"
)

const programName = "stdio-gateway"

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	settings, err := config.Load(args)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n\nRun '%s --help' for usage.\n", err, programName)

		return 1
	}

	if settings.ShowHelp {
		config.PrintUsage(stdout, programName)

		return 0
	}

	if settings.ShowVersion {
		fmt.Fprintf(stdout, "%s %s\n", gateway.Name, gateway.Version())

		return 0
	}

	log := gateway.NewLogger(stderr, settings.LogLevel, settings.LogFormat == config.LogFormatJSON)

	code, err := gateway.Run(ctx,
		gateway.WithCommand(settings.Options.Command),
		gateway.WithHost(settings.Options.Host),
		gateway.WithPort(settings.Options.Port),
		gateway.WithHealthPort(settings.Options.HealthPort),
		gateway.WithExitOnDisconnect(settings.Options.ExitOnDisconnect),
		gateway.WithLogger(log),
	)
	if err != nil {
		log.Error("Gateway failed", "error", err)
	}

	return code
}
