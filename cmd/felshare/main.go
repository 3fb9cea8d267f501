// Felshare bridge - local hub for Felshare cloud aroma diffusers.
//
// The bridge logs in to the Felshare cloud, holds the MQTT session to one
// diffuser, decodes its status frames and exposes state and commands on a
// local HTTP API. Optional InfluxDB telemetry records every reading.
//
// Commands:
//
//	felshare [run]     start the bridge (default)
//	felshare devices   list the devices of the cloud account
//	felshare token     mint a bearer token for the local API
//	felshare migrate   apply or roll back database migrations
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/felshare.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	os.Exit(dispatch(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// dispatch runs the subcommand named by args[0] and returns the exit code.
func dispatch(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := "run"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "run":
		err = runCommand(ctx, args, stderr)
	case "devices":
		err = devicesCommand(ctx, args, stdout, stderr)
	case "token":
		err = tokenCommand(args, stdout, stderr)
	case "migrate":
		err = migrateCommand(ctx, args, stdout, stderr)
	case "version":
		fmt.Fprintf(stdout, "felshare %s (commit %s, built %s)\n", version, commit, date)
	case "help", "-h", "--help":
		usage(stdout)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", cmd)
		usage(stderr)
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
}

func usage(w io.Writer) {
	fmt.Fprint(w, `Usage: felshare <command> [options]

Commands:
  run       start the bridge (default)
  devices   list the devices of the cloud account
  token     mint a bearer token for the local API
  migrate   apply pending migrations, or roll back the latest with -down
  version   print build information

Run "felshare <command> -h" for command options.
`)
}

// newFlagSet creates a flag set with the shared -config flag.
func newFlagSet(name string, stderr io.Writer) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.String("config", getConfigPath(), "path to the YAML configuration file")
	return fs, path
}

// getConfigPath returns the configuration file path.
// Uses FELSHARE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("FELSHARE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
