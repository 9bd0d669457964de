// stepcapd records user interactions as step-by-step records.
//
//	stepcapd [-config path] [-autostart] [-version]
//
// The daemon samples mouse buttons and monitored keys, resolves the UI
// element under each accepted interaction, attaches a screenshot and
// streams the resulting records to IPC subscribers. Recording is started
// and stopped with stepcapctl.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Version is set at build time.
var Version = "dev"

var (
	configPath = flag.String("config", "", "path to config file")
	autostart  = flag.Bool("autostart", false, "start recording immediately")
	version    = flag.Bool("version", false, "print version and exit")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	if *version {
		fmt.Printf("stepcapd %s\n", Version)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, *autostart); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "stepcapd: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `stepcapd - interaction capture daemon

Usage: stepcapd [options]

Options:
  -config <path>  Path to config file (default: $STEPCAP_CONFIG or the platform config dir)
  -autostart      Start recording as soon as the daemon is up
  -version        Print version and exit

Environment:
  STEPCAP_CONFIG            Config file path
  STEPCAP_LOG_LEVEL         Overrides logging.level
  STEPCAP_SOCKET            Overrides ipc.socket_path
  STEPCAP_SELF_IDENTIFIERS  Comma-separated window title fragments to ignore`)
}
