// stepcapctl is the control CLI for stepcapd.
package main

import (
	"flag"
	"fmt"
	"os"

	"stepcap/internal/config"
)

// Version is set at build time.
var Version = "dev"

var (
	configPath = flag.String("config", "", "path to config file")
	socketPath = flag.String("socket", "", "daemon socket or pipe (overrides config)")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	cmd, args := flag.Arg(0), flag.Args()[1:]
	var err error
	switch cmd {
	case "start":
		err = cmdStart()
	case "stop":
		err = cmdStop()
	case "pause":
		err = cmdPause()
	case "status":
		err = cmdStatus()
	case "watch":
		err = cmdWatch(args)
	case "metrics":
		err = cmdMetrics()
	case "health":
		err = cmdHealth()
	case "ping":
		err = cmdPing()
	case "launch":
		err = cmdLaunch(args)
	case "version":
		fmt.Printf("stepcapctl %s\n", Version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
	if err != nil {
		printError(err.Error())
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `stepcapctl - Control utility for stepcapd

Usage: stepcapctl [options] <command> [args]

Commands:
  start               Start a recording session
  stop                Stop the recording session
  pause               Pause a running session, or resume a paused one
  status              Show daemon and session status
  watch [--json]      Stream events until interrupted
  metrics             Print daemon metrics in Prometheus text format
  health              Run the daemon's component checks
  ping                Check the daemon is answering
  launch [args...]    Start stepcapd in the background
  version             Print version
  help                Show this help message

Options:
  -config <path>  Path to config file (default: $STEPCAP_CONFIG)
  -socket <path>  Daemon socket or pipe (default: from config, or $STEPCAP_SOCKET)`)
}

// resolveSocket picks the endpoint from the flag, then the config file and
// its environment overrides.
func resolveSocket() string {
	if *socketPath != "" {
		return *socketPath
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		printWarning(fmt.Sprintf("Cannot read config, using default socket: %v", err))
		cfg = config.DefaultConfig()
		cfg.ApplyEnvOverrides()
	}
	return cfg.IPC.SocketPath
}
