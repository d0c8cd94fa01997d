// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/VVelox/meer/cmd"
	"github.com/VVelox/meer/internal/brand"
	"github.com/VVelox/meer/internal/install"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		// Foreground. This is what start execs and what systemd
		// units should point at.
		runFlags := flag.NewFlagSet("run", flag.ExitOnError)
		configFile := runFlags.String("config", install.DefaultConfigFile(), "Configuration file")
		runFlags.StringVar(configFile, "c", install.DefaultConfigFile(), "Configuration file (short)")
		runFlags.Parse(os.Args[2:])

		if err := cmd.RunDaemon(*configFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "start":
		startFlags := flag.NewFlagSet("start", flag.ExitOnError)
		configFile := startFlags.String("config", install.DefaultConfigFile(), "Configuration file")
		startFlags.StringVar(configFile, "c", install.DefaultConfigFile(), "Configuration file (short)")
		startFlags.Parse(os.Args[2:])

		if err := cmd.RunStart(*configFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "stop":
		if err := cmd.RunStop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "reload":
		if err := cmd.RunReload(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "status":
		statusFlags := flag.NewFlagSet("status", flag.ExitOnError)
		configFile := statusFlags.String("config", install.DefaultConfigFile(), "Configuration file")
		statusFlags.StringVar(configFile, "c", install.DefaultConfigFile(), "Configuration file (short)")
		statusFlags.Parse(os.Args[2:])

		if err := cmd.RunStatus(*configFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "config":
		runConfig(os.Args[2:])

	case "version":
		fmt.Printf("%s version %s\n", brand.Name, brand.Version)

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runConfig(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: "+brand.LowerName+" config <init|check|show> [options]")
		os.Exit(1)
	}

	sub := args[0]
	configFlags := flag.NewFlagSet("config "+sub, flag.ExitOnError)
	configFile := configFlags.String("config", install.DefaultConfigFile(), "Configuration file")
	configFlags.StringVar(configFile, "c", install.DefaultConfigFile(), "Configuration file (short)")
	force := configFlags.Bool("force", false, "Overwrite an existing file (init only)")
	configFlags.Parse(args[1:])

	var err error
	switch sub {
	case "init":
		err = cmd.RunConfigInit(*configFile, *force)
	case "check":
		err = cmd.RunConfigCheck(*configFile)
	case "show":
		err = cmd.RunConfigShow(*configFile)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config subcommand: %s\n", sub)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`%s - %s

Usage:
  %s <command> [options]

Core Commands:
  run       Run the bridge in the foreground
            Options: --config (-c) <file>
  start     Start the bridge in the background
            Options: --config (-c) <file>
  stop      Stop the running bridge
  reload    Reopen log, output file, and GeoIP database (SIGHUP)
  status    Show daemon status and counters

Configuration:
  config    Manage the HCL configuration
            Subcommands: init, check, show
            Options: --config (-c) <file>, --force (init)

Other:
  version   Print version information
  help      Show this help

Examples:
  %s config init                    # Write a starter config
  %s start                          # Start in background
  %s status                         # Liveness plus counters
  %s stop                           # Stop the daemon
`,
		brand.Name, brand.Description,
		brand.LowerName,
		brand.LowerName, brand.LowerName, brand.LowerName, brand.LowerName)
}
