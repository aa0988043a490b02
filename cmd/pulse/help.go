// ABOUTME: Help display for the pulse CLI with grouped flags, examples, and environment status.
// ABOUTME: Provides printHelp for usage output and envStatus for credential detection.
package main

import (
	"fmt"
	"io"
	"os"
)

// printHelp writes a formatted help message to w, including usage patterns,
// grouped flags, examples, and environment status.
func printHelp(w io.Writer, ver string) {
	fmt.Fprintf(w, "pulse %s — terminal dashboard for the pipeline backend\n", ver)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  pulse                       Open the interactive dashboard")
	fmt.Fprintln(w, "  pulse -serve [-port 8788]   Start the local dev server")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Dashboard Flags:")
	fmt.Fprintln(w, "  -config <path>        Config file (default: $XDG_CONFIG_HOME/pulse/config.yaml)")
	fmt.Fprintln(w, "  -driver <name>        Upstream driver for the connect stage (default: postgres)")
	fmt.Fprintln(w, "  -dsn <dsn>            Upstream DSN for the connect stage")
	fmt.Fprintln(w, "  -no-history           Disable chat and run persistence")
	fmt.Fprintln(w, "  -verbose              Verbose output")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Dev Server Flags:")
	fmt.Fprintln(w, "  -serve                Start the local backend emulator")
	fmt.Fprintln(w, "  -port <port>          Dev server port (default: 8788)")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Other:")
	fmt.Fprintln(w, "  -version              Print version and exit")
	fmt.Fprintln(w, "  -help                 Show this help")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Keys (dashboard):")
	fmt.Fprintln(w, "  tab                   Switch between chat and pipeline panels")
	fmt.Fprintln(w, "  enter                 Send the composed chat message")
	fmt.Fprintln(w, "  esc                   Cancel the in-flight assistant turn")
	fmt.Fprintln(w, "  c / e / a / g         Connect, extract, analyze, generate")
	fmt.Fprintln(w, "  r                     Reset pipeline state")
	fmt.Fprintln(w, "  ctrl+c                Quit")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Examples:")
	fmt.Fprintln(w, "  pulse -serve -port 8788")
	fmt.Fprintln(w, "  pulse -dsn postgres://localhost/app")
	fmt.Fprintln(w, "  pulse -config ./pulse.yaml -verbose")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Environment:")
	fmt.Fprintf(w, "  PULSE_SERVER_URL      %s\n", envStatus("PULSE_SERVER_URL"))
	fmt.Fprintf(w, "  PULSE_TOKEN           %s\n", envStatus("PULSE_TOKEN"))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  Env variables override the config file.")
}

// envStatus returns "[set]" if the named environment variable is non-empty,
// or "[not set]" otherwise.
func envStatus(key string) string {
	if os.Getenv(key) != "" {
		return "[set]"
	}
	return "[not set]"
}
