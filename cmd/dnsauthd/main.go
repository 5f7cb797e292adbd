// Command dnsauthd is the authoritative name server: it loads its
// configured zones, binds UDP/TCP listeners, and serves answers until
// told to stop. It also doubles as the one-shot collaborator tools
// spec.md §6 names alongside the daemon: "notify" sends a single
// NOTIFY, "xfer" runs a single AXFR probe/transfer, and "control"
// talks to a running daemon's remote-control channel (delegating to
// the same request/response shape dnsauthctl uses).
package main

import (
	"fmt"
	"os"
)

var appVersion = "dev"

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: dnsauthd <serve|notify|xfer|control> [flags]")
		os.Exit(3)
	}

	switch args[0] {
	case "serve":
		cmdServe(args[1:])
	case "notify":
		cmdNotify(args[1:])
	case "xfer":
		cmdXfer(args[1:])
	case "control":
		cmdControl(args[1:])
	default:
		// Bare invocation with daemon flags (no subcommand) still runs
		// the server, matching how most NSD-style daemons are invoked.
		cmdServe(args)
	}
}
