package main

import (
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"dnsauthd/internal/name"
	"dnsauthd/internal/xfer"
)

// cmdNotify is the one-shot NOTIFY sender spec.md §6 lists alongside
// the daemon: send a single NOTIFY(SOA) for zone to addr and report
// whether it was acknowledged, without starting a server.
func cmdNotify(args []string) {
	fs := flag.NewFlagSet("notify", flag.ExitOnError)
	var timeoutSecs int
	fs.IntVar(&timeoutSecs, "timeout", 5, "seconds to wait for an ack")
	fs.Parse(args)
	rest := fs.Args()
	if len(rest) != 2 {
		fmt.Fprintln(os.Stderr, "usage: dnsauthd notify <zone> <addr:port>")
		os.Exit(3)
	}

	zone, err := name.Parse(rest[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "dnsauthd notify: %v\n", err)
		os.Exit(3)
	}

	if err := xfer.SendNotify(rest[1], zone, time.Duration(timeoutSecs)*time.Second); err != nil {
		fmt.Fprintf(os.Stderr, "dnsauthd notify: %v\n", err)
		os.Exit(3)
	}
	fmt.Printf("NOTIFY for %s acknowledged by %s\n", zone, rest[1])
	os.Exit(1) // 1 == success, per spec.md §6's xfer-family exit codes
}
