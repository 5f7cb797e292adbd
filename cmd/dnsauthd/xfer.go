package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	flag "github.com/spf13/pflag"

	"dnsauthd/internal/name"
	"dnsauthd/internal/xfer"
)

// cmdXfer is the one-shot AXFR collaborator from spec.md §6: probe
// addr's SOA for zone and, if its serial is ahead of localSerial (or
// no localSerial is given), pull and report a full transfer. Exit 0
// means the zone was already up to date, 1 means a transfer
// completed, 3 means either step failed.
func cmdXfer(args []string) {
	fs := flag.NewFlagSet("xfer", flag.ExitOnError)
	var timeoutSecs int
	fs.IntVar(&timeoutSecs, "timeout", 30, "seconds to wait for the transfer")
	fs.Parse(args)
	rest := fs.Args()
	if len(rest) < 2 {
		fmt.Fprintln(os.Stderr, "usage: dnsauthd xfer <zone> <addr:port> [local-serial]")
		os.Exit(3)
	}

	zone, err := name.Parse(rest[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "dnsauthd xfer: %v\n", err)
		os.Exit(3)
	}
	addr := rest[1]

	remote, conn, err := xfer.ProbeSOA(addr, zone, time.Duration(timeoutSecs)*time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dnsauthd xfer: SOA probe failed: %v\n", err)
		os.Exit(3)
	}
	defer conn.Close()

	if len(rest) >= 3 {
		local, err := strconv.ParseUint(rest[2], 10, 32)
		if err != nil {
			fmt.Fprintf(os.Stderr, "dnsauthd xfer: local-serial: %v\n", err)
			os.Exit(3)
		}
		if !xfer.NeedsRefresh(uint32(local), remote) {
			fmt.Printf("%s is up to date at serial %d\n", zone, remote)
			os.Exit(0)
		}
	}

	result, err := xfer.FetchAXFR(conn, addr, zone, nil, time.Duration(timeoutSecs)*time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dnsauthd xfer: AXFR failed: %v\n", err)
		os.Exit(3)
	}
	fmt.Printf("transferred %s: %d RRs at serial %d\n", zone, len(result.RRs), result.Serial)
	os.Exit(1)
}
