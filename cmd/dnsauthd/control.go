package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	flag "github.com/spf13/pflag"
)

// cmdControl is the fourth collaborator command spec.md §6 names: a
// thin client for the remote-control channel, so an operator doesn't
// need a second binary on the box just to ping or reload a running
// daemon. dnsauthctl remains the fuller-featured standalone client
// (it also manages keystore keys); this subcommand covers the
// spec-named surface directly from dnsauthd itself.
func cmdControl(args []string) {
	fs := flag.NewFlagSet("control", flag.ExitOnError)
	var server, apiKey string
	fs.StringVar(&server, "server", "https://127.0.0.1:8053", "dnsauthd control channel base URL")
	fs.StringVar(&apiKey, "apikey", os.Getenv("DNSAUTHD_APIKEY"), "control channel API key")
	fs.Parse(args)
	rest := fs.Args()

	if len(rest) == 0 {
		fmt.Fprintln(os.Stderr, "usage: dnsauthd control [--server url] [--apikey key] <ping|reload|status|stats|stop>")
		os.Exit(3)
	}
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "dnsauthd control: no API key set (--apikey or DNSAUTHD_APIKEY)")
		os.Exit(3)
	}

	c := &controlClient{base: server, apiKey: apiKey}
	var err error
	switch cmd := rest[0]; cmd {
	case "ping":
		err = c.call("/ping", nil)
	case "reload":
		zone := ""
		if len(rest) > 1 {
			zone = rest[1]
		}
		err = c.call("/zone/reload", map[string]string{"zone": zone})
	case "status":
		if len(rest) < 2 {
			err = fmt.Errorf("status requires a zone name")
			break
		}
		err = c.call("/zone/status", map[string]string{"zone": rest[1]})
	case "stats":
		err = c.call("/stats", nil)
	case "stop":
		err = c.call("/stop", nil)
	default:
		err = fmt.Errorf("unknown control command %q", cmd)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "dnsauthd control: %v\n", err)
		os.Exit(3)
	}
}

type controlClient struct {
	base   string
	apiKey string
	http   http.Client
}

func (c *controlClient) call(endpoint string, body interface{}) error {
	var r io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(http.MethodPost, c.base+"/api/v1"+endpoint, r)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if json.Indent(&pretty, out, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(out))
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}
