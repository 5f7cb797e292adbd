// Command dnsauthctl is a thin HTTP client for dnsauthd's control
// channel: ping, zone reload/status, stats, stop, and keystore
// key management.
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

func main() {
	var server, apiKey string
	flag.StringVar(&server, "server", "https://127.0.0.1:8053", "dnsauthd control channel base URL")
	flag.StringVar(&apiKey, "apikey", os.Getenv("DNSAUTHD_APIKEY"), "control channel API key")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: dnsauthctl [--server url] [--apikey key] <ping|reload|status|stats|stop|putkey> [args]")
		os.Exit(1)
	}
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "dnsauthctl: no API key set (--apikey or DNSAUTHD_APIKEY)")
		os.Exit(3)
	}

	c := &client{base: server, apiKey: apiKey}

	var err error
	switch cmd := args[0]; cmd {
	case "ping":
		err = c.call("/ping", nil)
	case "reload":
		zone := ""
		if len(args) > 1 {
			zone = args[1]
		}
		err = c.call("/zone/reload", map[string]string{"zone": zone})
	case "status":
		if len(args) < 2 {
			err = fmt.Errorf("status requires a zone name")
			break
		}
		err = c.call("/zone/status", map[string]string{"zone": args[1]})
	case "stats":
		err = c.call("/stats", nil)
	case "stop":
		err = c.call("/stop", nil)
	case "putkey":
		if len(args) < 4 {
			err = fmt.Errorf("putkey requires <name> <algorithm> <secret-base64>")
			break
		}
		err = c.call("/keystore", map[string]string{
			"command": "put-key", "key_name": args[1], "algorithm": args[2], "secret": args[3],
		})
	default:
		err = fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "dnsauthctl: %v\n", err)
		os.Exit(3)
	}
}

type client struct {
	base   string
	apiKey string
	http   http.Client
}

func (c *client) call(endpoint string, body interface{}) error {
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
