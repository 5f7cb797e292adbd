package control

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"dnsauthd/internal/name"
	"dnsauthd/internal/tsig"
)

// ZoneReloader reloads one zone (or every zone, when apex is the zero
// value) and reports whether anything changed.
type ZoneReloader func(apex name.DomainName) (changed bool, err error)

// ZoneStatusFunc reports the currently loaded serial for a zone.
type ZoneStatusFunc func(apex name.DomainName) (serial uint32, loaded bool)

// StatsFunc returns a snapshot of server counters; the concrete shape
// lives with the server package, control only forwards it as JSON.
type StatsFunc func() map[string]uint64

// KeyPutter persists a TSIG key via the keystore, used by the
// /keystore command endpoint.
type KeyPutter func(key tsig.Key, comment string) error

// Handlers bundles every callback NewServer wires a control.Server
// to; each is a thin adapter into the server/zonedb/keystore packages
// so this package stays free of a direct dependency on them.
type Handlers struct {
	Reload     ZoneReloader
	Status     ZoneStatusFunc
	StatsFn    StatsFunc
	StopServer func()
	PutKey     KeyPutter
}

// pingResponse is the body of every /ping reply.
type pingResponse struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

func (h Handlers) Ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, pingResponse{Time: time.Now(), Message: "pong"})
}

type zoneReloadRequest struct {
	Zone string `json:"zone"` // empty reloads every configured zone
}

type zoneReloadResponse struct {
	Zone    string `json:"zone"`
	Changed bool   `json:"changed"`
	Error   string `json:"error,omitempty"`
}

func (h Handlers) ZoneReload(w http.ResponseWriter, r *http.Request) {
	var req zoneReloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("control: ZoneReload: error decoding request: %v", err)
		writeJSON(w, zoneReloadResponse{Error: err.Error()})
		return
	}
	var apex name.DomainName
	if req.Zone != "" {
		n, err := name.Parse(req.Zone)
		if err != nil {
			writeJSON(w, zoneReloadResponse{Zone: req.Zone, Error: err.Error()})
			return
		}
		apex = n
	}
	changed, err := h.Reload(apex)
	resp := zoneReloadResponse{Zone: req.Zone, Changed: changed}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, resp)
}

type zoneStatusRequest struct {
	Zone string `json:"zone"`
}

type zoneStatusResponse struct {
	Zone   string `json:"zone"`
	Serial uint32 `json:"serial"`
	Loaded bool   `json:"loaded"`
	Error  string `json:"error,omitempty"`
}

func (h Handlers) ZoneStatus(w http.ResponseWriter, r *http.Request) {
	var req zoneStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, zoneStatusResponse{Error: err.Error()})
		return
	}
	apex, err := name.Parse(req.Zone)
	if err != nil {
		writeJSON(w, zoneStatusResponse{Zone: req.Zone, Error: err.Error()})
		return
	}
	serial, loaded := h.Status(apex)
	writeJSON(w, zoneStatusResponse{Zone: req.Zone, Serial: serial, Loaded: loaded})
}

func (h Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	if h.StatsFn == nil {
		writeJSON(w, map[string]uint64{})
		return
	}
	writeJSON(w, h.StatsFn())
}

type stopResponse struct {
	Message string `json:"message"`
}

func (h Handlers) Stop(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, stopResponse{Message: "stopping"})
	if h.StopServer != nil {
		go h.StopServer()
	}
}

type keystoreRequest struct {
	Command   string `json:"command"`
	KeyName   string `json:"key_name"`
	Algorithm string `json:"algorithm"`
	Secret    string `json:"secret"`
	Comment   string `json:"comment"`
}

type keystoreResponse struct {
	Error    bool   `json:"error"`
	ErrorMsg string `json:"error_msg,omitempty"`
}

func (h Handlers) Keystore(w http.ResponseWriter, r *http.Request) {
	var req keystoreRequest
	var resp keystoreResponse
	defer func() {
		writeJSON(w, resp)
	}()

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp = keystoreResponse{Error: true, ErrorMsg: err.Error()}
		return
	}

	log.Printf("control: received /keystore request (cmd: %s) from %s", req.Command, r.RemoteAddr)

	switch req.Command {
	case "put-key":
		keyName, err := name.Parse(req.KeyName)
		if err != nil {
			resp = keystoreResponse{Error: true, ErrorMsg: err.Error()}
			return
		}
		algo, err := parseAlgorithmName(req.Algorithm)
		if err != nil {
			resp = keystoreResponse{Error: true, ErrorMsg: err.Error()}
			return
		}
		if h.PutKey == nil {
			resp = keystoreResponse{Error: true, ErrorMsg: "keystore not configured"}
			return
		}
		if err := h.PutKey(tsig.Key{Name: keyName, Algorithm: algo, Secret: []byte(req.Secret)}, req.Comment); err != nil {
			resp = keystoreResponse{Error: true, ErrorMsg: err.Error()}
			return
		}
	default:
		resp = keystoreResponse{Error: true, ErrorMsg: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

func parseAlgorithmName(s string) (tsig.Algorithm, error) {
	switch s {
	case "hmac-md5":
		return tsig.HMACMD5, nil
	case "hmac-sha1":
		return tsig.HMACSHA1, nil
	case "hmac-sha256", "":
		return tsig.HMACSHA256, nil
	default:
		return 0, fmt.Errorf("unknown algorithm: %s", s)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
