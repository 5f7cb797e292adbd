// Package control implements the remote control channel spec.md §2
// names as an external collaborator: an HTTP API, gated by an API
// key header, for zone reload/status and server statistics/shutdown.
package control

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"
)

// Server owns the mux.Router and the http.Server(s) bound to it.
type Server struct {
	router    *mux.Router
	http      []*http.Server
	addresses []string
	certFile  string
	keyFile   string
}

// NewServer builds the router with every endpoint gated behind the
// X-API-Key header, matching the subrouter-with-header pattern tdnsd
// uses for its own API.
func NewServer(apiKey string, addresses []string, certFile, keyFile string, h Handlers) (*Server, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("control: api key must not be empty")
	}
	if len(addresses) == 0 {
		return nil, fmt.Errorf("control: no listen addresses configured")
	}

	r := mux.NewRouter().StrictSlash(true)
	sr := r.PathPrefix("/api/v1").Headers("X-API-Key", apiKey).Subrouter()

	sr.HandleFunc("/ping", h.Ping).Methods("POST")
	sr.HandleFunc("/zone/reload", h.ZoneReload).Methods("POST")
	sr.HandleFunc("/zone/status", h.ZoneStatus).Methods("POST")
	sr.HandleFunc("/stats", h.Stats).Methods("POST")
	sr.HandleFunc("/stop", h.Stop).Methods("POST")
	sr.HandleFunc("/keystore", h.Keystore).Methods("POST")

	return &Server{router: r, addresses: addresses, certFile: certFile, keyFile: keyFile}, nil
}

func (s *Server) walkRoutes() {
	s.router.Walk(func(route *mux.Route, router *mux.Router, ancestors []*mux.Route) error {
		path, _ := route.GetPathTemplate()
		methods, _ := route.GetMethods()
		for _, m := range methods {
			log.Printf("control: %-6s %s", m, path)
		}
		return nil
	})
}

// ListenAndServe starts one TLS listener per configured address and
// returns immediately; use Shutdown to stop them.
func (s *Server) ListenAndServe() {
	s.walkRoutes()
	for _, addr := range s.addresses {
		srv := &http.Server{Addr: addr, Handler: s.router}
		s.http = append(s.http, srv)
		go func(srv *http.Server) {
			log.Printf("control: listening on %s", srv.Addr)
			if err := srv.ListenAndServeTLS(s.certFile, s.keyFile); err != http.ErrServerClosed {
				log.Printf("control: ListenAndServeTLS: %v", err)
			}
		}(srv)
	}
}

// Shutdown gracefully stops every listener.
func (s *Server) Shutdown(ctx context.Context) {
	for _, srv := range s.http {
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("control: shutdown: %v", err)
		}
	}
}
