package control

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"dnsauthd/internal/name"
)

func newTestRouter(t *testing.T, h Handlers) http.Handler {
	t.Helper()
	srv, err := NewServer("test-key", []string{"127.0.0.1:0"}, "", "", h)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv.router
}

func TestPingRequiresAPIKey(t *testing.T) {
	router := newTestRouter(t, Handlers{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ping", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code == http.StatusOK {
		t.Fatalf("expected a non-200 response without the API key header, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/ping", nil)
	req.Header.Set("X-API-Key", "test-key")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with the correct API key, got %d", rr.Code)
	}
}

func TestZoneReloadDispatchesToCallback(t *testing.T) {
	var gotZone name.DomainName
	h := Handlers{
		Reload: func(apex name.DomainName) (bool, error) {
			gotZone = apex
			return true, nil
		},
	}
	router := newTestRouter(t, h)

	body, _ := json.Marshal(map[string]string{"zone": "example.com."})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/zone/reload", bytes.NewReader(body))
	req.Header.Set("X-API-Key", "test-key")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotZone.String() != "example.com." {
		t.Errorf("expected callback to receive example.com., got %s", gotZone)
	}
	var resp zoneReloadResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !resp.Changed {
		t.Error("expected Changed=true")
	}
}

func TestKeystoreUnknownCommandReportsError(t *testing.T) {
	router := newTestRouter(t, Handlers{})
	body, _ := json.Marshal(map[string]string{"command": "bogus"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/keystore", bytes.NewReader(body))
	req.Header.Set("X-API-Key", "test-key")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	var resp keystoreResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !resp.Error {
		t.Error("expected an error response for an unknown keystore command")
	}
}
