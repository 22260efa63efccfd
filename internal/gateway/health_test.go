package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cathlab/stackcheck/internal/config"
)

func TestHealth(t *testing.T) {
	g := testGateway(t, config.ServerConfig{}, &stubRunner{})
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var hr healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&hr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if hr.Status != "ok" {
		t.Errorf("status = %q, want ok", hr.Status)
	}
	if hr.Version != "test" {
		t.Errorf("version = %q, want test", hr.Version)
	}
	if hr.Devices != 2 {
		t.Errorf("devices = %d, want 2", hr.Devices)
	}
}
