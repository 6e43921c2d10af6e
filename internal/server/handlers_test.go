package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/MarcusTaz/ha-kia-hyundai/internal/coordinator"
	"github.com/MarcusTaz/ha-kia-hyundai/internal/kiauvo"
)

type staticSession struct {
	mu    sync.Mutex
	snap  *kiauvo.Snapshot
	calls int
}

func (s *staticSession) VehicleStatus(context.Context, string) (*kiauvo.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.snap, nil
}

func (s *staticSession) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newTestServer(t *testing.T) (*httptest.Server, *staticSession) {
	t.Helper()

	locked := true
	session := &staticSession{snap: &kiauvo.Snapshot{DoorsLocked: &locked}}
	coord, err := coordinator.New(session, kiauvo.Vehicle{
		VehicleKey: "key1",
		VIN:        "VIN1",
		Name:       "Niro",
		Model:      "Niro EV",
	}, coordinator.Options{
		DebounceCooldown: 10 * time.Millisecond,
		Logger:           zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("coordinator.New: %v", err)
	}
	if _, err := coord.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	router := NewRouter([]*coordinator.Coordinator{coord}, prometheus.NewRegistry())
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, session
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestListVehicles(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/vehicles")
	if err != nil {
		t.Fatalf("GET /api/v1/vehicles: %v", err)
	}
	defer resp.Body.Close()

	var vehicles []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&vehicles); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(vehicles) != 1 {
		t.Fatalf("got %d vehicles, want 1", len(vehicles))
	}
	if vehicles[0]["vin"] != "VIN1" {
		t.Errorf("vin = %v, want VIN1", vehicles[0]["vin"])
	}
	if vehicles[0]["available"] != true {
		t.Errorf("available = %v, want true", vehicles[0]["available"])
	}
}

func TestGetVehicleDetail(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/vehicles/VIN1")
	if err != nil {
		t.Fatalf("GET vehicle: %v", err)
	}
	defer resp.Body.Close()

	var detail map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if detail["hvac_mode"] != "off" {
		t.Errorf("hvac_mode = %v, want off", detail["hvac_mode"])
	}
	snapshot, ok := detail["snapshot"].(map[string]any)
	if !ok {
		t.Fatalf("snapshot missing: %v", detail)
	}
	if snapshot["DoorsLocked"] != true {
		t.Errorf("DoorsLocked = %v, want true", snapshot["DoorsLocked"])
	}
}

func TestGetVehicleNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/vehicles/UNKNOWN")
	if err != nil {
		t.Fatalf("GET vehicle: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestRefreshVehicleDebounced(t *testing.T) {
	srv, session := newTestServer(t)

	before := session.callCount()
	for i := 0; i < 3; i++ {
		resp, err := http.Post(srv.URL+"/api/v1/vehicles/VIN1/refresh", "", nil)
		if err != nil {
			t.Fatalf("POST refresh: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("status = %d, want 202", resp.StatusCode)
		}
	}

	deadline := time.Now().Add(time.Second)
	for session.callCount() == before && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(30 * time.Millisecond)

	if got := session.callCount() - before; got != 1 {
		t.Errorf("refresh calls = %d, want 1 for a debounced burst", got)
	}
}
