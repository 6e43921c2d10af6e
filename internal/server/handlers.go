package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MarcusTaz/ha-kia-hyundai/internal/coordinator"
	"github.com/MarcusTaz/ha-kia-hyundai/internal/kiauvo"
)

type vehicleSummary struct {
	VIN                 string `json:"vin"`
	Name                string `json:"name"`
	Model               string `json:"model"`
	ScanIntervalMinutes int    `json:"scan_interval_minutes"`
	Available           bool   `json:"available"`
}

type vehicleDetail struct {
	vehicleSummary
	HVACMode string           `json:"hvac_mode"`
	Snapshot *kiauvo.Snapshot `json:"snapshot"`
}

// NewRouter builds the HTTP surface: liveness, metrics, and a small
// read-mostly vehicle API. The refresh endpoint goes through the
// coordinator's debouncer, so hammering it costs at most one remote call
// per cooldown window.
func NewRouter(coordinators []*coordinator.Coordinator, registry *prometheus.Registry) *mux.Router {
	byVIN := make(map[string]*coordinator.Coordinator, len(coordinators))
	for _, coord := range coordinators {
		byVIN[coord.VIN()] = coord
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", HealthHandler).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	router.HandleFunc("/api/v1/vehicles", func(w http.ResponseWriter, _ *http.Request) {
		out := make([]vehicleSummary, 0, len(coordinators))
		for _, coord := range coordinators {
			out = append(out, summarize(coord))
		}
		writeJSON(w, http.StatusOK, out)
	}).Methods(http.MethodGet)

	router.HandleFunc("/api/v1/vehicles/{vin}", func(w http.ResponseWriter, r *http.Request) {
		coord, ok := byVIN[mux.Vars(r)["vin"]]
		if !ok {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, vehicleDetail{
			vehicleSummary: summarize(coord),
			HVACMode:       coord.HVACMode(),
			Snapshot:       coord.Snapshot(),
		})
	}).Methods(http.MethodGet)

	router.HandleFunc("/api/v1/vehicles/{vin}/refresh", func(w http.ResponseWriter, r *http.Request) {
		coord, ok := byVIN[mux.Vars(r)["vin"]]
		if !ok {
			http.NotFound(w, r)
			return
		}
		coord.RequestRefresh()
		w.WriteHeader(http.StatusAccepted)
	}).Methods(http.MethodPost)

	return router
}

// HealthHandler returns a simple OK for liveness checks.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func summarize(coord *coordinator.Coordinator) vehicleSummary {
	return vehicleSummary{
		VIN:                 coord.VIN(),
		Name:                coord.Name(),
		Model:               coord.Model(),
		ScanIntervalMinutes: int(coord.ScanInterval().Minutes()),
		Available:           coord.Healthy(),
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
