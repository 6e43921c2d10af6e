package kiauvo

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okStatus() map[string]any {
	return map[string]any{"statusCode": 0, "errorCode": 0}
}

func writeJSON(t *testing.T, w http.ResponseWriter, body map[string]any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		t.Fatalf("encode response: %v", err)
	}
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{
		Username: "user@example.com",
		Password: "hunter2",
		BaseURL:  srv.URL,
	}, WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func loginHandler(sid string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("sid", sid)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": okStatus()})
	}
}

func TestLoginStoresSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/prof/authUser", loginHandler("session-1"))

	var gotSID string
	mux.HandleFunc("/ownr/gvl", func(w http.ResponseWriter, r *http.Request) {
		gotSID = r.Header.Get("sid")
		writeJSON(t, w, map[string]any{
			"status": okStatus(),
			"payload": map[string]any{
				"vehicleSummary": []map[string]any{{"vin": "VIN1", "vehicleKey": "key1", "modelName": "Niro EV"}},
			},
		})
	})

	client := newTestClient(t, mux)
	if err := client.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := client.Vehicles(context.Background()); err != nil {
		t.Fatalf("Vehicles: %v", err)
	}
	if gotSID != "session-1" {
		t.Errorf("sid header = %q, want session-1", gotSID)
	}
}

func TestLoginMissingSessionHeader(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/prof/authUser", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"status": okStatus()})
	})

	client := newTestClient(t, mux)
	if err := client.Login(context.Background()); err == nil {
		t.Fatal("Login succeeded without a session header")
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/prof/authUser", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"status": map[string]any{"statusCode": 1, "errorCode": 1001, "errorMessage": "invalid credentials"},
		})
	})

	client := newTestClient(t, mux)
	err := client.Login(context.Background())
	if !errors.Is(err, ErrAuthentication) {
		t.Fatalf("Login error = %v, want ErrAuthentication", err)
	}
}

func TestVehiclesRequiresLogin(t *testing.T) {
	client := newTestClient(t, http.NewServeMux())
	_, err := client.Vehicles(context.Background())
	if !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("Vehicles error = %v, want ErrNotLoggedIn", err)
	}
}

func TestVehiclesEmptyAccount(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/prof/authUser", loginHandler("sid"))
	mux.HandleFunc("/ownr/gvl", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"status": okStatus(), "payload": map[string]any{}})
	})

	client := newTestClient(t, mux)
	if err := client.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	_, err := client.Vehicles(context.Background())
	if !errors.Is(err, ErrNoVehicles) {
		t.Fatalf("Vehicles error = %v, want ErrNoVehicles", err)
	}
}

func TestVehiclesNicknameFallback(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/prof/authUser", loginHandler("sid"))
	mux.HandleFunc("/ownr/gvl", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"status": okStatus(),
			"payload": map[string]any{
				"vehicleSummary": []map[string]any{
					{"vin": "VIN1", "vehicleKey": "key1", "modelName": "Niro EV", "nickName": "Daily Driver"},
					{"vin": "VIN2", "vehicleKey": "key2", "modelName": "Sorento"},
				},
			},
		})
	})

	client := newTestClient(t, mux)
	if err := client.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	vehicles, err := client.Vehicles(context.Background())
	if err != nil {
		t.Fatalf("Vehicles: %v", err)
	}
	if len(vehicles) != 2 {
		t.Fatalf("got %d vehicles, want 2", len(vehicles))
	}
	if vehicles[0].Name != "Daily Driver" {
		t.Errorf("vehicles[0].Name = %q, want nickname", vehicles[0].Name)
	}
	if vehicles[1].Name != "Sorento" {
		t.Errorf("vehicles[1].Name = %q, want model fallback", vehicles[1].Name)
	}
}

func TestVehicleStatusSnapshot(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/prof/authUser", loginHandler("sid"))

	var gotVinKey string
	mux.HandleFunc("/cmm/gvi", func(w http.ResponseWriter, r *http.Request) {
		gotVinKey = r.Header.Get("vinkey")
		writeJSON(t, w, map[string]any{
			"status": okStatus(),
			"payload": map[string]any{
				"vehicleInfoList": []map[string]any{{
					"lastVehicleInfo": map[string]any{
						"location": map[string]any{"coord": map[string]any{"lat": 37.77, "lon": -122.41}},
						"vehicleStatusRpt": map[string]any{
							"vehicleStatus": map[string]any{
								"doorLock": true,
								"engine":   false,
								"climate": map[string]any{
									"airCtrl": true,
									"airTemp": map[string]any{"value": "72", "unit": 1},
									"defrost": false,
								},
								"doorStatus": map[string]any{
									"frontLeft": 0, "frontRight": 0, "backLeft": 0, "backRight": 0,
									"trunk": 0, "hood": 1,
								},
								"batteryStatus": map[string]any{"stateOfCharge": 88},
								"evStatus": map[string]any{
									"batteryStatus": 64,
									"batteryCharge": true,
									"batteryPlugin": 1,
									"drvDistance": []map[string]any{{
										"rangeByFuel": map[string]any{
											"evModeRange":         map[string]any{"value": 180, "unit": 3},
											"totalAvailableRange": map[string]any{"value": 180, "unit": 3},
										},
									}},
									"targetSOC": []map[string]any{
										{"targetSOClevel": 80, "plugType": 1},
										{"targetSOClevel": 90, "plugType": 0},
									},
								},
								"syncDate": map[string]any{"utc": "20260823153000"},
							},
						},
					},
					"vehicleConfig": map[string]any{
						"vehicleDetail": map[string]any{
							"vehicle": map[string]any{"mileage": "12345.6"},
						},
					},
				}},
			},
		})
	})

	client := newTestClient(t, mux)
	if err := client.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	snap, err := client.VehicleStatus(context.Background(), "key1")
	if err != nil {
		t.Fatalf("VehicleStatus: %v", err)
	}
	if gotVinKey != "key1" {
		t.Errorf("vinkey header = %q, want key1", gotVinKey)
	}

	if snap.DoorsLocked == nil || !*snap.DoorsLocked {
		t.Error("DoorsLocked should be true")
	}
	if snap.HVACOn == nil || !*snap.HVACOn {
		t.Error("HVACOn should be true")
	}
	if snap.TargetTempF == nil || *snap.TargetTempF != 72 {
		t.Errorf("TargetTempF = %v, want 72", snap.TargetTempF)
	}
	if snap.HoodOpen == nil || !*snap.HoodOpen {
		t.Error("HoodOpen should be true")
	}
	if snap.TrunkOpen == nil || *snap.TrunkOpen {
		t.Error("TrunkOpen should be false")
	}
	if snap.CarBatteryPercent == nil || *snap.CarBatteryPercent != 88 {
		t.Errorf("CarBatteryPercent = %v, want 88", snap.CarBatteryPercent)
	}
	if snap.EVBatteryPercent == nil || *snap.EVBatteryPercent != 64 {
		t.Errorf("EVBatteryPercent = %v, want 64", snap.EVBatteryPercent)
	}
	if snap.EVPluggedIn == nil || !*snap.EVPluggedIn {
		t.Error("EVPluggedIn should be true")
	}
	if snap.EVRangeMiles == nil || *snap.EVRangeMiles != 180 {
		t.Errorf("EVRangeMiles = %v, want 180", snap.EVRangeMiles)
	}
	if snap.EVChargeLimitAC == nil || *snap.EVChargeLimitAC != 80 {
		t.Errorf("EVChargeLimitAC = %v, want 80", snap.EVChargeLimitAC)
	}
	if snap.EVChargeLimitDC == nil || *snap.EVChargeLimitDC != 90 {
		t.Errorf("EVChargeLimitDC = %v, want 90", snap.EVChargeLimitDC)
	}
	if snap.OdometerMiles == nil || *snap.OdometerMiles != 12345.6 {
		t.Errorf("OdometerMiles = %v, want 12345.6", snap.OdometerMiles)
	}
	if snap.Latitude == nil || *snap.Latitude != 37.77 {
		t.Errorf("Latitude = %v, want 37.77", snap.Latitude)
	}
	if snap.FuelPercent != nil {
		t.Error("FuelPercent should be unset for an EV report")
	}

	want := time.Date(2026, 8, 23, 15, 30, 0, 0, time.UTC)
	if snap.LastSynced == nil || !snap.LastSynced.Equal(want) {
		t.Errorf("LastSynced = %v, want %v", snap.LastSynced, want)
	}
}

func TestSessionExpiredReloginOnce(t *testing.T) {
	var logins, listCalls int

	mux := http.NewServeMux()
	mux.HandleFunc("/prof/authUser", func(w http.ResponseWriter, r *http.Request) {
		logins++
		w.Header().Set("sid", "fresh")
		writeJSON(t, w, map[string]any{"status": okStatus()})
	})
	mux.HandleFunc("/ownr/gvl", func(w http.ResponseWriter, r *http.Request) {
		listCalls++
		if r.Header.Get("sid") != "fresh" || listCalls == 1 {
			writeJSON(t, w, map[string]any{
				"status": map[string]any{"statusCode": 1, "errorCode": 1003, "errorMessage": "session expired"},
			})
			return
		}
		writeJSON(t, w, map[string]any{
			"status": okStatus(),
			"payload": map[string]any{
				"vehicleSummary": []map[string]any{{"vin": "VIN1", "vehicleKey": "key1", "modelName": "EV6"}},
			},
		})
	})

	client := newTestClient(t, mux)
	if err := client.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}

	vehicles, err := client.Vehicles(context.Background())
	if err != nil {
		t.Fatalf("Vehicles after expiry: %v", err)
	}
	if len(vehicles) != 1 {
		t.Fatalf("got %d vehicles, want 1", len(vehicles))
	}
	if logins != 2 {
		t.Errorf("logins = %d, want 2 (initial + transparent re-login)", logins)
	}
	if listCalls != 2 {
		t.Errorf("list calls = %d, want 2 (expired + retry)", listCalls)
	}
}

func TestSessionExpiredAfterReloginSurfacesAuth(t *testing.T) {
	var logins int

	mux := http.NewServeMux()
	mux.HandleFunc("/prof/authUser", func(w http.ResponseWriter, r *http.Request) {
		logins++
		w.Header().Set("sid", "fresh")
		writeJSON(t, w, map[string]any{"status": okStatus()})
	})
	mux.HandleFunc("/ownr/gvl", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"status": map[string]any{"statusCode": 1, "errorCode": 1003, "errorMessage": "session expired"},
		})
	})

	client := newTestClient(t, mux)
	if err := client.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}

	_, err := client.Vehicles(context.Background())
	if !errors.Is(err, ErrAuthentication) {
		t.Fatalf("Vehicles error = %v, want ErrAuthentication when expiry persists", err)
	}
	if logins != 2 {
		t.Errorf("logins = %d, want 2 (no retry loop)", logins)
	}
}

func TestStartClimateRequestBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/prof/authUser", loginHandler("sid"))

	var got map[string]any
	mux.HandleFunc("/rems/start", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		writeJSON(t, w, map[string]any{"status": okStatus()})
	})

	client := newTestClient(t, mux)
	if err := client.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	err := client.StartClimate(context.Background(), "key1", ClimateRequest{
		TempF:   72,
		Defrost: false,
		Climate: true,
		Heating: true,
	})
	if err != nil {
		t.Fatalf("StartClimate: %v", err)
	}

	climate, ok := got["remoteClimate"].(map[string]any)
	if !ok {
		t.Fatalf("remoteClimate missing from body: %v", got)
	}
	if climate["airCtrl"] != true {
		t.Error("airCtrl should be true")
	}
	temp := climate["airTemp"].(map[string]any)
	if temp["value"] != "72" {
		t.Errorf("airTemp.value = %v, want \"72\"", temp["value"])
	}
	acc := climate["heatingAccessory"].(map[string]any)
	for _, key := range []string{"steeringWheel", "sideMirror", "rearWindow"} {
		if acc[key] != float64(1) {
			t.Errorf("heatingAccessory.%s = %v, want 1", key, acc[key])
		}
	}
}

func TestAPIErrorSurface(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/prof/authUser", loginHandler("sid"))
	mux.HandleFunc("/rems/door/lock", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"status": map[string]any{"statusCode": 1, "errorCode": 5001, "errorMessage": "command rejected"},
		})
	})

	client := newTestClient(t, mux)
	if err := client.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	err := client.Lock(context.Background(), "key1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Lock error = %v, want *APIError", err)
	}
	if apiErr.Code != 5001 {
		t.Errorf("Code = %d, want 5001", apiErr.Code)
	}
}
