package rate

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestWrapHTTPBudget(t *testing.T) {
	var served int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		served++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := WrapHTTP(Limits{PerMinute: 2}, srv.Client())

	for i := 0; i < 2; i++ {
		resp, err := client.Get(srv.URL)
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		resp.Body.Close()
	}

	_, err := client.Get(srv.URL)
	var rateErr RateLimitError
	if !errors.As(err, &rateErr) {
		t.Fatalf("third request error = %v, want RateLimitError", err)
	}
	if rateErr.RetryAt.IsZero() {
		t.Error("RetryAt should be set for a budget block")
	}
	if served != 2 {
		t.Errorf("upstream saw %d requests, want 2", served)
	}
}

func TestWrapHTTPCooldownOn429(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := WrapHTTP(Limits{PerMinute: 100}, srv.Client())

	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	resp.Body.Close()

	_, err = client.Get(srv.URL)
	var rateErr RateLimitError
	if !errors.As(err, &rateErr) {
		t.Fatalf("second request error = %v, want RateLimitError", err)
	}
	if rateErr.Reason != "cooldown" {
		t.Errorf("Reason = %q, want cooldown", rateErr.Reason)
	}
	if until := time.Until(rateErr.RetryAt); until < 100*time.Second {
		t.Errorf("cooldown %s, want close to 120s", until)
	}
}

func TestWrapHTTPNoLimits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := WrapHTTP(Limits{}, srv.Client())
	for i := 0; i < 10; i++ {
		resp, err := client.Get(srv.URL)
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		resp.Body.Close()
	}
}
