package rate

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Limits caps outbound calls to the owners API. The service throttles
// accounts that poll aggressively, so the bridge enforces its own budget
// before a request ever leaves the process. Zero values disable a window.
type Limits struct {
	PerMinute int
	PerDay    int
}

// RateLimitError is returned when a call is blocked by the local budget or
// by an upstream cooldown.
type RateLimitError struct {
	Reason  string
	RetryAt time.Time
}

func (e RateLimitError) Error() string {
	if e.RetryAt.IsZero() {
		return fmt.Sprintf("kia api rate limited: %s", e.Reason)
	}
	return fmt.Sprintf("kia api rate limited: %s (retry at %s)", e.Reason, e.RetryAt.UTC().Format(time.RFC3339))
}

type bucket struct {
	capacity int
	window   time.Duration
	tokens   float64
	last     time.Time
}

func newBucket(capacity int, window time.Duration) *bucket {
	return &bucket{capacity: capacity, window: window, tokens: float64(capacity), last: time.Now()}
}

func (b *bucket) take(now time.Time) bool {
	elapsed := now.Sub(b.last).Seconds()
	refill := float64(b.capacity) / b.window.Seconds()
	b.tokens += elapsed * refill
	if b.tokens > float64(b.capacity) {
		b.tokens = float64(b.capacity)
	}
	b.last = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func (b *bucket) retryAt(now time.Time) time.Time {
	perToken := b.window / time.Duration(b.capacity)
	return now.Add(perToken)
}

// Guard tracks the call budget and any upstream cooldown.
type Guard struct {
	mu       sync.Mutex
	buckets  []*bucket
	cooldown time.Time
}

func newGuard(limits Limits) *Guard {
	g := &Guard{}
	if limits.PerMinute > 0 {
		g.buckets = append(g.buckets, newBucket(limits.PerMinute, time.Minute))
	}
	if limits.PerDay > 0 {
		g.buckets = append(g.buckets, newBucket(limits.PerDay, 24*time.Hour))
	}
	return g
}

func (g *Guard) shouldCall(now time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if now.Before(g.cooldown) {
		return RateLimitError{Reason: "cooldown", RetryAt: g.cooldown}
	}
	for _, b := range g.buckets {
		if !b.take(now) {
			return RateLimitError{Reason: "budget", RetryAt: b.retryAt(now)}
		}
	}
	return nil
}

func (g *Guard) recordResponse(resp *http.Response) {
	lastStatusGauge.Set(float64(resp.StatusCode))
	if resp.StatusCode != http.StatusTooManyRequests {
		return
	}
	after, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || after <= 0 {
		after = 60
	}
	g.mu.Lock()
	g.cooldown = time.Now().Add(time.Duration(after) * time.Second)
	g.mu.Unlock()
}

type roundTripper struct {
	base  http.RoundTripper
	guard *Guard
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := rt.guard.shouldCall(time.Now()); err != nil {
		blockedCounter.Inc()
		return nil, err
	}
	resp, err := rt.base.RoundTrip(req)
	if err != nil {
		return resp, err
	}
	rt.guard.recordResponse(resp)
	return resp, nil
}

// WrapHTTP returns a copy of base whose transport enforces the call budget
// and backs off when the API answers 429.
func WrapHTTP(limits Limits, base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	client := *base
	transport := client.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	client.Transport = &roundTripper{base: transport, guard: newGuard(limits)}
	return &client
}
