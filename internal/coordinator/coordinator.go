package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/MarcusTaz/ha-kia-hyundai/internal/kiauvo"
)

const (
	DefaultScanInterval     = 10 * time.Minute
	DefaultDebounceCooldown = 10 * time.Second
	DefaultPendingTTL       = 5 * time.Minute

	MinScanInterval = 1 * time.Minute
	MaxScanInterval = 999 * time.Minute
)

// Session is the slice of the account client the coordinator needs.
type Session interface {
	VehicleStatus(ctx context.Context, vehicleKey string) (*kiauvo.Snapshot, error)
}

// HVAC modes exposed to entity adapters.
const (
	ModeOff      = "off"
	ModeHeatCool = "heat_cool"
)

type Options struct {
	ScanInterval     time.Duration
	DebounceCooldown time.Duration
	PendingTTL       time.Duration
	Logger           zerolog.Logger
}

// Coordinator owns the refresh loop and last-known snapshot for one
// vehicle. The snapshot is nil until the first successful refresh and never
// nil afterwards; it is replaced wholesale, never mutated in place.
type Coordinator struct {
	session    Session
	vehicleKey string
	vin        string
	name       string
	model      string

	scanInterval time.Duration
	pendingTTL   time.Duration
	logger       zerolog.Logger
	debouncer    *Debouncer

	mu           sync.Mutex
	snapshot     *kiauvo.Snapshot
	pending      *PendingClimate
	inFlight     bool
	inFlightDone chan struct{}
	healthy      bool
	lastErr      error
	failureCount int
	listeners    []func(*kiauvo.Snapshot)

	loopCtx context.Context
}

func New(session Session, vehicle kiauvo.Vehicle, opts Options) (*Coordinator, error) {
	if session == nil {
		return nil, fmt.Errorf("session is required")
	}
	if vehicle.VehicleKey == "" {
		return nil, fmt.Errorf("vehicle key is required")
	}

	interval := opts.ScanInterval
	if interval == 0 {
		interval = DefaultScanInterval
	}
	if interval < MinScanInterval || interval > MaxScanInterval {
		return nil, fmt.Errorf("scan interval %s out of range [%s, %s]", interval, MinScanInterval, MaxScanInterval)
	}

	cooldown := opts.DebounceCooldown
	if cooldown == 0 {
		cooldown = DefaultDebounceCooldown
	}
	ttl := opts.PendingTTL
	if ttl == 0 {
		ttl = DefaultPendingTTL
	}

	c := &Coordinator{
		session:      session,
		vehicleKey:   vehicle.VehicleKey,
		vin:          vehicle.VIN,
		name:         vehicle.Name,
		model:        vehicle.Model,
		scanInterval: interval,
		pendingTTL:   ttl,
		logger:       opts.Logger.With().Str("vin", vehicle.VIN).Logger(),
	}
	c.debouncer = NewDebouncer(cooldown, c.debouncedRefresh)
	return c, nil
}

func (c *Coordinator) VIN() string                 { return c.vin }
func (c *Coordinator) Name() string                { return c.name }
func (c *Coordinator) Model() string               { return c.model }
func (c *Coordinator) VehicleKey() string          { return c.vehicleKey }
func (c *Coordinator) ScanInterval() time.Duration { return c.scanInterval }

// Start performs the mandatory first refresh and, on success, launches the
// scheduled refresh loop. A first-refresh failure aborts startup.
func (c *Coordinator) Start(ctx context.Context) error {
	if _, err := c.Refresh(ctx); err != nil {
		return fmt.Errorf("first refresh for %s: %w", c.vin, err)
	}

	c.mu.Lock()
	c.loopCtx = ctx
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(c.scanInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				c.debouncer.Stop()
				return
			case <-ticker.C:
				if _, err := c.Refresh(ctx); err != nil {
					c.logger.Warn().Err(err).Msg("scheduled refresh failed")
				}
			}
		}
	}()
	return nil
}

// Refresh fetches fresh vehicle state and replaces the snapshot. Only one
// refresh runs at a time; a concurrent caller waits for the in-flight
// refresh and shares its result instead of issuing a second remote call.
func (c *Coordinator) Refresh(ctx context.Context) (*kiauvo.Snapshot, error) {
	c.mu.Lock()
	if c.inFlight {
		done := c.inFlightDone
		c.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.lastErr != nil {
			return nil, c.lastErr
		}
		return c.snapshot, nil
	}
	c.inFlight = true
	c.inFlightDone = make(chan struct{})
	c.mu.Unlock()

	snap, err := c.session.VehicleStatus(ctx, c.vehicleKey)

	c.mu.Lock()
	c.inFlight = false
	close(c.inFlightDone)
	if err != nil {
		c.healthy = false
		c.lastErr = err
		c.failureCount++
		c.mu.Unlock()
		return nil, err
	}

	c.snapshot = snap
	c.healthy = true
	c.lastErr = nil
	c.reconcilePendingLocked(snap, time.Now())
	listeners := make([]func(*kiauvo.Snapshot), len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	for _, listener := range listeners {
		listener(snap)
	}
	return snap, nil
}

// RequestRefresh schedules a debounced refresh: any number of requests
// inside the cooldown window produce a single remote call.
func (c *Coordinator) RequestRefresh() {
	c.debouncer.Request()
}

func (c *Coordinator) debouncedRefresh() {
	c.mu.Lock()
	ctx := c.loopCtx
	c.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		return
	}
	if _, err := c.Refresh(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("requested refresh failed")
	}
}

// AddListener registers a callback invoked after each successful refresh.
// Callbacks run on the refreshing goroutine.
func (c *Coordinator) AddListener(fn func(*kiauvo.Snapshot)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// SetPendingClimate records a just-issued climate command for optimistic
// reads until the next confirming snapshot.
func (c *Coordinator) SetPendingClimate(pending PendingClimate) {
	if pending.RequestedAt.IsZero() {
		pending.RequestedAt = time.Now()
	}
	c.mu.Lock()
	c.pending = &pending
	c.mu.Unlock()
}

// PendingClimate returns the unexpired pending command, if any.
func (c *Coordinator) PendingClimate() (PendingClimate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil || c.pending.expired(time.Now(), c.pendingTTL) {
		return PendingClimate{}, false
	}
	return *c.pending, true
}

func (c *Coordinator) reconcilePendingLocked(snap *kiauvo.Snapshot, now time.Time) {
	if c.pending == nil {
		return
	}
	if c.pending.confirmedBy(snap) {
		c.pending = nil
		return
	}
	if c.pending.expired(now, c.pendingTTL) {
		c.logger.Warn().Msg("pending climate command never confirmed; dropping")
		c.pending = nil
	}
}

// Healthy reports whether the last refresh succeeded.
func (c *Coordinator) Healthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.healthy
}

func (c *Coordinator) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// RefreshFailures returns the count of failed refreshes since startup.
func (c *Coordinator) RefreshFailures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failureCount
}

// Snapshot returns the current snapshot, or nil before the first
// successful refresh.
func (c *Coordinator) Snapshot() *kiauvo.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// Derived getters. Each is a pure projection from the current snapshot;
// ok is false when no snapshot exists or the field is unset.

func (c *Coordinator) DoorsLocked() (bool, bool) {
	return c.boolField(func(s *kiauvo.Snapshot) *bool { return s.DoorsLocked })
}

func (c *Coordinator) EngineOn() (bool, bool) {
	return c.boolField(func(s *kiauvo.Snapshot) *bool { return s.EngineOn })
}

func (c *Coordinator) HVACOn() (bool, bool) {
	return c.boolField(func(s *kiauvo.Snapshot) *bool { return s.HVACOn })
}

func (c *Coordinator) DefrostOn() (bool, bool) {
	return c.boolField(func(s *kiauvo.Snapshot) *bool { return s.DefrostOn })
}

func (c *Coordinator) EVCharging() (bool, bool) {
	return c.boolField(func(s *kiauvo.Snapshot) *bool { return s.EVCharging })
}

func (c *Coordinator) EVPluggedIn() (bool, bool) {
	return c.boolField(func(s *kiauvo.Snapshot) *bool { return s.EVPluggedIn })
}

func (c *Coordinator) LowFuelLightOn() (bool, bool) {
	return c.boolField(func(s *kiauvo.Snapshot) *bool { return s.LowFuelLightOn })
}

func (c *Coordinator) TireWarningOn() (bool, bool) {
	return c.boolField(func(s *kiauvo.Snapshot) *bool { return s.TireAllWarningOn })
}

func (c *Coordinator) HoodOpen() (bool, bool) {
	return c.boolField(func(s *kiauvo.Snapshot) *bool { return s.HoodOpen })
}

func (c *Coordinator) TrunkOpen() (bool, bool) {
	return c.boolField(func(s *kiauvo.Snapshot) *bool { return s.TrunkOpen })
}

func (c *Coordinator) FrontLeftDoorOpen() (bool, bool) {
	return c.boolField(func(s *kiauvo.Snapshot) *bool { return s.FrontLeftDoorOpen })
}

func (c *Coordinator) FrontRightDoorOpen() (bool, bool) {
	return c.boolField(func(s *kiauvo.Snapshot) *bool { return s.FrontRightDoorOpen })
}

func (c *Coordinator) BackLeftDoorOpen() (bool, bool) {
	return c.boolField(func(s *kiauvo.Snapshot) *bool { return s.BackLeftDoorOpen })
}

func (c *Coordinator) BackRightDoorOpen() (bool, bool) {
	return c.boolField(func(s *kiauvo.Snapshot) *bool { return s.BackRightDoorOpen })
}

func (c *Coordinator) HeatedRearWindowOn() (bool, bool) {
	return c.boolField(func(s *kiauvo.Snapshot) *bool { return s.HeatedRearWindowOn })
}

func (c *Coordinator) HeatedSideMirrorOn() (bool, bool) {
	return c.boolField(func(s *kiauvo.Snapshot) *bool { return s.HeatedSideMirrorOn })
}

func (c *Coordinator) HeatedSteeringWheelOn() (bool, bool) {
	return c.boolField(func(s *kiauvo.Snapshot) *bool { return s.HeatedSteeringWheelOn })
}

func (c *Coordinator) EVBatteryPercent() (int, bool) {
	return c.intField(func(s *kiauvo.Snapshot) *int { return s.EVBatteryPercent })
}

func (c *Coordinator) CarBatteryPercent() (int, bool) {
	return c.intField(func(s *kiauvo.Snapshot) *int { return s.CarBatteryPercent })
}

func (c *Coordinator) FuelPercent() (int, bool) {
	return c.intField(func(s *kiauvo.Snapshot) *int { return s.FuelPercent })
}

func (c *Coordinator) EVChargeLimitAC() (int, bool) {
	return c.intField(func(s *kiauvo.Snapshot) *int { return s.EVChargeLimitAC })
}

func (c *Coordinator) EVChargeLimitDC() (int, bool) {
	return c.intField(func(s *kiauvo.Snapshot) *int { return s.EVChargeLimitDC })
}

func (c *Coordinator) EVRangeMiles() (int, bool) {
	return c.intField(func(s *kiauvo.Snapshot) *int { return s.EVRangeMiles })
}

func (c *Coordinator) FuelRangeMiles() (int, bool) {
	return c.intField(func(s *kiauvo.Snapshot) *int { return s.FuelRangeMiles })
}

func (c *Coordinator) TotalRangeMiles() (int, bool) {
	return c.intField(func(s *kiauvo.Snapshot) *int { return s.TotalRangeMiles })
}

func (c *Coordinator) EVRemainingChargeMinutes() (int, bool) {
	return c.intField(func(s *kiauvo.Snapshot) *int { return s.EVRemainingChargeMinutes })
}

func (c *Coordinator) OdometerMiles() (float64, bool) {
	return c.floatField(func(s *kiauvo.Snapshot) *float64 { return s.OdometerMiles })
}
func (c *Coordinator) Latitude() (float64, bool) {
	return c.floatField(func(s *kiauvo.Snapshot) *float64 { return s.Latitude })
}
func (c *Coordinator) Longitude() (float64, bool) {
	return c.floatField(func(s *kiauvo.Snapshot) *float64 { return s.Longitude })
}

func (c *Coordinator) LastSynced() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshot == nil || c.snapshot.LastSynced == nil {
		return time.Time{}, false
	}
	return *c.snapshot.LastSynced, true
}

func (c *Coordinator) FetchedAt() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshot == nil {
		return time.Time{}, false
	}
	return c.snapshot.FetchedAt, true
}

// HVACMode projects the snapshot (and an unexpired pending command) onto
// the off/heat_cool mode pair. Unknown state reads as off, matching the
// vehicle's resting state.
func (c *Coordinator) HVACMode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil && !c.pending.expired(time.Now(), c.pendingTTL) {
		if c.pending.On {
			return ModeHeatCool
		}
		return ModeOff
	}
	if c.snapshot != nil && c.snapshot.HVACOn != nil && *c.snapshot.HVACOn {
		return ModeHeatCool
	}
	return ModeOff
}

// TargetTempF prefers an unexpired pending command over the snapshot.
func (c *Coordinator) TargetTempF() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil && !c.pending.expired(time.Now(), c.pendingTTL) {
		return c.pending.TargetTempF, true
	}
	if c.snapshot == nil || c.snapshot.TargetTempF == nil {
		return 0, false
	}
	return *c.snapshot.TargetTempF, true
}

func (c *Coordinator) boolField(get func(*kiauvo.Snapshot) *bool) (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshot == nil {
		return false, false
	}
	if value := get(c.snapshot); value != nil {
		return *value, true
	}
	return false, false
}

func (c *Coordinator) intField(get func(*kiauvo.Snapshot) *int) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshot == nil {
		return 0, false
	}
	if value := get(c.snapshot); value != nil {
		return *value, true
	}
	return 0, false
}

func (c *Coordinator) floatField(get func(*kiauvo.Snapshot) *float64) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshot == nil {
		return 0, false
	}
	if value := get(c.snapshot); value != nil {
		return *value, true
	}
	return 0, false
}
