package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/MarcusTaz/ha-kia-hyundai/internal/coordinator"
	"github.com/MarcusTaz/ha-kia-hyundai/internal/kiauvo"
)

const (
	DefaultTopicPrefix     = "kia_bridge"
	DefaultDiscoveryPrefix = "homeassistant"

	defaultTargetTempF = 72
)

// Commander is the slice of the account client used for remote commands.
type Commander interface {
	Lock(ctx context.Context, vehicleKey string) error
	Unlock(ctx context.Context, vehicleKey string) error
	StartClimate(ctx context.Context, vehicleKey string, req kiauvo.ClimateRequest) error
	StopClimate(ctx context.Context, vehicleKey string) error
}

type Config struct {
	TopicPrefix     string
	DiscoveryPrefix string
}

// Bridge projects coordinator snapshots onto Home Assistant MQTT discovery
// entities and translates command topics back into account-session calls.
// Commands go straight to the session; the coordinator is only asked for a
// debounced refresh afterwards so the snapshot converges on the new state.
type Bridge struct {
	cfg       Config
	session   Commander
	publisher Publisher
	logger    zerolog.Logger
	adapters  []*vehicleAdapter
}

// vehicleAdapter holds the process-local entity state for one vehicle: the
// target temperature and the desired defrost/heating flags sent with the
// next climate start.
type vehicleAdapter struct {
	coord  *coordinator.Coordinator
	topics vehicleTopics

	mu             sync.Mutex
	targetTempF    int
	desiredDefrost bool
	desiredHeating bool
}

func New(cfg Config, session Commander, publisher Publisher, coordinators []*coordinator.Coordinator, logger zerolog.Logger) (*Bridge, error) {
	if session == nil {
		return nil, fmt.Errorf("session is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultTopicPrefix
	}
	if cfg.DiscoveryPrefix == "" {
		cfg.DiscoveryPrefix = DefaultDiscoveryPrefix
	}

	b := &Bridge{
		cfg:       cfg,
		session:   session,
		publisher: publisher,
		logger:    logger,
	}
	for _, coord := range coordinators {
		target := defaultTargetTempF
		if temp, ok := coord.TargetTempF(); ok {
			target = clampTemp(temp)
		}
		b.adapters = append(b.adapters, &vehicleAdapter{
			coord:       coord,
			topics:      topicsFor(cfg.TopicPrefix, coord.VIN()),
			targetTempF: target,
		})
	}
	return b, nil
}

// Start publishes discovery configs, wires command subscriptions, and
// registers snapshot listeners. Initial state is published immediately.
func (b *Bridge) Start(ctx context.Context) error {
	for _, adapter := range b.adapters {
		adapter := adapter
		coord := adapter.coord

		messages, err := discoveryMessages(b.cfg.DiscoveryPrefix, coord.VIN(), coord.Name(), coord.Model(), adapter.topics)
		if err != nil {
			return err
		}
		for _, msg := range messages {
			if err := b.publisher.Publish(msg.Topic, msg.Payload, true); err != nil {
				return fmt.Errorf("publish discovery for %s: %w", coord.VIN(), err)
			}
		}

		subs := map[string]func(context.Context, *vehicleAdapter, string){
			adapter.topics.ModeSet:    b.handleMode,
			adapter.topics.TempSet:    b.handleTemp,
			adapter.topics.LockSet:    b.handleLock,
			adapter.topics.DefrostSet: b.handleDefrost,
			adapter.topics.HeatingSet: b.handleHeating,
		}
		for topic, handler := range subs {
			handler := handler
			if err := b.publisher.Subscribe(topic, func(_ string, payload []byte) {
				handler(ctx, adapter, strings.TrimSpace(string(payload)))
			}); err != nil {
				return fmt.Errorf("subscribe %s: %w", topic, err)
			}
		}

		coord.AddListener(func(*kiauvo.Snapshot) {
			b.publishState(adapter)
			b.publishAvailability(adapter)
		})

		b.publishState(adapter)
		b.publishAvailability(adapter)
	}
	return nil
}

// Shutdown marks every vehicle unavailable so entities go grey in Home
// Assistant instead of showing stale state after the process exits. Call
// before disconnecting the publisher.
func (b *Bridge) Shutdown() {
	for _, adapter := range b.adapters {
		if err := b.publisher.Publish(adapter.topics.Availability, []byte("offline"), true); err != nil {
			b.logger.Warn().Err(err).Str("topic", adapter.topics.Availability).Msg("publish offline failed")
		}
	}
}

func (b *Bridge) handleMode(ctx context.Context, adapter *vehicleAdapter, payload string) {
	coord := adapter.coord
	switch strings.ToLower(payload) {
	case coordinator.ModeOff:
		if err := b.session.StopClimate(ctx, coord.VehicleKey()); err != nil {
			b.logger.Warn().Err(err).Str("vin", coord.VIN()).Msg("stop climate failed")
			return
		}
		coord.SetPendingClimate(coordinator.PendingClimate{On: false, RequestedAt: time.Now()})
	case coordinator.ModeHeatCool, "auto":
		adapter.mu.Lock()
		req := kiauvo.ClimateRequest{
			TempF:   adapter.targetTempF,
			Defrost: adapter.desiredDefrost,
			Climate: true,
			Heating: adapter.desiredHeating,
		}
		adapter.mu.Unlock()
		if err := b.session.StartClimate(ctx, coord.VehicleKey(), req); err != nil {
			b.logger.Warn().Err(err).Str("vin", coord.VIN()).Msg("start climate failed")
			return
		}
		coord.SetPendingClimate(coordinator.PendingClimate{
			On:          true,
			TargetTempF: req.TempF,
			Defrost:     req.Defrost,
			Heating:     req.Heating,
			RequestedAt: time.Now(),
		})
	default:
		b.logger.Warn().Str("payload", payload).Msg("unknown hvac mode")
		return
	}

	b.publishState(adapter)
	coord.RequestRefresh()
}

// handleTemp updates the local target only; the temperature is sent with
// the next climate start, matching the thermostat's set-then-start flow.
func (b *Bridge) handleTemp(_ context.Context, adapter *vehicleAdapter, payload string) {
	value, err := strconv.ParseFloat(payload, 64)
	if err != nil {
		b.logger.Warn().Str("payload", payload).Msg("bad target temperature")
		return
	}
	adapter.mu.Lock()
	adapter.targetTempF = clampTemp(int(value))
	adapter.mu.Unlock()
	b.publishState(adapter)
}

func (b *Bridge) handleLock(ctx context.Context, adapter *vehicleAdapter, payload string) {
	coord := adapter.coord
	var err error
	switch strings.ToUpper(payload) {
	case "LOCK":
		err = b.session.Lock(ctx, coord.VehicleKey())
	case "UNLOCK":
		err = b.session.Unlock(ctx, coord.VehicleKey())
	default:
		b.logger.Warn().Str("payload", payload).Msg("unknown lock command")
		return
	}
	if err != nil {
		b.logger.Warn().Err(err).Str("vin", coord.VIN()).Msg("lock command failed")
		return
	}
	coord.RequestRefresh()
}

func (b *Bridge) handleDefrost(_ context.Context, adapter *vehicleAdapter, payload string) {
	adapter.mu.Lock()
	adapter.desiredDefrost = strings.EqualFold(payload, "ON")
	adapter.mu.Unlock()
	b.publishState(adapter)
}

func (b *Bridge) handleHeating(_ context.Context, adapter *vehicleAdapter, payload string) {
	adapter.mu.Lock()
	adapter.desiredHeating = strings.EqualFold(payload, "ON")
	adapter.mu.Unlock()
	b.publishState(adapter)
}

func (b *Bridge) publishState(adapter *vehicleAdapter) {
	payload, err := json.Marshal(b.stateDocument(adapter))
	if err != nil {
		b.logger.Error().Err(err).Msg("encode state")
		return
	}
	if err := b.publisher.Publish(adapter.topics.State, payload, true); err != nil {
		b.logger.Warn().Err(err).Str("topic", adapter.topics.State).Msg("publish state failed")
	}
}

func (b *Bridge) publishAvailability(adapter *vehicleAdapter) {
	availability := "offline"
	if adapter.coord.Healthy() {
		availability = "online"
	}
	if err := b.publisher.Publish(adapter.topics.Availability, []byte(availability), true); err != nil {
		b.logger.Warn().Err(err).Str("topic", adapter.topics.Availability).Msg("publish availability failed")
	}
}

func (b *Bridge) stateDocument(adapter *vehicleAdapter) map[string]any {
	coord := adapter.coord

	adapter.mu.Lock()
	target := adapter.targetTempF
	desiredDefrost := onOff(adapter.desiredDefrost)
	desiredHeating := onOff(adapter.desiredHeating)
	adapter.mu.Unlock()

	doc := map[string]any{
		"hvac_mode":        coord.HVACMode(),
		"target_temp":      target,
		"desired_defrost":  desiredDefrost,
		"desired_heating":  desiredHeating,
		"lock_state":       nil,
		"ev_battery":       nil,
		"car_battery":      nil,
		"fuel_level":       nil,
		"odometer":         nil,
		"ev_range":         nil,
		"total_range":      nil,
		"ev_charging":      nil,
		"ev_plugged_in":    nil,
		"engine_on":        nil,
		"hood_open":        nil,
		"trunk_open":       nil,
		"front_left_door":  nil,
		"front_right_door": nil,
		"back_left_door":   nil,
		"back_right_door":  nil,
		"low_fuel_light":   nil,
		"tire_warning":     nil,
		"last_synced":      nil,
	}

	if locked, ok := coord.DoorsLocked(); ok {
		if locked {
			doc["lock_state"] = "LOCKED"
		} else {
			doc["lock_state"] = "UNLOCKED"
		}
	}
	if value, ok := coord.EVBatteryPercent(); ok {
		doc["ev_battery"] = value
	}
	if value, ok := coord.CarBatteryPercent(); ok {
		doc["car_battery"] = value
	}
	if value, ok := coord.FuelPercent(); ok {
		doc["fuel_level"] = value
	}
	if value, ok := coord.OdometerMiles(); ok {
		doc["odometer"] = value
	}
	if value, ok := coord.EVRangeMiles(); ok {
		doc["ev_range"] = value
	}
	if value, ok := coord.TotalRangeMiles(); ok {
		doc["total_range"] = value
	}
	if value, ok := coord.EVCharging(); ok {
		doc["ev_charging"] = value
	}
	if value, ok := coord.EVPluggedIn(); ok {
		doc["ev_plugged_in"] = value
	}
	if value, ok := coord.EngineOn(); ok {
		doc["engine_on"] = value
	}
	if value, ok := coord.HoodOpen(); ok {
		doc["hood_open"] = value
	}
	if value, ok := coord.TrunkOpen(); ok {
		doc["trunk_open"] = value
	}
	if value, ok := coord.FrontLeftDoorOpen(); ok {
		doc["front_left_door"] = value
	}
	if value, ok := coord.FrontRightDoorOpen(); ok {
		doc["front_right_door"] = value
	}
	if value, ok := coord.BackLeftDoorOpen(); ok {
		doc["back_left_door"] = value
	}
	if value, ok := coord.BackRightDoorOpen(); ok {
		doc["back_right_door"] = value
	}
	if value, ok := coord.LowFuelLightOn(); ok {
		doc["low_fuel_light"] = value
	}
	if value, ok := coord.TireWarningOn(); ok {
		doc["tire_warning"] = value
	}
	if value, ok := coord.LastSynced(); ok {
		doc["last_synced"] = value.UTC().Format(time.RFC3339)
	}
	return doc
}

func clampTemp(value int) int {
	if value < climateTempMinF {
		return climateTempMinF
	}
	if value > climateTempMaxF {
		return climateTempMaxF
	}
	return value
}

func onOff(value bool) string {
	if value {
		return "ON"
	}
	return "OFF"
}
