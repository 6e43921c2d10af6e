package bridge

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MarcusTaz/ha-kia-hyundai/internal/coordinator"
)

// MetricsCollector exposes the cached coordinator snapshots as gauges. No
// remote calls happen at scrape time; scrapes read whatever the refresh
// loop last stored.
type MetricsCollector struct {
	coordinators []*coordinator.Coordinator

	healthy      *prometheus.GaugeVec
	snapshotAge  *prometheus.GaugeVec
	refreshFails *prometheus.GaugeVec
	locked       *prometheus.GaugeVec
	hvacOn       *prometheus.GaugeVec
	engineOn     *prometheus.GaugeVec
	evBattery    *prometheus.GaugeVec
	carBattery   *prometheus.GaugeVec
	fuelLevel    *prometheus.GaugeVec
	charging     *prometheus.GaugeVec
	pluggedIn    *prometheus.GaugeVec
	odometer     *prometheus.GaugeVec
	evRange      *prometheus.GaugeVec
	totalRange   *prometheus.GaugeVec
}

func NewMetricsCollector(coordinators []*coordinator.Coordinator) *MetricsCollector {
	labels := []string{"vin", "vehicle_name"}
	gauge := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labels)
	}
	return &MetricsCollector{
		coordinators: coordinators,
		healthy:      gauge("kia_bridge_vehicle_available", "Whether the last refresh succeeded (1=ok, 0=error)"),
		snapshotAge:  gauge("kia_bridge_snapshot_age_seconds", "Seconds since the snapshot was fetched"),
		refreshFails: gauge("kia_bridge_refresh_failures", "Failed refreshes since startup"),
		locked:       gauge("kia_bridge_doors_locked", "Door lock state (1=locked, 0=unlocked)"),
		hvacOn:       gauge("kia_bridge_hvac_on", "Remote climate state (1=on, 0=off)"),
		engineOn:     gauge("kia_bridge_engine_on", "Engine state (1=running, 0=off)"),
		evBattery:    gauge("kia_bridge_ev_battery_percent", "EV battery state of charge (%)"),
		carBattery:   gauge("kia_bridge_car_battery_percent", "12V battery state of charge (%)"),
		fuelLevel:    gauge("kia_bridge_fuel_level_percent", "Fuel level (%)"),
		charging:     gauge("kia_bridge_ev_charging", "Whether the EV battery is charging (1=yes)"),
		pluggedIn:    gauge("kia_bridge_ev_plugged_in", "Whether a charger is plugged in (1=yes)"),
		odometer:     gauge("kia_bridge_odometer_miles", "Odometer reading (miles)"),
		evRange:      gauge("kia_bridge_ev_range_miles", "Remaining EV range (miles)"),
		totalRange:   gauge("kia_bridge_total_range_miles", "Remaining total range (miles)"),
	}
}

func (c *MetricsCollector) vecs() []*prometheus.GaugeVec {
	return []*prometheus.GaugeVec{
		c.healthy, c.snapshotAge, c.refreshFails, c.locked, c.hvacOn, c.engineOn,
		c.evBattery, c.carBattery, c.fuelLevel, c.charging, c.pluggedIn,
		c.odometer, c.evRange, c.totalRange,
	}
}

func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, vec := range c.vecs() {
		vec.Describe(ch)
	}
}

func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	for _, vec := range c.vecs() {
		vec.Reset()
	}

	for _, coord := range c.coordinators {
		labels := prometheus.Labels{"vin": coord.VIN(), "vehicle_name": coord.Name()}

		c.healthy.With(labels).Set(boolToFloat(coord.Healthy()))
		c.refreshFails.With(labels).Set(float64(coord.RefreshFailures()))
		if fetched, ok := coord.FetchedAt(); ok {
			c.snapshotAge.With(labels).Set(time.Since(fetched).Seconds())
		}
		if locked, ok := coord.DoorsLocked(); ok {
			c.locked.With(labels).Set(boolToFloat(locked))
		}
		if on, ok := coord.HVACOn(); ok {
			c.hvacOn.With(labels).Set(boolToFloat(on))
		}
		if on, ok := coord.EngineOn(); ok {
			c.engineOn.With(labels).Set(boolToFloat(on))
		}
		if value, ok := coord.EVBatteryPercent(); ok {
			c.evBattery.With(labels).Set(float64(value))
		}
		if value, ok := coord.CarBatteryPercent(); ok {
			c.carBattery.With(labels).Set(float64(value))
		}
		if value, ok := coord.FuelPercent(); ok {
			c.fuelLevel.With(labels).Set(float64(value))
		}
		if charging, ok := coord.EVCharging(); ok {
			c.charging.With(labels).Set(boolToFloat(charging))
		}
		if plugged, ok := coord.EVPluggedIn(); ok {
			c.pluggedIn.With(labels).Set(boolToFloat(plugged))
		}
		if value, ok := coord.OdometerMiles(); ok {
			c.odometer.With(labels).Set(value)
		}
		if value, ok := coord.EVRangeMiles(); ok {
			c.evRange.With(labels).Set(float64(value))
		}
		if value, ok := coord.TotalRangeMiles(); ok {
			c.totalRange.With(labels).Set(float64(value))
		}
	}

	for _, vec := range c.vecs() {
		vec.Collect(ch)
	}
}

func boolToFloat(value bool) float64 {
	if value {
		return 1
	}
	return 0
}
