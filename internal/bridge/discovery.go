package bridge

import (
	"encoding/json"
	"fmt"
)

// Home Assistant MQTT discovery payloads. One retained config message per
// entity under <discovery_prefix>/<component>/<vin>/<object_id>/config.

const (
	climateTempMinF = 62
	climateTempMaxF = 82
)

type deviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name"`
}

type entityConfig struct {
	Name              string     `json:"name"`
	UniqueID          string     `json:"unique_id"`
	Device            deviceInfo `json:"device"`
	AvailabilityTopic string     `json:"availability_topic"`

	StateTopic    string `json:"state_topic,omitempty"`
	ValueTemplate string `json:"value_template,omitempty"`
	CommandTopic  string `json:"command_topic,omitempty"`

	DeviceClass       string `json:"device_class,omitempty"`
	UnitOfMeasurement string `json:"unit_of_measurement,omitempty"`
	StateClass        string `json:"state_class,omitempty"`
	PayloadOn         string `json:"payload_on,omitempty"`
	PayloadOff        string `json:"payload_off,omitempty"`

	// Climate-specific.
	Modes                    []string `json:"modes,omitempty"`
	ModeStateTopic           string   `json:"mode_state_topic,omitempty"`
	ModeStateTemplate        string   `json:"mode_state_template,omitempty"`
	ModeCommandTopic         string   `json:"mode_command_topic,omitempty"`
	TemperatureStateTopic    string   `json:"temperature_state_topic,omitempty"`
	TemperatureStateTemplate string   `json:"temperature_state_template,omitempty"`
	TemperatureCommandTopic  string   `json:"temperature_command_topic,omitempty"`
	TemperatureUnit          string   `json:"temperature_unit,omitempty"`
	MinTemp                  int      `json:"min_temp,omitempty"`
	MaxTemp                  int      `json:"max_temp,omitempty"`
	TempStep                 float64  `json:"temp_step,omitempty"`
}

type discoveryMessage struct {
	Topic   string
	Payload []byte
}

type vehicleTopics struct {
	State        string
	Availability string
	ModeSet      string
	TempSet      string
	LockSet      string
	DefrostSet   string
	HeatingSet   string
}

func topicsFor(prefix, vin string) vehicleTopics {
	base := prefix + "/" + vin
	return vehicleTopics{
		State:        base + "/state",
		Availability: base + "/availability",
		ModeSet:      base + "/climate/mode/set",
		TempSet:      base + "/climate/temp/set",
		LockSet:      base + "/lock/set",
		DefrostSet:   base + "/defrost/set",
		HeatingSet:   base + "/heating/set",
	}
}

func discoveryMessages(discoveryPrefix, vin, name, model string, topics vehicleTopics) ([]discoveryMessage, error) {
	device := deviceInfo{
		Identifiers:  []string{vin},
		Manufacturer: "Kia",
		Model:        model,
		Name:         name,
	}

	base := func(objectID, entityName string) entityConfig {
		return entityConfig{
			Name:              entityName,
			UniqueID:          vin + "_" + objectID,
			Device:            device,
			AvailabilityTopic: topics.Availability,
		}
	}

	climate := base("climate", "Climate")
	climate.Modes = []string{"off", "heat_cool"}
	climate.ModeStateTopic = topics.State
	climate.ModeStateTemplate = "{{ value_json.hvac_mode }}"
	climate.ModeCommandTopic = topics.ModeSet
	climate.TemperatureStateTopic = topics.State
	climate.TemperatureStateTemplate = "{{ value_json.target_temp }}"
	climate.TemperatureCommandTopic = topics.TempSet
	climate.TemperatureUnit = "F"
	climate.MinTemp = climateTempMinF
	climate.MaxTemp = climateTempMaxF
	climate.TempStep = 1

	lock := base("lock", "Door Lock")
	lock.StateTopic = topics.State
	lock.ValueTemplate = "{{ value_json.lock_state }}"
	lock.CommandTopic = topics.LockSet

	defrost := base("desired_defrost", "Desired Defrost")
	defrost.StateTopic = topics.State
	defrost.ValueTemplate = "{{ value_json.desired_defrost }}"
	defrost.CommandTopic = topics.DefrostSet
	defrost.PayloadOn = "ON"
	defrost.PayloadOff = "OFF"

	heating := base("desired_heating", "Desired Heated Accessories")
	heating.StateTopic = topics.State
	heating.ValueTemplate = "{{ value_json.desired_heating }}"
	heating.CommandTopic = topics.HeatingSet
	heating.PayloadOn = "ON"
	heating.PayloadOff = "OFF"

	sensor := func(objectID, entityName, template, deviceClass, unit string) entityConfig {
		cfg := base(objectID, entityName)
		cfg.StateTopic = topics.State
		cfg.ValueTemplate = template
		cfg.DeviceClass = deviceClass
		cfg.UnitOfMeasurement = unit
		return cfg
	}

	binary := func(objectID, entityName, template, deviceClass string) entityConfig {
		cfg := base(objectID, entityName)
		cfg.StateTopic = topics.State
		cfg.ValueTemplate = template
		cfg.DeviceClass = deviceClass
		cfg.PayloadOn = "true"
		cfg.PayloadOff = "false"
		return cfg
	}

	entries := []struct {
		component string
		objectID  string
		config    entityConfig
	}{
		{"climate", "climate", climate},
		{"lock", "lock", lock},
		{"switch", "desired_defrost", defrost},
		{"switch", "desired_heating", heating},
		{"sensor", "ev_battery", sensor("ev_battery", "EV Battery", "{{ value_json.ev_battery }}", "battery", "%")},
		{"sensor", "car_battery", sensor("car_battery", "12V Battery", "{{ value_json.car_battery }}", "battery", "%")},
		{"sensor", "fuel_level", sensor("fuel_level", "Fuel Level", "{{ value_json.fuel_level }}", "", "%")},
		{"sensor", "odometer", sensor("odometer", "Odometer", "{{ value_json.odometer }}", "distance", "mi")},
		{"sensor", "ev_range", sensor("ev_range", "EV Range", "{{ value_json.ev_range }}", "distance", "mi")},
		{"sensor", "total_range", sensor("total_range", "Total Range", "{{ value_json.total_range }}", "distance", "mi")},
		{"sensor", "last_synced", sensor("last_synced", "Last Synced", "{{ value_json.last_synced }}", "timestamp", "")},
		{"binary_sensor", "ev_charging", binary("ev_charging", "Charging", "{{ value_json.ev_charging }}", "battery_charging")},
		{"binary_sensor", "ev_plugged_in", binary("ev_plugged_in", "Plugged In", "{{ value_json.ev_plugged_in }}", "plug")},
		{"binary_sensor", "engine", binary("engine", "Engine", "{{ value_json.engine_on }}", "running")},
		{"binary_sensor", "hood", binary("hood", "Hood", "{{ value_json.hood_open }}", "door")},
		{"binary_sensor", "trunk", binary("trunk", "Trunk", "{{ value_json.trunk_open }}", "door")},
		{"binary_sensor", "front_left_door", binary("front_left_door", "Front Left Door", "{{ value_json.front_left_door }}", "door")},
		{"binary_sensor", "front_right_door", binary("front_right_door", "Front Right Door", "{{ value_json.front_right_door }}", "door")},
		{"binary_sensor", "back_left_door", binary("back_left_door", "Back Left Door", "{{ value_json.back_left_door }}", "door")},
		{"binary_sensor", "back_right_door", binary("back_right_door", "Back Right Door", "{{ value_json.back_right_door }}", "door")},
		{"binary_sensor", "low_fuel", binary("low_fuel", "Low Fuel Light", "{{ value_json.low_fuel_light }}", "problem")},
		{"binary_sensor", "tire_warning", binary("tire_warning", "Tire Pressure Warning", "{{ value_json.tire_warning }}", "problem")},
	}

	messages := make([]discoveryMessage, 0, len(entries))
	for _, entry := range entries {
		payload, err := json.Marshal(entry.config)
		if err != nil {
			return nil, fmt.Errorf("encode discovery config %s: %w", entry.objectID, err)
		}
		topic := fmt.Sprintf("%s/%s/%s/%s/config", discoveryPrefix, entry.component, vin, entry.objectID)
		messages = append(messages, discoveryMessage{Topic: topic, Payload: payload})
	}
	return messages, nil
}
