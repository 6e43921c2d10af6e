package kiauvo

import (
	"strconv"
	"strings"
	"time"
)

// Vehicle identifies one vehicle on the account. VehicleKey is the opaque
// per-vehicle handle the API expects on status and command calls.
type Vehicle struct {
	VehicleKey string
	VIN        string
	Name       string
	Model      string
	Year       string
	Nickname   string
}

// ClimateRequest carries the remote climate start parameters.
type ClimateRequest struct {
	TempF   int
	Defrost bool
	Climate bool
	Heating bool
}

// Snapshot is the last-known vehicle state captured at refresh time.
// Optional telemetry is pointer-typed; presence is decided once while
// mapping the API response, never probed at read sites. A Snapshot is
// replaced wholesale on refresh and never mutated.
type Snapshot struct {
	DoorsLocked *bool

	FrontLeftDoorOpen  *bool
	FrontRightDoorOpen *bool
	BackLeftDoorOpen   *bool
	BackRightDoorOpen  *bool
	HoodOpen           *bool
	TrunkOpen          *bool

	EngineOn *bool

	HVACOn                *bool
	TargetTempF           *int
	DefrostOn             *bool
	HeatedRearWindowOn    *bool
	HeatedSideMirrorOn    *bool
	HeatedSteeringWheelOn *bool

	CarBatteryPercent        *int
	EVBatteryPercent         *int
	EVCharging               *bool
	EVPluggedIn              *bool
	EVChargeLimitAC          *int
	EVChargeLimitDC          *int
	EVRemainingChargeMinutes *int
	EVRangeMiles             *int
	FuelRangeMiles           *int
	TotalRangeMiles          *int

	FuelPercent      *int
	LowFuelLightOn   *bool
	TireAllWarningOn *bool

	OdometerMiles *float64
	Latitude      *float64
	Longitude     *float64

	LastSynced *time.Time
	FetchedAt  time.Time
}

const syncDateLayout = "20060102150405"

// Response envelope shared by every owners API endpoint.
type apiResponse struct {
	Status  apiStatus       `json:"status"`
	Payload payloadEnvelope `json:"payload"`
}

type apiStatus struct {
	StatusCode   int    `json:"statusCode"`
	ErrorType    int    `json:"errorType"`
	ErrorCode    int    `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

type payloadEnvelope struct {
	VehicleSummary  []vehicleSummary `json:"vehicleSummary"`
	VehicleInfoList []vehicleInfo    `json:"vehicleInfoList"`
}

type vehicleSummary struct {
	VIN               string `json:"vin"`
	VehicleIdentifier string `json:"vehicleIdentifier"`
	ModelName         string `json:"modelName"`
	ModelYear         string `json:"modelYear"`
	NickName          string `json:"nickName"`
	VehicleKey        string `json:"vehicleKey"`
}

type vehicleInfo struct {
	LastVehicleInfo lastVehicleInfo `json:"lastVehicleInfo"`
	VehicleConfig   vehicleConfig   `json:"vehicleConfig"`
}

type lastVehicleInfo struct {
	VehicleStatusRpt vehicleStatusRpt `json:"vehicleStatusRpt"`
	Location         *locationInfo    `json:"location"`
}

type vehicleStatusRpt struct {
	VehicleStatus vehicleStatus `json:"vehicleStatus"`
}

type vehicleStatus struct {
	Climate         *climateStatus `json:"climate"`
	Engine          *bool          `json:"engine"`
	DoorLock        *bool          `json:"doorLock"`
	DoorStatus      *doorStatus    `json:"doorStatus"`
	LowFuelLight    *bool          `json:"lowFuelLight"`
	FuelLevel       *int           `json:"fuelLevel"`
	BatteryStatus   *batteryStatus `json:"batteryStatus"`
	EvStatus        *evStatus      `json:"evStatus"`
	DistanceToEmpty *rangeValue    `json:"distanceToEmpty"`
	TirePressure    *tirePressure  `json:"tirePressure"`
	SyncDate        *syncDate      `json:"syncDate"`
}

type climateStatus struct {
	AirCtrl          *bool             `json:"airCtrl"`
	AirTemp          *airTemp          `json:"airTemp"`
	Defrost          *bool             `json:"defrost"`
	HeatingAccessory *heatingAccessory `json:"heatingAccessory"`
}

type airTemp struct {
	Value string `json:"value"`
	Unit  int    `json:"unit"`
}

type heatingAccessory struct {
	SteeringWheel *int `json:"steeringWheel"`
	SideMirror    *int `json:"sideMirror"`
	RearWindow    *int `json:"rearWindow"`
}

// Door values are 0 for closed, anything else for open.
type doorStatus struct {
	FrontLeft  *int `json:"frontLeft"`
	FrontRight *int `json:"frontRight"`
	BackLeft   *int `json:"backLeft"`
	BackRight  *int `json:"backRight"`
	Trunk      *int `json:"trunk"`
	Hood       *int `json:"hood"`
}

type batteryStatus struct {
	StateOfCharge *int `json:"stateOfCharge"`
}

type evStatus struct {
	BatteryStatus    *int           `json:"batteryStatus"`
	BatteryCharge    *bool          `json:"batteryCharge"`
	BatteryPlugin    *int           `json:"batteryPlugin"`
	DrvDistance      []drvDistance  `json:"drvDistance"`
	RemainChargeTime []remainCharge `json:"remainChargeTime"`
	TargetSOC        []targetSOC    `json:"targetSOC"`
}

type drvDistance struct {
	RangeByFuel rangeByFuel `json:"rangeByFuel"`
}

type rangeByFuel struct {
	EvModeRange         *rangeValue `json:"evModeRange"`
	GasModeRange        *rangeValue `json:"gasModeRange"`
	TotalAvailableRange *rangeValue `json:"totalAvailableRange"`
}

type rangeValue struct {
	Value int `json:"value"`
	Unit  int `json:"unit"`
}

type remainCharge struct {
	TimeInterval *rangeValue `json:"timeInterval"`
}

// plugType 0 is DC, 1 is AC.
type targetSOC struct {
	TargetSOClevel int `json:"targetSOClevel"`
	PlugType       int `json:"plugType"`
}

type tirePressure struct {
	All *int `json:"all"`
}

type syncDate struct {
	UTC string `json:"utc"`
}

type locationInfo struct {
	Coord *coord `json:"coord"`
}

type coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type vehicleConfig struct {
	VehicleDetail vehicleDetail `json:"vehicleDetail"`
}

type vehicleDetail struct {
	Vehicle vehicleDetailInfo `json:"vehicle"`
}

type vehicleDetailInfo struct {
	Mileage string `json:"mileage"`
}

// newSnapshot maps one vehicleInfoList entry onto the typed Snapshot.
// All optionality is resolved here.
func newSnapshot(info vehicleInfo, now time.Time) *Snapshot {
	status := info.LastVehicleInfo.VehicleStatusRpt.VehicleStatus
	snap := &Snapshot{FetchedAt: now}

	snap.DoorsLocked = status.DoorLock
	snap.EngineOn = status.Engine
	snap.LowFuelLightOn = status.LowFuelLight
	snap.FuelPercent = status.FuelLevel

	if doors := status.DoorStatus; doors != nil {
		snap.FrontLeftDoorOpen = openFlag(doors.FrontLeft)
		snap.FrontRightDoorOpen = openFlag(doors.FrontRight)
		snap.BackLeftDoorOpen = openFlag(doors.BackLeft)
		snap.BackRightDoorOpen = openFlag(doors.BackRight)
		snap.TrunkOpen = openFlag(doors.Trunk)
		snap.HoodOpen = openFlag(doors.Hood)
	}

	if climate := status.Climate; climate != nil {
		snap.HVACOn = climate.AirCtrl
		snap.DefrostOn = climate.Defrost
		if climate.AirTemp != nil {
			if temp, err := strconv.Atoi(strings.TrimSpace(climate.AirTemp.Value)); err == nil {
				snap.TargetTempF = &temp
			}
		}
		if acc := climate.HeatingAccessory; acc != nil {
			snap.HeatedSteeringWheelOn = openFlag(acc.SteeringWheel)
			snap.HeatedSideMirrorOn = openFlag(acc.SideMirror)
			snap.HeatedRearWindowOn = openFlag(acc.RearWindow)
		}
	}

	if battery := status.BatteryStatus; battery != nil {
		snap.CarBatteryPercent = battery.StateOfCharge
	}

	if ev := status.EvStatus; ev != nil {
		snap.EVBatteryPercent = ev.BatteryStatus
		snap.EVCharging = ev.BatteryCharge
		if ev.BatteryPlugin != nil {
			plugged := *ev.BatteryPlugin != 0
			snap.EVPluggedIn = &plugged
		}
		if len(ev.DrvDistance) > 0 {
			ranges := ev.DrvDistance[0].RangeByFuel
			snap.EVRangeMiles = rangePtr(ranges.EvModeRange)
			snap.FuelRangeMiles = rangePtr(ranges.GasModeRange)
			snap.TotalRangeMiles = rangePtr(ranges.TotalAvailableRange)
		}
		for _, soc := range ev.TargetSOC {
			level := soc.TargetSOClevel
			switch soc.PlugType {
			case 0:
				snap.EVChargeLimitDC = &level
			case 1:
				snap.EVChargeLimitAC = &level
			}
		}
		for _, remain := range ev.RemainChargeTime {
			if remain.TimeInterval != nil {
				minutes := remain.TimeInterval.Value
				snap.EVRemainingChargeMinutes = &minutes
				break
			}
		}
	}

	if status.DistanceToEmpty != nil && snap.TotalRangeMiles == nil {
		value := status.DistanceToEmpty.Value
		snap.TotalRangeMiles = &value
	}

	if status.TirePressure != nil {
		snap.TireAllWarningOn = openFlag(status.TirePressure.All)
	}

	if status.SyncDate != nil {
		if synced, err := time.ParseInLocation(syncDateLayout, status.SyncDate.UTC, time.UTC); err == nil {
			snap.LastSynced = &synced
		}
	}

	if loc := info.LastVehicleInfo.Location; loc != nil && loc.Coord != nil {
		lat, lon := loc.Coord.Lat, loc.Coord.Lon
		snap.Latitude = &lat
		snap.Longitude = &lon
	}

	if mileage := strings.TrimSpace(info.VehicleConfig.VehicleDetail.Vehicle.Mileage); mileage != "" {
		if odometer, err := strconv.ParseFloat(mileage, 64); err == nil {
			snap.OdometerMiles = &odometer
		}
	}

	return snap
}

func openFlag(value *int) *bool {
	if value == nil {
		return nil
	}
	open := *value != 0
	return &open
}

func rangePtr(value *rangeValue) *int {
	if value == nil {
		return nil
	}
	out := value.Value
	return &out
}
