package coordinator

import (
	"time"

	"github.com/MarcusTaz/ha-kia-hyundai/internal/kiauvo"
)

// SeatSetting is the requested comfort level for one seat. The owners API
// accepts these on climate start but reports no per-seat status back, so
// seat settings are intent only and never reconciled against a snapshot.
type SeatSetting int

const (
	SeatOff SeatSetting = iota
	SeatHeatLow
	SeatHeatMedium
	SeatHeatHigh
	SeatCoolLow
	SeatCoolMedium
	SeatCoolHigh
)

// PendingClimate records a climate command that has been sent but not yet
// confirmed by a refreshed snapshot. While unexpired it backs optimistic
// reads; it is cleared when a snapshot confirms the requested HVAC state or
// when the TTL lapses (the command silently failed at the vehicle).
type PendingClimate struct {
	On          bool
	TargetTempF int
	Defrost     bool
	Heating     bool

	DriverSeat    SeatSetting
	PassengerSeat SeatSetting
	LeftRearSeat  SeatSetting
	RightRearSeat SeatSetting

	RequestedAt time.Time
}

func (p *PendingClimate) expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(p.RequestedAt) > ttl
}

func (p *PendingClimate) confirmedBy(snap *kiauvo.Snapshot) bool {
	return snap != nil && snap.HVACOn != nil && *snap.HVACOn == p.On
}
