package sensors

import (
	"fmt"

	"github.com/gr-butler/ppt/hal"
)

/*
 * Sensors is responsible for reading the charger inputs and converting the
 * converter output to real values.
 */

// Telemetry is one tick's worth of readings.
type Telemetry struct {
	SolarMilliamps    uint16 `json:"solar_mA"`
	SolarMillivolts   uint16 `json:"solar_mV"`
	BatteryMillivolts uint16 `json:"battery_mV"`
	SolarMilliwatts   uint32 `json:"solar_mW"`
}

// Calibrations holds the scaling of each channel.
type Calibrations map[hal.Channel]Calibration

type Sensors struct {
	sampler *Sampler
	cal     Calibrations
}

func NewSensors(sampler *Sampler, cal Calibrations) *Sensors {
	return &Sensors{sampler: sampler, cal: cal}
}

// Read samples all channels in turn and derives the solar power.
func (s *Sensors) Read() Telemetry {
	amps := Scale(s.sampler.Sample(hal.SolarAmps), s.cal[hal.SolarAmps])
	volts := Scale(s.sampler.Sample(hal.SolarVolts), s.cal[hal.SolarVolts])
	battery := Scale(s.sampler.Sample(hal.BatteryVolts), s.cal[hal.BatteryVolts])

	return Telemetry{
		SolarMilliamps:    amps,
		SolarMillivolts:   volts,
		BatteryMillivolts: battery,
		SolarMilliwatts:   Power(amps, volts),
	}
}

// Milli formats a milli unit value in whole units with three decimals.
func Milli(v uint32) string {
	return fmt.Sprintf("%d.%03d", v/1000, v%1000)
}
