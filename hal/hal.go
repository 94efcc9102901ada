// Package hal is the narrow hardware interface the charger runs against:
// an analog converter, a PWM timer and the MOSFET driver enable line.
package hal

import (
	"fmt"
	"io"
)

// Channel selects one analog input.
type Channel int

const (
	SolarAmps Channel = iota
	SolarVolts
	BatteryVolts
)

// Channels lists the inputs sampled every control tick, in sampling order.
var Channels = []Channel{SolarAmps, SolarVolts, BatteryVolts}

func (c Channel) String() string {
	switch c {
	case SolarAmps:
		return "solar-amps"
	case SolarVolts:
		return "solar-volts"
	case BatteryVolts:
		return "battery-volts"
	}
	return fmt.Sprintf("channel-%d", int(c))
}

// ADC is the analog converter. It is shared by all channels, so a channel
// has to be acquired before reading and released afterwards.
type ADC interface {
	Acquire(ch Channel)
	Read(ch Channel) uint16
	Release(ch Channel)
}

// PWM is the timer driving the step-down converter.
type PWM interface {
	// Ticks is the timer resolution, a duty of Ticks would be always high.
	Ticks() uint16
	SetDuty(ticks uint16)
}

// EnableLine switches the MOSFET driver.
type EnableLine interface {
	Enable(on bool)
}

// Board bundles the peripherals of one charger.
type Board interface {
	ADC
	PWM
	EnableLine
	io.Closer
}
