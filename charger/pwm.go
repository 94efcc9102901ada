package charger

import (
	"github.com/gr-butler/ppt/hal"
)

// Range is the duty cycle span allowed while the converter runs, in timer
// ticks.
type Range struct {
	Max   uint16
	Min   uint16
	Start uint16
}

// NewRange derives the duty span from the timer resolution. The top tick is
// never used: the MOSFET driver's charge pump needs a switching edge, so the
// output must not stay high. Min and Start never exceed Max.
func NewRange(ticks, minPercent, startPercent uint16) Range {
	r := Range{
		Max:   ticks - 1,
		Min:   uint16(uint32(ticks) * uint32(minPercent) / 100),
		Start: uint16(uint32(ticks) * uint32(startPercent) / 100),
	}
	r.Min = min(r.Min, r.Max)
	r.Start = min(max(r.Start, r.Min), r.Max)
	return r
}

// DutyCycle owns the commanded duty cycle of the converter. Requests outside
// the range are clamped, never rejected.
type DutyCycle struct {
	pwm     hal.PWM
	rng     Range
	current uint16
}

// NewDutyCycle sets up the range from the timer and commits the start duty.
func NewDutyCycle(pwm hal.PWM, minPercent, startPercent uint16) *DutyCycle {
	d := &DutyCycle{
		pwm: pwm,
		rng: NewRange(pwm.Ticks(), minPercent, startPercent),
	}
	d.Set(d.rng.Start)
	return d
}

func (d *DutyCycle) Range() Range {
	return d.rng
}

func (d *DutyCycle) Current() uint16 {
	return d.current
}

func (d *DutyCycle) AtMax() bool {
	return d.current == d.rng.Max
}

// Set clamps v to the range and commits it to the timer.
func (d *DutyCycle) Set(v uint16) {
	switch {
	case v > d.rng.Max:
		v = d.rng.Max
	case v < d.rng.Min:
		v = d.rng.Min
	}
	d.current = v
	d.pwm.SetDuty(v)
}

func (d *DutyCycle) Raise(step uint16) {
	v := uint32(d.current) + uint32(step)
	if v > 0xffff {
		v = 0xffff
	}
	d.Set(uint16(v))
}

func (d *DutyCycle) Lower(step uint16) {
	if step > d.current {
		d.Set(0)
		return
	}
	d.Set(d.current - step)
}
