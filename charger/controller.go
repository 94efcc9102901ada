// Package charger runs the peak power tracking control loop: every tick it
// reads the sensors, steps the charger state machine and moves the duty cycle
// of the step-down converter.
package charger

import (
	"context"
	"sync"
	"time"

	"github.com/gr-butler/ppt/env"
	"github.com/gr-butler/ppt/hal"
	"github.com/gr-butler/ppt/sensors"
	"github.com/jonboulle/clockwork"
	logger "github.com/sirupsen/logrus"
)

// Reader produces one set of scaled readings.
type Reader interface {
	Read() sensors.Telemetry
}

// Status is what the controller publishes after every tick.
type Status struct {
	sensors.Telemetry
	// Solar power of the tick that switched the charger off
	LastMilliwatts uint32    `json:"last_solar_mW"`
	State          State     `json:"state"`
	Duty           uint16    `json:"duty"`
	Tick           uint64    `json:"tick"`
	At             time.Time `json:"time"`
}

type Options struct {
	Sensors      Reader
	PWM          hal.PWM
	Enable       hal.EnableLine
	Clock        clockwork.Clock
	MinPercent   uint16
	StartPercent uint16
	Increment    uint16
	FloatStep    uint16
	Thresholds   Thresholds
}

// Controller is the only writer of the charger state. Other goroutines read
// it through Status.
type Controller struct {
	sensors   Reader
	enable    hal.EnableLine
	clock     clockwork.Clock
	duty      *DutyCycle
	tracker   *Tracker
	limits    Thresholds
	floatStep uint16

	state          State
	offCount       int
	lastMilliwatts uint32
	ticks          uint64

	lock   sync.RWMutex
	status Status
}

func NewController(opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	c := &Controller{
		sensors:   opts.Sensors,
		enable:    opts.Enable,
		clock:     opts.Clock,
		duty:      NewDutyCycle(opts.PWM, opts.MinPercent, opts.StartPercent),
		tracker:   NewTracker(opts.Increment),
		limits:    opts.Thresholds,
		floatStep: opts.FloatStep,
		state:     Off,
	}
	c.publish(sensors.Telemetry{})
	return c
}

// Start switches the converter on at the start duty.
func (c *Controller) Start() {
	r := c.duty.Range()
	logger.Infof("PWM range max [%v] min [%v] start [%v]", r.Max, r.Min, r.Start)
	c.switchOn()
	c.publish(c.Status().Telemetry)
}

// Stop switches the converter off.
func (c *Controller) Stop() {
	c.enable.Enable(false)
	c.setState(Off)
	c.publish(c.Status().Telemetry)
}

// Run ticks every env.LoopPeriod until ctx is done and leaves the converter
// off.
func (c *Controller) Run(ctx context.Context) {
	logger.Info("Starting control loop")
	ticker := c.clock.NewTicker(env.LoopPeriod)
	defer ticker.Stop()
	defer c.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Control loop stopped")
			return
		case <-ticker.Chan():
			c.Tick()
		}
	}
}

// Tick runs one pass of the control loop.
func (c *Controller) Tick() {
	t := c.sensors.Read()
	c.ticks++

	c.transition(t)

	switch {
	case c.state.Tracking():
		c.tracker.Step(c.duty, t.SolarMilliwatts)
	case c.state == Float:
		c.regulate(t)
	}

	logger.Debugf("Tick [%v] %v mA %v mV battery %v mV %v mW state [%v] duty [%v]",
		c.ticks, t.SolarMilliamps, t.SolarMillivolts, t.BatteryMillivolts,
		t.SolarMilliwatts, c.state, c.duty.Current())

	c.publish(t)
}

func (c *Controller) transition(t sensors.Telemetry) {
	l := c.limits

	if c.state == Off {
		if c.offCount > 0 {
			c.offCount--
			return
		}
		if t.SolarMillivolts > t.BatteryMillivolts && t.BatteryMillivolts >= l.MinBatteryMillivolts {
			c.switchOn()
		}
		return
	}

	if t.SolarMilliwatts < l.MinSolarMilliwatts {
		c.switchOff(t.SolarMilliwatts)
		return
	}

	switch c.state {
	case On:
		if t.BatteryMillivolts >= l.FloatMillivolts {
			c.setState(Float)
		} else if t.SolarMilliwatts >= l.LowSolarMilliwatts {
			c.setState(Bulk)
		}
	case Bulk:
		if t.BatteryMillivolts >= l.FloatMillivolts {
			c.setState(Float)
		} else if t.SolarMilliwatts < l.LowSolarMilliwatts {
			c.setState(On)
		}
	case Float:
		if t.BatteryMillivolts < l.FloatMillivolts && c.duty.AtMax() {
			c.setState(Bulk)
			c.tracker.Reset()
		}
	}
}

// regulate holds the battery at the float voltage.
func (c *Controller) regulate(t sensors.Telemetry) {
	switch {
	case t.BatteryMillivolts > c.limits.FloatMillivolts:
		c.duty.Lower(c.floatStep)
	case t.BatteryMillivolts < c.limits.FloatMillivolts:
		c.duty.Raise(c.floatStep)
	}
}

func (c *Controller) switchOn() {
	c.duty.Set(c.duty.Range().Start)
	c.tracker.Reset()
	c.enable.Enable(true)
	c.setState(On)
}

func (c *Controller) switchOff(milliwatts uint32) {
	c.enable.Enable(false)
	c.lastMilliwatts = milliwatts
	c.offCount = c.limits.OffTicks
	c.setState(Off)
}

func (c *Controller) setState(s State) {
	if s == c.state {
		return
	}
	logger.Infof("Charger state [%v] -> [%v] duty [%v]", c.state, s, c.duty.Current())
	c.state = s
}

func (c *Controller) publish(t sensors.Telemetry) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.status = Status{
		Telemetry:      t,
		LastMilliwatts: c.lastMilliwatts,
		State:          c.state,
		Duty:           c.duty.Current(),
		Tick:           c.ticks,
		At:             c.clock.Now(),
	}
}

// Status returns the readings and state of the last tick.
func (c *Controller) Status() Status {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.status
}
