package charger

import (
	"context"
	"testing"
	"time"

	"github.com/gr-butler/ppt/env"
	"github.com/gr-butler/ppt/hal"
	"github.com/gr-butler/ppt/sensors"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSensors returns the queued readings, the last one repeats.
type scriptedSensors struct {
	queue []sensors.Telemetry
	reads int
}

func (s *scriptedSensors) Read() sensors.Telemetry {
	s.reads++
	t := s.queue[0]
	if len(s.queue) > 1 {
		s.queue = s.queue[1:]
	}
	return t
}

func (s *scriptedSensors) push(ts ...sensors.Telemetry) {
	s.queue = append(s.queue, ts...)
}

func reading(solarMilliwatts uint32, solarMillivolts, batteryMillivolts uint16) sensors.Telemetry {
	amps := uint16(0)
	if solarMillivolts > 0 {
		amps = uint16(solarMilliwatts * 1000 / uint32(solarMillivolts))
	}
	return sensors.Telemetry{
		SolarMilliamps:    amps,
		SolarMillivolts:   solarMillivolts,
		BatteryMillivolts: batteryMillivolts,
		SolarMilliwatts:   solarMilliwatts,
	}
}

var testThresholds = Thresholds{
	MinSolarMilliwatts:   500,
	LowSolarMilliwatts:   5000,
	FloatMillivolts:      13800,
	MinBatteryMillivolts: 10500,
	OffTicks:             3,
}

func newTestController(s Reader) (*Controller, *fakeBoard, clockwork.FakeClock) {
	b := &fakeBoard{ticks: 1000}
	clock := clockwork.NewFakeClock()
	c := NewController(Options{
		Sensors:      s,
		PWM:          b,
		Enable:       b,
		Clock:        clock,
		MinPercent:   60,
		StartPercent: 90,
		Increment:    1,
		FloatStep:    1,
		Thresholds:   testThresholds,
	})
	return c, b, clock
}

func TestController_Start(t *testing.T) {
	c, b, _ := newTestController(&scriptedSensors{})

	assert.Equal(t, Off, c.Status().State)
	assert.False(t, b.enabled)

	c.Start()
	st := c.Status()
	assert.Equal(t, On, st.State)
	assert.Equal(t, uint16(900), st.Duty)
	assert.Equal(t, uint16(900), b.duty())
	assert.True(t, b.enabled)
}

func TestController_HillClimb(t *testing.T) {
	s := &scriptedSensors{}
	c, _, _ := newTestController(s)
	c.Start()

	s.push(
		reading(6000, 17000, 12600),
		reading(6100, 17000, 12600),
		reading(6200, 17000, 12600),
		reading(6150, 17000, 12600),
		reading(6300, 17000, 12600),
	)
	var duties []uint16
	for i := 0; i < 5; i++ {
		c.Tick()
		duties = append(duties, c.Status().Duty)
	}
	assert.Equal(t, []uint16{901, 902, 903, 902, 901}, duties)
	assert.Equal(t, Bulk, c.Status().State)
}

func TestController_TracksInOn(t *testing.T) {
	s := &scriptedSensors{}
	c, _, _ := newTestController(s)
	c.Start()

	s.push(reading(1000, 15000, 12000), reading(1200, 15000, 12000))
	c.Tick()
	c.Tick()
	st := c.Status()
	assert.Equal(t, On, st.State, "power below low_solar_mw keeps on")
	assert.Equal(t, uint16(902), st.Duty)
}

func TestController_OffAndRestart(t *testing.T) {
	s := &scriptedSensors{}
	c, b, _ := newTestController(s)
	c.Start()

	s.push(reading(6000, 17000, 12600), reading(400, 13000, 12600))
	c.Tick()
	c.Tick()
	st := c.Status()
	require.Equal(t, Off, st.State)
	assert.False(t, b.enabled)
	assert.Equal(t, uint32(400), st.LastMilliwatts)

	// converter off: no current, panel at open circuit
	s.push(reading(0, 20000, 12600))
	for i := 0; i < testThresholds.OffTicks; i++ {
		c.Tick()
		require.Equal(t, Off, c.Status().State, "hold-off tick %d", i)
	}
	before := len(b.duties)
	c.Tick()
	st = c.Status()
	assert.Equal(t, On, st.State)
	assert.True(t, b.enabled)
	// restarts from the start duty, then takes its first tracking step
	assert.Equal(t, uint16(900), b.duties[before])
	assert.InDelta(t, 900, int(st.Duty), 1)
	assert.Equal(t, uint32(400), st.LastMilliwatts)
	assert.Equal(t, []bool{true, false, true}, b.enables)
}

func TestController_StaysOffWhenPanelBelowBattery(t *testing.T) {
	s := &scriptedSensors{}
	c, _, _ := newTestController(s)
	c.Start()

	s.push(reading(0, 11000, 12600))
	for i := 0; i < 10; i++ {
		c.Tick()
	}
	assert.Equal(t, Off, c.Status().State)
}

func TestController_StaysOffWhenBatteryTooLow(t *testing.T) {
	s := &scriptedSensors{}
	c, _, _ := newTestController(s)
	c.Start()

	s.push(reading(0, 20000, 9000))
	for i := 0; i < 10; i++ {
		c.Tick()
	}
	assert.Equal(t, Off, c.Status().State)
}

func TestController_Float(t *testing.T) {
	s := &scriptedSensors{}
	c, _, _ := newTestController(s)
	c.Start()

	s.push(reading(6000, 17000, 12600), reading(6000, 17000, 13900))
	c.Tick()
	c.Tick()
	st := c.Status()
	require.Equal(t, Float, st.State)
	// 901 after the bulk step, then one float step down
	assert.Equal(t, uint16(900), st.Duty)

	s.push(reading(6000, 17000, 13900))
	c.Tick()
	assert.Equal(t, uint16(899), c.Status().Duty)

	s.push(reading(6000, 17000, 13800))
	c.Tick()
	assert.Equal(t, uint16(899), c.Status().Duty, "holds at the float voltage")

	s.push(reading(6000, 17000, 13700))
	c.Tick()
	assert.Equal(t, uint16(900), c.Status().Duty)
	assert.Equal(t, Float, c.Status().State)
}

func TestController_FloatBackToBulkAtMaxDuty(t *testing.T) {
	s := &scriptedSensors{}
	c, _, _ := newTestController(s)
	c.Start()

	s.push(reading(6000, 17000, 13900))
	c.Tick()
	require.Equal(t, Float, c.Status().State)

	s.push(reading(6000, 17000, 13000))
	for i := 0; i < 200 && c.Status().State == Float; i++ {
		c.Tick()
	}
	assert.Equal(t, Bulk, c.Status().State)
}

func TestController_BulkAfterFloatTracksAfresh(t *testing.T) {
	s := &scriptedSensors{}
	c, _, _ := newTestController(s)
	c.Start()

	s.push(reading(6000, 17000, 12600), reading(6000, 17000, 13900))
	c.Tick()
	c.Tick()
	require.Equal(t, Float, c.Status().State)

	// less power than the last bulk tick, must not count as a drop
	s.push(reading(5500, 17000, 13000))
	for i := 0; i < 200 && c.Status().State == Float; i++ {
		c.Tick()
	}
	st := c.Status()
	require.Equal(t, Bulk, st.State)
	assert.Equal(t, uint16(999), st.Duty, "first step goes up from max")

	c.Tick()
	assert.Equal(t, uint16(998), c.Status().Duty, "equal power turns round")
}

func TestController_FloatToOff(t *testing.T) {
	s := &scriptedSensors{}
	c, b, _ := newTestController(s)
	c.Start()

	s.push(reading(6000, 17000, 13900), reading(100, 14000, 13900))
	c.Tick()
	c.Tick()
	assert.Equal(t, Off, c.Status().State)
	assert.False(t, b.enabled)
}

func TestController_SamplesEveryTick(t *testing.T) {
	s := &scriptedSensors{}
	c, _, clock := newTestController(s)
	c.Start()

	s.push(reading(0, 11000, 12600))
	for i := 0; i < 5; i++ {
		clock.Advance(time.Second)
		c.Tick()
	}
	st := c.Status()
	assert.Equal(t, 5, s.reads)
	assert.Equal(t, uint64(5), st.Tick)
	assert.Equal(t, uint16(11000), st.SolarMillivolts)
	assert.Equal(t, clock.Now(), st.At)
}

func TestController_Run(t *testing.T) {
	s := &scriptedSensors{}
	s.push(reading(6000, 17000, 12600))
	c, b, clock := newTestController(s)
	c.Start()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		clock.Advance(env.LoopPeriod)
		return c.Status().Tick >= 3
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("control loop did not stop")
	}
	assert.Equal(t, Off, c.Status().State)
	assert.False(t, b.enabled)
}

func TestController_ConvergesOnSimulatedPanel(t *testing.T) {
	sim := hal.NewSim(hal.SimOpts{
		OpenCircuitMillivolts:  21000,
		ShortCircuitMilliamps:  5000,
		ThermalMillivolts:      1500,
		BatteryMillivolts:      12600,
		ADCMax:                 32767,
		VoltsFullScaleMillis:   32000,
		AmpsFullScaleMilliamps: 6000,
		Ticks:                  1000,
	})
	reader := sensors.NewSensors(sensors.NewSampler(sim, noSleep{}), sensors.Calibrations{
		hal.SolarAmps:    {Multiplier: 6000, Divisor: 32767},
		hal.SolarVolts:   {Multiplier: 32000, Divisor: 32767},
		hal.BatteryVolts: {Multiplier: 32000, Divisor: 32767},
	})
	c := NewController(Options{
		Sensors:      reader,
		PWM:          sim,
		Enable:       sim,
		Clock:        clockwork.NewFakeClock(),
		MinPercent:   60,
		StartPercent: 90,
		Increment:    5,
		FloatStep:    1,
		Thresholds:   testThresholds,
	})
	c.Start()

	best := 0.0
	for d := uint16(600); d < 1000; d++ {
		best = max(best, sim.PowerAt(d))
	}

	for i := 0; i < 300; i++ {
		c.Tick()
	}
	st := c.Status()
	assert.Equal(t, Bulk, st.State)
	assert.Greater(t, float64(st.SolarMilliwatts), 0.95*best)
	assert.Greater(t, sim.PowerAt(st.Duty), 0.95*best)

	total, overlapping := sim.Acquires()
	assert.Equal(t, 300*len(hal.Channels), total)
	assert.Equal(t, 0, overlapping)
}

type noSleep struct{}

func (noSleep) Sleep(time.Duration) {}
