package hal

import (
	"fmt"

	"github.com/gr-butler/ppt/env"
	logger "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"
	"periph.io/x/host/v3"
)

/*
 * Pi drives the charger from a Raspberry Pi: the three analog inputs are on
 * an ADS1115 on the I2C bus, the converter PWM and the MOSFET driver enable
 * line are GPIO pins.
 */

// PiOpts names the peripherals used by NewPi.
type PiOpts struct {
	I2CBus     string // "" opens the first bus
	ADCAddress uint16
	PWMPin     string
	EnablePin  string
	Ticks      uint16
	Frequency  physic.Frequency
	// ADS1115 input for each channel
	Inputs map[Channel]ads1x15.Channel
}

// adcReference is the full scale of the calibrated 10 bit range.
const adcReference = 5 * physic.Volt

type Pi struct {
	bus    i2c.BusCloser
	adc    *ads1x15.Dev
	inputs map[Channel]ads1x15.Channel
	active ads1x15.PinADC

	pwm    gpio.PinOut
	enable gpio.PinOut
	ticks  uint16
	freq   physic.Frequency
}

var _ Board = (*Pi)(nil)

func NewPi(opts PiOpts) (*Pi, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to init host: %w", err)
	}

	bus, err := i2creg.Open(opts.I2CBus)
	if err != nil {
		return nil, fmt.Errorf("failed to open I²C: %w", err)
	}

	logger.Infof("Starting ADS1115 ADC [%x]", opts.ADCAddress)
	adc, err := ads1x15.NewADS1115(bus, &ads1x15.Opts{I2cAddress: opts.ADCAddress})
	if err != nil {
		_ = bus.Close()
		return nil, fmt.Errorf("failed to open ADS1115: %w", err)
	}

	pwm := gpioreg.ByName(opts.PWMPin)
	if pwm == nil {
		_ = bus.Close()
		return nil, fmt.Errorf("failed to find %v - pwm pin", opts.PWMPin)
	}
	enable := gpioreg.ByName(opts.EnablePin)
	if enable == nil {
		_ = bus.Close()
		return nil, fmt.Errorf("failed to find %v - enable pin", opts.EnablePin)
	}
	logger.Infof("PWM on %s: %s, enable on %s: %s", pwm, pwm.Function(), enable, enable.Function())

	p := newPi(pwm, enable, opts.Ticks, opts.Frequency)
	p.bus = bus
	p.adc = adc
	p.inputs = opts.Inputs
	return p, nil
}

// newPi sets up the outputs; the MOSFETs stay off until Enable.
func newPi(pwm, enable gpio.PinOut, ticks uint16, freq physic.Frequency) *Pi {
	p := &Pi{pwm: pwm, enable: enable, ticks: ticks, freq: freq}
	p.Enable(false)
	return p
}

func (p *Pi) Acquire(ch Channel) {
	in, ok := p.inputs[ch]
	if !ok {
		logger.Errorf("No ADC input for %v", ch)
		return
	}
	pin, err := p.adc.PinForChannel(in, adcReference, 860*physic.Hertz, ads1x15.BestQuality)
	if err != nil {
		logger.Errorf("Failed to acquire ADC for %v [%v]", ch, err)
		return
	}
	p.active = pin
}

func (p *Pi) Read(ch Channel) uint16 {
	if p.active == nil {
		return 0
	}
	sample, err := p.active.Read()
	if err != nil {
		logger.Debugf("Error reading %v [%v]", ch, err)
		return 0
	}
	return toCounts(sample.V)
}

func (p *Pi) Release(ch Channel) {
	if p.active == nil {
		return
	}
	if err := p.active.Halt(); err != nil {
		logger.Errorf("Failed to release ADC for %v [%v]", ch, err)
	}
	p.active = nil
}

func (p *Pi) Ticks() uint16 {
	return p.ticks
}

func (p *Pi) SetDuty(ticks uint16) {
	if err := p.pwm.PWM(dutyFor(ticks, p.ticks), p.freq); err != nil {
		logger.Errorf("Failed to set duty [%v] [%v]", ticks, err)
	}
}

func (p *Pi) Enable(on bool) {
	level := gpio.Low
	if on {
		level = gpio.High
	}
	if err := p.enable.Out(level); err != nil {
		logger.Errorf("Failed to switch MOSFETs [%v] [%v]", on, err)
	}
}

func (p *Pi) Close() error {
	p.Enable(false)
	_ = p.pwm.Halt()
	if p.adc != nil {
		_ = p.adc.Halt()
	}
	if p.bus != nil {
		return p.bus.Close()
	}
	return nil
}

// dutyFor converts timer ticks into a periph duty.
func dutyFor(ticks, resolution uint16) gpio.Duty {
	if resolution == 0 {
		return 0
	}
	return gpio.Duty(uint64(gpio.DutyMax) * uint64(ticks) / uint64(resolution))
}

// toCounts converts a measured voltage into counts of a 10 bit converter
// referenced to adcReference, the range the calibration is written for.
func toCounts(v physic.ElectricPotential) uint16 {
	if v <= 0 {
		return 0
	}
	c := int64(v) * env.ADCMax / int64(adcReference)
	if c > env.ADCMax {
		return env.ADCMax
	}
	return uint16(c)
}
