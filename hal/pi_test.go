package hal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"
)

func TestPi_Outputs(t *testing.T) {
	pwm := &gpiotest.Pin{N: "PWM0", Num: 12}
	enable := &gpiotest.Pin{N: "EN", Num: 23, L: gpio.High}

	p := newPi(pwm, enable, 1000, 80*physic.KiloHertz)
	assert.Equal(t, gpio.Low, enable.L, "MOSFETs start off")
	assert.Equal(t, uint16(1000), p.Ticks())

	p.Enable(true)
	assert.Equal(t, gpio.High, enable.L)

	p.SetDuty(500)
	assert.Equal(t, gpio.DutyHalf, pwm.D)
	assert.Equal(t, 80*physic.KiloHertz, pwm.F)

	p.SetDuty(999)
	assert.Less(t, int64(pwm.D), int64(gpio.DutyMax))

	assert.NoError(t, p.Close())
	assert.Equal(t, gpio.Low, enable.L)
}

func TestPi_ReadWithoutAcquire(t *testing.T) {
	p := newPi(&gpiotest.Pin{}, &gpiotest.Pin{}, 1000, physic.KiloHertz)
	assert.Equal(t, uint16(0), p.Read(SolarVolts))
	p.Release(SolarVolts)
}

func TestDutyFor(t *testing.T) {
	assert.Equal(t, gpio.Duty(0), dutyFor(0, 1000))
	assert.Equal(t, gpio.DutyMax, dutyFor(1000, 1000))
	assert.Equal(t, gpio.DutyHalf, dutyFor(128, 256))
	assert.Equal(t, gpio.Duty(0), dutyFor(10, 0))
}

func TestToCounts(t *testing.T) {
	assert.Equal(t, uint16(0), toCounts(-12*physic.MilliVolt))
	assert.Equal(t, uint16(0), toCounts(0))
	// 12.6 V battery behind the 1:6 divider
	assert.Equal(t, uint16(429), toCounts(2100*physic.MilliVolt))
	assert.Equal(t, uint16(1023), toCounts(5*physic.Volt))
	// the ADS1115 range reaches past the reference
	assert.Equal(t, uint16(1023), toCounts(6144*physic.MilliVolt))
}
