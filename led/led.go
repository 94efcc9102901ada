package led

import (
	"sync"
	"time"

	"github.com/gr-butler/ppt/env"
	logger "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// LED is the charger status light: lit while the battery is charging and
// flashed as a heartbeat.
type LED struct {
	Name    string
	lock    sync.Mutex
	on      bool
	flash   time.Duration
	gpioPin gpio.PinOut
}

// NewLED looks the pin up by name. A missing pin gives an LED that only
// logs.
func NewLED(name string, GPIOPin string) *LED {
	logger.Infof("Creating new LED on pin [%v] called [%v]", GPIOPin, name)
	pin := gpioreg.ByName(GPIOPin)
	if pin == nil {
		logger.Errorf("Failed to find %v pin", GPIOPin)
		return NewLEDOnPin(name, nil)
	}
	return NewLEDOnPin(name, pin)
}

func NewLEDOnPin(name string, pin gpio.PinOut) *LED {
	l := &LED{
		Name:  name,
		flash: env.LEDFlashDuration,
	}
	// avoid a typed nil
	if pin != nil {
		l.gpioPin = pin
		_ = l.gpioPin.Out(gpio.Low)
	}
	return l
}

func (l *LED) On() {
	l.Set(true)
}

func (l *LED) Off() {
	l.Set(false)
}

func (l *LED) Set(on bool) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.on = on
	if l.gpioPin != nil {
		_ = l.gpioPin.Out(gpio.Level(on))
	}
}

// Flash briefly inverts the LED. A flash already in progress swallows the
// request.
func (l *LED) Flash() {
	if l.gpioPin == nil {
		logger.Debugf("No pin for LED [%v]", l.Name)
		return
	}
	if !l.lock.TryLock() {
		return
	}
	defer l.lock.Unlock()
	_ = l.gpioPin.Out(gpio.Level(!l.on))
	time.Sleep(l.flash)
	_ = l.gpioPin.Out(gpio.Level(l.on))
}

// Flicker pulses the LED, used once at start up.
func (l *LED) Flicker(pulses int) {
	if l.gpioPin == nil {
		return
	}
	if pulses < 1 || pulses > 100 {
		// reject daft or excessive requests
		return
	}
	l.lock.Lock()
	defer l.lock.Unlock()
	for i := 0; i < pulses; i++ {
		_ = l.gpioPin.Out(gpio.High)
		time.Sleep(l.flash)
		_ = l.gpioPin.Out(gpio.Low)
		time.Sleep(l.flash)
	}
	_ = l.gpioPin.Out(gpio.Level(l.on))
}

func (l *LED) IsOn() bool {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.on
}
