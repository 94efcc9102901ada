package env

import "time"

const (
	GPIO12 = "GPIO12" // PWM0, step-down converter
	GPIO20 = "GPIO20" // heartbeat LED
	GPIO23 = "GPIO23" // MOSFET driver enable

	PWMPin       = GPIO12
	EnablePin    = GPIO23
	HeartbeatLed = GPIO20

	// ADS1115 inputs
	SolarAmpsChannel    = 0
	SolarVoltsChannel   = 1
	BatteryVoltsChannel = 2

	// Period of the control loop, wait-time between two invocations
	LoopPeriod = time.Second / 8

	// Raw reads averaged per channel and the settle time after each one
	AverageSamples = 8
	SampleDelay    = 50 * time.Microsecond

	// Calibration works on 10 bit counts of a 5 V reference, every back end
	// reports in that range
	ADCMax = 1023

	// Timer resolution and switching frequency of the converter PWM
	PWMTicks     = 1000
	PWMFrequency = 80000 // Hz

	// Duty cycle bounds in percent of the timer resolution
	PWMMinPercent   = 60
	PWMStartPercent = 90
	// Duty cycle change per tracking step, in timer ticks
	PWMIncrement = 1
	// Duty cycle change per regulation step while floating
	PWMFloatStep = 1

	// Default calibration for a 10 bit converter behind the stock
	// voltage dividers and shunt amplifier.
	SolarAmpsMultiplier    = 5000
	SolarAmpsDivisor       = 1023
	SolarVoltsMultiplier   = 30000
	SolarVoltsDivisor      = 1023
	BatteryVoltsMultiplier = 30000
	BatteryVoltsDivisor    = 1023

	// Ticks spent in off before trying to switch the converter on again
	OffTicks = 8 * 30

	ReportFreqMin       = 1
	PVOutputFreqMin     = 5
	MQTTPublishInterval = 10 * time.Second

	LEDFlashDuration = time.Millisecond * 100
)
