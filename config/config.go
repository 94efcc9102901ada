package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gr-butler/ppt/env"
	"gopkg.in/yaml.v3"
)

// Config represents the charger configuration.
type Config struct {
	PWM         PWMConfig         `yaml:"pwm"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Charger     ChargerConfig     `yaml:"charger"`
	Hardware    HardwareConfig    `yaml:"hardware"`
	Sim         SimConfig         `yaml:"sim"`
	Reporting   ReportingConfig   `yaml:"reporting"`
}

// PWMConfig holds the duty cycle bounds of the step-down converter.
type PWMConfig struct {
	MinPercent   uint16 `yaml:"min_percent"`
	StartPercent uint16 `yaml:"start_percent"`
	Increment    uint16 `yaml:"increment"`  // tracking step in timer ticks
	FloatStep    uint16 `yaml:"float_step"` // regulation step in timer ticks
}

// Scale is a multiply/divide pair converting raw counts to milli units.
type Scale struct {
	Multiplier uint32 `yaml:"multiplier"`
	Divisor    uint32 `yaml:"divisor"`
}

// CalibrationConfig holds one Scale per analog channel.
type CalibrationConfig struct {
	SolarAmps    Scale `yaml:"solar_amps"`
	SolarVolts   Scale `yaml:"solar_volts"`
	BatteryVolts Scale `yaml:"battery_volts"`
}

// ChargerConfig holds the state machine thresholds. They depend on the
// battery chemistry and the panel so none of them has a default.
type ChargerConfig struct {
	MinSolarMilliwatts   uint32 `yaml:"min_solar_mw"`   // below this the converter is switched off
	LowSolarMilliwatts   uint32 `yaml:"low_solar_mw"`   // below this tracking stays in on
	FloatMillivolts      uint16 `yaml:"float_mv"`       // battery voltage regulated in float
	MinBatteryMillivolts uint16 `yaml:"min_battery_mv"` // battery must be above this to start charging
	OffTicks             int    `yaml:"off_ticks"`
}

// HardwareConfig names the peripherals used on the host.
type HardwareConfig struct {
	I2CBus       string `yaml:"i2c_bus"`
	ADCAddress   uint16 `yaml:"adc_address"`
	PWMPin       string `yaml:"pwm_pin"`
	EnablePin    string `yaml:"enable_pin"`
	LEDPin       string `yaml:"led_pin"`
	PWMTicks     uint16 `yaml:"pwm_ticks"`
	PWMFrequency int    `yaml:"pwm_frequency"` // Hz
	SerialBaud   int    `yaml:"serial_baud"`
}

// SimConfig describes the simulated panel and battery.
type SimConfig struct {
	OpenCircuitMillivolts  float64 `yaml:"open_circuit_mv"`
	ShortCircuitMilliamps  float64 `yaml:"short_circuit_ma"`
	ThermalMillivolts      float64 `yaml:"thermal_mv"`
	BatteryMillivolts      float64 `yaml:"battery_mv"`
	ADCMax                 uint16  `yaml:"adc_max"`
	VoltsFullScaleMillis   float64 `yaml:"volts_full_scale_mv"`
	AmpsFullScaleMilliamps float64 `yaml:"amps_full_scale_ma"`
}

// ReportingConfig controls the upstream reporters.
type ReportingConfig struct {
	MQTTBroker       string        `yaml:"mqtt_broker"`
	MQTTTopic        string        `yaml:"mqtt_topic"`
	MQTTInterval     time.Duration `yaml:"mqtt_interval"`
	PVOutputInterval time.Duration `yaml:"pvoutput_interval"`
	DBInterval       time.Duration `yaml:"db_interval"`
}

// Default returns the configuration with every default filled in. The
// charger thresholds are left zero and must come from the config file.
func Default() *Config {
	return &Config{
		PWM: PWMConfig{
			MinPercent:   env.PWMMinPercent,
			StartPercent: env.PWMStartPercent,
			Increment:    env.PWMIncrement,
			FloatStep:    env.PWMFloatStep,
		},
		Calibration: CalibrationConfig{
			SolarAmps:    Scale{Multiplier: env.SolarAmpsMultiplier, Divisor: env.SolarAmpsDivisor},
			SolarVolts:   Scale{Multiplier: env.SolarVoltsMultiplier, Divisor: env.SolarVoltsDivisor},
			BatteryVolts: Scale{Multiplier: env.BatteryVoltsMultiplier, Divisor: env.BatteryVoltsDivisor},
		},
		Charger: ChargerConfig{
			OffTicks: env.OffTicks,
		},
		Hardware: HardwareConfig{
			I2CBus:       "",
			ADCAddress:   0x48,
			PWMPin:       env.PWMPin,
			EnablePin:    env.EnablePin,
			LEDPin:       env.HeartbeatLed,
			PWMTicks:     env.PWMTicks,
			PWMFrequency: env.PWMFrequency,
			SerialBaud:   115200,
		},
		Sim: SimConfig{
			OpenCircuitMillivolts:  21000,
			ShortCircuitMilliamps:  5000,
			ThermalMillivolts:      1500,
			BatteryMillivolts:      12600,
			ADCMax:                 env.ADCMax,
			VoltsFullScaleMillis:   env.SolarVoltsMultiplier,
			AmpsFullScaleMilliamps: env.SolarAmpsMultiplier,
		},
		Reporting: ReportingConfig{
			MQTTTopic:        "ppt",
			MQTTInterval:     env.MQTTPublishInterval,
			PVOutputInterval: env.PVOutputFreqMin * time.Minute,
			DBInterval:       env.ReportFreqMin * time.Minute,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist the
// defaults are returned; they fail Validate until thresholds are supplied.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// ensureDefaults restores defaults for fields the file zeroed out.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.PWM.Increment == 0 {
		c.PWM.Increment = def.PWM.Increment
	}
	if c.PWM.FloatStep == 0 {
		c.PWM.FloatStep = def.PWM.FloatStep
	}
	if c.Hardware.PWMTicks == 0 {
		c.Hardware.PWMTicks = def.Hardware.PWMTicks
	}
	if c.Hardware.PWMFrequency == 0 {
		c.Hardware.PWMFrequency = def.Hardware.PWMFrequency
	}
	if c.Hardware.ADCAddress == 0 {
		c.Hardware.ADCAddress = def.Hardware.ADCAddress
	}
	if c.Hardware.SerialBaud == 0 {
		c.Hardware.SerialBaud = def.Hardware.SerialBaud
	}
	if c.Sim.ADCMax == 0 {
		c.Sim.ADCMax = def.Sim.ADCMax
	}
	if c.Reporting.MQTTTopic == "" {
		c.Reporting.MQTTTopic = def.Reporting.MQTTTopic
	}
	if c.Reporting.MQTTInterval == 0 {
		c.Reporting.MQTTInterval = def.Reporting.MQTTInterval
	}
	if c.Reporting.PVOutputInterval == 0 {
		c.Reporting.PVOutputInterval = def.Reporting.PVOutputInterval
	}
	if c.Reporting.DBInterval == 0 {
		c.Reporting.DBInterval = def.Reporting.DBInterval
	}
}

// Validate checks the values the control loop relies on.
func (c *Config) Validate() error {
	var errs []error

	// the top timer tick is never used, the driver's charge pump needs an edge
	if c.PWM.MinPercent > c.PWM.StartPercent || c.PWM.StartPercent >= 100 {
		errs = append(errs, fmt.Errorf("pwm: need min_percent <= start_percent < 100, got %d and %d",
			c.PWM.MinPercent, c.PWM.StartPercent))
	}
	if c.Hardware.PWMTicks < 2 {
		errs = append(errs, fmt.Errorf("hardware: pwm_ticks must be at least 2, got %d", c.Hardware.PWMTicks))
	}

	adcMax := max(uint16(env.ADCMax), c.Sim.ADCMax)
	for name, s := range map[string]Scale{
		"solar_amps":    c.Calibration.SolarAmps,
		"solar_volts":   c.Calibration.SolarVolts,
		"battery_volts": c.Calibration.BatteryVolts,
	} {
		if s.Divisor == 0 {
			errs = append(errs, fmt.Errorf("calibration: %s divisor must not be zero", name))
			continue
		}
		if top := uint64(adcMax) * uint64(s.Multiplier) / uint64(s.Divisor); top > 0xffff {
			errs = append(errs, fmt.Errorf("calibration: %s reaches %d at full scale %d, above 65535",
				name, top, adcMax))
		}
	}

	ch := c.Charger
	if ch.MinSolarMilliwatts == 0 {
		errs = append(errs, errors.New("charger: min_solar_mw is required"))
	}
	if ch.LowSolarMilliwatts == 0 {
		errs = append(errs, errors.New("charger: low_solar_mw is required"))
	} else if ch.LowSolarMilliwatts < ch.MinSolarMilliwatts {
		errs = append(errs, fmt.Errorf("charger: low_solar_mw (%d) below min_solar_mw (%d)",
			ch.LowSolarMilliwatts, ch.MinSolarMilliwatts))
	}
	if ch.FloatMillivolts == 0 {
		errs = append(errs, errors.New("charger: float_mv is required"))
	}
	if ch.MinBatteryMillivolts == 0 {
		errs = append(errs, errors.New("charger: min_battery_mv is required"))
	} else if ch.MinBatteryMillivolts >= ch.FloatMillivolts && ch.FloatMillivolts != 0 {
		errs = append(errs, fmt.Errorf("charger: min_battery_mv (%d) must be below float_mv (%d)",
			ch.MinBatteryMillivolts, ch.FloatMillivolts))
	}
	if ch.OffTicks < 0 {
		errs = append(errs, fmt.Errorf("charger: off_ticks must not be negative, got %d", ch.OffTicks))
	}

	r := c.Reporting
	for name, d := range map[string]time.Duration{
		"mqtt_interval":     r.MQTTInterval,
		"pvoutput_interval": r.PVOutputInterval,
		"db_interval":       r.DBInterval,
	} {
		if d < time.Second {
			errs = append(errs, fmt.Errorf("reporting: %s must be at least 1s, got %v", name, d))
		}
	}

	return errors.Join(errs...)
}
