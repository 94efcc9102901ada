package main

import (
	"context"
	"time"

	"github.com/gr-butler/ppt/charger"
	"github.com/gr-butler/ppt/db/postgres"
	"github.com/prometheus/client_golang/prometheus"

	logger "github.com/sirupsen/logrus"
)

var Prom_solarCurrent = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "solar_current_ma",
		Help: "Solar panel current mA",
	},
)

var Prom_solarVoltage = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "solar_voltage_mv",
		Help: "Solar panel voltage mV",
	},
)

var Prom_batteryVoltage = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "battery_voltage_mv",
		Help: "Battery voltage mV",
	},
)

var Prom_solarPower = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "solar_power_mw",
		Help: "Solar panel power mW",
	},
)

var Prom_solarPowerLast = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "solar_power_last_mw",
		Help: "Solar power when the charger last switched off mW",
	},
)

var Prom_duty = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "pwm_duty_ticks",
		Help: "Converter duty cycle in timer ticks",
	},
)

var Prom_state = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "charger_state",
		Help: "1 for the current charger state",
	},
	[]string{"state"},
)

var Prom_energyToday = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "solar_energy_today_wh",
		Help: "Solar energy since midnight Wh",
	},
)

// called by prometheus
func init() {
	logger.Infof("%v: Initialize prometheus...", time.Now().Format(time.RFC822))
	prometheus.MustRegister(
		Prom_solarCurrent,
		Prom_solarVoltage,
		Prom_batteryVoltage,
		Prom_solarPower,
		Prom_solarPowerLast,
		Prom_duty,
		Prom_state,
		Prom_energyToday)
}

var states = []charger.State{charger.Off, charger.On, charger.Bulk, charger.Float}

// sampler records the controller status once a second.
func (w *chargerstation) sampler(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.recordSample()
		}
	}
}

func (w *chargerstation) recordSample() charger.Status {
	s := w.ctrl.Status()
	w.data.Record(s)

	Prom_solarCurrent.Set(float64(s.SolarMilliamps))
	Prom_solarVoltage.Set(float64(s.SolarMillivolts))
	Prom_batteryVoltage.Set(float64(s.BatteryMillivolts))
	Prom_solarPower.Set(float64(s.SolarMilliwatts))
	Prom_solarPowerLast.Set(float64(s.LastMilliwatts))
	Prom_duty.Set(float64(s.Duty))
	for _, st := range states {
		v := 0.0
		if st == s.State {
			v = 1
		}
		Prom_state.WithLabelValues(st.String()).Set(v)
	}
	Prom_energyToday.Set(w.data.Summary(1).EnergyMilliwattHours / 1000)

	// lit while charging
	w.led.Set(s.State == charger.Bulk || s.State == charger.Float)
	return s
}

// Reporting called as a go routine:
// * save averaged records to the db every db_interval
// * send status to PVOutput every pvoutput_interval
// * publish telemetry on MQTT every mqtt_interval
func (w *chargerstation) Reporting(ctx context.Context) {
	r := w.cfg.Reporting
	dbTicker := time.NewTicker(r.DBInterval)
	defer dbTicker.Stop()
	pvTicker := time.NewTicker(r.PVOutputInterval)
	defer pvTicker.Stop()
	mqttTicker := time.NewTicker(r.MQTTInterval)
	defer mqttTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-dbTicker.C:
			if err := w.writeRecord(ctx); err != nil {
				logger.Errorf("Failed to write to db [%v]", err)
			}
		case t := <-pvTicker.C:
			if err := w.uploadPVOutput(ctx, t); err != nil {
				logger.Errorf("Failed to send PVOutput status [%v]", err)
			}
		case <-mqttTicker.C:
			w.publishTelemetry()
		}
	}
}

func (w *chargerstation) writeRecord(ctx context.Context) error {
	if w.db == nil {
		return nil
	}
	s := w.data.Summary(int(w.cfg.Reporting.DBInterval / time.Second))
	logger.Info("Saving record to db")
	return w.db.WriteRecord(ctx, postgres.WriteRecordParams{
		SolarMa:   s.SolarMilliamps,
		SolarMv:   s.SolarMillivolts,
		BatteryMv: s.BatteryMillivolts,
		SolarMw:   s.SolarMilliwatts,
		PeakMw:    s.PeakMilliwatts,
		Duty:      s.Duty,
		State:     s.State.String(),
		EnergyMwh: s.EnergyMilliwattHours,
	})
}

func (w *chargerstation) uploadPVOutput(ctx context.Context, now time.Time) error {
	if w.pv == nil {
		return nil
	}
	st := prepStatus(now, w.data.Summary(int(w.cfg.Reporting.PVOutputInterval/time.Second)))
	logger.Infof("Sending status to PVOutput [%+v]", *st)
	return w.pv.Send(ctx, st)
}

func (w *chargerstation) publishTelemetry() {
	if w.mqtt == nil {
		return
	}
	if err := w.mqtt.PublishTelemetry(w.cfg.Reporting.MQTTTopic, w.ctrl.Status()); err != nil {
		logger.Errorf("Failed to publish telemetry [%v]", err)
	}
}

// restoreEnergy picks up today's energy from the last saved record.
func (w *chargerstation) restoreEnergy(ctx context.Context) {
	last, err := w.db.LatestRecord(ctx)
	if err != nil {
		logger.Infof("No previous record [%v]", err)
		return
	}
	w.data.SeedEnergy(last.RecordedAt, time.Now(), last.EnergyMwh)
}
