package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gr-butler/ppt/charger"
	"github.com/gr-butler/ppt/config"
	"github.com/gr-butler/ppt/data"
	"github.com/gr-butler/ppt/db/postgres"
	"github.com/gr-butler/ppt/env"
	"github.com/gr-butler/ppt/hal"
	"github.com/gr-butler/ppt/led"
	"github.com/gr-butler/ppt/sensors"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"

	logger "github.com/sirupsen/logrus"
)

const version = "GRB-PPT-1.0.0"

type chargerstation struct {
	cfg      *config.Config
	board    hal.Board
	ctrl     *charger.Controller
	data     *data.ChargerData
	led      *led.LED
	db       *postgres.Queries
	mqtt     *MQTTSender
	pv       *pvOutput
	testMode bool
}

type webdata struct {
	charger.Status
	TimeNow  string  `json:"time_now"`
	EnergyWh float64 `json:"energy_today_Wh"`
	Version  string  `json:"version"`
}

func main() {
	args := env.Args{
		Config:  flag.String("config", "ppt.yaml", "configuration file"),
		Test:    flag.Bool("test", false, "test mode, does not send data upstream"),
		Sim:     flag.Bool("sim", false, "run against a simulated panel"),
		Serial:  flag.String("serial", "", "serial port of a front-end controller, instead of the Pi peripherals"),
		Verbose: flag.Bool("verbose", false, "debug logging"),
		Addr:    flag.String("addr", ":80", "web service address"),
	}
	flag.Parse()

	if *args.Verbose {
		logger.SetLevel(logger.DebugLevel)
	}
	logger.Infof("Starting peak power tracker [%v]", version)
	if *args.Test {
		logger.Info("TEST MODE")
	}

	if err := godotenv.Load(); err != nil {
		logger.Warnf("No .env file loaded [%v]", err)
	}

	cfg, err := config.Load(*args.Config)
	if err != nil {
		logger.Fatalf("Failed to load config [%v]", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid config [%v]", err)
	}

	board, err := openBoard(cfg, args)
	if err != nil {
		logger.Fatalf("Failed to open charger hardware [%v]", err)
	}
	defer board.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := newChargerstation(cfg, board, clockwork.NewRealClock(), *args.Test)
	if *args.Sim || *args.Serial != "" {
		w.led = led.NewLEDOnPin("status", nil)
	} else {
		w.led = led.NewLED("status", cfg.Hardware.LEDPin)
	}
	w.led.Flicker(3)

	if !w.testMode {
		w.connectUpstream(ctx)
	}

	done := make(chan struct{})
	w.ctrl.Start()
	go func() {
		w.ctrl.Run(ctx)
		close(done)
	}()

	go w.sampler(ctx)
	go w.Reporting(ctx)
	go w.heartbeat(ctx)

	sendData, ok := os.LookupEnv("SENDPROMDATA")
	metrics := ok && sendData == "true" && !w.testMode
	srv := &http.Server{
		Addr:              *args.Addr,
		Handler:           w.routes(metrics),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Infof("Starting webservice on [%v] metrics [%v]", srv.Addr, metrics)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Webservice failed [%v]", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Exiting...")
	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdown)
	<-done
}

func newChargerstation(cfg *config.Config, board hal.Board, clock clockwork.Clock, testMode bool) *chargerstation {
	c := cfg.Calibration
	s := sensors.NewSensors(sensors.NewSampler(board, clock), sensors.Calibrations{
		hal.SolarAmps:    {Multiplier: c.SolarAmps.Multiplier, Divisor: c.SolarAmps.Divisor},
		hal.SolarVolts:   {Multiplier: c.SolarVolts.Multiplier, Divisor: c.SolarVolts.Divisor},
		hal.BatteryVolts: {Multiplier: c.BatteryVolts.Multiplier, Divisor: c.BatteryVolts.Divisor},
	})

	ctrl := charger.NewController(charger.Options{
		Sensors:      s,
		PWM:          board,
		Enable:       board,
		Clock:        clock,
		MinPercent:   cfg.PWM.MinPercent,
		StartPercent: cfg.PWM.StartPercent,
		Increment:    cfg.PWM.Increment,
		FloatStep:    cfg.PWM.FloatStep,
		Thresholds: charger.Thresholds{
			MinSolarMilliwatts:   cfg.Charger.MinSolarMilliwatts,
			LowSolarMilliwatts:   cfg.Charger.LowSolarMilliwatts,
			FloatMillivolts:      cfg.Charger.FloatMillivolts,
			MinBatteryMillivolts: cfg.Charger.MinBatteryMillivolts,
			OffTicks:             cfg.Charger.OffTicks,
		},
	})

	window := max(cfg.Reporting.DBInterval, cfg.Reporting.PVOutputInterval)
	return &chargerstation{
		cfg:      cfg,
		board:    board,
		ctrl:     ctrl,
		data:     data.CreateChargerData(int(window / time.Second)),
		led:      led.NewLEDOnPin("status", nil),
		testMode: testMode,
	}
}

// openBoard picks the hardware back end from the flags.
func openBoard(cfg *config.Config, args env.Args) (hal.Board, error) {
	hw := cfg.Hardware
	switch {
	case *args.Sim:
		logger.Info("Using simulated panel")
		sc := cfg.Sim
		return hal.NewSim(hal.SimOpts{
			OpenCircuitMillivolts:  sc.OpenCircuitMillivolts,
			ShortCircuitMilliamps:  sc.ShortCircuitMilliamps,
			ThermalMillivolts:      sc.ThermalMillivolts,
			BatteryMillivolts:      sc.BatteryMillivolts,
			ADCMax:                 sc.ADCMax,
			VoltsFullScaleMillis:   sc.VoltsFullScaleMillis,
			AmpsFullScaleMilliamps: sc.AmpsFullScaleMilliamps,
			Ticks:                  hw.PWMTicks,
		}), nil
	case *args.Serial != "":
		logger.Infof("Using front-end controller on [%v]", *args.Serial)
		s, err := hal.OpenSerial(*args.Serial, hw.SerialBaud, map[hal.Channel]int{
			hal.SolarAmps:    env.SolarAmpsChannel,
			hal.SolarVolts:   env.SolarVoltsChannel,
			hal.BatteryVolts: env.BatteryVoltsChannel,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	p, err := hal.NewPi(hal.PiOpts{
		I2CBus:     hw.I2CBus,
		ADCAddress: hw.ADCAddress,
		PWMPin:     hw.PWMPin,
		EnablePin:  hw.EnablePin,
		Ticks:      hw.PWMTicks,
		Frequency:  physic.Frequency(hw.PWMFrequency) * physic.Hertz,
		Inputs: map[hal.Channel]ads1x15.Channel{
			hal.SolarAmps:    ads1x15.Channel0,
			hal.SolarVolts:   ads1x15.Channel1,
			hal.BatteryVolts: ads1x15.Channel2,
		},
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// connectUpstream sets up the reporters whose credentials are present.
func (w *chargerstation) connectUpstream(ctx context.Context) {
	if dsn, ok := os.LookupEnv("DATABASE_URL"); ok {
		db, err := postgres.Open(ctx, dsn)
		if err != nil {
			logger.Errorf("Database disabled [%v]", err)
		} else {
			w.db = postgres.New(db)
			if err := w.db.Migrate(ctx); err != nil {
				logger.Errorf("Failed to migrate db [%v]", err)
			}
			w.restoreEnergy(ctx)
		}
	}

	if w.cfg.Reporting.MQTTBroker != "" {
		outgoing := make(chan MQTTMessage, 100)
		clients := make(chan mqtt.Client, 1)
		go mqttSenderWorker(ctx, outgoing, clients)
		go mqttConnect(ctx, w.cfg.Reporting.MQTTBroker, os.Getenv("MQTT_USERNAME"), os.Getenv("MQTT_PASSWORD"), clients)
		w.mqtt = NewMQTTSender(outgoing)
	}

	apiKey, keyok := os.LookupEnv("PVOUTPUT_APIKEY")
	systemID, idok := os.LookupEnv("PVOUTPUT_SYSTEMID")
	if keyok && idok {
		w.pv = newPVOutput(apiKey, systemID)
	} else {
		logger.Info("PVOutput disabled, PVOUTPUT_APIKEY and PVOUTPUT_SYSTEMID must be set.")
	}
}

func (w *chargerstation) heartbeat(ctx context.Context) {
	logger.Info("Heartbeat started")
	ticker := time.NewTicker(time.Second * 30)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.led.Off()
			return
		case <-ticker.C:
			logger.Debug("Sending heartbeat")
			w.led.Flash()
		}
	}
}

func (w *chargerstation) routes(metrics bool) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", w.handler)
	mux.HandleFunc("/solar/current", w.milliHandler(func(s charger.Status) uint32 { return uint32(s.SolarMilliamps) }))
	mux.HandleFunc("/solar/voltage", w.milliHandler(func(s charger.Status) uint32 { return uint32(s.SolarMillivolts) }))
	mux.HandleFunc("/battery/voltage", w.milliHandler(func(s charger.Status) uint32 { return uint32(s.BatteryMillivolts) }))
	mux.HandleFunc("/solar/power", w.milliHandler(func(s charger.Status) uint32 { return s.SolarMilliwatts }))
	mux.HandleFunc("/solar/power/last", w.milliHandler(func(s charger.Status) uint32 { return s.LastMilliwatts }))
	if metrics {
		mux.Handle("/metrics", promhttp.Handler())
	}
	return mux
}

func (w *chargerstation) handler(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	wd := webdata{
		Status:   w.ctrl.Status(),
		TimeNow:  time.Now().Format(time.RFC822),
		EnergyWh: w.data.Summary(1).EnergyMilliwattHours / 1000,
		Version:  version,
	}

	js, err := json.Marshal(wd)
	if err != nil {
		logger.Errorf("JSON error [%v]", err)
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}

	logger.Debugf("Web read: \n[%v]", string(js))
	_, _ = rw.Write(js) // not much we can do if this fails
}

// milliHandler serves one milli unit value in whole units.
func (w *chargerstation) milliHandler(value func(charger.Status) uint32) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain")
		_, _ = rw.Write([]byte(sensors.Milli(value(w.ctrl.Status()))))
	}
}
