package hal

import (
	"math"
	"sync"

	logger "github.com/sirupsen/logrus"
)

/*
 * Sim is a solar panel feeding a battery through an ideal step-down
 * converter. The panel follows I = Isc * (1 - exp((V - Voc) / Vt)) and the
 * converter holds the panel at Vbat / duty, so power peaks somewhere inside
 * the duty range like on the real hardware.
 */

type SimOpts struct {
	OpenCircuitMillivolts  float64
	ShortCircuitMilliamps  float64
	ThermalMillivolts      float64
	BatteryMillivolts      float64
	ADCMax                 uint16
	VoltsFullScaleMillis   float64
	AmpsFullScaleMilliamps float64
	Ticks                  uint16
}

type Sim struct {
	opts       SimOpts
	lock       sync.Mutex
	irradiance float64
	battery    float64
	duty       uint16
	enabled    bool
	acquired   map[Channel]bool
	acquires   int
	overlaps   int
}

var _ Board = (*Sim)(nil)

func NewSim(opts SimOpts) *Sim {
	return &Sim{
		opts:       opts,
		irradiance: 1,
		battery:    opts.BatteryMillivolts,
		acquired:   make(map[Channel]bool),
	}
}

// SetIrradiance scales the panel current, 1 is full sun.
func (s *Sim) SetIrradiance(v float64) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.irradiance = math.Max(0, v)
}

func (s *Sim) SetBatteryMillivolts(mv float64) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.battery = mv
}

// Operating returns the panel voltage and current at the present duty.
func (s *Sim) Operating() (mV, mA float64) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.operatingAt(s.duty, s.enabled)
}

// PowerAt is the panel power in mW the converter would draw at duty.
func (s *Sim) PowerAt(duty uint16) float64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	v, i := s.operatingAt(duty, true)
	return v * i / 1000
}

func (s *Sim) operatingAt(duty uint16, enabled bool) (float64, float64) {
	voc := s.opts.OpenCircuitMillivolts
	if !enabled || duty == 0 || s.opts.Ticks == 0 {
		return voc, 0
	}
	v := math.Min(voc, s.battery*float64(s.opts.Ticks)/float64(duty))
	i := s.irradiance * s.opts.ShortCircuitMilliamps * (1 - math.Exp((v-voc)/s.opts.ThermalMillivolts))
	return v, math.Max(0, i)
}

func (s *Sim) Acquire(ch Channel) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if len(s.acquired) > 0 {
		s.overlaps++
	}
	s.acquired[ch] = true
	s.acquires++
}

func (s *Sim) Read(ch Channel) uint16 {
	s.lock.Lock()
	defer s.lock.Unlock()
	if !s.acquired[ch] {
		logger.Errorf("Read of %v without acquiring the converter", ch)
		return 0
	}
	v, i := s.operatingAt(s.duty, s.enabled)
	switch ch {
	case SolarAmps:
		return s.counts(i, s.opts.AmpsFullScaleMilliamps)
	case SolarVolts:
		return s.counts(v, s.opts.VoltsFullScaleMillis)
	case BatteryVolts:
		return s.counts(s.battery, s.opts.VoltsFullScaleMillis)
	}
	return 0
}

func (s *Sim) counts(value, fullScale float64) uint16 {
	if fullScale <= 0 {
		return 0
	}
	c := value * float64(s.opts.ADCMax) / fullScale
	return uint16(math.Max(0, math.Min(c, float64(s.opts.ADCMax))))
}

func (s *Sim) Release(ch Channel) {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.acquired, ch)
}

// Acquires reports how often the converter was acquired and how often an
// acquire happened while another channel still held it.
func (s *Sim) Acquires() (total, overlapping int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.acquires, s.overlaps
}

func (s *Sim) Ticks() uint16 {
	return s.opts.Ticks
}

func (s *Sim) SetDuty(ticks uint16) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.duty = ticks
}

func (s *Sim) Duty() uint16 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.duty
}

func (s *Sim) Enable(on bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.enabled = on
}

func (s *Sim) Enabled() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.enabled
}

func (s *Sim) Close() error {
	s.Enable(false)
	return nil
}
