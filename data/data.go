package data

import (
	"sync"
	"time"

	"github.com/gr-butler/ppt/buffer"
	"github.com/gr-butler/ppt/charger"
)

// holder for the charger readings between two reports

type Name string

const (
	SolarMilliamps    Name = "solar_mA"
	SolarMillivolts   Name = "solar_mV"
	BatteryMillivolts Name = "battery_mV"
	SolarMilliwatts   Name = "solar_mW"
	Duty              Name = "duty"
)

var Names = []Name{SolarMilliamps, SolarMillivolts, BatteryMillivolts, SolarMilliwatts, Duty}

type ChargerData struct {
	buffers map[Name]*buffer.SampleBuffer

	lock      sync.Mutex
	energy    float64 // mWh since midnight
	lastAt    time.Time
	lastState charger.State
}

// CreateChargerData keeps size readings per value.
func CreateChargerData(size int) *ChargerData {
	cd := ChargerData{
		buffers: make(map[Name]*buffer.SampleBuffer),
	}
	for _, n := range Names {
		cd.AddBuffer(n, buffer.NewBuffer(size))
	}
	return &cd
}

func (cd *ChargerData) AddBuffer(name Name, b *buffer.SampleBuffer) {
	cd.buffers[name] = b
}

func (cd *ChargerData) GetBuffer(name Name) *buffer.SampleBuffer {
	return cd.buffers[name]
}

// Record adds one status snapshot and integrates the solar power since the
// previous one into the day's energy.
func (cd *ChargerData) Record(s charger.Status) {
	cd.buffers[SolarMilliamps].AddItem(float64(s.SolarMilliamps))
	cd.buffers[SolarMillivolts].AddItem(float64(s.SolarMillivolts))
	cd.buffers[BatteryMillivolts].AddItem(float64(s.BatteryMillivolts))
	cd.buffers[SolarMilliwatts].AddItem(float64(s.SolarMilliwatts))
	cd.buffers[Duty].AddItem(float64(s.Duty))

	cd.lock.Lock()
	defer cd.lock.Unlock()
	if !sameDay(s.At, cd.lastAt) {
		cd.energy = 0
	} else if s.At.After(cd.lastAt) {
		cd.energy += float64(s.SolarMilliwatts) * s.At.Sub(cd.lastAt).Hours()
	}
	cd.lastAt = s.At
	cd.lastState = s.State
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// SeedEnergy restores the day's energy after a restart. Readings from an
// earlier day are ignored.
func (cd *ChargerData) SeedEnergy(at, now time.Time, milliwattHours float64) {
	cd.lock.Lock()
	defer cd.lock.Unlock()
	if !sameDay(at, now) {
		return
	}
	cd.energy = milliwattHours
	cd.lastAt = now
}

// Summary is the averaged view of the last readings.
type Summary struct {
	SolarMilliamps       float64
	SolarMillivolts      float64
	BatteryMillivolts    float64
	SolarMilliwatts      float64
	PeakMilliwatts       float64
	Duty                 float64
	State                charger.State
	EnergyMilliwattHours float64
}

// Summary averages the last items readings of every value.
func (cd *ChargerData) Summary(items int) Summary {
	s := Summary{
		SolarMilliamps:    float64(cd.buffers[SolarMilliamps].AverageLast(items)),
		SolarMillivolts:   float64(cd.buffers[SolarMillivolts].AverageLast(items)),
		BatteryMillivolts: float64(cd.buffers[BatteryMillivolts].AverageLast(items)),
		Duty:              float64(cd.buffers[Duty].AverageLast(items)),
	}
	avg, _, peak := cd.buffers[SolarMilliwatts].AverageMinMaxLast(items)
	s.SolarMilliwatts = float64(avg)
	s.PeakMilliwatts = float64(peak)

	cd.lock.Lock()
	defer cd.lock.Unlock()
	s.State = cd.lastState
	s.EnergyMilliwattHours = cd.energy
	return s
}
