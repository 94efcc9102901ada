package sensors

import (
	"time"

	"github.com/gr-butler/ppt/env"
	"github.com/gr-butler/ppt/hal"
)

// Sleeper waits between two conversions. clockwork.Clock satisfies it.
type Sleeper interface {
	Sleep(d time.Duration)
}

// Sampler reads one channel several times and returns the mean, the analog
// lines into the converter are noisy.
type Sampler struct {
	adc     hal.ADC
	sleeper Sleeper
	samples int
	delay   time.Duration
}

func NewSampler(adc hal.ADC, sleeper Sleeper) *Sampler {
	return &Sampler{
		adc:     adc,
		sleeper: sleeper,
		samples: env.AverageSamples,
		delay:   env.SampleDelay,
	}
}

// Sample returns the truncated mean of the raw reads on ch. The converter
// is released again before returning.
func (s *Sampler) Sample(ch hal.Channel) uint16 {
	s.adc.Acquire(ch)
	defer s.adc.Release(ch)

	var sum uint32
	for i := 0; i < s.samples; i++ {
		sum += uint32(s.adc.Read(ch))
		s.sleeper.Sleep(s.delay)
	}
	return uint16(sum / uint32(s.samples))
}
