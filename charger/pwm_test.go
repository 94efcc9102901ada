package charger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBoard struct {
	ticks   uint16
	duties  []uint16
	enabled bool
	enables []bool
}

func (b *fakeBoard) Ticks() uint16 { return b.ticks }

func (b *fakeBoard) SetDuty(ticks uint16) { b.duties = append(b.duties, ticks) }

func (b *fakeBoard) Enable(on bool) {
	b.enabled = on
	b.enables = append(b.enables, on)
}

func (b *fakeBoard) duty() uint16 {
	if len(b.duties) == 0 {
		return 0
	}
	return b.duties[len(b.duties)-1]
}

func TestNewRange(t *testing.T) {
	r := NewRange(1000, 60, 90)
	assert.Equal(t, Range{Max: 999, Min: 600, Start: 900}, r)

	// widened arithmetic near the top of the 16 bit range
	r = NewRange(65535, 60, 90)
	assert.Equal(t, uint16(65534), r.Max)
	assert.Equal(t, uint16(39321), r.Min)
	assert.Equal(t, uint16(58981), r.Start)

	// the top tick stays reserved whatever the percentages
	r = NewRange(1000, 100, 100)
	assert.Equal(t, Range{Max: 999, Min: 999, Start: 999}, r)

	r = NewRange(1000, 60, 120)
	assert.Equal(t, Range{Max: 999, Min: 600, Start: 999}, r)
}

func TestDutyCycle_NeverAboveMax(t *testing.T) {
	b := &fakeBoard{ticks: 1000}
	d := NewDutyCycle(b, 100, 100)
	assert.Equal(t, uint16(999), d.Current())

	d.Set(0)
	assert.Equal(t, uint16(999), d.Current())
	d.Raise(10)
	assert.Equal(t, uint16(999), d.Current())
	d.Lower(500)
	assert.Equal(t, uint16(999), d.Current())
	for _, v := range b.duties {
		assert.LessOrEqual(t, v, uint16(999))
	}
}

func TestDutyCycle_StartsAtStart(t *testing.T) {
	b := &fakeBoard{ticks: 1000}
	d := NewDutyCycle(b, 60, 90)
	assert.Equal(t, uint16(900), d.Current())
	assert.Equal(t, []uint16{900}, b.duties)
}

func TestDutyCycle_Clamp(t *testing.T) {
	b := &fakeBoard{ticks: 1000}
	d := NewDutyCycle(b, 60, 90)

	for _, v := range []uint16{1000, 1001, 5000, 0xffff} {
		d.Set(v)
		require.Equal(t, uint16(999), d.Current())
		require.Equal(t, uint16(999), b.duty())
	}
	for _, v := range []uint16{0, 1, 599} {
		d.Set(v)
		require.Equal(t, uint16(600), d.Current())
		require.Equal(t, uint16(600), b.duty())
	}
	d.Set(750)
	assert.Equal(t, uint16(750), d.Current())
	assert.False(t, d.AtMax())
}

func TestDutyCycle_RaiseLower(t *testing.T) {
	b := &fakeBoard{ticks: 1000}
	d := NewDutyCycle(b, 60, 90)

	d.Raise(5)
	assert.Equal(t, uint16(905), d.Current())
	d.Lower(10)
	assert.Equal(t, uint16(895), d.Current())

	d.Raise(200)
	assert.Equal(t, uint16(999), d.Current())
	assert.True(t, d.AtMax())
	d.Raise(0xffff)
	assert.Equal(t, uint16(999), d.Current())

	d.Lower(500)
	assert.Equal(t, uint16(600), d.Current())
	d.Lower(0xffff)
	assert.Equal(t, uint16(600), d.Current())
}
