package buffer

import (
	"math"
	"sync"
)

type Average float64
type Minimum float64
type Maximum float64

// SampleBuffer is a fixed size ring of readings. The first reading fills
// the whole ring so averages are sane straight after start up.
type SampleBuffer struct {
	position int
	size     int
	data     []float64
	lock     sync.Mutex
	first    bool
}

func NewBuffer(size int) *SampleBuffer {
	if size < 1 {
		size = 1
	}
	return &SampleBuffer{
		first: true,
		size:  size,
		data:  make([]float64, size),
	}
}

func (b *SampleBuffer) AddItem(val float64) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.first {
		for i := range b.data {
			b.data[i] = val
		}
		b.first = false
	}
	b.data[b.position] = val
	b.position++
	if b.position == b.size {
		b.position = 0
	}
}

// GetAverageMinMax covers the whole ring.
func (b *SampleBuffer) GetAverageMinMax() (Average, Minimum, Maximum) {
	return b.AverageMinMaxLast(b.size)
}

// AverageMinMaxLast covers the most recent numberOfItems readings, capped
// at the ring size.
func (b *SampleBuffer) AverageMinMaxLast(numberOfItems int) (Average, Minimum, Maximum) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if numberOfItems > b.size {
		numberOfItems = b.size
	}
	if numberOfItems < 1 {
		return 0, 0, 0
	}
	index := b.position - numberOfItems
	if index < 0 {
		// reverse wrap
		index += b.size
	}
	min := math.MaxFloat64
	max := -math.MaxFloat64
	sum := 0.0
	for i := 0; i < numberOfItems; i++ {
		x := b.data[index]
		sum += x
		min = math.Min(min, x)
		max = math.Max(max, x)
		index++
		if index == b.size {
			index = 0
		}
	}
	return Average(sum / float64(numberOfItems)), Minimum(min), Maximum(max)
}

func (b *SampleBuffer) AverageLast(numberOfItems int) Average {
	a, _, _ := b.AverageMinMaxLast(numberOfItems)
	return a
}

func (b *SampleBuffer) GetLast() float64 {
	b.lock.Lock()
	defer b.lock.Unlock()
	index := b.position - 1
	if index < 0 {
		index += b.size
	}
	return b.data[index]
}

func (b *SampleBuffer) GetSize() int {
	return b.size
}
