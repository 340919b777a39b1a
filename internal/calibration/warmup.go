package calibration

import "math"

// WarmupBuffer holds the raw samples of a timer until its histogram bounds
// can be inferred. It is not safe for concurrent use; the orchestrator guards
// it with the timer's mutex.
type WarmupBuffer struct {
	values []int64
	min    int64
	max    int64
}

func NewWarmupBuffer(capacity int) *WarmupBuffer {
	if capacity < 0 {
		capacity = 0
	}
	return &WarmupBuffer{
		values: make([]int64, 0, capacity),
		min:    math.MaxInt64,
		max:    math.MinInt64,
	}
}

func (b *WarmupBuffer) Add(value int64) {
	b.values = append(b.values, value)
	if value < b.min {
		b.min = value
	}
	if value > b.max {
		b.max = value
	}
}

func (b *WarmupBuffer) Len() int {
	return len(b.values)
}

// Min and Max are only meaningful when Len() > 0.
func (b *WarmupBuffer) Min() int64 { return b.min }
func (b *WarmupBuffer) Max() int64 { return b.max }

// Drain hands the buffered values to the caller and empties the buffer.
func (b *WarmupBuffer) Drain() []int64 {
	values := b.values
	b.values = nil
	b.min = math.MaxInt64
	b.max = math.MinInt64
	return values
}

func (b *WarmupBuffer) Reset() {
	b.values = b.values[:0]
	b.min = math.MaxInt64
	b.max = math.MinInt64
}
