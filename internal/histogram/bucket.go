package histogram

import "math"

const (
	// MinSentinel is the lower bound of the underflow bucket.
	MinSentinel int64 = math.MinInt64
	// MaxSentinel is the upper bound of the overflow bucket. The overflow
	// bucket also accepts MaxSentinel itself.
	MaxSentinel int64 = math.MaxInt64
)

// Bucket counts values in [Min, Max).
type Bucket struct {
	Min   int64
	Max   int64
	Count uint64
}

func (b *Bucket) Contains(value int64) bool {
	if value < b.Min {
		return false
	}
	return value < b.Max || b.Max == MaxSentinel
}

// AddValue increments the count when value falls in the bucket and reports
// whether it did.
func (b *Bucket) AddValue(value int64) bool {
	if !b.Contains(value) {
		return false
	}
	b.Count++
	return true
}

func (b *Bucket) Increment() {
	b.Count++
}

func (b *Bucket) Clear() {
	b.Count = 0
}

func (b *Bucket) width() float64 {
	return float64(b.Max) - float64(b.Min)
}

// BucketSample is an immutable copy of a bucket.
type BucketSample struct {
	Min   int64  `json:"min"`
	Max   int64  `json:"max"`
	Count uint64 `json:"count"`
}

func (b *Bucket) sample() BucketSample {
	return BucketSample{Min: b.Min, Max: b.Max, Count: b.Count}
}
