package histogram

import (
	"fmt"
	"math"
	"strings"
)

// Layout selects how interior buckets split [min, max) and how a quantile is
// interpolated inside the bucket that holds it.
type Layout int

const (
	Linear Layout = iota
	Exponential
)

func (l Layout) String() string {
	switch l {
	case Linear:
		return "LINEAR"
	case Exponential:
		return "EXPONENTIAL"
	default:
		return fmt.Sprintf("Layout(%d)", int(l))
	}
}

func ParseLayout(s string) (Layout, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LINEAR", "":
		return Linear, nil
	case "EXPONENTIAL", "EXP":
		return Exponential, nil
	default:
		return Linear, fmt.Errorf("unknown bucket type %q: must be LINEAR or EXPONENTIAL", s)
	}
}

// boundaries returns bucketCount+1 strictly increasing values, the first
// being min and the last max. Callers guarantee max-min >= bucketCount.
func (l Layout) boundaries(min, max int64, bucketCount int) []int64 {
	bounds := make([]int64, bucketCount+1)
	bounds[0] = min
	bounds[bucketCount] = max
	span := uint64(max) - uint64(min)

	switch l {
	case Exponential:
		power := (math.Log(float64(max)) - math.Log(float64(min))) / float64(bucketCount)
		for i := 1; i < bucketCount; i++ {
			b := int64(math.Round(float64(min) * math.Exp(power*float64(i))))
			if b <= bounds[i-1] {
				b = bounds[i-1] + 1
			}
			// leave room for the remaining buckets to stay non-empty
			if limit := max - int64(bucketCount-i); b > limit {
				b = limit
			}
			bounds[i] = b
		}
	default:
		width := span / uint64(bucketCount)
		for i := 1; i < bucketCount; i++ {
			bounds[i] = int64(uint64(min) + uint64(i)*width)
		}
	}
	return bounds
}

// guess computes the interior bucket index for a value already known to be
// in [min, max). The result may be off by a few slots and is corrected by
// the caller.
func (h *Histogram) guess(value int64) int {
	n := h.bucketCount
	var idx int
	switch h.layout {
	case Exponential:
		idx = int((math.Log(float64(value))-h.logMin)/h.power) + 1
	default:
		offset := float64(uint64(value) - uint64(h.min))
		idx = 1 + int(offset*float64(n-1)/h.span)
	}
	if idx < 1 {
		idx = 1
	}
	if idx > n {
		idx = n
	}
	return idx
}

// interpolate estimates the value of the expected-th sample given that
// before samples precede bucket b.
func (l Layout) interpolate(b *Bucket, expected, before float64) float64 {
	fraction := (expected - before) / float64(b.Count)
	switch l {
	case Exponential:
		lo := float64(b.Min)
		return lo * math.Pow(float64(b.Max)/lo, fraction)
	default:
		return float64(b.Min) + fraction*b.width()
	}
}
