// Package histogram implements a fixed-bounds bucket histogram that estimates
// quantiles of int64 samples without keeping the samples themselves.
//
// Buckets are laid out as (-inf, min) [min, max) [max, +inf): the first and
// last buckets absorb out-of-range values so recording never fails.
package histogram

import (
	"fmt"
	"math"
	"sync"

	qerrors "github.com/saveenergy/openquantile/pkg/errors"
)

const (
	// MinBucketCount is the smallest number of interior buckets accepted.
	MinBucketCount = 3
	// minPopulated is the number of non-empty buckets needed to interpolate.
	minPopulated = 3
)

// Histogram is safe for concurrent use. A single mutex guards the bucket
// array, so Sample is a true point-in-time view.
type Histogram struct {
	mu          sync.Mutex
	layout      Layout
	min         int64
	max         int64
	bucketCount int
	buckets     []Bucket

	span   float64
	logMin float64
	power  float64
}

// New builds a histogram with bucketCount interior buckets spanning
// [min, max). Exponential layouts require min > 0.
func New(layout Layout, min, max int64, bucketCount int) (*Histogram, error) {
	if bucketCount < MinBucketCount {
		return nil, qerrors.InvalidConfig(fmt.Sprintf("bucket count %d must be >= %d", bucketCount, MinBucketCount), nil)
	}
	if min >= max {
		return nil, qerrors.InvalidConfig(fmt.Sprintf("min %d must be < max %d", min, max), nil)
	}
	if max == MaxSentinel {
		return nil, qerrors.InvalidConfig("max must be below the overflow sentinel", nil)
	}
	span := uint64(max) - uint64(min)
	if span < uint64(bucketCount) {
		return nil, qerrors.InvalidConfig(fmt.Sprintf("range [%d, %d) is too narrow for %d buckets", min, max, bucketCount), nil)
	}
	switch layout {
	case Linear:
	case Exponential:
		if min <= 0 {
			return nil, qerrors.InvalidConfig(fmt.Sprintf("exponential layout needs min > 0, got %d", min), nil)
		}
	default:
		return nil, qerrors.InvalidConfig(fmt.Sprintf("unknown layout %v", layout), nil)
	}

	h := &Histogram{
		layout:      layout,
		min:         min,
		max:         max,
		bucketCount: bucketCount,
		buckets:     make([]Bucket, bucketCount+2),
		span:        float64(span),
	}
	if layout == Exponential {
		h.logMin = math.Log(float64(min))
		h.power = (math.Log(float64(max)) - h.logMin) / float64(bucketCount)
	}

	bounds := layout.boundaries(min, max, bucketCount)
	h.buckets[0] = Bucket{Min: MinSentinel, Max: min}
	for i := 1; i <= bucketCount; i++ {
		h.buckets[i] = Bucket{Min: bounds[i-1], Max: bounds[i]}
	}
	h.buckets[bucketCount+1] = Bucket{Min: max, Max: MaxSentinel}
	return h, nil
}

func NewLinear(min, max int64, bucketCount int) (*Histogram, error) {
	return New(Linear, min, max, bucketCount)
}

func NewExponential(min, max int64, bucketCount int) (*Histogram, error) {
	return New(Exponential, min, max, bucketCount)
}

func (h *Histogram) Layout() Layout   { return h.layout }
func (h *Histogram) Min() int64       { return h.min }
func (h *Histogram) Max() int64       { return h.max }
func (h *Histogram) BucketCount() int { return h.bucketCount }

// locate returns the index of the bucket holding value.
func (h *Histogram) locate(value int64) int {
	if value < h.min {
		return 0
	}
	if value >= h.max {
		return h.bucketCount + 1
	}
	idx := h.guess(value)
	for idx < h.bucketCount && value >= h.buckets[idx].Max {
		idx++
	}
	for idx > 1 && value < h.buckets[idx].Min {
		idx--
	}
	return idx
}

// scan is the generic lookup: the first bucket whose range accepts value.
func (h *Histogram) scan(value int64) int {
	for i := range h.buckets {
		if h.buckets[i].Contains(value) {
			return i
		}
	}
	return len(h.buckets) - 1
}

func (h *Histogram) AddValue(value int64) {
	h.mu.Lock()
	h.buckets[h.locate(value)].Increment()
	h.mu.Unlock()
}

// AddValues records all values as one batch; readers see either none or all
// of them.
func (h *Histogram) AddValues(values ...int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, v := range values {
		h.buckets[h.locate(v)].Increment()
	}
}

func (h *Histogram) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.buckets {
		h.buckets[i].Clear()
	}
}

// Count returns the number of recorded values, sentinels included.
func (h *Histogram) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total()
}

// Buckets returns a copy of every bucket, sentinels included.
func (h *Histogram) Buckets() []BucketSample {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.samples()
}

func (h *Histogram) total() uint64 {
	var total uint64
	for i := range h.buckets {
		total += h.buckets[i].Count
	}
	return total
}

func (h *Histogram) samples() []BucketSample {
	out := make([]BucketSample, len(h.buckets))
	for i := range h.buckets {
		out[i] = h.buckets[i].sample()
	}
	return out
}

func checkRatio(ratio float64) error {
	if !(ratio > 0 && ratio < 1) {
		return qerrors.InvalidArgument(fmt.Sprintf("quantile ratio %v must be in (0, 1)", ratio))
	}
	return nil
}

// Quantile estimates the value below which ratio of the samples fall.
func (h *Histogram) Quantile(ratio float64) (float64, error) {
	if err := checkRatio(ratio); err != nil {
		return 0, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.quantile(ratio, h.total())
}

func (h *Histogram) quantile(ratio float64, total uint64) (float64, error) {
	populated := 0
	for i := range h.buckets {
		if h.buckets[i].Count > 0 {
			populated++
		}
	}
	if populated < minPopulated {
		return 0, qerrors.InsufficientData(populated, minPopulated)
	}

	expected := ratio * float64(total)
	var before float64
	for i := range h.buckets {
		b := &h.buckets[i]
		after := before + float64(b.Count)
		// A quantile on a bucket's upper edge belongs to the next populated
		// bucket.
		if expected < after {
			switch i {
			case 0:
				return 0, qerrors.OutOfRange(ratio, fmt.Sprintf("lower min below %d", h.min))
			case h.bucketCount + 1:
				return 0, qerrors.OutOfRange(ratio, fmt.Sprintf("raise max above %d", h.max))
			}
			return h.layout.interpolate(b, expected, before), nil
		}
		before = after
	}
	// Only reachable through float rounding on the last populated bucket.
	return 0, qerrors.OutOfRange(ratio, fmt.Sprintf("raise max above %d", h.max))
}

// Quantile is one result of Quantiles. Err is set when the estimate is not
// available; Value is meaningless in that case.
type Quantile struct {
	Ratio float64
	Value float64
	Err   error
}

func (q Quantile) OK() bool { return q.Err == nil }

// Quantiles estimates several ratios against one consistent state. A ratio
// that cannot be estimated does not stop the others; only a ratio outside
// (0, 1) fails the whole call.
func (h *Histogram) Quantiles(ratios ...float64) ([]Quantile, error) {
	for _, r := range ratios {
		if err := checkRatio(r); err != nil {
			return nil, err
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.quantiles(ratios), nil
}

func (h *Histogram) quantiles(ratios []float64) []Quantile {
	total := h.total()
	out := make([]Quantile, len(ratios))
	for i, r := range ratios {
		v, err := h.quantile(r, total)
		out[i] = Quantile{Ratio: r, Value: v, Err: err}
	}
	return out
}

func (h *Histogram) Median() (float64, error) {
	return h.Quantile(0.5)
}

func (h *Histogram) Quartiles() []Quantile {
	q, _ := h.Quantiles(0.25, 0.5, 0.75)
	return q
}

// Sample captures buckets, total, median and p90 under one lock.
func (h *Histogram) Sample() *BucketsSample {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := &BucketsSample{
		Layout:  h.layout.String(),
		Buckets: h.samples(),
		Total:   h.total(),
	}
	q := h.quantiles([]float64{0.5, 0.9})
	s.Median = q[0].value()
	s.P90 = q[1].value()
	return s
}

func (q Quantile) value() *float64 {
	if q.Err != nil {
		return nil
	}
	v := q.Value
	return &v
}
