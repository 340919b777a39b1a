package calibration

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/saveenergy/openquantile/internal/histogram"
	qerrors "github.com/saveenergy/openquantile/pkg/errors"
)

// Settings fully describe a histogram to build for a timer.
type Settings struct {
	Layout      histogram.Layout
	Min         int64
	Max         int64
	BucketCount int
}

func (s Settings) NewHistogram() (*histogram.Histogram, error) {
	return histogram.New(s.Layout, s.Min, s.Max, s.BucketCount)
}

func (s Settings) String() string {
	return fmt.Sprintf("%s [%d, %d) x%d", s.Layout, s.Min, s.Max, s.BucketCount)
}

// Policy decides the histogram settings of each timer.
type Policy interface {
	// WarmupThreshold is the number of samples a timer buffers before
	// Calibrate is called. Zero calibrates on the first sample.
	WarmupThreshold() int
	// Calibrate returns the settings for timer. observed holds the warm-up
	// samples, or is nil when the threshold is zero.
	Calibrate(timer string, observed *WarmupBuffer) (Settings, error)
}

// FixedPolicy gives every timer the same settings.
type FixedPolicy struct {
	Settings Settings
}

func NewFixedPolicy(layout histogram.Layout, min, max int64, bucketCount int) *FixedPolicy {
	return &FixedPolicy{Settings: Settings{Layout: layout, Min: min, Max: max, BucketCount: bucketCount}}
}

func (p *FixedPolicy) WarmupThreshold() int { return 0 }

func (p *FixedPolicy) Calibrate(string, *WarmupBuffer) (Settings, error) {
	return p.Settings, nil
}

// DefaultSettings apply when no level of the timer hierarchy defines a key.
var DefaultSettings = Settings{
	Layout:      histogram.Linear,
	Min:         0,
	Max:         int64(time.Second),
	BucketCount: 10,
}

// PropertiesPolicy resolves min, max, nb and type for each timer by walking
// the timer hierarchy.
type PropertiesPolicy struct {
	props    Properties
	defaults Settings
}

func NewPropertiesPolicy(props Properties, defaults Settings) *PropertiesPolicy {
	return &PropertiesPolicy{props: props, defaults: defaults}
}

func (p *PropertiesPolicy) WarmupThreshold() int { return 0 }

func (p *PropertiesPolicy) Calibrate(timer string, _ *WarmupBuffer) (Settings, error) {
	s := p.defaults
	if v, ok := Lookup(p.props, timer, KeyBucketType); ok {
		layout, err := histogram.ParseLayout(v)
		if err != nil {
			return s, qerrors.InvalidConfig(fmt.Sprintf("timer %q", timer), err)
		}
		s.Layout = layout
	}
	if v, ok := Lookup(p.props, timer, KeyMin); ok {
		n, err := ParseValue(v)
		if err != nil {
			return s, qerrors.InvalidConfig(fmt.Sprintf("timer %q min", timer), err)
		}
		s.Min = n
	}
	if v, ok := Lookup(p.props, timer, KeyMax); ok {
		n, err := ParseValue(v)
		if err != nil {
			return s, qerrors.InvalidConfig(fmt.Sprintf("timer %q max", timer), err)
		}
		s.Max = n
	}
	if v, ok := Lookup(p.props, timer, KeyBuckets); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return s, qerrors.InvalidConfig(fmt.Sprintf("timer %q nb", timer), err)
		}
		s.BucketCount = n
	}
	return s, nil
}

// Observed bounds are widened by 1/marginDivisor on each side.
const marginDivisor = 10

// AutoPolicy buffers Threshold samples per timer and derives the bounds from
// the observed range, widened by 10% and aligned to Unit.
type AutoPolicy struct {
	Threshold   int
	BucketCount int
	Layout      histogram.Layout
	Unit        time.Duration
}

func NewAutoPolicy(threshold, bucketCount int, layout histogram.Layout) *AutoPolicy {
	return &AutoPolicy{
		Threshold:   threshold,
		BucketCount: bucketCount,
		Layout:      layout,
		Unit:        time.Millisecond,
	}
}

func (p *AutoPolicy) WarmupThreshold() int { return p.Threshold }

func (p *AutoPolicy) Calibrate(timer string, observed *WarmupBuffer) (Settings, error) {
	if observed == nil || observed.Len() == 0 {
		return Settings{}, qerrors.InvalidConfig(fmt.Sprintf("timer %q has no warm-up samples", timer), nil)
	}
	lo, hi := p.Bounds(observed.Min(), observed.Max())
	return Settings{Layout: p.Layout, Min: lo, Max: hi, BucketCount: p.BucketCount}, nil
}

// Bounds widens [min, max] and aligns it to the unit: lo is floored, hi is
// ceiled, and the result always spans at least one unit.
func (p *AutoPolicy) Bounds(min, max int64) (int64, int64) {
	unit := int64(p.Unit)
	if unit <= 0 {
		unit = 1
	}

	// 0.9*min and 1.1*max in integers: x -/+ ceil(x/10).
	var lo int64
	if min > 0 {
		lo = min - ceilDiv(min, marginDivisor)
	}
	lo = lo / unit * unit
	if p.Layout == histogram.Exponential && lo < unit {
		lo = unit
	}

	limit := math.MaxInt64/unit*unit - unit
	var hi int64
	if max > 0 {
		step := ceilDiv(max, marginDivisor)
		if max > limit-step {
			hi = limit
		} else {
			hi = ceilDiv(max+step, unit) * unit
		}
	}
	if hi < lo+unit {
		hi = lo + unit
	}
	if n := int64(p.BucketCount); hi-lo < n {
		hi = lo + n
	}
	return lo, hi
}

// ceilDiv is ceil(a/b) for a >= 0, b > 0.
func ceilDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 {
		q++
	}
	return q
}
