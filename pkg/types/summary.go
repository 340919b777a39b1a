package types

import "time"

// Summary is the reported view of one timer's histogram at a point in time.
type Summary struct {
	ID          string    `json:"id,omitempty" yaml:"id,omitempty"`
	Timer       string    `json:"timer" yaml:"timer"`
	Layout      string    `json:"layout" yaml:"layout"`
	Min         int64     `json:"min" yaml:"min"`
	Max         int64     `json:"max" yaml:"max"`
	BucketCount int       `json:"bucket_count" yaml:"bucket_count"`
	Total       uint64    `json:"total" yaml:"total"`
	Underflow   uint64    `json:"underflow" yaml:"underflow"`
	Overflow    uint64    `json:"overflow" yaml:"overflow"`
	Median      *float64  `json:"median,omitempty" yaml:"median,omitempty"`
	P90         *float64  `json:"p90,omitempty" yaml:"p90,omitempty"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
}

// MedianDuration returns the median as a duration, assuming nanosecond
// samples.
func (s Summary) MedianDuration() (time.Duration, bool) {
	return asDuration(s.Median)
}

func (s Summary) P90Duration() (time.Duration, bool) {
	return asDuration(s.P90)
}

func asDuration(v *float64) (time.Duration, bool) {
	if v == nil {
		return 0, false
	}
	return time.Duration(*v), true
}
