package histogram

import (
	"fmt"
	"strings"
)

// BucketsSample is a detached snapshot of a histogram. It shares nothing
// with the live histogram and may be read without locking.
type BucketsSample struct {
	Layout  string         `json:"layout"`
	Buckets []BucketSample `json:"buckets"`
	Total   uint64         `json:"total"`
	Median  *float64       `json:"median,omitempty"`
	P90     *float64       `json:"p90,omitempty"`
}

// Interior returns the buckets between the two sentinels.
func (s *BucketsSample) Interior() []BucketSample {
	if len(s.Buckets) < 2 {
		return nil
	}
	return s.Buckets[1 : len(s.Buckets)-1]
}

func (s *BucketsSample) Underflow() uint64 {
	if len(s.Buckets) == 0 {
		return 0
	}
	return s.Buckets[0].Count
}

func (s *BucketsSample) Overflow() uint64 {
	if len(s.Buckets) == 0 {
		return 0
	}
	return s.Buckets[len(s.Buckets)-1].Count
}

func (s *BucketsSample) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s total=%d median=%s p90=%s", s.Layout, s.Total, formatEstimate(s.Median), formatEstimate(s.P90))
	if n := s.Underflow(); n > 0 {
		fmt.Fprintf(&b, " <min:%d", n)
	}
	for _, bucket := range s.Interior() {
		fmt.Fprintf(&b, " [%d,%d):%d", bucket.Min, bucket.Max, bucket.Count)
	}
	if n := s.Overflow(); n > 0 {
		fmt.Fprintf(&b, " >=max:%d", n)
	}
	return b.String()
}

func formatEstimate(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.0f", *v)
}
