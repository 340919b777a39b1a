package ingest

import (
	"time"

	"github.com/saveenergy/openquantile/internal/calibration"
	"github.com/saveenergy/openquantile/internal/histogram"
	"github.com/saveenergy/openquantile/internal/reporter"
	"github.com/saveenergy/openquantile/pkg/types"
)

const schemaVersion = "1.0"

// Report is the final output of an ingest run.
type Report struct {
	SchemaVersion string        `json:"schema_version"`
	Inputs        int           `json:"inputs"`
	Lines         int           `json:"lines"`
	Samples       int           `json:"samples"`
	Skipped       int           `json:"skipped"`
	DurationMs    int64         `json:"duration_ms"`
	Timers        []TimerResult `json:"timers"`
}

type TimerResult struct {
	Timer     string                   `json:"timer"`
	State     string                   `json:"state"`
	Dropped   uint64                   `json:"dropped,omitempty"`
	Summary   *types.Summary           `json:"summary,omitempty"`
	Quartiles []QuantileResult         `json:"quartiles,omitempty"`
	Buckets   []histogram.BucketSample `json:"buckets,omitempty"`
}

type QuantileResult struct {
	Ratio float64  `json:"ratio"`
	Value *float64 `json:"value,omitempty"`
	Error string   `json:"error,omitempty"`
}

type feedStats struct {
	lines   int
	samples int
	skipped int
}

func (s *feedStats) add(o feedStats) {
	s.lines += o.lines
	s.samples += o.samples
	s.skipped += o.skipped
}

func buildReport(o *calibration.Orchestrator, stats feedStats, inputs int, elapsed time.Duration, withBuckets bool) *Report {
	r := &Report{
		SchemaVersion: schemaVersion,
		Inputs:        inputs,
		Lines:         stats.lines,
		Samples:       stats.samples,
		Skipped:       stats.skipped,
		DurationMs:    elapsed.Milliseconds(),
	}
	now := time.Now()
	for _, timer := range o.Timers() {
		res := TimerResult{
			Timer:   timer,
			State:   o.State(timer).String(),
			Dropped: o.Dropped(timer),
		}
		if h, ok := o.Histogram(timer); ok {
			sum := reporter.Summarize(timer, h, now)
			res.Summary = &sum
			for _, q := range h.Quartiles() {
				qr := QuantileResult{Ratio: q.Ratio}
				if q.OK() {
					v := q.Value
					qr.Value = &v
				} else {
					qr.Error = q.Err.Error()
				}
				res.Quartiles = append(res.Quartiles, qr)
			}
			if withBuckets {
				res.Buckets = h.Buckets()
			}
		}
		r.Timers = append(r.Timers, res)
	}
	return r
}
