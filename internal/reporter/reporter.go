// Package reporter periodically turns live histograms into summaries.
package reporter

import (
	"context"
	"sync"
	"time"

	"github.com/saveenergy/openquantile/internal/histogram"
	"github.com/saveenergy/openquantile/internal/logging"
	"github.com/saveenergy/openquantile/pkg/types"
)

// Source is the subset of the orchestrator the reporter reads from.
type Source interface {
	Timers() []string
	Histogram(timer string) (*histogram.Histogram, bool)
}

// Sink stores summaries. The archive store implements it.
type Sink interface {
	Save(types.Summary) (string, error)
}

type Reporter struct {
	source   Source
	sink     Sink
	interval time.Duration
	logger   *logging.Logger
	now      func() time.Time

	stopCh    chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// New returns a reporter. sink may be nil, in which case summaries are only
// logged.
func New(source Source, sink Sink, interval time.Duration) *Reporter {
	return &Reporter{
		source:   source,
		sink:     sink,
		interval: interval,
		logger:   logging.NewLogger("reporter"),
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

func (r *Reporter) SetLogger(logger *logging.Logger) {
	if logger != nil {
		r.logger = logger
	}
}

func (r *Reporter) Start() {
	r.startOnce.Do(func() {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.loop(r.stopCh)
		}()
	})
}

// Stop ends the loop started by Start and waits for it.
func (r *Reporter) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	r.wg.Wait()
}

// Run reports every interval until ctx is done, then reports a final time.
func (r *Reporter) Run(ctx context.Context) error {
	r.loop(ctx.Done())
	return nil
}

func (r *Reporter) loop(done <-chan struct{}) {
	interval := r.interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			r.ReportOnce()
			return
		case <-ticker.C:
			r.ReportOnce()
		}
	}
}

// ReportOnce summarizes every live timer and returns the summaries in timer
// order. Sink failures are logged and do not stop the pass.
func (r *Reporter) ReportOnce() []types.Summary {
	at := r.now()
	var out []types.Summary
	for _, timer := range r.source.Timers() {
		h, ok := r.source.Histogram(timer)
		if !ok {
			continue
		}
		sum := Summarize(timer, h, at)
		r.logger.Info("summary",
			logging.F("timer", sum.Timer),
			logging.F("total", sum.Total),
			logging.F("median", sum.Median),
			logging.F("p90", sum.P90),
			logging.F("underflow", sum.Underflow),
			logging.F("overflow", sum.Overflow))
		if r.sink != nil {
			id, err := r.sink.Save(sum)
			if err != nil {
				r.logger.Warn("summary not archived",
					logging.F("timer", timer),
					logging.F("error", err))
			} else {
				sum.ID = id
			}
		}
		out = append(out, sum)
	}
	return out
}

// Summarize builds the summary of h at the given time.
func Summarize(timer string, h *histogram.Histogram, at time.Time) types.Summary {
	s := h.Sample()
	return types.Summary{
		Timer:       timer,
		Layout:      s.Layout,
		Min:         h.Min(),
		Max:         h.Max(),
		BucketCount: h.BucketCount(),
		Total:       s.Total,
		Underflow:   s.Underflow(),
		Overflow:    s.Overflow(),
		Median:      s.Median,
		P90:         s.P90,
		CreatedAt:   at,
	}
}
