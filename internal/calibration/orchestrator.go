// Package calibration decides histogram bounds for each timer and owns the
// per-timer lifecycle from first sample to live histogram.
package calibration

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/saveenergy/openquantile/internal/histogram"
	"github.com/saveenergy/openquantile/internal/logging"
	qerrors "github.com/saveenergy/openquantile/pkg/errors"
)

type State int

const (
	StateUnseen State = iota
	StateWarmingUp
	StateLive
	// StateFailed means the histogram could not be built from fixed
	// settings. Samples for the timer are counted as dropped.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnseen:
		return "unseen"
	case StateWarmingUp:
		return "warming-up"
	case StateLive:
		return "live"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SampleLogger receives periodic snapshots of live timers.
type SampleLogger interface {
	LogSample(timer string, sample *histogram.BucketsSample)
}

type timerState struct {
	mu      sync.Mutex
	buffer  *WarmupBuffer
	failed  bool
	dropped uint64
	live    atomic.Pointer[histogram.Histogram]
	logs    *rate.Limiter
}

// Orchestrator routes duration samples to per-timer state. All methods are
// safe for concurrent use; SetSampleLogger and SetLogger must be called
// before the first sample.
type Orchestrator struct {
	policy      Policy
	logger      *logging.Logger
	sink        SampleLogger
	logInterval time.Duration

	mu     sync.RWMutex
	timers map[string]*timerState
}

func NewOrchestrator(policy Policy) *Orchestrator {
	return &Orchestrator{
		policy: policy,
		logger: logging.NewLogger("calibration"),
		timers: make(map[string]*timerState),
	}
}

func (o *Orchestrator) SetLogger(logger *logging.Logger) {
	if logger != nil {
		o.logger = logger
	}
}

// SetSampleLogger enables diagnostics: after a sample lands in a live
// histogram, sink gets the timer's snapshot at most once per interval.
func (o *Orchestrator) SetSampleLogger(sink SampleLogger, interval time.Duration) {
	o.sink = sink
	o.logInterval = interval
}

func (o *Orchestrator) Policy() Policy { return o.policy }

func (o *Orchestrator) newState() *timerState {
	st := &timerState{}
	if o.sink != nil && o.logInterval > 0 {
		st.logs = rate.NewLimiter(rate.Every(o.logInterval), 1)
	}
	return st
}

func (o *Orchestrator) lookup(timer string) *timerState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.timers[timer]
}

func (o *Orchestrator) state(timer string) *timerState {
	if st := o.lookup(timer); st != nil {
		return st
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if st, ok := o.timers[timer]; ok {
		return st
	}
	st := o.newState()
	o.timers[timer] = st
	return st
}

func (o *Orchestrator) OnTimerCreated(timer string) {
	o.state(timer)
}

// OnTimerDestroyed releases the timer's state. Samples racing with the
// removal land in the discarded state.
func (o *Orchestrator) OnTimerDestroyed(timer string) {
	o.mu.Lock()
	delete(o.timers, timer)
	o.mu.Unlock()
}

// OnTimerCleared empties the timer's histogram, or its warm-up buffer if it
// is still warming up. Bounds are kept.
func (o *Orchestrator) OnTimerCleared(timer string) {
	st := o.lookup(timer)
	if st == nil {
		return
	}
	if h := st.live.Load(); h != nil {
		h.Clear()
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if h := st.live.Load(); h != nil {
		h.Clear()
		return
	}
	if st.buffer != nil {
		st.buffer.Reset()
	}
}

// Reset forgets every timer.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	o.timers = make(map[string]*timerState)
	o.mu.Unlock()
}

// OnSample records one duration for timer. It never fails: samples before
// calibration are buffered and samples of a failed timer are dropped.
func (o *Orchestrator) OnSample(timer string, value int64) {
	st := o.state(timer)
	h := st.live.Load()
	if h != nil {
		h.AddValue(value)
	} else if h = o.record(timer, st, value); h == nil {
		return
	}
	// Allow never waits; the sink runs outside the limiter's lock.
	if st.logs != nil && st.logs.Allow() {
		o.sink.LogSample(timer, h.Sample())
	}
}

// record handles a sample that arrived before the live histogram was
// published. It returns the histogram that now holds the sample, or nil.
func (o *Orchestrator) record(timer string, st *timerState, value int64) *histogram.Histogram {
	st.mu.Lock()
	defer st.mu.Unlock()

	if h := st.live.Load(); h != nil {
		h.AddValue(value)
		return h
	}
	if st.failed {
		st.dropped++
		return nil
	}

	threshold := o.policy.WarmupThreshold()
	if threshold <= 0 {
		h := o.calibrate(timer, st, nil)
		if h == nil {
			st.dropped++
			return nil
		}
		h.AddValue(value)
		st.live.Store(h)
		return h
	}

	if st.buffer == nil {
		st.buffer = NewWarmupBuffer(threshold + 1)
	}
	st.buffer.Add(value)
	if st.buffer.Len() <= threshold {
		return nil
	}

	buf := st.buffer
	st.buffer = nil
	h := o.calibrate(timer, st, buf)
	if h == nil {
		// Warm-up bounds depend on the data, so the timer starts a fresh
		// warm-up instead of failing for good.
		st.failed = false
		st.dropped += uint64(buf.Len())
		return nil
	}
	// Publish only after the replay so readers never see a partial history.
	h.AddValues(buf.Drain()...)
	st.live.Store(h)
	return h
}

func (o *Orchestrator) calibrate(timer string, st *timerState, observed *WarmupBuffer) *histogram.Histogram {
	settings, err := o.policy.Calibrate(timer, observed)
	if err == nil {
		var h *histogram.Histogram
		if h, err = settings.NewHistogram(); err == nil {
			o.logger.Debug("histogram created",
				logging.F("timer", timer),
				logging.F("settings", settings))
			return h
		}
	}
	st.failed = true
	o.logger.Error("histogram calibration failed",
		logging.F("timer", timer),
		logging.F("error", qerrors.WithTimer(err, timer)))
	return nil
}

// State reports where timer is in its lifecycle.
func (o *Orchestrator) State(timer string) State {
	st := o.lookup(timer)
	if st == nil {
		return StateUnseen
	}
	if st.live.Load() != nil {
		return StateLive
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	switch {
	case st.live.Load() != nil:
		return StateLive
	case st.failed:
		return StateFailed
	case st.buffer != nil:
		return StateWarmingUp
	default:
		return StateUnseen
	}
}

// Dropped returns how many samples of timer were discarded by failed
// calibrations.
func (o *Orchestrator) Dropped(timer string) uint64 {
	st := o.lookup(timer)
	if st == nil {
		return 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.dropped
}

// Histogram returns the live histogram of timer, if any.
func (o *Orchestrator) Histogram(timer string) (*histogram.Histogram, bool) {
	st := o.lookup(timer)
	if st == nil {
		return nil, false
	}
	h := st.live.Load()
	return h, h != nil
}

// Snapshot returns a detached sample of timer's histogram. It returns false
// while the timer is unseen, warming up or failed.
func (o *Orchestrator) Snapshot(timer string) (*histogram.BucketsSample, bool) {
	h, ok := o.Histogram(timer)
	if !ok {
		return nil, false
	}
	return h.Sample(), true
}

// Timers lists known timer names in order.
func (o *Orchestrator) Timers() []string {
	o.mu.RLock()
	names := make([]string, 0, len(o.timers))
	for name := range o.timers {
		names = append(names, name)
	}
	o.mu.RUnlock()
	sort.Strings(names)
	return names
}
