package calibration_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/saveenergy/openquantile/internal/calibration"
	"github.com/saveenergy/openquantile/internal/histogram"
	qerrors "github.com/saveenergy/openquantile/pkg/errors"
)

func TestParent(t *testing.T) {
	tests := []struct {
		name   string
		parent string
		ok     bool
	}{
		{name: "a.b.c", parent: "a.b", ok: true},
		{name: "a", parent: "", ok: true},
		{name: "", parent: "", ok: false},
	}
	for _, tt := range tests {
		parent, ok := calibration.Parent(tt.name)
		if parent != tt.parent || ok != tt.ok {
			t.Fatalf("Parent(%q) = %q, %v, want %q, %v", tt.name, parent, ok, tt.parent, tt.ok)
		}
	}
}

func TestLookupWalksHierarchy(t *testing.T) {
	props := calibration.MapProperties{
		"org.app.db.max": "500ms",
		"org.app.min":    "1000",
		"max":            "2s",
		"type":           "EXPONENTIAL",
	}

	tests := []struct {
		timer string
		key   string
		want  string
		ok    bool
	}{
		{timer: "org.app.db.select", key: "max", want: "500ms", ok: true},
		{timer: "org.app.db.select", key: "min", want: "1000", ok: true},
		{timer: "org.app.db.select", key: "type", want: "EXPONENTIAL", ok: true},
		{timer: "org.other", key: "max", want: "2s", ok: true},
		{timer: "org.other", key: "nb", ok: false},
		{timer: "", key: "max", want: "2s", ok: true},
	}
	for _, tt := range tests {
		got, ok := calibration.Lookup(props, tt.timer, tt.key)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("Lookup(%q, %q) = %q, %v, want %q, %v", tt.timer, tt.key, got, ok, tt.want, tt.ok)
		}
	}

	if _, ok := calibration.Lookup(nil, "a", "max"); ok {
		t.Fatal("Lookup on nil properties should find nothing")
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{input: "1500", want: 1500},
		{input: " 250ms ", want: int64(250 * time.Millisecond)},
		{input: "1.5s", want: int64(1500 * time.Millisecond)},
		{input: "-3", want: -3},
		{input: "soon", wantErr: true},
	}
	for _, tt := range tests {
		got, err := calibration.ParseValue(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParseValue(%q) expected error", tt.input)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("ParseValue(%q) = %d, %v, want %d", tt.input, got, err, tt.want)
		}
	}
}

func TestPropertiesPolicy(t *testing.T) {
	props := calibration.MapProperties{
		"db.type":       "exponential",
		"db.min":        "1ms",
		"db.max":        "10s",
		"db.nb":         "20",
		"db.select.max": "2s",
		"http.nb":       "many",
		"cache.type":    "cubic",
		"broken.min":    "later",
	}
	p := calibration.NewPropertiesPolicy(props, calibration.DefaultSettings)
	if p.WarmupThreshold() != 0 {
		t.Fatalf("warm-up threshold = %d, want 0", p.WarmupThreshold())
	}

	s, err := p.Calibrate("db.select", nil)
	if err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	want := calibration.Settings{
		Layout:      histogram.Exponential,
		Min:         int64(time.Millisecond),
		Max:         int64(2 * time.Second),
		BucketCount: 20,
	}
	if s != want {
		t.Fatalf("settings = %v, want %v", s, want)
	}

	s, err = p.Calibrate("queue", nil)
	if err != nil {
		t.Fatalf("Calibrate defaults: %v", err)
	}
	if s != calibration.DefaultSettings {
		t.Fatalf("settings = %v, want defaults %v", s, calibration.DefaultSettings)
	}
	if _, err := s.NewHistogram(); err != nil {
		t.Fatalf("default settings should build a histogram: %v", err)
	}

	for _, timer := range []string{"http.get", "cache.hit", "broken.x"} {
		if _, err := p.Calibrate(timer, nil); !errors.Is(err, qerrors.ErrInvalidConfiguration) {
			t.Fatalf("Calibrate(%q) error = %v, want InvalidConfiguration", timer, err)
		}
	}
}

func TestAutoPolicyBounds(t *testing.T) {
	ms := int64(time.Millisecond)
	tests := []struct {
		name   string
		layout histogram.Layout
		min    int64
		max    int64
		wantLo int64
		wantHi int64
	}{
		{name: "widened and aligned", layout: histogram.Linear, min: 10 * ms, max: 110 * ms, wantLo: 9 * ms, wantHi: 121 * ms},
		{name: "floor and ceil", layout: histogram.Linear, min: 10*ms + 500, max: 20*ms + 1, wantLo: 9 * ms, wantHi: 23 * ms},
		{name: "negative min clamps to zero", layout: histogram.Linear, min: -5 * ms, max: 5 * ms, wantLo: 0, wantHi: 6 * ms},
		{name: "constant samples", layout: histogram.Linear, min: 0, max: 0, wantLo: 0, wantHi: ms},
		{name: "exponential lifts zero", layout: histogram.Exponential, min: 100, max: 400, wantLo: ms, wantHi: 2 * ms},
		{name: "huge max saturates", layout: histogram.Linear, min: 0, max: math.MaxInt64, wantLo: 0, wantHi: math.MaxInt64/ms*ms - ms},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := calibration.NewAutoPolicy(10, 8, tt.layout)
			lo, hi := p.Bounds(tt.min, tt.max)
			if lo != tt.wantLo || hi != tt.wantHi {
				t.Fatalf("Bounds(%d, %d) = [%d, %d), want [%d, %d)", tt.min, tt.max, lo, hi, tt.wantLo, tt.wantHi)
			}
			s := calibration.Settings{Layout: tt.layout, Min: lo, Max: hi, BucketCount: 8}
			if _, err := s.NewHistogram(); err != nil {
				t.Fatalf("inferred bounds should be buildable: %v", err)
			}
		})
	}
}

func TestAutoPolicyCalibrate(t *testing.T) {
	p := calibration.NewAutoPolicy(3, 6, histogram.Exponential)
	if _, err := p.Calibrate("t", nil); !errors.Is(err, qerrors.ErrInvalidConfiguration) {
		t.Fatalf("Calibrate with no samples error = %v, want InvalidConfiguration", err)
	}

	buf := calibration.NewWarmupBuffer(3)
	for _, v := range []int64{40, 20, 30} {
		buf.Add(v * int64(time.Millisecond))
	}
	s, err := p.Calibrate("t", buf)
	if err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	want := calibration.Settings{
		Layout:      histogram.Exponential,
		Min:         int64(18 * time.Millisecond),
		Max:         int64(44 * time.Millisecond),
		BucketCount: 6,
	}
	if s != want {
		t.Fatalf("settings = %v, want %v", s, want)
	}
}

func TestWarmupBuffer(t *testing.T) {
	buf := calibration.NewWarmupBuffer(4)
	for _, v := range []int64{5, -2, 9, 3} {
		buf.Add(v)
	}
	if buf.Len() != 4 || buf.Min() != -2 || buf.Max() != 9 {
		t.Fatalf("len/min/max = %d/%d/%d, want 4/-2/9", buf.Len(), buf.Min(), buf.Max())
	}
	values := buf.Drain()
	if len(values) != 4 || values[0] != 5 || values[3] != 3 {
		t.Fatalf("drained = %v, want insertion order", values)
	}
	if buf.Len() != 0 {
		t.Fatalf("len after drain = %d, want 0", buf.Len())
	}
}
