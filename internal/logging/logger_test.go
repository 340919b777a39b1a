package logging_test

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/saveenergy/openquantile/internal/logging"
)

type testStringer struct{}

func (testStringer) String() string {
	return "stringer-value"
}

func TestFormatValueTypes(t *testing.T) {
	now := time.Date(2026, 1, 16, 12, 0, 0, 0, time.UTC)
	median := 512.0

	tests := []struct {
		name  string
		input interface{}
		want  string
	}{
		{name: "string", input: "hello", want: "hello"},
		{name: "bool", input: true, want: "true"},
		{name: "int", input: 42, want: "42"},
		{name: "int64", input: int64(-7), want: "-7"},
		{name: "uint64", input: uint64(9), want: "9"},
		{name: "float32", input: float32(1.5), want: "1.50"},
		{name: "float64", input: 2.25, want: "2.25"},
		{name: "float pointer", input: &median, want: "512.00"},
		{name: "nil float pointer", input: (*float64)(nil), want: "n/a"},
		{name: "duration", input: 1500 * time.Millisecond, want: "1.5s"},
		{name: "time", input: now, want: now.Format(time.RFC3339Nano)},
		{name: "error", input: errors.New("boom"), want: "boom"},
		{name: "stringer", input: testStringer{}, want: "stringer-value"},
		{name: "fallback", input: []int{1, 2}, want: fmt.Sprintf("%v", []int{1, 2})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := logging.FormatValue(tt.input); got != tt.want {
				t.Fatalf("FormatValue got=%q want=%q", got, tt.want)
			}
		})
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := logging.New(&buf, "quantiles", logging.LevelWarn)

	l.Info("dropped")
	l.Warn("kept", logging.F("timer", "db.query"))

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("info entry should be filtered: %q", out)
	}
	if !strings.Contains(out, "[quantiles] ") || !strings.Contains(out, "[WARN] kept timer=db.query") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	l := logging.New(&buf, "", logging.LevelDebug).With(logging.F("timer", "a.b"))

	l.Debug("sample", logging.F("msg", "two words"))

	if !strings.Contains(buf.String(), `[DEBUG] sample timer=a.b msg="two words"`) {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    logging.Level
		wantErr bool
	}{
		{input: "debug", want: logging.LevelDebug},
		{input: "INFO", want: logging.LevelInfo},
		{input: "", want: logging.LevelInfo},
		{input: "warning", want: logging.LevelWarn},
		{input: "error", want: logging.LevelError},
		{input: "loud", wantErr: true},
	}
	for _, tt := range tests {
		got, err := logging.ParseLevel(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParseLevel(%q) expected error", tt.input)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("ParseLevel(%q) = %v, %v, want %v", tt.input, got, err, tt.want)
		}
	}
}
