package ingest

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

type Formatter interface {
	Format(r *Report) error
}

type JSONFormatter struct {
	writer io.Writer
}

type PlainFormatter struct {
	writer io.Writer
}

type InteractiveFormatter struct {
	writer  io.Writer
	noColor bool
}

func createFormatter(w io.Writer, jsonOut, plain, noColor bool) Formatter {
	switch {
	case jsonOut:
		return &JSONFormatter{writer: w}
	case plain:
		return &PlainFormatter{writer: w}
	default:
		return &InteractiveFormatter{writer: w, noColor: noColor}
	}
}

func (f *JSONFormatter) Format(r *Report) error {
	enc := json.NewEncoder(f.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func (f *PlainFormatter) Format(r *Report) error {
	fmt.Fprintf(f.writer, "inputs=%d lines=%d samples=%d skipped=%d duration_ms=%d\n",
		r.Inputs, r.Lines, r.Samples, r.Skipped, r.DurationMs)
	for _, t := range r.Timers {
		fmt.Fprintf(f.writer, "timer=%s state=%s", t.Timer, t.State)
		if t.Dropped > 0 {
			fmt.Fprintf(f.writer, " dropped=%d", t.Dropped)
		}
		if s := t.Summary; s != nil {
			fmt.Fprintf(f.writer, " layout=%s min=%d max=%d buckets=%d total=%d underflow=%d overflow=%d median=%s p90=%s",
				s.Layout, s.Min, s.Max, s.BucketCount, s.Total, s.Underflow, s.Overflow,
				formatNanos(s.Median), formatNanos(s.P90))
		}
		fmt.Fprintln(f.writer)
	}
	return nil
}

func (f *InteractiveFormatter) Format(r *Report) error {
	fmt.Fprintf(f.writer, "\n%s %d samples from %d lines (%d skipped) in %s\n\n",
		f.color("1", "Ingested"), r.Samples, r.Lines, r.Skipped,
		(time.Duration(r.DurationMs) * time.Millisecond).String())

	for _, t := range r.Timers {
		fmt.Fprintf(f.writer, " %s  %s\n", f.color("36", t.Timer), f.stateLabel(t.State))
		if t.Dropped > 0 {
			fmt.Fprintf(f.writer, "   %d samples dropped\n", t.Dropped)
		}
		s := t.Summary
		if s == nil {
			fmt.Fprintln(f.writer)
			continue
		}
		fmt.Fprintf(f.writer, "   %s [%s, %s) x%d, %d samples\n", s.Layout,
			time.Duration(s.Min), time.Duration(s.Max), s.BucketCount, s.Total)
		for _, q := range t.Quartiles {
			label := fmt.Sprintf("p%.0f", q.Ratio*100)
			if q.Value != nil {
				fmt.Fprintf(f.writer, "   %-4s %s\n", label, formatNanos(q.Value))
			} else {
				fmt.Fprintf(f.writer, "   %-4s %s\n", label, f.color("33", q.Error))
			}
		}
		fmt.Fprintf(f.writer, "   %-4s %s\n", "p90", formatNanos(s.P90))
		if s.Underflow > 0 || s.Overflow > 0 {
			fmt.Fprintf(f.writer, "   %s %d below min, %d above max\n", f.color("33", "!"), s.Underflow, s.Overflow)
		}
		if len(t.Buckets) > 0 {
			f.histogramBars(t)
		}
		fmt.Fprintln(f.writer)
	}
	return nil
}

const barWidth = 30

func (f *InteractiveFormatter) histogramBars(t TimerResult) {
	var peak uint64
	for _, b := range t.Buckets {
		if b.Count > peak {
			peak = b.Count
		}
	}
	if peak == 0 {
		return
	}
	last := len(t.Buckets) - 1
	for i, b := range t.Buckets {
		var label string
		switch i {
		case 0:
			label = "< " + time.Duration(b.Max).String()
		case last:
			label = ">= " + time.Duration(b.Min).String()
		default:
			label = time.Duration(b.Min).String()
		}
		filled := int(b.Count * barWidth / peak)
		bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
		fmt.Fprintf(f.writer, "   %12s %s %d\n", label, bar, b.Count)
	}
}

func (f *InteractiveFormatter) stateLabel(state string) string {
	switch state {
	case "live":
		return f.color("32", state)
	case "failed":
		return f.color("31", state)
	default:
		return f.color("33", state)
	}
}

func (f *InteractiveFormatter) color(code, s string) string {
	if f.noColor {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

func formatNanos(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return time.Duration(*v).String()
}
