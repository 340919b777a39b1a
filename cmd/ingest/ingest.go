// Package ingest implements `openquantile ingest`: it feeds "<timer> <value>"
// lines into per-timer histograms and prints the resulting quantiles.
package ingest

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/saveenergy/openquantile/internal/archive"
	"github.com/saveenergy/openquantile/internal/calibration"
	"github.com/saveenergy/openquantile/internal/config"
	"github.com/saveenergy/openquantile/internal/logging"
	"github.com/saveenergy/openquantile/internal/reporter"
)

const (
	exitSuccess   = 0
	exitFailure   = 1
	exitUsage     = 2
	exitInterrupt = 130
)

type options struct {
	configPath string
	workers    int
	strict     bool
	jsonOut    bool
	plain      bool
	noColor    bool
	buckets    bool
}

func Run(args []string, version string) int {
	flagSet := flag.NewFlagSet("openquantile ingest", flag.ContinueOnError)
	flagSet.SetOutput(os.Stdout)

	cfg := config.DefaultConfig()
	var opts options
	var (
		policy, bucketType, minValue, maxValue, dataDir, logLevel string
		warmup, bucketCount, maxSummaries                         int
		reportInterval, logInterval                               time.Duration
		logSamples                                                bool
	)
	flagSet.StringVar(&opts.configPath, "config", "", "Config file (default: $XDG_CONFIG_HOME/openquantile/config.yaml if present)")
	flagSet.StringVar(&policy, "policy", cfg.Policy, "Calibration policy: auto, fixed or properties")
	flagSet.IntVar(&warmup, "warmup", cfg.WarmupThreshold, "Samples buffered per timer before auto calibration")
	flagSet.IntVar(&bucketCount, "buckets", cfg.BucketCount, "Interior buckets per histogram")
	flagSet.StringVar(&bucketType, "type", cfg.BucketType, "Bucket layout: LINEAR or EXPONENTIAL")
	flagSet.StringVar(&minValue, "min", "", "Lower bound for fixed/properties policies (ns or duration)")
	flagSet.StringVar(&maxValue, "max", "", "Upper bound for fixed/properties policies (ns or duration)")
	flagSet.DurationVar(&reportInterval, "report-interval", cfg.ReportInterval, "Summarize live timers every interval (0 disables)")
	flagSet.StringVar(&dataDir, "data-dir", cfg.DataDir, "Archive summaries under this directory")
	flagSet.IntVar(&maxSummaries, "max-summaries", cfg.MaxStoredSummaries, "Maximum archived summaries")
	flagSet.BoolVar(&logSamples, "log-samples", cfg.LogSamples, "Log live snapshots while ingesting")
	flagSet.DurationVar(&logInterval, "log-interval", cfg.LogInterval, "Minimum time between snapshot logs per timer")
	flagSet.StringVar(&logLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn or error")
	flagSet.IntVar(&opts.workers, "workers", 4, "Input files read concurrently")
	flagSet.BoolVar(&opts.strict, "strict", false, "Fail on the first malformed line")
	flagSet.BoolVar(&opts.jsonOut, "json", false, "Output as JSON")
	flagSet.BoolVar(&opts.plain, "plain", false, "Plain key=value output")
	flagSet.BoolVar(&opts.noColor, "no-color", false, "Disable colors")
	flagSet.BoolVar(&opts.buckets, "show-buckets", false, "Include bucket counts in the output")
	help := flagSet.Bool("help", false, "Show help")
	flagSet.BoolVar(help, "h", false, "Show help (short)")

	if err := flagSet.Parse(args); err != nil {
		return exitUsage
	}
	if *help {
		printUsage()
		return exitSuccess
	}

	if err := loadConfig(cfg, opts.configPath); err != nil {
		fmt.Fprintf(os.Stderr, "openquantile ingest: %v\n", err)
		return exitUsage
	}

	set := make(map[string]bool)
	flagSet.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["policy"] {
		cfg.Policy = policy
	}
	if set["warmup"] {
		cfg.WarmupThreshold = warmup
	}
	if set["buckets"] {
		cfg.BucketCount = bucketCount
	}
	if set["type"] {
		cfg.BucketType = bucketType
	}
	if set["min"] {
		v, err := calibration.ParseValue(minValue)
		if err != nil {
			fmt.Fprintf(os.Stderr, "openquantile ingest: -min: %v\n", err)
			return exitUsage
		}
		cfg.Min = time.Duration(v)
	}
	if set["max"] {
		v, err := calibration.ParseValue(maxValue)
		if err != nil {
			fmt.Fprintf(os.Stderr, "openquantile ingest: -max: %v\n", err)
			return exitUsage
		}
		cfg.Max = time.Duration(v)
	}
	if set["report-interval"] {
		cfg.ReportInterval = reportInterval
	}
	if set["data-dir"] {
		cfg.DataDir = dataDir
	}
	if set["max-summaries"] {
		cfg.MaxStoredSummaries = maxSummaries
	}
	if set["log-samples"] {
		cfg.LogSamples = logSamples
	}
	if set["log-interval"] {
		cfg.LogInterval = logInterval
	}
	if set["log-level"] {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "openquantile ingest: invalid configuration: %v\n", err)
		return exitUsage
	}
	if opts.workers <= 0 {
		fmt.Fprintln(os.Stderr, "openquantile ingest: workers must be > 0")
		return exitUsage
	}

	if !opts.jsonOut && !opts.plain {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			opts.plain = true
		}
	}

	level, _ := logging.ParseLevel(cfg.LogLevel)
	logging.Init(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := execute(ctx, cfg, opts, flagSet.Args(), os.Stdin)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "openquantile ingest: interrupted")
			return exitInterrupt
		}
		fmt.Fprintf(os.Stderr, "openquantile ingest: error: %v\n", err)
		return exitFailure
	}

	formatter := createFormatter(os.Stdout, opts.jsonOut, opts.plain, opts.noColor)
	if err := formatter.Format(report); err != nil {
		fmt.Fprintf(os.Stderr, "openquantile ingest: output: %v\n", err)
		return exitFailure
	}
	return exitSuccess
}

// loadConfig overlays the config file, then the environment, onto cfg. An
// explicit path must exist; the default path is optional.
func loadConfig(cfg *config.Config, path string) error {
	if path == "" {
		if def := config.DefaultPath(); def != "" {
			if _, err := os.Stat(def); err == nil {
				path = def
			}
		}
	}
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return err
		}
	}
	return cfg.LoadFromEnv()
}

// execute runs a complete ingest against inputs, or stdin when inputs is
// empty or "-".
func execute(ctx context.Context, cfg *config.Config, opts options, inputs []string, stdin io.Reader) (*Report, error) {
	start := time.Now()

	policy, err := cfg.BuildPolicy()
	if err != nil {
		return nil, err
	}
	orch := calibration.NewOrchestrator(policy)
	if cfg.LogSamples {
		orch.SetSampleLogger(calibration.NewLoggerSink(logging.NewLogger("quantiles")), cfg.LogInterval)
	}

	var sink reporter.Sink
	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		store, err := archive.New(filepath.Join(cfg.DataDir, archive.DefaultFile), cfg.MaxStoredSummaries)
		if err != nil {
			return nil, fmt.Errorf("open archive: %w", err)
		}
		defer store.Close()
		sink = store
	}
	rep := reporter.New(orch, sink, cfg.ReportInterval)

	if len(inputs) == 0 {
		inputs = []string{"-"}
	}

	g, gctx := errgroup.WithContext(ctx)
	reportCtx, stopReports := context.WithCancel(gctx)
	defer stopReports()

	if cfg.ReportInterval > 0 {
		g.Go(func() error {
			return rep.Run(reportCtx)
		})
	}

	results := make([]feedStats, len(inputs))
	g.Go(func() error {
		defer stopReports()
		feeds, fctx := errgroup.WithContext(gctx)
		feeds.SetLimit(opts.workers)
		for i, name := range inputs {
			i, name := i, name
			feeds.Go(func() error {
				stats, err := feedInput(fctx, orch, name, stdin, opts.strict)
				results[i] = stats
				return err
			})
		}
		return feeds.Wait()
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.ReportInterval <= 0 && sink != nil {
		rep.ReportOnce()
	}

	var total feedStats
	for _, s := range results {
		total.add(s)
	}
	return buildReport(orch, total, len(inputs), time.Since(start), opts.buckets), nil
}

func feedInput(ctx context.Context, orch *calibration.Orchestrator, name string, stdin io.Reader, strict bool) (feedStats, error) {
	if name == "-" {
		return feed(ctx, orch, "stdin", stdin, strict)
	}
	f, err := os.Open(name)
	if err != nil {
		return feedStats{}, err
	}
	defer f.Close()
	return feed(ctx, orch, name, f, strict)
}

// ctxCheckEvery bounds how many lines are read between cancellation checks.
const ctxCheckEvery = 1024

func feed(ctx context.Context, orch *calibration.Orchestrator, name string, r io.Reader, strict bool) (feedStats, error) {
	var stats feedStats
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		stats.lines++
		if stats.lines%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
		}
		rec, ok, err := parseLine(scanner.Text())
		if err != nil {
			if strict {
				return stats, fmt.Errorf("%s:%d: %w", name, stats.lines, err)
			}
			stats.skipped++
			logging.Warn("skipping malformed line",
				logging.F("input", name),
				logging.F("line", stats.lines),
				logging.F("error", err))
			continue
		}
		if !ok {
			continue
		}
		switch rec.op {
		case opSample:
			orch.OnSample(rec.timer, rec.value)
			stats.samples++
		case opClear:
			orch.OnTimerCleared(rec.timer)
		case opDestroy:
			orch.OnTimerDestroyed(rec.timer)
		case opReset:
			orch.Reset()
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("read %s: %w", name, err)
	}
	return stats, ctx.Err()
}

func printUsage() {
	fmt.Fprintf(os.Stdout, `Usage: openquantile ingest [flags] [file ...]

Reads "<timer> <value>" lines (value in nanoseconds or as a duration such as
12ms) from the given files, or stdin, and prints per-timer quantiles.

Directives:
  !clear <timer>     empty the timer's histogram
  !destroy <timer>   forget the timer
  !reset             forget every timer

Examples:
  openquantile ingest latencies.txt
  openquantile ingest -policy fixed -type EXPONENTIAL -min 1ms -max 10s -buckets 40 < samples.txt
  openquantile ingest -report-interval 10s -data-dir ./data --json a.log b.log
`)
}
