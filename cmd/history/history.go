// Package history implements `openquantile history`, which lists summaries
// archived by ingest.
package history

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/saveenergy/openquantile/internal/archive"
	"github.com/saveenergy/openquantile/internal/config"
	"github.com/saveenergy/openquantile/pkg/types"
)

var (
	exitSuccess = 0
	exitFailure = 1
	exitUsage   = 2
)

const maxLimit = 10000

func Run(args []string, version string) int {
	return run(args, os.Stdout)
}

func run(args []string, out io.Writer) int {
	flagSet := flag.NewFlagSet("openquantile history", flag.ContinueOnError)
	flagSet.SetOutput(out)

	cfg := config.DefaultConfig()
	var (
		configPath string
		dataDir    string
		timer      string
		id         string
		limit      int
		jsonOut    bool
	)
	flagSet.StringVar(&configPath, "config", "", "Config file")
	flagSet.StringVar(&dataDir, "data-dir", "", "Directory holding the archive")
	flagSet.StringVar(&timer, "timer", "", "Only list this timer")
	flagSet.StringVar(&id, "id", "", "Show one summary by ID")
	flagSet.IntVar(&limit, "limit", 20, "Maximum summaries to list")
	flagSet.BoolVar(&jsonOut, "json", false, "Output as JSON")
	help := flagSet.Bool("help", false, "Show help")
	flagSet.BoolVar(help, "h", false, "Show help (short)")

	if err := flagSet.Parse(args); err != nil {
		return exitUsage
	}
	if *help {
		printUsage(out)
		return exitSuccess
	}
	if flagSet.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "openquantile history: unexpected positional arguments")
		return exitUsage
	}
	if limit < 1 || limit > maxLimit {
		fmt.Fprintf(os.Stderr, "openquantile history: limit must be between 1 and %d\n", maxLimit)
		return exitUsage
	}

	if configPath != "" {
		if err := cfg.LoadFile(configPath); err != nil {
			fmt.Fprintf(os.Stderr, "openquantile history: %v\n", err)
			return exitUsage
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "openquantile history: %v\n", err)
		return exitUsage
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if cfg.DataDir == "" {
		fmt.Fprintln(os.Stderr, "openquantile history: no data directory (use -data-dir or OPENQUANTILE_DATA_DIR)")
		return exitUsage
	}

	dbPath := filepath.Join(cfg.DataDir, archive.DefaultFile)
	if _, err := os.Stat(dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "openquantile history: no archive at %s\n", dbPath)
		return exitFailure
	}
	// maxRows 0: reading must never trim what ingest kept.
	store, err := archive.New(dbPath, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "openquantile history: %v\n", err)
		return exitFailure
	}
	defer store.Close()

	var summaries []types.Summary
	if id != "" {
		sum, err := store.Get(id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "openquantile history: %v\n", err)
			return exitFailure
		}
		if sum == nil {
			fmt.Fprintf(os.Stderr, "openquantile history: summary %q not found\n", id)
			return exitFailure
		}
		summaries = []types.Summary{*sum}
	} else {
		summaries, err = store.List(timer, limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "openquantile history: %v\n", err)
			return exitFailure
		}
	}

	if jsonOut {
		if summaries == nil {
			summaries = []types.Summary{}
		}
		if err := json.NewEncoder(out).Encode(summaries); err != nil {
			fmt.Fprintf(os.Stderr, "openquantile history: json encode error: %v\n", err)
			return exitFailure
		}
		return exitSuccess
	}
	printTable(out, summaries)
	return exitSuccess
}

func printTable(w io.Writer, summaries []types.Summary) {
	if len(summaries) == 0 {
		fmt.Fprintln(w, "no summaries")
		return
	}
	fmt.Fprintf(w, "%-20s %-24s %-11s %10s %12s %12s  %s\n", "TIME", "TIMER", "LAYOUT", "TOTAL", "MEDIAN", "P90", "ID")
	for _, s := range summaries {
		fmt.Fprintf(w, "%-20s %-24s %-11s %10d %12s %12s  %s\n",
			s.CreatedAt.Local().Format(time.DateTime), s.Timer, s.Layout, s.Total,
			durationOrNA(s.MedianDuration()), durationOrNA(s.P90Duration()), s.ID)
	}
}

func durationOrNA(d time.Duration, ok bool) string {
	if !ok {
		return "n/a"
	}
	return d.String()
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `Usage: openquantile history [flags]

Lists quantile summaries archived by "openquantile ingest -data-dir".

Examples:
  openquantile history -data-dir ./data
  openquantile history -data-dir ./data -timer db.select -limit 5 --json
  openquantile history -data-dir ./data -id 1b4e28ba-2fa1-11d2-883f-0016d3cca427
`)
}
