package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/saveenergy/openquantile/cmd/history"
	"github.com/saveenergy/openquantile/cmd/ingest"
)

var version = "dev"

var (
	runIngest  = ingest.Run
	runHistory = history.Run
)

func main() {
	os.Exit(run(os.Args[1:], version))
}

func run(args []string, version string) int {
	if len(args) == 0 {
		return runIngest(nil, version)
	}

	switch args[0] {
	case "ingest":
		return runIngest(args[1:], version)
	case "history":
		return runHistory(args[1:], version)
	case "help", "-h", "--help":
		printUsage()
		return 0
	case "version", "--version":
		fmt.Printf("openquantile %s\n", version)
		return 0
	default:
		if strings.HasPrefix(args[0], "-") {
			return runIngest(args, version)
		}
		fmt.Fprintf(os.Stderr, "openquantile: unknown command %q\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintf(os.Stdout, `Usage: openquantile <command> [args]

Commands:
  ingest    Feed "<timer> <value>" lines and print quantiles (default)
  history   List archived summaries

Examples:
  openquantile ingest latencies.txt
  tail -f app.log | awk '{print $3, $7}' | openquantile ingest -report-interval 30s -data-dir ./data
  openquantile history -data-dir ./data -timer db.select
`)
}
