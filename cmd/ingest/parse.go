package ingest

import (
	"fmt"
	"strings"

	"github.com/saveenergy/openquantile/internal/calibration"
)

type op int

const (
	opSample op = iota
	opClear
	opDestroy
	opReset
)

// record is one parsed input line.
type record struct {
	op    op
	timer string
	value int64
}

// parseLine parses "<timer> <value>" where value is integer nanoseconds or a
// duration string. Lines starting with '!' are lifecycle directives:
// "!clear <timer>", "!destroy <timer>" and "!reset". Blank lines and '#'
// comments return ok=false.
func parseLine(line string) (rec record, ok bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return record{}, false, nil
	}
	fields := strings.Fields(line)

	if strings.HasPrefix(fields[0], "!") {
		switch fields[0] {
		case "!reset":
			if len(fields) != 1 {
				return record{}, false, fmt.Errorf("!reset takes no arguments")
			}
			return record{op: opReset}, true, nil
		case "!clear", "!destroy":
			if len(fields) != 2 {
				return record{}, false, fmt.Errorf("%s wants a timer name", fields[0])
			}
			rec := record{op: opClear, timer: fields[1]}
			if fields[0] == "!destroy" {
				rec.op = opDestroy
			}
			return rec, true, nil
		default:
			return record{}, false, fmt.Errorf("unknown directive %q", fields[0])
		}
	}

	if len(fields) != 2 {
		return record{}, false, fmt.Errorf("want \"<timer> <value>\", got %d fields", len(fields))
	}
	v, err := calibration.ParseValue(fields[1])
	if err != nil {
		return record{}, false, err
	}
	return record{op: opSample, timer: fields[0], value: v}, true, nil
}
