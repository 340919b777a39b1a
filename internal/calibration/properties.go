package calibration

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Property keys resolved per timer.
const (
	KeyMin        = "min"
	KeyMax        = "max"
	KeyBucketType = "type"
	KeyBuckets    = "nb"
)

// Properties supplies raw configuration values by flat key. Keys for a timer
// node are "<timer>.<key>"; the root node uses bare keys.
type Properties interface {
	Property(key string) (string, bool)
}

type MapProperties map[string]string

func (m MapProperties) Property(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// Parent returns the enclosing timer name: "a.b.c" -> "a.b", "a" -> "" (the
// root). The root has no parent.
func Parent(name string) (string, bool) {
	if name == "" {
		return "", false
	}
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return "", true
	}
	return name[:i], true
}

func propertyKey(node, key string) string {
	if node == "" {
		return key
	}
	return node + "." + key
}

// Lookup walks from timer up to the root and returns the first value defined
// for key.
func Lookup(props Properties, timer, key string) (string, bool) {
	if props == nil {
		return "", false
	}
	node := timer
	for {
		if v, ok := props.Property(propertyKey(node, key)); ok {
			return strings.TrimSpace(v), true
		}
		parent, ok := Parent(node)
		if !ok {
			return "", false
		}
		node = parent
	}
}

// ParseValue accepts integer nanoseconds or a Go duration string.
func ParseValue(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q: want nanoseconds or a duration", s)
	}
	return int64(d), nil
}
