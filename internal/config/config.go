package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/saveenergy/openquantile/internal/calibration"
	"github.com/saveenergy/openquantile/internal/histogram"
	"github.com/saveenergy/openquantile/internal/logging"
)

const (
	PolicyAuto       = "auto"
	PolicyFixed      = "fixed"
	PolicyProperties = "properties"
)

type Config struct {
	Policy          string        `yaml:"policy"`
	WarmupThreshold int           `yaml:"warmup_threshold"`
	BucketCount     int           `yaml:"bucket_count"`
	BucketType      string        `yaml:"bucket_type"`
	Min             time.Duration `yaml:"min"`
	Max             time.Duration `yaml:"max"`

	LogSamples  bool          `yaml:"log_samples"`
	LogInterval time.Duration `yaml:"log_interval"`
	LogLevel    string        `yaml:"log_level"`

	ReportInterval     time.Duration `yaml:"report_interval"`
	DataDir            string        `yaml:"data_dir"`
	MaxStoredSummaries int           `yaml:"max_stored_summaries"`

	// Timers holds per-timer overrides, either flat ("db.select.max: 2s")
	// or nested by name segment.
	Timers map[string]interface{} `yaml:"timers,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Policy:             PolicyAuto,
		WarmupThreshold:    100,
		BucketCount:        20,
		BucketType:         histogram.Linear.String(),
		Min:                0,
		Max:                time.Second,
		LogSamples:         false,
		LogInterval:        time.Minute,
		LogLevel:           "info",
		ReportInterval:     0, // disabled
		DataDir:            "",
		MaxStoredSummaries: 10000,
	}
}

// DefaultPath returns the per-user config file location.
func DefaultPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "openquantile", "config.yaml")
}

// LoadFile overlays the YAML file at path onto c. Keys absent from the file
// keep their current value.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) LoadFromEnv() error {
	if p := os.Getenv("OPENQUANTILE_POLICY"); p != "" {
		c.Policy = strings.ToLower(p)
	}
	if v := os.Getenv("OPENQUANTILE_WARMUP"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid OPENQUANTILE_WARMUP %q: must be a number", v)
		}
		c.WarmupThreshold = n
	}
	if v := os.Getenv("OPENQUANTILE_BUCKETS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid OPENQUANTILE_BUCKETS %q: must be a number", v)
		}
		c.BucketCount = n
	}
	if v := os.Getenv("OPENQUANTILE_BUCKET_TYPE"); v != "" {
		c.BucketType = v
	}
	if v := os.Getenv("OPENQUANTILE_MIN"); v != "" {
		n, err := calibration.ParseValue(v)
		if err != nil {
			return fmt.Errorf("invalid OPENQUANTILE_MIN %q: %w", v, err)
		}
		c.Min = time.Duration(n)
	}
	if v := os.Getenv("OPENQUANTILE_MAX"); v != "" {
		n, err := calibration.ParseValue(v)
		if err != nil {
			return fmt.Errorf("invalid OPENQUANTILE_MAX %q: %w", v, err)
		}
		c.Max = time.Duration(n)
	}

	if v := os.Getenv("OPENQUANTILE_LOG_SAMPLES"); v == "true" || v == "1" {
		c.LogSamples = true
	} else if v == "false" || v == "0" {
		c.LogSamples = false
	}
	if v := os.Getenv("OPENQUANTILE_LOG_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid OPENQUANTILE_LOG_INTERVAL %q: must be a positive duration (e.g. 30s)", v)
		}
		c.LogInterval = d
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}

	if v := os.Getenv("OPENQUANTILE_REPORT_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return fmt.Errorf("invalid OPENQUANTILE_REPORT_INTERVAL %q: must be a duration (e.g. 1m)", v)
		}
		c.ReportInterval = d
	}
	if dir := os.Getenv("OPENQUANTILE_DATA_DIR"); dir != "" {
		c.DataDir = dir
	}
	if v := os.Getenv("OPENQUANTILE_MAX_SUMMARIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid OPENQUANTILE_MAX_SUMMARIES %q: must be a number", v)
		}
		c.MaxStoredSummaries = n
	}

	return nil
}

func (c *Config) Validate() error {
	layout, err := histogram.ParseLayout(c.BucketType)
	if err != nil {
		return fmt.Errorf("invalid bucket type: %w", err)
	}
	if c.BucketCount < histogram.MinBucketCount {
		return fmt.Errorf("bucket count must be >= %d", histogram.MinBucketCount)
	}

	switch c.Policy {
	case PolicyAuto:
		if c.WarmupThreshold <= 0 {
			return fmt.Errorf("warm-up threshold must be > 0 for the auto policy")
		}
	case PolicyFixed, PolicyProperties:
		s := calibration.Settings{Layout: layout, Min: int64(c.Min), Max: int64(c.Max), BucketCount: c.BucketCount}
		if _, err := s.NewHistogram(); err != nil {
			return fmt.Errorf("invalid histogram bounds: %w", err)
		}
	default:
		return fmt.Errorf("unknown policy %q: must be auto, fixed or properties", c.Policy)
	}

	if c.LogSamples && c.LogInterval <= 0 {
		return fmt.Errorf("log interval must be > 0 when sample logging is enabled")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.ReportInterval < 0 {
		return fmt.Errorf("report interval cannot be negative")
	}
	if c.DataDir != "" && c.MaxStoredSummaries <= 0 {
		return fmt.Errorf("max stored summaries must be > 0")
	}
	return nil
}

// Defaults are the settings a timer gets when nothing more specific applies.
func (c *Config) Defaults() (calibration.Settings, error) {
	layout, err := histogram.ParseLayout(c.BucketType)
	if err != nil {
		return calibration.Settings{}, err
	}
	return calibration.Settings{
		Layout:      layout,
		Min:         int64(c.Min),
		Max:         int64(c.Max),
		BucketCount: c.BucketCount,
	}, nil
}

// BuildPolicy returns the calibration policy the config describes. Call
// Validate first.
func (c *Config) BuildPolicy() (calibration.Policy, error) {
	defaults, err := c.Defaults()
	if err != nil {
		return nil, err
	}
	switch c.Policy {
	case PolicyAuto:
		return calibration.NewAutoPolicy(c.WarmupThreshold, c.BucketCount, defaults.Layout), nil
	case PolicyFixed:
		return &calibration.FixedPolicy{Settings: defaults}, nil
	case PolicyProperties:
		return calibration.NewPropertiesPolicy(c.Properties(), defaults), nil
	default:
		return nil, fmt.Errorf("unknown policy %q", c.Policy)
	}
}

// Properties flattens Timers into dotted keys.
func (c *Config) Properties() calibration.MapProperties {
	props := make(calibration.MapProperties)
	flatten("", c.Timers, props)
	return props
}

func flatten(prefix string, node map[string]interface{}, out calibration.MapProperties) {
	keys := make([]string, 0, len(node))
	for k := range node {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch v := node[k].(type) {
		case map[string]interface{}:
			flatten(key, v, out)
		case nil:
		default:
			out[key] = fmt.Sprint(v)
		}
	}
}
