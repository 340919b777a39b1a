package calibration

import (
	"github.com/saveenergy/openquantile/internal/histogram"
	"github.com/saveenergy/openquantile/internal/logging"
)

// LoggerSink writes snapshots to a leveled logger at info level.
type LoggerSink struct {
	Logger *logging.Logger
}

func NewLoggerSink(logger *logging.Logger) *LoggerSink {
	if logger == nil {
		logger = logging.NewLogger("quantiles")
	}
	return &LoggerSink{Logger: logger}
}

func (s *LoggerSink) LogSample(timer string, sample *histogram.BucketsSample) {
	s.Logger.Info("quantiles",
		logging.F("timer", timer),
		logging.F("total", sample.Total),
		logging.F("median", sample.Median),
		logging.F("p90", sample.P90),
		logging.F("buckets", sample.String()))
}
