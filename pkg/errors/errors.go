package errors

import (
	"errors"
	"fmt"
)

type QuantileError struct {
	Code    string
	Message string
	Cause   error
	Timer   string
}

func (e *QuantileError) Error() string {
	prefix := e.Code
	if e.Timer != "" {
		prefix = fmt.Sprintf("%s [%s]", e.Code, e.Timer)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *QuantileError) Unwrap() error { return e.Cause }

// Is matches any *QuantileError carrying the same code, so callers can test
// against the exported sentinels with errors.Is.
func (e *QuantileError) Is(target error) bool {
	t, ok := target.(*QuantileError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

const (
	ErrCodeInvalidConfig    = "INVALID_CONFIG"
	ErrCodeInvalidArgument  = "INVALID_ARGUMENT"
	ErrCodeInsufficientData = "INSUFFICIENT_DATA"
	ErrCodeOutOfRange       = "OUT_OF_RANGE"
)

var (
	ErrInvalidConfiguration = &QuantileError{Code: ErrCodeInvalidConfig}
	ErrInvalidArgument      = &QuantileError{Code: ErrCodeInvalidArgument}
	ErrInsufficientData     = &QuantileError{Code: ErrCodeInsufficientData}
	ErrOutOfRange           = &QuantileError{Code: ErrCodeOutOfRange}
)

func InvalidConfig(msg string, cause error) *QuantileError {
	return &QuantileError{
		Code:    ErrCodeInvalidConfig,
		Message: msg,
		Cause:   cause,
	}
}

func InvalidArgument(msg string) *QuantileError {
	return &QuantileError{
		Code:    ErrCodeInvalidArgument,
		Message: msg,
	}
}

func InsufficientData(populated, required int) *QuantileError {
	return &QuantileError{
		Code:    ErrCodeInsufficientData,
		Message: fmt.Sprintf("only %d populated buckets, need at least %d", populated, required),
	}
}

// OutOfRange reports a quantile that fell into a sentinel bucket. hint says
// which bound should move.
func OutOfRange(ratio float64, hint string) *QuantileError {
	return &QuantileError{
		Code:    ErrCodeOutOfRange,
		Message: fmt.Sprintf("quantile %.3f is out of histogram range, %s", ratio, hint),
	}
}

// WithTimer returns a copy of err tagged with the timer name. Errors that are
// not *QuantileError are returned unchanged.
func WithTimer(err error, timer string) error {
	var qe *QuantileError
	if !errors.As(err, &qe) {
		return err
	}
	cp := *qe
	cp.Timer = timer
	return &cp
}

// IsRecoverable reports whether err is expected during normal operation and
// should degrade to "no value" rather than fail a report.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrInsufficientData) || errors.Is(err, ErrOutOfRange)
}

func HasCode(err error, code string) bool {
	var qe *QuantileError
	if !errors.As(err, &qe) {
		return false
	}
	return qe.Code == code
}
