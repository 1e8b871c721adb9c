// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	// Surface construction
	ErrEmptyInput      = errors.New("no observation points")
	ErrDegenerateRange = errors.New("degenerate coordinate range")
	ErrInternal        = errors.New("internal numerical failure")

	// Quote collection
	ErrNoOptionData     = errors.New("no option data available")
	ErrInvalidTicker    = errors.New("invalid ticker")
	ErrConnectionFailed = errors.New("connection failed")
	ErrRateLimited      = errors.New("rate limited")
	ErrUnauthorized     = errors.New("request refused by provider")
	ErrTimeout          = errors.New("operation timed out")

	// Storage and configuration
	ErrDataNotFound  = errors.New("data not found")
	ErrDatabaseError = errors.New("database error")
	ErrConfigInvalid = errors.New("invalid configuration")
)

// DegenerateRangeError reports an axis that spans fewer than two distinct values,
// or an observation set whose points are all collinear (Axis "xy").
type DegenerateRangeError struct {
	Axis     string
	Distinct int
	Err      error
}

func (e *DegenerateRangeError) Error() string {
	msg := fmt.Sprintf("degenerate range on %s axis", e.Axis)
	if e.Axis == "xy" {
		msg = "observation points are collinear"
	} else if e.Distinct >= 0 {
		msg = fmt.Sprintf("%s (%d distinct value(s), need at least 2)", msg, e.Distinct)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Is lets errors.Is match ErrDegenerateRange.
func (e *DegenerateRangeError) Is(target error) bool {
	return target == ErrDegenerateRange
}

func (e *DegenerateRangeError) Unwrap() error {
	return e.Err
}

// NewDegenerateRangeError creates a new DegenerateRangeError.
func NewDegenerateRangeError(axis string, distinct int, err error) *DegenerateRangeError {
	return &DegenerateRangeError{
		Axis:     axis,
		Distinct: distinct,
		Err:      err,
	}
}

// DataError represents a data-related error.
type DataError struct {
	DataType string
	Symbol   string
	Message  string
	Err      error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %s: %v", e.DataType, e.Symbol, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s: %s", e.DataType, e.Symbol, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(dataType, symbol, message string, err error) *DataError {
	return &DataError{
		DataType: dataType,
		Symbol:   symbol,
		Message:  message,
		Err:      err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// IsNoData reports whether err means there was nothing to plot, as opposed to a failure.
func IsNoData(err error) bool {
	return errors.Is(err, ErrNoOptionData) || errors.Is(err, ErrEmptyInput)
}
