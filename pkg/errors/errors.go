// Unified error handling for ikchain
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
)

// ErrorCode represents the category of error
type ErrorCode string

const (
	// Configuration errors
	ErrConfigSection    ErrorCode = "CONFIG_SECTION"
	ErrConfigOption     ErrorCode = "CONFIG_OPTION"
	ErrConfigValidation ErrorCode = "CONFIG_VALIDATION"
	ErrConfigType       ErrorCode = "CONFIG_TYPE"

	// Chain errors
	ErrChainInvalid ErrorCode = "CHAIN_INVALID"

	// Solver errors
	ErrSolverDimension  ErrorCode = "SOLVER_DIMENSION"
	ErrSolverOptions    ErrorCode = "SOLVER_OPTIONS"
	ErrSolverEvaluation ErrorCode = "SOLVER_EVALUATION"

	// Session errors
	ErrSessionMethod ErrorCode = "SESSION_METHOD"
	ErrSessionParams ErrorCode = "SESSION_PARAMS"

	// Runtime errors
	ErrRuntime ErrorCode = "RUNTIME"
)

// Error is the unified error type for ikchain
type Error struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Section is the config section or context
	Section string

	// Option is the config option name (if applicable)
	Option string

	// Err wraps the underlying error
	Err error

	// Context provides additional context
	Context map[string]interface{}
}

// Error implements the error interface
func (e *Error) Error() string {
	where := e.Section
	if e.Option != "" {
		where = e.Option
	}
	if where == "" {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Code, where, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// SetSection sets the context section
func (e *Error) SetSection(section string) *Error {
	e.Section = section
	return e
}

// SetOption sets the config option
func (e *Error) SetOption(option string) *Error {
	e.Option = option
	return e
}

// SetContext adds additional context
func (e *Error) SetContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Wrap wraps an existing error with additional context
func Wrap(err error, code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// New creates a new Error
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new Error with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Config errors

// ConfigSectionError creates an error for missing config section
func ConfigSectionError(section string) *Error {
	return New(ErrConfigSection, fmt.Sprintf("section '%s' not found", section)).
		SetSection(section)
}

// ConfigValidationError creates an error for config validation failure
func ConfigValidationError(section, option string, reason string) *Error {
	return New(ErrConfigValidation, fmt.Sprintf("option '%s' in section '%s': %s", option, section, reason)).
		SetSection(section).
		SetOption(option)
}

// ConfigTypeError creates an error for config type conversion failure
func ConfigTypeError(section, option, value string, targetType string, err error) *Error {
	return Wrap(err, ErrConfigType, fmt.Sprintf("option '%s' in section '%s': failed to parse '%s' as %s", option, section, value, targetType)).
		SetSection(section).
		SetOption(option)
}

// Chain errors

// ChainInvalidError creates an error for a malformed chain or target
func ChainInvalidError(message string) *Error {
	return New(ErrChainInvalid, message)
}

// Solver errors

// DimensionError creates an error for mismatched vector or matrix sizes
func DimensionError(what string, got, want int) *Error {
	return New(ErrSolverDimension, fmt.Sprintf("%s has length %d, expected %d", what, got, want)).
		SetContext("got", got).
		SetContext("want", want)
}

// OptionsError creates an error for invalid solver options
func OptionsError(option string, reason string) *Error {
	return New(ErrSolverOptions, fmt.Sprintf("%s: %s", option, reason)).SetOption(option)
}

// EvaluationError wraps a failure returned by a problem evaluation
func EvaluationError(iteration int, err error) *Error {
	return Wrap(err, ErrSolverEvaluation, fmt.Sprintf("evaluation failed at iteration %d: %v", iteration, err)).
		SetContext("iteration", iteration)
}

// Runtime errors

// RuntimeError creates a general runtime error
func RuntimeError(message string) *Error {
	return New(ErrRuntime, message)
}

// RecoverPanic safely recovers from panic and converts to error.
// It must be called directly by a deferred function.
func RecoverPanic(r interface{}) *Error {
	if r == nil {
		return nil
	}
	switch x := r.(type) {
	case runtime.Error:
		return Wrap(x, ErrRuntime, x.Error())
	case error:
		return Wrap(x, ErrRuntime, x.Error())
	case string:
		return RuntimeError(fmt.Sprintf("panic: %s", x))
	default:
		return RuntimeError(fmt.Sprintf("panic: %v", x))
	}
}

// Is checks if any error in err's chain carries the given code
func Is(err error, code ErrorCode) bool {
	var e *Error
	for err != nil {
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Err
	}
	return false
}

// CodeOf returns the code of the first Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsConfig checks if error is a config error
func IsConfig(err error) bool {
	return Is(err, ErrConfigSection) ||
		Is(err, ErrConfigOption) ||
		Is(err, ErrConfigValidation) ||
		Is(err, ErrConfigType)
}

// IsSolver checks if error is a solver error
func IsSolver(err error) bool {
	return Is(err, ErrSolverDimension) ||
		Is(err, ErrSolverOptions) ||
		Is(err, ErrSolverEvaluation)
}
