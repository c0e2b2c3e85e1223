// Package config parses INI-style configuration files with access tracking,
// so options nobody read can be reported as mistakes.
package config

import (
	"fmt"

	"ikchain/pkg/errors"
)

// errMissingOption returns an error for a required but missing option.
func errMissingOption(section, option string) *errors.Error {
	return errors.New(errors.ErrConfigOption,
		fmt.Sprintf("option '%s' in section '%s': must be specified", option, section)).
		SetSection(section).
		SetOption(option)
}

// errInvalidValue returns an error for a value that does not parse.
func errInvalidValue(section, option, value, expected string, cause error) *errors.Error {
	return errors.ConfigTypeError(section, option, value, expected, cause)
}

// errOutOfRange returns an error for a value outside the allowed range.
func errOutOfRange(section, option string, value float64, constraint string) *errors.Error {
	return errors.ConfigValidationError(section, option, fmt.Sprintf("value %v %s", value, constraint))
}

// errInvalidChoice returns an error for an invalid choice value.
func errInvalidChoice(section, option, value string, choices []string) *errors.Error {
	return errors.ConfigValidationError(section, option,
		fmt.Sprintf("'%s' is not a valid choice (valid: %v)", value, choices))
}
