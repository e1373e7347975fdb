package config

import "errors"

var (
	// ErrInvalidConfig marks a setting that is malformed or out of range.
	ErrInvalidConfig = errors.New("config: invalid setting")

	// ErrMissingRequired marks a required setting left empty.
	ErrMissingRequired = errors.New("config: missing required setting")
)
