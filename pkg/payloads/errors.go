package payloads

import "errors"

var (
	// ErrEmptyValue rejects a payload with no attack string.
	ErrEmptyValue = errors.New("payloads: empty payload value")

	// ErrEmptyLibrary is returned when construction leaves no payloads.
	ErrEmptyLibrary = errors.New("payloads: library is empty")

	// ErrMissingTransform rejects a tamper script without a transform function.
	ErrMissingTransform = errors.New("payloads: tamper script defines no transform")
)
