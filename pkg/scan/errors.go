package scan

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest is a validation failure detected before any
	// network activity.
	ErrInvalidRequest = errors.New("scan: invalid request")

	// ErrInvalidTarget is an unparseable or non-HTTP target URL.
	ErrInvalidTarget = fmt.Errorf("%w: invalid target URL", ErrInvalidRequest)

	// ErrStoreUnavailable means the job store rejected a write.
	ErrStoreUnavailable = errors.New("scan: job store unavailable")

	// ErrInvalidTransition is an attempt to leave a terminal state or to
	// skip a state.
	ErrInvalidTransition = errors.New("scan: invalid status transition")

	// ErrJobNotFound is returned by Cancel and Job for unknown IDs.
	ErrJobNotFound = errors.New("scan: job not found")
)
