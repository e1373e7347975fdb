package finding

import "errors"

var (
	// ErrNoParameters rejects a finding that names no vulnerable parameter.
	ErrNoParameters = errors.New("finding: no vulnerable parameters")

	// ErrUnknownCategory rejects a payload category outside the table.
	ErrUnknownCategory = errors.New("finding: unknown payload category")

	// ErrUnknownFamily rejects a scanner family name.
	ErrUnknownFamily = errors.New("finding: unknown vulnerability family")
)
