// Package payloads is the scanner's payload library: an immutable,
// categorized set of attack strings built once at startup and shared by
// every tester worker without locking.
package payloads

import (
	"fmt"
	"strings"

	"github.com/waftester/injectscan/pkg/finding"
	"github.com/waftester/injectscan/pkg/regexcache"
)

// Payload is a single attack string.
type Payload struct {
	Category    finding.Category `yaml:"category" json:"category"`
	Value       string           `yaml:"value" json:"value"`
	Description string           `yaml:"description" json:"description,omitempty"`
}

var timeDelayPattern = regexcache.MustGet(`(?i)(\bsleep\s*\(|\bwaitfor\s+delay\b|\bpg_sleep\s*\()`)

// Family returns the detector family the payload is evaluated with.
func (p Payload) Family() finding.Family {
	return p.Category.Family()
}

// Severity returns the severity a confirmed hit of p carries.
func (p Payload) Severity() finding.Severity {
	return p.Category.Severity()
}

// TimeDelay reports whether the value encodes a deliberate server-side
// delay (SLEEP, WAITFOR DELAY, pg_sleep).
func (p Payload) TimeDelay() bool {
	return timeDelayPattern.MatchString(p.Value)
}

// Validate checks that the payload can be used.
func (p Payload) Validate() error {
	if strings.TrimSpace(p.Value) == "" {
		return ErrEmptyValue
	}
	if !p.Category.IsValid() {
		return fmt.Errorf("%w: %q", finding.ErrUnknownCategory, p.Category)
	}
	return nil
}
