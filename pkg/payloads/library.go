package payloads

import (
	"fmt"
	"maps"
	"slices"

	"github.com/waftester/injectscan/pkg/finding"
)

// Library is an immutable payload set. All accessors return copies.
type Library struct {
	payloads []Payload
	byFamily map[finding.Family][]Payload
}

// New validates ps and builds a library. Exact duplicates (same category
// and value) collapse to the first occurrence.
func New(ps ...Payload) (*Library, error) {
	l := &Library{byFamily: make(map[finding.Family][]Payload)}
	seen := make(map[Payload]struct{}, len(ps))
	for i, p := range ps {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("payload %d: %w", i, err)
		}
		key := Payload{Category: p.Category, Value: p.Value}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		l.payloads = append(l.payloads, p)
		l.byFamily[p.Family()] = append(l.byFamily[p.Family()], p)
	}
	if len(l.payloads) == 0 {
		return nil, ErrEmptyLibrary
	}
	return l, nil
}

// MustNew is New for static tables; it panics on error.
func MustNew(ps ...Payload) *Library {
	l, err := New(ps...)
	if err != nil {
		panic(err)
	}
	return l
}

// Default returns the built-in library.
func Default() *Library {
	return MustNew(builtin...)
}

// All returns every payload in declaration order.
func (l *Library) All() []Payload {
	return slices.Clone(l.payloads)
}

// Select returns the payloads of the given families, in family order.
// With no families it returns All.
func (l *Library) Select(families ...finding.Family) []Payload {
	if len(families) == 0 {
		return l.All()
	}
	var out []Payload
	for _, f := range families {
		out = append(out, l.byFamily[f]...)
	}
	return out
}

// Len returns the number of payloads.
func (l *Library) Len() int {
	return len(l.payloads)
}

// Counts returns the number of payloads per category.
func (l *Library) Counts() map[finding.Category]int {
	counts := make(map[finding.Category]int)
	for _, p := range l.payloads {
		counts[p.Category]++
	}
	return counts
}

// Categories returns the categories present, sorted.
func (l *Library) Categories() []finding.Category {
	return slices.Sorted(maps.Keys(l.Counts()))
}

// WithTampers returns a new library holding l's payloads plus one variant
// per (payload, tamper) pair whose output differs from the input. XSS
// variants are reclassified as WAF-bypass; SQLi variants keep their
// category. l is unchanged.
func (l *Library) WithTampers(tampers ...*Tamper) (*Library, error) {
	out := slices.Clone(l.payloads)
	for _, t := range tampers {
		for _, p := range l.payloads {
			value, err := t.Apply(p.Value)
			if err != nil {
				return nil, err
			}
			if value == "" || value == p.Value {
				continue
			}
			variant := Payload{
				Category:    p.Category,
				Value:       value,
				Description: fmt.Sprintf("%s (tamper: %s)", p.Description, t.Name()),
			}
			if p.Family() == finding.FamilyXSS {
				variant.Category = finding.CategoryWAFBypass
			}
			out = append(out, variant)
		}
	}
	return New(out...)
}
