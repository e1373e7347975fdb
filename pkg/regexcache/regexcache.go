// Package regexcache caches compiled regular expressions and groups them
// into signature sets for response matching.
package regexcache

import (
	"regexp"
	"sync"
)

var cache sync.Map

// Get returns the compiled form of pattern, compiling it at most once per
// process.
func Get(pattern string) (*regexp.Regexp, error) {
	if cached, ok := cache.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	actual, _ := cache.LoadOrStore(pattern, re)
	return actual.(*regexp.Regexp), nil
}

// MustGet is like Get but panics on an invalid pattern. Use it only for
// patterns that are compile-time constants.
func MustGet(pattern string) *regexp.Regexp {
	re, err := Get(pattern)
	if err != nil {
		panic(err)
	}
	return re
}

// Signature is one named pattern in a Set.
type Signature struct {
	Name    string
	Pattern string
}

// Set is an ordered list of compiled signatures. It is immutable after
// NewSet and safe for concurrent use.
type Set struct {
	names []string
	res   []*regexp.Regexp
}

// NewSet compiles every signature. It returns the first compile error.
func NewSet(sigs ...Signature) (*Set, error) {
	s := &Set{
		names: make([]string, 0, len(sigs)),
		res:   make([]*regexp.Regexp, 0, len(sigs)),
	}
	for _, sig := range sigs {
		re, err := Get(sig.Pattern)
		if err != nil {
			return nil, err
		}
		s.names = append(s.names, sig.Name)
		s.res = append(s.res, re)
	}
	return s, nil
}

// MustSet is like NewSet but panics on error.
func MustSet(sigs ...Signature) *Set {
	s, err := NewSet(sigs...)
	if err != nil {
		panic(err)
	}
	return s
}

// Match is the first signature hit in a subject.
type Match struct {
	Name  string
	Text  string
	Start int
	End   int
}

// First returns the first signature, in declaration order, matching
// subject.
func (s *Set) First(subject string) (Match, bool) {
	if s == nil {
		return Match{}, false
	}
	for i, re := range s.res {
		if loc := re.FindStringIndex(subject); loc != nil {
			return Match{
				Name:  s.names[i],
				Text:  subject[loc[0]:loc[1]],
				Start: loc[0],
				End:   loc[1],
			}, true
		}
	}
	return Match{}, false
}

// Len returns the number of signatures.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.res)
}
