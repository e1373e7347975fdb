package finding

import (
	"fmt"
	"strings"
)

// Family is a vulnerability class. Each family has its own detector.
type Family string

const (
	FamilyXSS  Family = "xss"
	FamilySQLi Family = "sqli"

	// FamilyNone marks the explicit "no vulnerabilities found" record.
	FamilyNone Family = "none"
)

// Families lists the scannable families in reporting order.
var Families = []Family{FamilyXSS, FamilySQLi}

// ParseFamily maps a case-insensitive name to a scannable Family.
func ParseFamily(name string) (Family, error) {
	switch f := Family(strings.ToLower(strings.TrimSpace(name))); f {
	case FamilyXSS, FamilySQLi:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFamily, name)
}

// Label is the human-readable family name used in reports.
func (f Family) Label() string {
	switch f {
	case FamilyXSS:
		return "Cross-Site Scripting"
	case FamilySQLi:
		return "SQL Injection"
	case FamilyNone:
		return "None"
	}
	return string(f)
}

// Category classifies a payload. It selects the detector (via Family) and
// the severity of any resulting finding.
type Category string

const (
	CategoryReflected  Category = "reflected-xss"
	CategoryStored     Category = "stored-xss"
	CategoryDOM        Category = "dom-xss"
	CategoryPolyglot   Category = "polyglot-xss"
	CategoryWAFBypass  Category = "waf-bypass-xss"
	CategoryErrorBased Category = "error-based-sqli"
	CategoryTimeBased  Category = "time-based-sqli"
	CategoryUnion      Category = "union-sqli"
	CategoryBoolean    Category = "boolean-sqli"
)

type categoryInfo struct {
	family   Family
	severity Severity
}

var categories = map[Category]categoryInfo{
	CategoryReflected:  {FamilyXSS, Medium},
	CategoryDOM:        {FamilyXSS, Medium},
	CategoryStored:     {FamilyXSS, High},
	CategoryPolyglot:   {FamilyXSS, High},
	CategoryWAFBypass:  {FamilyXSS, High},
	CategoryErrorBased: {FamilySQLi, High},
	CategoryTimeBased:  {FamilySQLi, High},
	CategoryUnion:      {FamilySQLi, High},
	CategoryBoolean:    {FamilySQLi, High},
}

// IsValid reports whether c is a known category.
func (c Category) IsValid() bool {
	_, ok := categories[c]
	return ok
}

// Family returns the vulnerability family the category belongs to.
func (c Category) Family() Family {
	return categories[c].family
}

// Severity returns the severity assigned to confirmed hits of this category.
// Unknown categories map to Info.
func (c Category) Severity() Severity {
	if info, ok := categories[c]; ok {
		return info.severity
	}
	return Info
}
