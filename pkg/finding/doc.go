// Package finding defines the vulnerability vocabulary shared by the
// detectors, the tester, the aggregator and every reporting collaborator:
// severities, vulnerability families, payload categories and the Finding
// record itself.
//
// Category drives severity through a static table:
//
//	sev := finding.CategoryPolyglot.Severity() // finding.High
package finding
