package detect

import (
	"fmt"
	"strings"

	"github.com/waftester/injectscan/pkg/payloads"
	"github.com/waftester/injectscan/pkg/regexcache"
)

// dbErrors are vendor error strings and stack-trace markers that leak when
// injected SQL breaks a query.
var dbErrors = regexcache.MustSet(
	regexcache.Signature{Name: "mysql", Pattern: `(?i)SQL syntax.*MySQL`},
	regexcache.Signature{Name: "mysql", Pattern: `(?i)You have an error in your SQL syntax`},
	regexcache.Signature{Name: "mysql", Pattern: `(?i)Warning.*mysqli?_`},
	regexcache.Signature{Name: "mysql", Pattern: `(?i)valid MySQL result`},
	regexcache.Signature{Name: "mysql", Pattern: `(?i)com\.mysql\.jdbc`},
	regexcache.Signature{Name: "postgresql", Pattern: `(?i)PostgreSQL.*ERROR`},
	regexcache.Signature{Name: "postgresql", Pattern: `(?i)ERROR:\s*syntax error at or near`},
	regexcache.Signature{Name: "postgresql", Pattern: `(?i)org\.postgresql\.util\.PSQLException`},
	regexcache.Signature{Name: "postgresql", Pattern: `(?i)PG::SyntaxError`},
	regexcache.Signature{Name: "mssql", Pattern: `(?i)Unclosed quotation mark after`},
	regexcache.Signature{Name: "mssql", Pattern: `(?i)Microsoft SQL Native Client error`},
	regexcache.Signature{Name: "mssql", Pattern: `(?i)ODBC SQL Server Driver`},
	regexcache.Signature{Name: "mssql", Pattern: `(?i)Incorrect syntax near`},
	regexcache.Signature{Name: "oracle", Pattern: `(?i)\bORA-[0-9]{4,}`},
	regexcache.Signature{Name: "oracle", Pattern: `(?i)quoted string not properly terminated`},
	regexcache.Signature{Name: "sqlite", Pattern: `(?i)SQLite.*error`},
	regexcache.Signature{Name: "sqlite", Pattern: `(?i)\[SQLITE_ERROR\]`},
	regexcache.Signature{Name: "sqlstate", Pattern: `SQLSTATE\[?[0-9A-Z]{5}`},
	regexcache.Signature{Name: "pdo", Pattern: `PDOException`},
	regexcache.Signature{Name: "jdbc", Pattern: `JDBCException|java\.sql\.SQLException`},
	regexcache.Signature{Name: "odbc", Pattern: `ODBCException`},
	regexcache.Signature{Name: "generic", Pattern: `(?i)\bSQL (?:syntax|error)\b`},
)

// ErrorTime detects SQL injection from database error signatures and from
// delays caused by time-delay payloads.
type ErrorTime struct {
	cfg    Config
	tokens []string
}

// NewErrorTime returns the error/time detector for cfg.
func NewErrorTime(cfg Config) *ErrorTime {
	if cfg.TimeThreshold <= 0 {
		cfg.TimeThreshold = DefaultConfig().TimeThreshold
	}
	d := &ErrorTime{cfg: cfg}
	if cfg.Heuristic {
		tokens := cfg.HeuristicTokens
		if len(tokens) == 0 {
			tokens = DefaultConfig().HeuristicTokens
		}
		for _, tok := range tokens {
			if tok = strings.ToLower(strings.TrimSpace(tok)); tok != "" {
				d.tokens = append(d.tokens, tok)
			}
		}
	}
	return d
}

// Detect implements Detector.
func (d *ErrorTime) Detect(p payloads.Payload, resp Response) Result {
	if marker, ok := Challenge(resp); ok {
		return undetermined(marker)
	}
	if m, ok := dbErrors.First(resp.Body); ok {
		return Result{Verdict: Vulnerable, Reason: "database error (" + m.Name + ")", Evidence: snippet(resp.Body, m.Start)}
	}
	if p.TimeDelay() && resp.Elapsed > d.cfg.TimeThreshold {
		return Result{
			Verdict: Vulnerable,
			Reason:  "time delay",
			Evidence: fmt.Sprintf("response took %dms, threshold %dms",
				resp.Elapsed.Milliseconds(), d.cfg.TimeThreshold.Milliseconds()),
		}
	}
	if len(d.tokens) > 0 {
		lower := strings.ToLower(resp.Body)
		src := resp.Body
		if len(src) != len(lower) {
			src = lower
		}
		for _, tok := range d.tokens {
			if at := strings.Index(lower, tok); at >= 0 {
				return Result{Verdict: Vulnerable, Reason: "heuristic token " + tok, Evidence: snippet(src, at)}
			}
		}
	}
	return Result{}
}
