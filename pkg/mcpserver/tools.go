package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/waftester/injectscan/pkg/finding"
	"github.com/waftester/injectscan/pkg/payloads"
	"github.com/waftester/injectscan/pkg/report"
	"github.com/waftester/injectscan/pkg/scan"
)

func (s *Server) registerTools() {
	s.addScanTool()
	s.addListPayloadsTool()
	s.addGetJobTool()
}

func familyNames() []string {
	out := make([]string, 0, len(finding.Families))
	for _, f := range finding.Families {
		out = append(out, string(f))
	}
	return out
}

// ═══════════════════════════════════════════════════════════════════════════
// scan: crawl a target and inject every discovered input point
// ═══════════════════════════════════════════════════════════════════════════

func (s *Server) addScanTool() {
	s.mcp.AddTool(
		&mcp.Tool{
			Name:  "scan",
			Title: "Scan Target for XSS and SQLi",
			Description: `Crawl a web application from a seed URL and test every discovered input point (query parameters and HTML forms) with XSS and SQL injection payloads.

USE THIS TOOL WHEN:
• The user asks whether a site is vulnerable to XSS or SQL injection
• You need findings with the exact payload, URL and parameter that triggered them

DO NOT USE THIS TOOL WHEN:
• You only want to see what would be sent: use 'list_payloads'
• You want a past result again: use 'get_job' with its jobId

This tool SENDS ATTACK TRAFFIC to the target. Only scan targets you are authorized to test.
Shallow scans follow links one level deep; deep scans go three levels.

EXAMPLE INPUTS:
• Quick scan: {"target": "https://app.example.com/search?q=1"}
• Deep SQLi only: {"target": "https://app.example.com", "deep": true, "scanners": ["sqli"]}

Returns: the job report with status, severity summary and findings. A scan with nothing found returns one informational "no vulnerabilities" record.`,
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"target": map[string]any{
						"type":        "string",
						"description": "Seed URL with http or https scheme.",
						"format":      "uri",
					},
					"deep": map[string]any{
						"type":        "boolean",
						"description": "Crawl three levels instead of one.",
						"default":     false,
					},
					"scanners": map[string]any{
						"type":        "array",
						"description": "Vulnerability families to test. Empty means the configured default.",
						"items": map[string]any{
							"type": "string",
							"enum": familyNames(),
						},
					},
				},
				"required": []string{"target"},
			},
			Annotations: &mcp.ToolAnnotations{
				ReadOnlyHint:    false,
				DestructiveHint: boolPtr(false),
				IdempotentHint:  false,
				OpenWorldHint:   boolPtr(true),
				Title:           "Scan Target for XSS and SQLi",
			},
		},
		s.handleScan,
	)
}

type scanArgs struct {
	Target   string   `json:"target"`
	Deep     bool     `json:"deep"`
	Scanners []string `json:"scanners"`
}

func (s *Server) handleScan(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args scanArgs
	if err := parseArgs(req, &args); err != nil {
		return errorResult(fmt.Sprintf("invalid arguments: %v. Expected 'target' (string), optional 'deep' (boolean) and 'scanners' (array of %s).",
			err, strings.Join(familyNames(), ", "))), nil
	}
	if strings.TrimSpace(args.Target) == "" {
		return errorResult("target URL is required (e.g. https://example.com)"), nil
	}
	if s.config.Runner == nil {
		return errorResult("scanning is not configured on this server"), nil
	}
	families, err := scan.ParseScanners(args.Scanners)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	if len(args.Scanners) == 0 && len(s.config.Scanners) > 0 {
		families = s.config.Scanners
	}

	scanReq := scan.Request{TargetURL: args.Target, DeepScan: args.Deep, Scanners: families}
	s.logger.Info("mcp scan", slog.String("target", args.Target), slog.Bool("deep", args.Deep))
	out, err := s.config.Runner.Run(ctx, scanReq)
	if err != nil {
		if errors.Is(err, scan.ErrInvalidRequest) {
			return errorResult(fmt.Sprintf("%v. Provide an absolute http(s) URL such as https://example.com/page?id=1.", err)), nil
		}
		return errorResult(fmt.Sprintf("scan failed: %v", err)), nil
	}
	return jsonResult(report.FromJob(s.jobFor(out, scanReq)))
}

// jobFor prefers the stored job and falls back to the outcome.
func (s *Server) jobFor(out *scan.Outcome, req scan.Request) scan.Job {
	if s.config.Jobs != nil {
		if job, err := s.config.Jobs.Get(out.JobID); err == nil {
			return job
		}
	}
	job := scan.Job{
		ID:        out.JobID,
		TargetURL: req.TargetURL,
		Mode:      scan.ModeFor(req.DeepScan),
		Scanners:  req.Scanners,
		Status:    out.Status,
		StartedAt: out.StartedAt,
		Findings:  out.Findings,
		Error:     out.Error,
	}
	if !out.CompletedAt.IsZero() {
		at := out.CompletedAt
		job.CompletedAt = &at
	}
	return job
}

// ═══════════════════════════════════════════════════════════════════════════
// list_payloads: browse the payload library
// ═══════════════════════════════════════════════════════════════════════════

func (s *Server) addListPayloadsTool() {
	s.mcp.AddTool(
		&mcp.Tool{
			Name:  "list_payloads",
			Title: "List Payloads",
			Description: `Browse the payload library WITHOUT sending any traffic.

USE THIS TOOL WHEN:
• The user asks which attacks or payload categories are supported
• You want to check what a scan would send before running 'scan'

This is a READ-ONLY local operation.

EXAMPLE INPUTS:
• Everything: {}
• SQL injection only: {"family": "sqli"}
• One category: {"category": "time-based-sqli", "limit": 5}

Returns: total count, per-category counts, and the matching payloads (up to 'limit').`,
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"family": map[string]any{
						"type":        "string",
						"description": "Only payloads of this vulnerability family.",
						"enum":        familyNames(),
					},
					"category": map[string]any{
						"type":        "string",
						"description": "Only payloads of this category, e.g. reflected-xss or union-sqli.",
					},
					"limit": map[string]any{
						"type":        "integer",
						"description": "Maximum payloads to return.",
						"default":     defaultPayloadLimit,
						"minimum":     1,
					},
				},
			},
			Annotations: &mcp.ToolAnnotations{
				ReadOnlyHint:   true,
				IdempotentHint: true,
				OpenWorldHint:  boolPtr(false),
				Title:          "List Payloads",
			},
		},
		s.handleListPayloads,
	)
}

const defaultPayloadLimit = 20

type listPayloadsArgs struct {
	Family   string `json:"family"`
	Category string `json:"category"`
	Limit    int    `json:"limit"`
}

type payloadEntry struct {
	Category    finding.Category `json:"category"`
	Family      finding.Family   `json:"family"`
	Severity    finding.Severity `json:"severity"`
	Value       string           `json:"value"`
	Description string           `json:"description,omitempty"`
}

type payloadSummary struct {
	Total         int                      `json:"total"`
	Matched       int                      `json:"matched"`
	ByCategory    map[finding.Category]int `json:"byCategory"`
	FilterApplied string                   `json:"filterApplied,omitempty"`
	Payloads      []payloadEntry           `json:"payloads"`
}

func (s *Server) handleListPayloads(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args listPayloadsArgs
	if err := parseArgs(req, &args); err != nil {
		return errorResult(fmt.Sprintf("invalid arguments: %v. Expected optional 'family', 'category' (strings) and 'limit' (integer).", err)), nil
	}
	if args.Limit <= 0 {
		args.Limit = defaultPayloadLimit
	}

	lib := s.config.Library
	var (
		selected []payloads.Payload
		filters  []string
	)
	if args.Family != "" {
		fam, err := finding.ParseFamily(args.Family)
		if err != nil {
			return errorResult(fmt.Sprintf("%v. Valid families: %s.", err, strings.Join(familyNames(), ", "))), nil
		}
		selected = lib.Select(fam)
		filters = append(filters, "family="+string(fam))
	} else {
		selected = lib.All()
	}
	if args.Category != "" {
		cat := finding.Category(strings.ToLower(strings.TrimSpace(args.Category)))
		if !cat.IsValid() {
			names := make([]string, 0)
			for _, c := range lib.Categories() {
				names = append(names, string(c))
			}
			return errorResult(fmt.Sprintf("unknown category %q. Categories in this library: %s.", args.Category, strings.Join(names, ", "))), nil
		}
		kept := selected[:0]
		for _, p := range selected {
			if p.Category == cat {
				kept = append(kept, p)
			}
		}
		selected = kept
		filters = append(filters, "category="+string(cat))
	}

	summary := payloadSummary{
		Total:         lib.Len(),
		Matched:       len(selected),
		ByCategory:    lib.Counts(),
		FilterApplied: strings.Join(filters, ", "),
		Payloads:      make([]payloadEntry, 0, min(len(selected), args.Limit)),
	}
	for _, p := range selected[:min(len(selected), args.Limit)] {
		summary.Payloads = append(summary.Payloads, payloadEntry{
			Category:    p.Category,
			Family:      p.Family(),
			Severity:    p.Severity(),
			Value:       p.Value,
			Description: p.Description,
		})
	}
	return jsonResult(summary)
}

// ═══════════════════════════════════════════════════════════════════════════
// get_job: read back a stored scan
// ═══════════════════════════════════════════════════════════════════════════

func (s *Server) addGetJobTool() {
	s.mcp.AddTool(
		&mcp.Tool{
			Name:  "get_job",
			Title: "Get Scan Job",
			Description: `Read a stored scan job and its findings by job ID.

USE THIS TOOL WHEN:
• You have a jobId from an earlier 'scan' call and need its result again
• The user asks about a previous scan

This is a READ-ONLY local operation.

EXAMPLE INPUT: {"id": "0b9f0a4e-6c1e-4f57-9d55-0a8c2f7f3d11"}

Returns: the job report with status, severity summary and findings.`,
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id": map[string]any{
						"type":        "string",
						"description": "Job ID returned by 'scan'.",
					},
				},
				"required": []string{"id"},
			},
			Annotations: &mcp.ToolAnnotations{
				ReadOnlyHint:   true,
				IdempotentHint: true,
				OpenWorldHint:  boolPtr(false),
				Title:          "Get Scan Job",
			},
		},
		s.handleGetJob,
	)
}

type getJobArgs struct {
	ID string `json:"id"`
}

func (s *Server) handleGetJob(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args getJobArgs
	if err := parseArgs(req, &args); err != nil {
		return errorResult(fmt.Sprintf("invalid arguments: %v. Expected 'id' (string).", err)), nil
	}
	if args.ID == "" {
		return errorResult("id is required. Use the jobId returned by 'scan'."), nil
	}
	if s.config.Jobs == nil {
		return errorResult("no job store is configured on this server"), nil
	}
	job, err := s.config.Jobs.Get(args.ID)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return jsonResult(report.FromJob(job))
}
