// Package mcpserver exposes injectscan as a Model Context Protocol server so
// AI assistants can start scans, browse the payload library and read back
// stored jobs.
//
// # Tools
//
//   - scan:          crawl a target and test its input points for XSS and SQLi
//   - list_payloads: browse the payload library without sending traffic
//   - get_job:       read a stored job and its findings as a report
//
// # Transports
//
//   - stdio: the default, used by IDE integrations. Tools run synchronously.
//   - HTTP:  streamable HTTP, mounted by HTTPHandler next to a /health probe.
//
// Tool results are JSON documents in a single text content block. Tool
// failures are returned as IsError results so the client can read the
// message and correct its arguments.
package mcpserver
