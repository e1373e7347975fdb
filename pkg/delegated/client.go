// Package delegated runs scans through an external ZAP-compatible daemon
// instead of the built-in crawler and tester. The daemon spiders the
// target, runs its active scanner, and its alerts are mapped onto the
// same findings the built-in engine produces.
package delegated

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/waftester/injectscan/pkg/duration"
	"github.com/waftester/injectscan/pkg/iohelper"
	"github.com/waftester/injectscan/pkg/jsonutil"
)

var (
	// ErrDaemon is returned when the daemon answers with an error.
	ErrDaemon = errors.New("delegated: daemon error")

	// ErrInvalidDaemonURL rejects an unusable daemon base URL.
	ErrInvalidDaemonURL = errors.New("delegated: invalid daemon URL")
)

// Alert is one issue reported by the daemon.
type Alert struct {
	ID          string `json:"id"`
	PluginID    string `json:"pluginId"`
	Name        string `json:"name"`
	Alert       string `json:"alert"`
	Risk        string `json:"risk"`
	Confidence  string `json:"confidence"`
	URL         string `json:"url"`
	Method      string `json:"method"`
	Param       string `json:"param"`
	Attack      string `json:"attack"`
	Evidence    string `json:"evidence"`
	Description string `json:"description"`
}

// Title returns the alert's display name.
func (a Alert) Title() string {
	if a.Name != "" {
		return a.Name
	}
	return a.Alert
}

// Client talks to the daemon's JSON API.
type Client struct {
	base       *url.URL
	apiKey     string
	httpClient *http.Client
	timeout    time.Duration
}

// NewClient returns a client for the daemon at baseURL. A nil httpClient
// uses a plain client; each call is bounded by DaemonAPITimeout.
func NewClient(baseURL, apiKey string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDaemonURL, baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{base: u, apiKey: apiKey, httpClient: httpClient, timeout: duration.DaemonAPITimeout}, nil
}

// StartCrawl starts the daemon's spider on target and returns its ID.
// maxChildren limits the links followed per node; 0 is unlimited.
func (c *Client) StartCrawl(ctx context.Context, target string, maxChildren int) (string, error) {
	q := url.Values{"url": {target}, "recurse": {"true"}}
	if maxChildren > 0 {
		q.Set("maxChildren", strconv.Itoa(maxChildren))
	}
	var out struct {
		Scan string `json:"scan"`
	}
	if err := c.get(ctx, "/JSON/spider/action/scan/", q, iohelper.SmallMaxBodySize, &out); err != nil {
		return "", err
	}
	return out.Scan, nil
}

// PollCrawlStatus returns the spider's progress in percent.
func (c *Client) PollCrawlStatus(ctx context.Context, crawlID string) (int, error) {
	return c.status(ctx, "/JSON/spider/view/status/", crawlID)
}

// StartActiveScan starts the active scanner on target and returns its ID.
func (c *Client) StartActiveScan(ctx context.Context, target string) (string, error) {
	q := url.Values{"url": {target}, "recurse": {"true"}}
	var out struct {
		Scan string `json:"scan"`
	}
	if err := c.get(ctx, "/JSON/ascan/action/scan/", q, iohelper.SmallMaxBodySize, &out); err != nil {
		return "", err
	}
	return out.Scan, nil
}

// PollScanStatus returns the active scan's progress in percent.
func (c *Client) PollScanStatus(ctx context.Context, scanID string) (int, error) {
	return c.status(ctx, "/JSON/ascan/view/status/", scanID)
}

// FetchAlerts returns every alert raised under baseURL.
func (c *Client) FetchAlerts(ctx context.Context, baseURL string) ([]Alert, error) {
	var out struct {
		Alerts []Alert `json:"alerts"`
	}
	if err := c.get(ctx, "/JSON/core/view/alerts/", url.Values{"baseurl": {baseURL}}, iohelper.PageMaxBodySize, &out); err != nil {
		return nil, err
	}
	return out.Alerts, nil
}

func (c *Client) status(ctx context.Context, path, id string) (int, error) {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, path, url.Values{"scanId": {id}}, iohelper.SmallMaxBodySize, &out); err != nil {
		return 0, err
	}
	pct, err := strconv.Atoi(out.Status)
	if err != nil {
		return 0, fmt.Errorf("%w: bad status %q", ErrDaemon, out.Status)
	}
	return min(max(pct, 0), 100), nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, limit int64, v any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.apiKey != "" {
		q.Set("apikey", c.apiKey)
	}
	u := c.base.JoinPath(path)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("X-ZAP-API-Key", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	body, err := iohelper.ReadAndClose(resp.Body, limit)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if jsonutil.UnmarshalLenient(body, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("%w: %s: %s (%s)", ErrDaemon, path, apiErr.Message, apiErr.Code)
		}
		return fmt.Errorf("%w: %s: status %d", ErrDaemon, path, resp.StatusCode)
	}
	if err := jsonutil.UnmarshalLenient(body, v); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrDaemon, path, err)
	}
	return nil
}
