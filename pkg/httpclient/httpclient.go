// Package httpclient builds the HTTP client shared by the crawler, the
// tester and the daemon client: pooled connections, optional HTTP or SOCKS
// proxy, optional browser TLS fingerprint, and fixed request headers.
package httpclient

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/waftester/injectscan/pkg/defaults"
	"github.com/waftester/injectscan/pkg/duration"
)

// Config holds HTTP client options.
type Config struct {
	// Timeout bounds a whole request including the body read. Callers may
	// also bound requests with a context deadline.
	Timeout time.Duration

	// Proxy is an http, https, socks5 or socks5h URL. Empty means direct.
	Proxy string

	// SkipVerify disables certificate verification.
	SkipVerify bool

	// BrowserTLS sends a browser ClientHello instead of Go's.
	BrowserTLS bool

	// UserAgent is set on every request that has none.
	UserAgent string

	// Headers are added to every request.
	Headers map[string]string

	// MaxRedirects is the redirect budget; 0 means do not follow.
	MaxRedirects int

	// MaxConnsPerHost caps connections to one host.
	MaxConnsPerHost int
}

// DefaultConfig returns the scanner's defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:         duration.FetchTimeout,
		SkipVerify:      true,
		UserAgent:       defaults.UserAgent,
		MaxRedirects:    5,
		MaxConnsPerHost: defaults.MaxIdleConnsPerHost,
	}
}

// New builds a client for cfg. It fails only on an invalid proxy.
func New(cfg Config) (*http.Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = duration.FetchTimeout
	}
	if cfg.MaxConnsPerHost <= 0 {
		cfg.MaxConnsPerHost = defaults.MaxIdleConnsPerHost
	}

	dialer := &net.Dialer{
		Timeout:   duration.DialTimeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		MaxIdleConns:          cfg.MaxConnsPerHost * 4,
		MaxIdleConnsPerHost:   cfg.MaxConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       duration.IdleConn,
		TLSHandshakeTimeout:   duration.TLSHandshake,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     !cfg.BrowserTLS,
		DialContext:           dialer.DialContext,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: cfg.SkipVerify},
	}

	proxyCfg, err := ParseProxy(cfg.Proxy)
	if err != nil {
		return nil, err
	}
	switch {
	case proxyCfg == nil:
	case proxyCfg.IsSOCKS():
		d, err := proxyCfg.Dialer(dialer)
		if err != nil {
			return nil, err
		}
		transport.DialContext = d.DialContext
	default:
		transport.Proxy = http.ProxyURL(proxyCfg.URL)
	}

	if cfg.BrowserTLS {
		if proxyCfg != nil && !proxyCfg.IsSOCKS() {
			return nil, fmt.Errorf("%w: browser TLS requires a direct or SOCKS connection", ErrProxyConfig)
		}
		transport.DialTLSContext = browserTLSDialer(transport.DialContext, cfg.SkipVerify)
	}

	return &http.Client{
		Timeout: cfg.Timeout,
		Transport: &headerTransport{
			base:      transport,
			userAgent: cfg.UserAgent,
			headers:   cfg.Headers,
		},
		CheckRedirect: redirectPolicy(cfg.MaxRedirects),
	}, nil
}

func redirectPolicy(max int) func(*http.Request, []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) > max {
			return http.ErrUseLastResponse
		}
		return nil
	}
}

// headerTransport stamps the user agent and fixed headers on each request.
type headerTransport struct {
	base      http.RoundTripper
	userAgent string
	headers   map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	if t.userAgent != "" && r.Header.Get("User-Agent") == "" {
		r.Header.Set("User-Agent", t.userAgent)
	}
	for k, v := range t.headers {
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	return t.base.RoundTrip(r)
}

// CloseIdleConnections lets http.Client.CloseIdleConnections reach the
// pooled transport.
func (t *headerTransport) CloseIdleConnections() {
	if ci, ok := t.base.(interface{ CloseIdleConnections() }); ok {
		ci.CloseIdleConnections()
	}
}
