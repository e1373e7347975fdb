package httpclient

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/proxy"
)

// Proxy is a parsed proxy URL.
type Proxy struct {
	URL    *url.URL
	Scheme string
}

// ParseProxy validates raw. An empty string yields nil, nil. A missing
// scheme defaults to http.
func ParseProxy(raw string) (*Proxy, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProxyConfig, err)
	}
	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case "http", "https", "socks5", "socks5h":
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrProxyConfig, u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host", ErrProxyConfig)
	}
	if u.Port() == "" {
		port := "8080"
		if strings.HasPrefix(scheme, "socks") {
			port = "1080"
		}
		u.Host = net.JoinHostPort(u.Hostname(), port)
	}
	u.Scheme = scheme
	return &Proxy{URL: u, Scheme: scheme}, nil
}

// IsSOCKS reports whether the proxy speaks SOCKS5.
func (p *Proxy) IsSOCKS() bool {
	return p != nil && strings.HasPrefix(p.Scheme, "socks")
}

// ContextDialer dials with a context.
type ContextDialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Dialer returns a SOCKS5 dialer that reaches the proxy through forward.
// socks5h and socks5 both pass host names through, so DNS resolves on
// the proxy.
func (p *Proxy) Dialer(forward *net.Dialer) (ContextDialer, error) {
	if !p.IsSOCKS() {
		return nil, fmt.Errorf("%w: %s is not a SOCKS proxy", ErrProxyConfig, p.Scheme)
	}
	var auth *proxy.Auth
	if p.URL.User != nil {
		pass, _ := p.URL.User.Password()
		auth = &proxy.Auth{User: p.URL.User.Username(), Password: pass}
	}
	d, err := proxy.SOCKS5("tcp", p.URL.Host, auth, forward)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProxyConfig, err)
	}
	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("%w: SOCKS dialer lacks context support", ErrProxyConfig)
	}
	return cd, nil
}
