package httpclient

import "errors"

var (
	// ErrProxyConfig reports an unusable proxy setting.
	ErrProxyConfig = errors.New("httpclient: invalid proxy configuration")

	// ErrTLS reports a failed fingerprinted TLS handshake.
	ErrTLS = errors.New("httpclient: TLS handshake failed")
)
