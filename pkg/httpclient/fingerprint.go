package httpclient

import (
	"context"
	"fmt"
	"net"

	utls "github.com/refraction-networking/utls"
)

type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// browserHello is the ClientHello the scanner imitates.
var browserHello = utls.HelloChrome_120

// browserTLSDialer returns a DialTLSContext that performs a Chrome-shaped
// handshake over conns from dial. ALPN is pinned to http/1.1 because the
// connection is handed to the HTTP/1 transport.
func browserTLSDialer(dial dialFunc, skipVerify bool) dialFunc {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}
		conn, err := dial(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		spec, err := utls.UTLSIdToSpec(browserHello)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: %v", ErrTLS, err)
		}
		for _, ext := range spec.Extensions {
			if alpn, ok := ext.(*utls.ALPNExtension); ok {
				alpn.AlpnProtocols = []string{"http/1.1"}
			}
		}

		uconn := utls.UClient(conn, &utls.Config{
			ServerName:         host,
			InsecureSkipVerify: skipVerify,
		}, utls.HelloCustom)
		if err := uconn.ApplyPreset(&spec); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: %v", ErrTLS, err)
		}
		if err := uconn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: %v", ErrTLS, err)
		}
		return uconn, nil
	}
}
