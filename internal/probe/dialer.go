// Package probe measures SOCKS5 proxy endpoints: availability against a set
// of reference targets, and connection latency plus download throughput
// against a reference resource. Probe failures are values, not errors that
// escape to callers.
package probe

import (
	"context"
	"net"
	"time"

	"golang.org/x/net/proxy"

	"proxysieve/internal/proxyaddr"
)

// TunnelDialer opens a TCP connection to target ("host:port") tunnelled
// through the given proxy endpoint. Implementations must honor ctx
// cancellation and return every failure as an error.
type TunnelDialer interface {
	DialThrough(ctx context.Context, ep proxyaddr.Endpoint, target string) (net.Conn, error)
}

// SOCKS5Dialer tunnels connections with the SOCKS5 protocol, using the
// endpoint's optional credentials for user/pass auth.
type SOCKS5Dialer struct {
	// Timeout bounds the TCP connect to the proxy itself.
	Timeout time.Duration
}

func (d SOCKS5Dialer) DialThrough(ctx context.Context, ep proxyaddr.Endpoint, target string) (net.Conn, error) {
	var auth *proxy.Auth
	if ep.Username != "" || ep.Password != "" {
		auth = &proxy.Auth{User: ep.Username, Password: ep.Password}
	}

	base := &net.Dialer{
		Timeout:   d.Timeout,
		KeepAlive: -1,
	}
	pd, err := proxy.SOCKS5("tcp", ep.Addr(), auth, base)
	if err != nil {
		return nil, err
	}
	if cd, ok := pd.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, "tcp", target)
	}
	return pd.Dial("tcp", target)
}
