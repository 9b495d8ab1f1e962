package probe

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"time"

	"proxysieve/internal/proxyaddr"
)

// Target is one reference host the availability probe connects to through
// the proxy under test.
type Target struct {
	Host string
	Port int
}

// Addr returns the "host:port" dial address.
func (t Target) Addr() string {
	return t.Host + ":" + strconv.Itoa(t.Port)
}

// RetryPolicy wraps a whole per-endpoint availability probe in additional
// attempts with a fixed backoff between them.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts; values below 1 mean one.
	MaxAttempts int
	// Backoff is slept between consecutive attempts.
	Backoff time.Duration
	// Sleep is the sleeper used between attempts; nil means time.Sleep.
	// Tests substitute a fake clock here.
	Sleep func(time.Duration)
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p RetryPolicy) wait() {
	if p.Backoff <= 0 {
		return
	}
	if p.Sleep != nil {
		p.Sleep(p.Backoff)
		return
	}
	time.Sleep(p.Backoff)
}

// AvailabilityConfig controls one endpoint's availability probe.
type AvailabilityConfig struct {
	Targets        []Target
	Timeout        time.Duration
	MinSuccessRate float64
	Retry          RetryPolicy
}

// DefaultTargets are well-known always-up hosts on port 80.
func DefaultTargets() []Target {
	return []Target{
		{Host: "www.google.com", Port: 80},
		{Host: "www.cloudflare.com", Port: 80},
		{Host: "1.1.1.1", Port: 80},
	}
}

// DefaultAvailabilityConfig mirrors the production probing defaults.
func DefaultAvailabilityConfig() AvailabilityConfig {
	return AvailabilityConfig{
		Targets:        DefaultTargets(),
		Timeout:        10 * time.Second,
		MinSuccessRate: 0.5,
		Retry:          RetryPolicy{MaxAttempts: 2, Backoff: 500 * time.Millisecond},
	}
}

// availabilityReadSize is how much of the target's response we read: enough
// to recognize protocol markers, never the body.
const availabilityReadSize = 100

// CheckAvailability probes ep against every configured target and reports
// whether the success ratio met cfg.MinSuccessRate on any attempt. Transport
// failures of any kind count as a failed target and never propagate.
func CheckAvailability(ctx context.Context, d TunnelDialer, ep proxyaddr.Endpoint, cfg AvailabilityConfig) bool {
	for attempt := 0; attempt < cfg.Retry.attempts(); attempt++ {
		if attempt > 0 {
			cfg.Retry.wait()
		}
		if checkOnce(ctx, d, ep, cfg) {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
	}
	return false
}

func checkOnce(ctx context.Context, d TunnelDialer, ep proxyaddr.Endpoint, cfg AvailabilityConfig) bool {
	if len(cfg.Targets) == 0 {
		return false
	}
	ok := 0
	for _, t := range cfg.Targets {
		if probeTarget(ctx, d, ep, t, cfg.Timeout) {
			ok++
		}
	}
	return float64(ok)/float64(len(cfg.Targets)) >= cfg.MinSuccessRate
}

// probeTarget opens one tunnelled connection, issues a minimal GET and
// checks the first bytes of the response for an HTTP status or HTML marker.
func probeTarget(ctx context.Context, d TunnelDialer, ep proxyaddr.Endpoint, t Target, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := d.DialThrough(ctx, ep, t.Addr())
	if err != nil {
		return false
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	req := "GET / HTTP/1.1\r\nHost: " + t.Host + "\r\nConnection: close\r\n\r\n"
	if _, err := io.WriteString(conn, req); err != nil {
		return false
	}

	buf := make([]byte, availabilityReadSize)
	n, _ := conn.Read(buf)
	if n <= 0 {
		return false
	}
	resp := buf[:n]
	return bytes.Contains(resp, []byte("HTTP")) ||
		bytes.Contains(bytes.ToLower(resp), []byte("html"))
}
