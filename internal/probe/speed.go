package probe

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"proxysieve/internal/proxyaddr"
)

// SpeedConfig controls one endpoint's speed probe against a reference
// resource. The probe downloads at most TargetBytes and never runs longer
// than Timeout inside the read loop.
type SpeedConfig struct {
	Host        string
	Port        int
	Path        string
	Timeout     time.Duration
	TargetBytes int
}

// DefaultSpeedConfig samples 50KB of a small well-known resource.
func DefaultSpeedConfig() SpeedConfig {
	return SpeedConfig{
		Host:        "www.google.com",
		Port:        80,
		Path:        "/robots.txt",
		Timeout:     10 * time.Second,
		TargetBytes: 50 * 1024,
	}
}

// SpeedResult is one successful speed measurement. A result computed from a
// partial download (timeout before TargetBytes) is a valid lower bound:
// slow proxies measure as slow rather than fail outright.
type SpeedResult struct {
	// Latency is the wall time to establish the tunnelled connection.
	Latency time.Duration
	// ThroughputKBps is bytes read divided by time spent in the read loop.
	ThroughputKBps float64
	// Bytes is how much of the reference resource was actually read.
	Bytes int
}

// MeasureSpeed connects to the reference host through ep, timing the
// connection setup, then downloads the reference path and times the read
// loop. It returns nil on any connection or protocol error; that verdict is
// independent of the availability probe's.
func MeasureSpeed(ctx context.Context, d TunnelDialer, ep proxyaddr.Endpoint, cfg SpeedConfig) (*SpeedResult, error) {
	dialCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	connectStart := time.Now()
	conn, err := d.DialThrough(dialCtx, ep, cfg.Host+":"+strconv.Itoa(cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("dial through %s: %w", ep.Addr(), err)
	}
	defer conn.Close()
	latency := time.Since(connectStart)

	_ = conn.SetDeadline(time.Now().Add(cfg.Timeout))

	req := "GET " + cfg.Path + " HTTP/1.1\r\nHost: " + cfg.Host + "\r\nConnection: close\r\n\r\n"
	if _, err := io.WriteString(conn, req); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	var (
		total         int
		buf           = make([]byte, 4096)
		downloadStart = time.Now()
	)
	for total < cfg.TargetBytes {
		n, err := conn.Read(buf)
		total += n
		if err != nil {
			// EOF, deadline expiry or a reset mid-download: measure what
			// arrived. A read error before any payload is a failed probe.
			if total == 0 {
				return nil, fmt.Errorf("read response: %w", err)
			}
			break
		}
		if time.Since(downloadStart) > cfg.Timeout {
			break
		}
	}
	downloadTime := time.Since(downloadStart)

	var kbps float64
	if downloadTime > 0 && total > 0 {
		kbps = (float64(total) / 1024) / downloadTime.Seconds()
	}
	return &SpeedResult{Latency: latency, ThroughputKBps: kbps, Bytes: total}, nil
}
