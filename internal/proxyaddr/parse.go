// Package proxyaddr parses raw proxy address strings into endpoints and
// prepares candidate sets for probing: trimming, deduplication and
// deterministic partitioning across shards or workers.
package proxyaddr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Endpoint is a parsed SOCKS5 proxy address. It is a value type; equality
// over the (Host, Port, Username, Password) tuple is used for deduplication.
type Endpoint struct {
	Host     string
	Port     uint16
	Username string
	Password string
}

// String returns the canonical form of the endpoint:
// "host:port" or "user:pass@host:port".
func (e Endpoint) String() string {
	if e.Username != "" || e.Password != "" {
		return e.Username + ":" + e.Password + "@" + e.Host + ":" + strconv.Itoa(int(e.Port))
	}
	return e.Host + ":" + strconv.Itoa(int(e.Port))
}

// Addr returns the "host:port" dial address without credentials.
func (e Endpoint) Addr() string {
	return e.Host + ":" + strconv.Itoa(int(e.Port))
}

// ParseReason distinguishes the two ways a candidate string can be rejected.
type ParseReason int

const (
	// Malformed covers strings matching neither accepted address shape and
	// ports that are not numeric or out of range.
	Malformed ParseReason = iota
	// UnsupportedScheme covers candidates carrying a scheme prefix other
	// than socks5:// or socks4://.
	UnsupportedScheme
)

func (r ParseReason) String() string {
	switch r {
	case UnsupportedScheme:
		return "unsupported scheme"
	default:
		return "malformed"
	}
}

// ParseError reports why a raw candidate was rejected.
type ParseError struct {
	Raw    string
	Reason ParseReason
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse proxy %q: %s", e.Raw, e.Reason)
}

var (
	authRe   = regexp.MustCompile(`^([^:@]+):([^@]+)@([^:]+):(\d+)$`)
	simpleRe = regexp.MustCompile(`^([^:]+):(\d+)$`)
)

// Parse normalizes a raw candidate string into an Endpoint.
//
// A leading socks5:// or socks4:// marker is stripped; any other scheme is
// rejected. The remainder must be "host:port" or "user:pass@host:port".
func Parse(raw string) (Endpoint, error) {
	s := strings.TrimSpace(raw)

	switch {
	case strings.HasPrefix(s, "socks5://"):
		s = s[len("socks5://"):]
	case strings.HasPrefix(s, "socks4://"):
		s = s[len("socks4://"):]
	case strings.Contains(s, "://"):
		return Endpoint{}, &ParseError{Raw: raw, Reason: UnsupportedScheme}
	}

	if m := authRe.FindStringSubmatch(s); m != nil {
		port, err := parsePort(m[4])
		if err != nil {
			return Endpoint{}, &ParseError{Raw: raw, Reason: Malformed}
		}
		return Endpoint{Host: m[3], Port: port, Username: m[1], Password: m[2]}, nil
	}

	if m := simpleRe.FindStringSubmatch(s); m != nil {
		port, err := parsePort(m[2])
		if err != nil {
			return Endpoint{}, &ParseError{Raw: raw, Reason: Malformed}
		}
		return Endpoint{Host: m[1], Port: port}, nil
	}

	return Endpoint{}, &ParseError{Raw: raw, Reason: Malformed}
}

func parsePort(s string) (uint16, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 65535 {
		return 0, fmt.Errorf("port out of range: %s", s)
	}
	return uint16(n), nil
}
