// Package config loads run configuration from an INI file, seeding a
// default file when none exists. Flags in cmd override individual values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"proxysieve/internal/probe"
	"proxysieve/internal/rank"
)

const DefaultConfigPath = "config/proxysieve.ini"

var defaultProbe = map[string]string{
	"timeout":            "10s",
	"min_success_rate":   "0.5",
	"retries":            "1",
	"retry_backoff":      "500ms",
	"targets":            "www.google.com:80,www.cloudflare.com:80,1.1.1.1:80",
	"speed_url":          "http://www.google.com/robots.txt",
	"speed_sample_bytes": "51200",
	"max_latency":        "3s",
	"min_speed_kbps":     "50",
	"concurrency":        "20",
	"max_proxies":        "1000",
}

var defaultFiles = map[string]string{
	"url_file":   "url.txt",
	"out_file":   "working_proxies.txt",
	"fast_file":  "working_proxies_fast.txt",
	"stats_file": "working_proxies_stats.txt",
}

// Config is the typed view of one run's settings.
type Config struct {
	Path string

	Timeout        time.Duration
	MinSuccessRate float64
	Retries        int
	RetryBackoff   time.Duration
	Targets        []probe.Target
	Speed          probe.SpeedConfig
	Thresholds     rank.Thresholds
	Concurrency    int
	MaxProxies     int

	URLFile   string
	OutFile   string
	FastFile  string
	StatsFile string
}

// Load reads the INI file at path, creating it with defaults first if it
// does not exist. An empty path means DefaultConfigPath.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultConfigPath
	}
	if err := ensureParent(path); err != nil {
		return nil, err
	}

	f, err := ini.LoadSources(ini.LoadOptions{IgnoreInlineComment: true, Loose: true}, path)
	if err != nil {
		return nil, fmt.Errorf("load ini: %w", err)
	}

	if !f.Section("Probe").HasKey("timeout") {
		applyDefaults(f)
		if err := f.SaveTo(path); err != nil {
			return nil, fmt.Errorf("save default config: %w", err)
		}
	}

	cfg := &Config{Path: path}
	p := f.Section("Probe")

	if cfg.Timeout, err = durationKey(p, "timeout"); err != nil {
		return nil, err
	}
	if cfg.MinSuccessRate, err = p.Key("min_success_rate").Float64(); err != nil {
		return nil, fmt.Errorf("min_success_rate: %w", err)
	}
	if cfg.Retries, err = p.Key("retries").Int(); err != nil {
		return nil, fmt.Errorf("retries: %w", err)
	}
	if cfg.RetryBackoff, err = durationKey(p, "retry_backoff"); err != nil {
		return nil, err
	}
	if cfg.Targets, err = parseTargets(p.Key("targets").String()); err != nil {
		return nil, err
	}
	if cfg.Speed, err = parseSpeed(p, cfg.Timeout); err != nil {
		return nil, err
	}
	maxLatency, err := durationKey(p, "max_latency")
	if err != nil {
		return nil, err
	}
	minKBps, err := p.Key("min_speed_kbps").Float64()
	if err != nil {
		return nil, fmt.Errorf("min_speed_kbps: %w", err)
	}
	cfg.Thresholds = rank.Thresholds{MaxLatency: maxLatency, MinKBps: minKBps}
	if cfg.Concurrency, err = p.Key("concurrency").Int(); err != nil {
		return nil, fmt.Errorf("concurrency: %w", err)
	}
	if cfg.MaxProxies, err = p.Key("max_proxies").Int(); err != nil {
		return nil, fmt.Errorf("max_proxies: %w", err)
	}

	fs := f.Section("Files")
	cfg.URLFile = keyOr(fs, "url_file")
	cfg.OutFile = keyOr(fs, "out_file")
	cfg.FastFile = keyOr(fs, "fast_file")
	cfg.StatsFile = keyOr(fs, "stats_file")

	return cfg, nil
}

func applyDefaults(f *ini.File) {
	p := f.Section("Probe")
	for k, v := range defaultProbe {
		if !p.HasKey(k) {
			p.Key(k).SetValue(v)
		}
	}
	fs := f.Section("Files")
	for k, v := range defaultFiles {
		if !fs.HasKey(k) {
			fs.Key(k).SetValue(v)
		}
	}
}

func durationKey(sec *ini.Section, name string) (time.Duration, error) {
	d, err := time.ParseDuration(sec.Key(name).String())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return d, nil
}

func keyOr(sec *ini.Section, name string) string {
	if v := sec.Key(name).String(); v != "" {
		return v
	}
	return defaultFiles[name]
}

func parseTargets(s string) ([]probe.Target, error) {
	var out []probe.Target
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		host, port, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("target %q: want host:port", part)
		}
		var n int
		if _, err := fmt.Sscanf(port, "%d", &n); err != nil || n < 1 || n > 65535 {
			return nil, fmt.Errorf("target %q: bad port", part)
		}
		out = append(out, probe.Target{Host: host, Port: n})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no reference targets configured")
	}
	return out, nil
}

func parseSpeed(sec *ini.Section, timeout time.Duration) (probe.SpeedConfig, error) {
	cfg := probe.DefaultSpeedConfig()
	cfg.Timeout = timeout

	raw := sec.Key("speed_url").String()
	rest, ok := strings.CutPrefix(raw, "http://")
	if !ok {
		return cfg, fmt.Errorf("speed_url %q: only plain http supported", raw)
	}
	hostport, path, found := strings.Cut(rest, "/")
	if !found || path == "" {
		path = "robots.txt"
	}
	cfg.Path = "/" + path
	host, port, hasPort := strings.Cut(hostport, ":")
	cfg.Host = host
	cfg.Port = 80
	if hasPort {
		var n int
		if _, err := fmt.Sscanf(port, "%d", &n); err != nil || n < 1 || n > 65535 {
			return cfg, fmt.Errorf("speed_url %q: bad port", raw)
		}
		cfg.Port = n
	}

	n, err := sec.Key("speed_sample_bytes").Int()
	if err != nil || n <= 0 {
		return cfg, fmt.Errorf("speed_sample_bytes: %v", err)
	}
	cfg.TargetBytes = n
	return cfg, nil
}

func ensureParent(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
