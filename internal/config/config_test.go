package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadSeedsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "proxysieve.ini")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}

	if cfg.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v", cfg.Timeout)
	}
	if cfg.MinSuccessRate != 0.5 {
		t.Errorf("MinSuccessRate = %f", cfg.MinSuccessRate)
	}
	if cfg.Retries != 1 || cfg.RetryBackoff != 500*time.Millisecond {
		t.Errorf("retry = %d/%v", cfg.Retries, cfg.RetryBackoff)
	}
	if len(cfg.Targets) != 3 || cfg.Targets[0].Host != "www.google.com" {
		t.Errorf("Targets = %v", cfg.Targets)
	}
	if cfg.Speed.Host != "www.google.com" || cfg.Speed.Path != "/robots.txt" || cfg.Speed.Port != 80 {
		t.Errorf("Speed = %+v", cfg.Speed)
	}
	if cfg.Speed.TargetBytes != 51200 {
		t.Errorf("TargetBytes = %d", cfg.Speed.TargetBytes)
	}
	if cfg.Speed.Timeout != cfg.Timeout {
		t.Errorf("speed timeout %v != probe timeout %v", cfg.Speed.Timeout, cfg.Timeout)
	}
	if cfg.Thresholds.MaxLatency != 3*time.Second || cfg.Thresholds.MinKBps != 50 {
		t.Errorf("Thresholds = %+v", cfg.Thresholds)
	}
	if cfg.Concurrency != 20 || cfg.MaxProxies != 1000 {
		t.Errorf("concurrency/max = %d/%d", cfg.Concurrency, cfg.MaxProxies)
	}
	if cfg.URLFile != "url.txt" || cfg.OutFile != "working_proxies.txt" {
		t.Errorf("files = %s/%s", cfg.URLFile, cfg.OutFile)
	}
}

func TestLoadKeepsExistingValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxysieve.ini")
	content := `[Probe]
timeout = 2s
min_success_rate = 0.75
retries = 0
retry_backoff = 100ms
targets = one.example:80
speed_url = http://mirror.example:8080/sample.bin
speed_sample_bytes = 1024
max_latency = 1s
min_speed_kbps = 200
concurrency = 5
max_proxies = 10

[Files]
url_file = sources.txt
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Timeout != 2*time.Second || cfg.MinSuccessRate != 0.75 {
		t.Errorf("probe = %v/%f", cfg.Timeout, cfg.MinSuccessRate)
	}
	if len(cfg.Targets) != 1 || cfg.Targets[0].Host != "one.example" {
		t.Errorf("Targets = %v", cfg.Targets)
	}
	if cfg.Speed.Host != "mirror.example" || cfg.Speed.Port != 8080 || cfg.Speed.Path != "/sample.bin" {
		t.Errorf("Speed = %+v", cfg.Speed)
	}
	if cfg.Speed.TargetBytes != 1024 {
		t.Errorf("TargetBytes = %d", cfg.Speed.TargetBytes)
	}
	if cfg.Concurrency != 5 || cfg.MaxProxies != 10 {
		t.Errorf("concurrency/max = %d/%d", cfg.Concurrency, cfg.MaxProxies)
	}
	// Unset file keys fall back to defaults; set ones stick.
	if cfg.URLFile != "sources.txt" {
		t.Errorf("URLFile = %s", cfg.URLFile)
	}
	if cfg.StatsFile != "working_proxies_stats.txt" {
		t.Errorf("StatsFile = %s", cfg.StatsFile)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"bad timeout", "timeout", "soon"},
		{"bad rate", "min_success_rate", "half"},
		{"https speed url", "speed_url", "https://secure.example/f"},
		{"bad speed port", "speed_url", "http://h:99999/f"},
		{"bad target", "targets", "no-port-here"},
		{"target port range", "targets", "h:70000"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "proxysieve.ini")
			if _, err := Load(path); err != nil { // seed defaults first
				t.Fatal(err)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			broken := replaceKey(string(data), c.key, c.value)
			if err := os.WriteFile(path, []byte(broken), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Fatalf("%s=%s accepted", c.key, c.value)
			}
		})
	}
}

func TestParseTargets(t *testing.T) {
	got, err := parseTargets("a.example:80, b.example:443 ,")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[1].Port != 443 {
		t.Errorf("parseTargets = %v", got)
	}
	if _, err := parseTargets(""); err == nil {
		t.Error("empty target list accepted")
	}
}

func replaceKey(ini, key, value string) string {
	lines := strings.Split(ini, "\n")
	for i, line := range lines {
		k, _, ok := strings.Cut(line, "=")
		if ok && strings.TrimSpace(k) == key {
			lines[i] = key + " = " + value
		}
	}
	return strings.Join(lines, "\n")
}
