package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"proxysieve/internal/config"
	"proxysieve/internal/probe"
	"proxysieve/internal/proxyaddr"
	"proxysieve/internal/rank"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Timeout:        time.Second,
		MinSuccessRate: 0.5,
		Retries:        0,
		Targets:        probe.DefaultTargets(),
		Speed:          probe.DefaultSpeedConfig(),
		Thresholds:     rank.Thresholds{MaxLatency: 3 * time.Second, MinKBps: 50},
		Concurrency:    4,
		URLFile:        filepath.Join(dir, "url.txt"),
		OutFile:        filepath.Join(dir, "working.txt"),
		FastFile:       filepath.Join(dir, "fast.txt"),
		StatsFile:      filepath.Join(dir, "stats.txt"),
	}
}

func fakeProbes(r *Runner, latencies map[string]time.Duration) {
	r.checkAvailability = func(_ context.Context, ep proxyaddr.Endpoint) bool {
		_, ok := latencies[ep.Host]
		return ok
	}
	r.measureSpeed = func(_ context.Context, ep proxyaddr.Endpoint) *probe.SpeedResult {
		lat, ok := latencies[ep.Host]
		if !ok {
			return nil
		}
		return &probe.SpeedResult{Latency: lat, ThroughputKBps: 500, Bytes: 50 * 1024}
	}
}

func TestRunEndToEnd(t *testing.T) {
	// good passes everything, bad fails everything, dup (supplied twice)
	// passes half the targets which meets the 0.5 threshold; two candidates
	// are malformed and silently dropped.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("good:1\nbad:2\ndup:3\ndup:3\nnot-a-proxy\nhttp://x:1\n"))
	}))
	defer srv.Close()

	cfg := testConfig(t)
	if err := os.WriteFile(cfg.URLFile, []byte(srv.URL+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := New(cfg)
	r.Supplier.Limiter = nil // no pacing in tests
	fakeProbes(r, map[string]time.Duration{
		"good": 100 * time.Millisecond,
		"dup":  200 * time.Millisecond,
	})

	stats, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if stats.Fetched != 6 || stats.Unique != 5 || stats.Tested != 3 {
		t.Errorf("fetched/unique/tested = %d/%d/%d, want 6/5/3",
			stats.Fetched, stats.Unique, stats.Tested)
	}
	if stats.Available != 2 || stats.Fast != 2 {
		t.Errorf("available/fast = %d/%d, want 2/2", stats.Available, stats.Fast)
	}

	working, err := os.ReadFile(cfg.OutFile)
	if err != nil {
		t.Fatal(err)
	}
	lines := nonEmptyLines(string(working))
	if len(lines) != 2 || lines[0] != "good:1" || lines[1] != "dup:3" {
		t.Errorf("working list = %v, want [good:1 dup:3] in latency order", lines)
	}

	fast, err := os.ReadFile(cfg.FastFile)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(fast), "good:1") || !strings.Contains(string(fast), "dup:3") {
		t.Errorf("fast list missing endpoints:\n%s", fast)
	}

	report, err := os.ReadFile(cfg.StatsFile)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(report), "available: 2") {
		t.Errorf("stats report missing counts:\n%s", report)
	}
}

func TestRunZeroCandidates(t *testing.T) {
	cfg := testConfig(t)
	// URL file exists but holds no valid sources.
	if err := os.WriteFile(cfg.URLFile, []byte("# nothing here\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := New(cfg)
	probed := false
	r.checkAvailability = func(context.Context, proxyaddr.Endpoint) bool {
		probed = true
		return false
	}
	r.measureSpeed = func(context.Context, proxyaddr.Endpoint) *probe.SpeedResult { return nil }

	stats, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("zero candidates must not fail: %v", err)
	}
	if probed {
		t.Error("probe invoked with no candidates")
	}
	if stats.Tested != 0 || stats.Available != 0 || stats.Fast != 0 {
		t.Errorf("stats = %+v, want all zero counts", stats)
	}
	// Output files still written, empty and zero-count.
	if _, err := os.Stat(cfg.OutFile); err != nil {
		t.Errorf("working file not written: %v", err)
	}
	if _, err := os.Stat(cfg.StatsFile); err != nil {
		t.Errorf("stats file not written: %v", err)
	}
}

func TestRunInvalidPartitionFailsBeforeProbing(t *testing.T) {
	cfg := testConfig(t)
	if err := os.WriteFile(cfg.URLFile, []byte("# none\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := New(cfg)
	probed := false
	r.checkAvailability = func(context.Context, proxyaddr.Endpoint) bool {
		probed = true
		return false
	}
	r.Partition = Partition{Scheme: PartitionShard, Index: 5, Total: 2}

	if _, err := r.Run(context.Background()); !errors.Is(err, proxyaddr.ErrInvalidShard) {
		t.Fatalf("err = %v, want ErrInvalidShard", err)
	}
	if probed {
		t.Error("probing started despite invalid partition")
	}
}

func TestRunSpeedStage(t *testing.T) {
	cfg := testConfig(t)
	dir := filepath.Dir(cfg.OutFile)
	input := filepath.Join(dir, "merged.txt")
	if err := os.WriteFile(input, []byte("good:1\nbad:2\n# comment\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := New(cfg)
	r.Stage = StageSpeed
	r.InputFile = input
	availCalled := false
	r.checkAvailability = func(context.Context, proxyaddr.Endpoint) bool {
		availCalled = true
		return false
	}
	r.measureSpeed = func(_ context.Context, ep proxyaddr.Endpoint) *probe.SpeedResult {
		if ep.Host != "good" {
			return nil
		}
		return &probe.SpeedResult{Latency: 50 * time.Millisecond, ThroughputKBps: 300, Bytes: 1024}
	}

	stats, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if availCalled {
		t.Error("availability probe ran in speed stage")
	}
	if stats.Tested != 2 || stats.Available != 1 || stats.Fast != 1 {
		t.Errorf("tested/available/fast = %d/%d/%d, want 2/1/1",
			stats.Tested, stats.Available, stats.Fast)
	}
}

func TestRunAvailabilityStage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("good:1\nbad:2\n"))
	}))
	defer srv.Close()

	cfg := testConfig(t)
	if err := os.WriteFile(cfg.URLFile, []byte(srv.URL+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := New(cfg)
	r.Stage = StageAvailability
	r.Supplier.Limiter = nil
	r.checkAvailability = func(_ context.Context, ep proxyaddr.Endpoint) bool {
		return ep.Host == "good"
	}
	speedCalled := false
	r.measureSpeed = func(context.Context, proxyaddr.Endpoint) *probe.SpeedResult {
		speedCalled = true
		return nil
	}

	stats, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if speedCalled {
		t.Error("speed probe ran in availability stage")
	}
	if stats.Available != 1 || stats.Fast != 0 {
		t.Errorf("available/fast = %d/%d, want 1/0", stats.Available, stats.Fast)
	}

	working, err := os.ReadFile(cfg.OutFile)
	if err != nil {
		t.Fatal(err)
	}
	lines := nonEmptyLines(string(working))
	if len(lines) != 1 || lines[0] != "good:1" {
		t.Errorf("working list = %v, want [good:1]", lines)
	}
}

func TestRunMaxProxiesCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("a:1\nb:2\nc:3\nd:4\ne:5\n"))
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.MaxProxies = 2
	if err := os.WriteFile(cfg.URLFile, []byte(srv.URL+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := New(cfg)
	r.Supplier.Limiter = nil
	fakeProbes(r, map[string]time.Duration{})

	stats, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Tested != 2 {
		t.Errorf("tested = %d, want cap of 2", stats.Tested)
	}
	if stats.Unique != 5 {
		t.Errorf("unique = %d, want pre-cap 5", stats.Unique)
	}
}

func TestPartitionApply(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e"}

	shard, err := Partition{Scheme: PartitionShard, Index: 2, Total: 2}.apply(items)
	if err != nil {
		t.Fatal(err)
	}
	if len(shard) != 2 || shard[0] != "d" {
		t.Errorf("shard 2/2 = %v, want [d e]", shard)
	}

	worker, err := Partition{Scheme: PartitionWorker, Index: 1, Total: 2}.apply(items)
	if err != nil {
		t.Fatal(err)
	}
	if len(worker) != 3 || worker[0] != "c" {
		t.Errorf("worker 1/2 = %v, want [c d e]", worker)
	}

	all, err := Partition{}.apply(items)
	if err != nil || len(all) != 5 {
		t.Errorf("no partition = %v, %v", all, err)
	}
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}
