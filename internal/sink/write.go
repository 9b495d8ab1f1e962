// Package sink persists run output: the ranked proxy lists and the
// statistics report. Formats match the files downstream pipelines already
// consume.
package sink

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"proxysieve/internal/rank"
)

// WriteWorking writes the ranked available endpoints, one per line.
func WriteWorking(path string, outcomes []rank.Outcome) error {
	return writeFile(path, func(w *bufio.Writer) error {
		for _, o := range outcomes {
			if _, err := fmt.Fprintln(w, o.Endpoint.String()); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteFast writes the fast subset with latency/throughput annotations.
func WriteFast(path string, outcomes []rank.Outcome, t rank.Thresholds) error {
	return writeFile(path, func(w *bufio.Writer) error {
		fmt.Fprintln(w, "# fast proxies (sorted by latency)")
		fmt.Fprintf(w, "# thresholds: latency<=%.2fs speed>=%.1fKB/s\n", t.MaxLatency.Seconds(), t.MinKBps)
		fmt.Fprintln(w, "# format: address  # latency(s) | speed(KB/s)")
		fmt.Fprintln(w)
		for _, o := range outcomes {
			_, err := fmt.Fprintf(w, "%s  # %.2fs | %.1fKB/s\n",
				o.Endpoint.String(), o.Latency.Seconds(), o.ThroughputKBps)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteStats writes the aggregate report for one run. A zero-candidate run
// still produces a complete report with zero counts.
func WriteStats(path string, s rank.Stats, t rank.Thresholds) error {
	return writeFile(path, func(w *bufio.Writer) error {
		line := "======================================================================"
		fmt.Fprintln(w, line)
		fmt.Fprintln(w, "SOCKS5 proxy probe report")
		fmt.Fprintln(w, line)
		fmt.Fprintln(w)
		fmt.Fprintf(w, "finished: %s\n", time.Now().Format("2006-01-02 15:04:05"))
		fmt.Fprintf(w, "elapsed:  %s\n\n", s.Elapsed.Round(100*time.Millisecond))
		fmt.Fprintf(w, "fetched:   %d\n", s.Fetched)
		fmt.Fprintf(w, "unique:    %d\n", s.Unique)
		fmt.Fprintf(w, "tested:    %d\n", s.Tested)
		fmt.Fprintf(w, "available: %d\n", s.Available)
		fmt.Fprintf(w, "fast:      %d\n\n", s.Fast)
		fmt.Fprintf(w, "available rate: %.2f%%\n", s.AvailableRate*100)
		fmt.Fprintf(w, "fast rate:      %.2f%% (of available)\n", s.FastRate*100)
		if s.MaxKBps > 0 || s.MaxLatency > 0 {
			fmt.Fprintln(w)
			fmt.Fprintln(w, "measured endpoints:")
			fmt.Fprintf(w, "  latency min/avg/max: %.2fs / %.2fs / %.2fs\n",
				s.MinLatency.Seconds(), s.AvgLatency.Seconds(), s.MaxLatency.Seconds())
			fmt.Fprintf(w, "  speed   min/avg/max: %.1f / %.1f / %.1f KB/s\n",
				s.MinKBps, s.AvgKBps, s.MaxKBps)
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "thresholds: latency<=%.2fs speed>=%.1fKB/s\n", t.MaxLatency.Seconds(), t.MinKBps)
		fmt.Fprintln(w, line)
		return nil
	})
}

func writeFile(path string, fill func(*bufio.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	w := bufio.NewWriterSize(f, 512*1024)
	if err := fill(w); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return f.Close()
}
