// Package rank classifies probed endpoints into ordered availability and
// speed tiers and aggregates per-run statistics.
package rank

import (
	"sort"
	"time"

	"proxysieve/internal/proxyaddr"
)

// Outcome is the immutable record of both probe phases for one endpoint.
// Latency, ThroughputKBps and Bytes are meaningful only when Measured is
// true; Measured implies Available.
type Outcome struct {
	Endpoint  proxyaddr.Endpoint
	Available bool
	// Measured reports whether the speed probe produced a result. The two
	// probes are independent: an available endpoint may still fail speed
	// measurement.
	Measured       bool
	Latency        time.Duration
	ThroughputKBps float64
	Bytes          int
}

// Thresholds separate fast endpoints from merely available ones.
type Thresholds struct {
	MaxLatency time.Duration
	MinKBps    float64
}

// Fast reports whether the outcome meets both speed thresholds. An
// unavailable or unmeasured endpoint is never fast.
func (t Thresholds) Fast(o Outcome) bool {
	return o.Available && o.Measured &&
		o.Latency <= t.MaxLatency && o.ThroughputKBps >= t.MinKBps
}

// Classify partitions outcomes into the ranked available set and its fast
// subset. Both are sorted ascending by latency, ties broken by descending
// throughput and finally by canonical endpoint string, so the ranking is
// fully deterministic given the outcome set. Outcomes without a speed
// measurement rank after measured ones.
func Classify(outcomes []Outcome, t Thresholds) (available, fast []Outcome) {
	for _, o := range outcomes {
		if o.Available {
			available = append(available, o)
		}
	}
	sort.SliceStable(available, func(i, j int) bool {
		return less(available[i], available[j])
	})
	for _, o := range available {
		if t.Fast(o) {
			fast = append(fast, o)
		}
	}
	return available, fast
}

func less(a, b Outcome) bool {
	if a.Measured != b.Measured {
		return a.Measured
	}
	if a.Measured && a.Latency != b.Latency {
		return a.Latency < b.Latency
	}
	if a.Measured && a.ThroughputKBps != b.ThroughputKBps {
		return a.ThroughputKBps > b.ThroughputKBps
	}
	return a.Endpoint.String() < b.Endpoint.String()
}

// Stats aggregates one complete probing run. Rates report 0 when their
// denominator is zero; the min/max/avg block covers measured outcomes only.
type Stats struct {
	Fetched   int
	Unique    int
	Tested    int
	Available int
	Fast      int

	AvailableRate float64 // available / tested
	FastRate      float64 // fast / available

	Elapsed time.Duration

	MinLatency time.Duration
	MaxLatency time.Duration
	AvgLatency time.Duration
	MinKBps    float64
	MaxKBps    float64
	AvgKBps    float64
}

// Collect derives Stats from the completed outcome set plus the externally
// supplied pre-dedup fetch count.
func Collect(outcomes []Outcome, t Thresholds, fetched, unique int, elapsed time.Duration) Stats {
	s := Stats{
		Fetched: fetched,
		Unique:  unique,
		Tested:  len(outcomes),
		Elapsed: elapsed,
	}

	var (
		latSum   time.Duration
		kbpsSum  float64
		measured int
	)
	for _, o := range outcomes {
		if o.Available {
			s.Available++
		}
		if t.Fast(o) {
			s.Fast++
		}
		if !o.Measured {
			continue
		}
		if measured == 0 || o.Latency < s.MinLatency {
			s.MinLatency = o.Latency
		}
		if o.Latency > s.MaxLatency {
			s.MaxLatency = o.Latency
		}
		if measured == 0 || o.ThroughputKBps < s.MinKBps {
			s.MinKBps = o.ThroughputKBps
		}
		if o.ThroughputKBps > s.MaxKBps {
			s.MaxKBps = o.ThroughputKBps
		}
		latSum += o.Latency
		kbpsSum += o.ThroughputKBps
		measured++
	}
	if measured > 0 {
		s.AvgLatency = latSum / time.Duration(measured)
		s.AvgKBps = kbpsSum / float64(measured)
	}
	if s.Tested > 0 {
		s.AvailableRate = float64(s.Available) / float64(s.Tested)
	}
	if s.Available > 0 {
		s.FastRate = float64(s.Fast) / float64(s.Available)
	}
	return s
}
