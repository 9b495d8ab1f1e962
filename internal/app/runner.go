// Package app owns one probing run end to end: supply candidates, parse,
// dedupe, partition, probe availability then speed, rank, and persist. All
// run state lives on the Runner, so independent runs never share anything.
package app

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"proxysieve/internal/config"
	"proxysieve/internal/dispatch"
	"proxysieve/internal/probe"
	"proxysieve/internal/proxyaddr"
	"proxysieve/internal/rank"
	"proxysieve/internal/sink"
	"proxysieve/internal/source"
	"proxysieve/internal/sysres"
)

// Stage selects which probing phases a run executes.
type Stage string

const (
	// StageFull fetches candidates and runs both probe phases.
	StageFull Stage = "full"
	// StageAvailability fetches candidates and runs only the availability
	// phase; the output feeds a later speed run.
	StageAvailability Stage = "availability"
	// StageSpeed reads candidates from a local file and runs only the
	// speed phase.
	StageSpeed Stage = "speed"
)

// PartitionScheme names the two supported candidate partitionings.
type PartitionScheme int

const (
	PartitionNone PartitionScheme = iota
	// PartitionShard is the 1-based (shard_index, total_shards) scheme
	// with ceil-sized shards.
	PartitionShard
	// PartitionWorker is the 0-based (worker_id, total_workers) scheme
	// where the last worker absorbs the remainder.
	PartitionWorker
)

// Partition assigns this run its slice of the canonical candidate ordering.
type Partition struct {
	Scheme PartitionScheme
	Index  int
	Total  int
}

func (p Partition) apply(items []string) ([]string, error) {
	switch p.Scheme {
	case PartitionNone:
		return items, nil
	case PartitionShard:
		return proxyaddr.Shard(items, p.Index, p.Total)
	case PartitionWorker:
		return proxyaddr.WorkerSlice(items, p.Index, p.Total)
	default:
		return nil, fmt.Errorf("%w: unknown scheme %d", proxyaddr.ErrInvalidShard, p.Scheme)
	}
}

// Runner executes one probing run.
type Runner struct {
	Cfg       *config.Config
	Stage     Stage
	Partition Partition
	// InputFile holds pre-vetted candidates for StageSpeed.
	InputFile string
	// OnProgress, when set, receives throttled batch progress per stage.
	OnProgress func(stage Stage, p dispatch.Progress)

	Dialer   probe.TunnelDialer
	Supplier *source.Supplier

	// Probe indirections, overridable in tests.
	checkAvailability func(ctx context.Context, ep proxyaddr.Endpoint) bool
	measureSpeed      func(ctx context.Context, ep proxyaddr.Endpoint) *probe.SpeedResult
}

// New wires a Runner with production collaborators.
func New(cfg *config.Config) *Runner {
	return &Runner{
		Cfg:      cfg,
		Stage:    StageFull,
		Dialer:   probe.SOCKS5Dialer{Timeout: cfg.Timeout},
		Supplier: source.New(),
	}
}

// Run executes the configured stage and returns the run statistics. A run
// that finds zero candidates completes successfully with empty outputs;
// only configuration errors fail a run, and they fail it before any
// probing starts.
func (r *Runner) Run(ctx context.Context) (rank.Stats, error) {
	start := time.Now()
	r.bindProbes()

	raws, err := r.gather(ctx)
	if err != nil {
		return rank.Stats{}, err
	}
	fetched := len(raws)

	deduped := proxyaddr.Dedupe(raws)
	unique := len(deduped)
	if r.Cfg.MaxProxies > 0 && len(deduped) > r.Cfg.MaxProxies {
		log.Warnf("capping candidate set %d -> %d", len(deduped), r.Cfg.MaxProxies)
		deduped = deduped[:r.Cfg.MaxProxies]
	}

	// Partition parameters are validated before any probing happens.
	deduped, err = r.Partition.apply(deduped)
	if err != nil {
		return rank.Stats{}, err
	}

	endpoints, dropped := parseAll(deduped)
	if dropped > 0 {
		log.Infof("dropped %d malformed candidates", dropped)
	}
	log.Infof("probing %d endpoints (fetched=%d unique=%d stage=%s)",
		len(endpoints), fetched, unique, r.Stage)

	outcomes := r.probeAll(ctx, endpoints)

	available, fast := rank.Classify(outcomes, r.Cfg.Thresholds)
	stats := rank.Collect(outcomes, r.Cfg.Thresholds, fetched, unique, time.Since(start))

	if err := r.persist(available, fast, stats); err != nil {
		return stats, err
	}
	log.Infof("done: tested=%d available=%d fast=%d elapsed=%s",
		stats.Tested, stats.Available, stats.Fast, stats.Elapsed.Round(time.Second))
	return stats, nil
}

func (r *Runner) bindProbes() {
	if r.checkAvailability == nil {
		cfg := probe.AvailabilityConfig{
			Targets:        r.Cfg.Targets,
			Timeout:        r.Cfg.Timeout,
			MinSuccessRate: r.Cfg.MinSuccessRate,
			Retry: probe.RetryPolicy{
				MaxAttempts: r.Cfg.Retries + 1,
				Backoff:     r.Cfg.RetryBackoff,
			},
		}
		r.checkAvailability = func(ctx context.Context, ep proxyaddr.Endpoint) bool {
			return probe.CheckAvailability(ctx, r.Dialer, ep, cfg)
		}
	}
	if r.measureSpeed == nil {
		cfg := r.Cfg.Speed
		r.measureSpeed = func(ctx context.Context, ep proxyaddr.Endpoint) *probe.SpeedResult {
			res, err := probe.MeasureSpeed(ctx, r.Dialer, ep, cfg)
			if err != nil {
				return nil
			}
			return res
		}
	}
}

func (r *Runner) gather(ctx context.Context) ([]string, error) {
	if r.Stage == StageSpeed {
		return source.ReadProxyFile(r.InputFile)
	}
	urls, err := r.Supplier.ReadURLFile(r.Cfg.URLFile)
	if err != nil {
		return nil, err
	}
	if len(urls) == 0 {
		log.Warn("no source urls; nothing to probe")
		return nil, nil
	}
	return r.Supplier.FetchAll(ctx, urls), nil
}

func parseAll(raws []string) ([]proxyaddr.Endpoint, int) {
	endpoints := make([]proxyaddr.Endpoint, 0, len(raws))
	dropped := 0
	for _, raw := range raws {
		ep, err := proxyaddr.Parse(raw)
		if err != nil {
			dropped++
			continue
		}
		endpoints = append(endpoints, ep)
	}
	return endpoints, dropped
}

// probeAll runs the configured phases and merges both probes into one
// outcome per endpoint.
func (r *Runner) probeAll(ctx context.Context, endpoints []proxyaddr.Endpoint) []rank.Outcome {
	concurrency := sysres.CapConcurrency(r.Cfg.Concurrency, dispatch.DefaultConcurrency)
	outcomes := make([]rank.Outcome, len(endpoints))
	for i, ep := range endpoints {
		outcomes[i] = rank.Outcome{Endpoint: ep}
	}

	speedIdx := make([]int, 0, len(endpoints))
	if r.Stage == StageSpeed {
		// Availability was vetted upstream; probe speed for everything.
		for i := range endpoints {
			speedIdx = append(speedIdx, i)
		}
	} else {
		availResults := dispatch.Run(ctx, endpoints, r.checkAvailability, dispatch.Options[bool]{
			Concurrency: concurrency,
			Matched:     func(ok bool) bool { return ok },
			OnProgress:  r.progressFn(StageAvailability),
		})
		for i, ok := range availResults {
			outcomes[i].Available = ok
			if ok {
				speedIdx = append(speedIdx, i)
			}
		}
		if r.Stage == StageAvailability {
			return outcomes
		}
	}

	speedEps := make([]proxyaddr.Endpoint, len(speedIdx))
	for j, i := range speedIdx {
		speedEps[j] = endpoints[i]
	}
	speedResults := dispatch.Run(ctx, speedEps, r.measureSpeed, dispatch.Options[*probe.SpeedResult]{
		Concurrency: concurrency,
		Matched:     func(res *probe.SpeedResult) bool { return res != nil },
		OnProgress:  r.progressFn(StageSpeed),
	})
	for j, res := range speedResults {
		if res == nil {
			continue
		}
		o := &outcomes[speedIdx[j]]
		o.Available = true
		o.Measured = true
		o.Latency = res.Latency
		o.ThroughputKBps = res.ThroughputKBps
		o.Bytes = res.Bytes
	}
	return outcomes
}

func (r *Runner) progressFn(stage Stage) func(dispatch.Progress) {
	if r.OnProgress == nil {
		return nil
	}
	return func(p dispatch.Progress) { r.OnProgress(stage, p) }
}

func (r *Runner) persist(available, fast []rank.Outcome, stats rank.Stats) error {
	if err := sink.WriteWorking(r.Cfg.OutFile, available); err != nil {
		return err
	}
	if r.Stage != StageAvailability {
		if err := sink.WriteFast(r.Cfg.FastFile, fast, r.Cfg.Thresholds); err != nil {
			return err
		}
	}
	return sink.WriteStats(r.Cfg.StatsFile, stats, r.Cfg.Thresholds)
}
