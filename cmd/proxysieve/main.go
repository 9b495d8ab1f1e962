// Command proxysieve validates SOCKS5 proxy lists: it fetches candidates
// from configured sources, probes availability and speed with bounded
// concurrency, and writes ranked output lists plus a statistics report.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	log "github.com/sirupsen/logrus"

	"proxysieve/internal/app"
	"proxysieve/internal/config"
	"proxysieve/internal/dispatch"
	"proxysieve/internal/proxyaddr"
	"proxysieve/internal/sysres"
)

func main() {
	configPath := flag.String("config", "", "config file (created with defaults when missing)")
	urlFile := flag.String("urls", "", "override: source URL list file")
	inputFile := flag.String("input", "", "candidate file for -stage speed")
	outFile := flag.String("out", "", "override: available proxies output file")
	fastFile := flag.String("fast-out", "", "override: fast proxies output file")
	statsFile := flag.String("stats-out", "", "override: statistics report file")
	stage := flag.String("stage", "full", "stage: full/availability/speed")
	shard := flag.Int("shard", 0, "1-based shard index (with -total-shards)")
	totalShards := flag.Int("total-shards", 0, "total shard count")
	worker := flag.Int("worker", -1, "0-based worker id (with -total-workers)")
	totalWorkers := flag.Int("total-workers", 0, "total worker count")
	concurrency := flag.Int("c", 0, "override: max concurrent probes")
	timeout := flag.Duration("timeout", 0, "override: per-target probe timeout")
	maxProxies := flag.Int("max-proxies", -1, "override: candidate cap after dedup (0=uncapped)")
	quiet := flag.Bool("q", false, "suppress the progress bar")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	applyOverrides(cfg, *urlFile, *outFile, *fastFile, *statsFile, *concurrency, *timeout, *maxProxies)

	runner := app.New(cfg)
	runner.InputFile = *inputFile

	switch app.Stage(strings.ToLower(*stage)) {
	case app.StageFull:
		runner.Stage = app.StageFull
	case app.StageAvailability:
		runner.Stage = app.StageAvailability
	case app.StageSpeed:
		runner.Stage = app.StageSpeed
		if *inputFile == "" {
			log.Fatal("-stage speed requires -input")
		}
	default:
		log.Fatalf("unknown -stage %q (want full/availability/speed)", *stage)
	}

	runner.Partition, err = partitionFromFlags(*shard, *totalShards, *worker, *totalWorkers)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if !*quiet {
		runner.OnProgress = newProgressRenderer()
	}

	log.Infof("fd limit %d, probing with concurrency %d",
		sysres.FDLimit(), sysres.CapConcurrency(cfg.Concurrency, dispatch.DefaultConcurrency))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stats, err := runner.Run(ctx)
	if err != nil {
		log.Fatalf("run failed: %v", err)
	}
	log.Infof("available=%d fast=%d written to %s / %s (report: %s)",
		stats.Available, stats.Fast, cfg.OutFile, cfg.FastFile, cfg.StatsFile)
}

func applyOverrides(cfg *config.Config, urls, out, fast, stats string, c int, timeout time.Duration, maxProxies int) {
	if urls != "" {
		cfg.URLFile = urls
	}
	if out != "" {
		cfg.OutFile = out
	}
	if fast != "" {
		cfg.FastFile = fast
	}
	if stats != "" {
		cfg.StatsFile = stats
	}
	if c > 0 {
		cfg.Concurrency = c
	}
	if timeout > 0 {
		cfg.Timeout = timeout
		cfg.Speed.Timeout = timeout
	}
	if maxProxies >= 0 {
		cfg.MaxProxies = maxProxies
	}
}

// partitionFromFlags accepts one of the two partition schemes; mixing them
// or passing partial parameters is a configuration error.
func partitionFromFlags(shard, totalShards, worker, totalWorkers int) (app.Partition, error) {
	shardSet := shard != 0 || totalShards != 0
	workerSet := worker >= 0 || totalWorkers != 0
	switch {
	case shardSet && workerSet:
		return app.Partition{}, errors.New("use either -shard/-total-shards or -worker/-total-workers, not both")
	case shardSet:
		if shard < 1 || totalShards < 1 || shard > totalShards {
			return app.Partition{}, proxyaddr.ErrInvalidShard
		}
		return app.Partition{Scheme: app.PartitionShard, Index: shard, Total: totalShards}, nil
	case workerSet:
		if worker < 0 || totalWorkers < 1 || worker >= totalWorkers {
			return app.Partition{}, proxyaddr.ErrInvalidShard
		}
		return app.Partition{Scheme: app.PartitionWorker, Index: worker, Total: totalWorkers}, nil
	default:
		return app.Partition{}, nil
	}
}

// newProgressRenderer feeds dispatcher progress events into one bar per
// stage on stderr.
func newProgressRenderer() func(app.Stage, dispatch.Progress) {
	var (
		mu       sync.Mutex
		curStage app.Stage
		bar      *progressbar.ProgressBar
	)
	return func(stage app.Stage, p dispatch.Progress) {
		mu.Lock()
		defer mu.Unlock()
		if bar == nil || stage != curStage {
			if bar != nil {
				_ = bar.Finish()
			}
			curStage = stage
			bar = progressbar.NewOptions(p.Total,
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionSetDescription(string(stage)),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWidth(30),
				progressbar.OptionClearOnFinish(),
			)
		}
		_ = bar.Set(p.Done)
	}
}
