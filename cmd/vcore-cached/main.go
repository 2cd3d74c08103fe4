// vcore-cached refreshes the revocation cache's due CRL entries, running
// forever until signaled. Structured as a looper over a single tick
// function, mirroring the teacher's cmd/ocsp-updater: a fixed-interval tick
// that queries for due work and backs off its interval on failure.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jmhodges/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wacapps/vcore/metrics"
	"github.com/wacapps/vcore/revocation"
	"github.com/wacapps/vcore/vcfg"
	"github.com/wacapps/vcore/vcorelog"
)

// looper runs tickFunc on a fixed interval, doubling the interval (capped
// at backoffMax) each consecutive failure and resetting to tickDur on the
// next success.
type looper struct {
	clk        clock.Clock
	tickDur    time.Duration
	backoffMax time.Duration
	tickFunc   func(context.Context) (refreshed int, err error)
	log        *vcorelog.Logger

	failures int
}

func (l *looper) tick(ctx context.Context) {
	start := l.clk.Now()
	refreshed, err := l.tickFunc(ctx)
	elapsed := l.clk.Now().Sub(start)

	sleep := l.tickDur - elapsed
	if sleep < 0 {
		sleep = 0
	}

	if err != nil {
		l.failures++
		backoff := l.tickDur * time.Duration(1<<uint(l.failures))
		if backoff > l.backoffMax {
			backoff = l.backoffMax
		}
		sleep = backoff
		l.log.WarningErr(err)
	} else {
		if l.failures > 0 {
			l.failures = 0
		}
		l.log.Notice(fmt.Sprintf("refreshed %d due CRL entries", refreshed))
	}

	l.clk.Sleep(sleep)
}

func (l *looper) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			l.tick(ctx)
		}
	}
}

func main() {
	configPath := flag.String("config", "", "path to JSON configuration file")
	flag.Parse()

	log := vcorelog.Get()

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "usage: vcore-cached -config <file>")
		os.Exit(2)
	}

	cfg, err := vcfg.Load(*configPath)
	if err != nil {
		log.WarningErr(err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	stats := metrics.NewPromScope(registry, "VcoreCached")
	if cfg.Stats.ListenAddress != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
			log.WarningErr(http.ListenAndServe(cfg.Stats.ListenAddress, mux))
		}()
	}

	dbMap, err := revocation.OpenCacheDB(cfg.DBConnect.String())
	if err != nil {
		log.WarningErr(err)
		os.Exit(1)
	}

	clk := clock.New()
	cache := revocation.NewCache(dbMap, clk).WithStats(stats)
	crlClient := revocation.NewCRLClient().WithStats(stats)

	refreshShift := cfg.CacheRefreshShift.Duration
	if refreshShift == 0 {
		refreshShift = revocation.RefreshShift
	}

	l := &looper{
		clk:        clk,
		tickDur:    time.Minute,
		backoffMax: time.Hour,
		log:        log,
		tickFunc: func(ctx context.Context) (int, error) {
			due, err := cache.ListDueCRLs(ctx, clk.Now(), refreshShift)
			if err != nil {
				return 0, err
			}
			refreshed := 0
			for _, uri := range due {
				if err := crlClient.RefreshURI(ctx, cache, uri); err != nil {
					log.WarningErr(err)
					continue
				}
				refreshed++
			}
			return refreshed, nil
		},
	}

	l.run(context.Background())
}
