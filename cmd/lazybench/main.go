// Command lazybench runs a GetOrAdd workload against the memoizing cache and
// exposes optional pprof/Prometheus endpoints. It reports how many factory
// runs the single-flight layer saved.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/lazycache/cache"
	pmet "github.com/IvanBrykalov/lazycache/metrics/prom"
	"github.com/IvanBrykalov/lazycache/policy/twoq"
	"github.com/IvanBrykalov/lazycache/store"
	"github.com/IvanBrykalov/lazycache/store/memstore"
)

var errFactory = errors.New("lazybench: simulated factory failure")

// counters are shared by all workers.
type counters struct {
	ops, async, factoryRuns, errs atomic.Uint64
}

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}

	// ---- pprof server (on DefaultServeMux) ----
	if cfg.PprofAddr != "" {
		go func() {
			log.Printf("pprof: serving at %s", cfg.PprofAddr)
			log.Println(http.ListenAndServe(cfg.PprofAddr, nil))
		}()
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	m := pmet.New(nil, "lazycache", "bench", nil)
	if cfg.MetricsAddr != "" {
		http.Handle("/metrics", promhttp.Handler())
		go func() {
			log.Printf("metrics: serving at %s", cfg.MetricsAddr)
			log.Println(http.ListenAndServe(cfg.MetricsAddr, nil))
		}()
	}

	// ---- Build store + cache ----
	sopt := memstore.Options{
		Capacity:        cfg.Capacity,
		Shards:          cfg.Shards,
		Metrics:         m,
		CleanupInterval: time.Second,
	}
	if cfg.Policy == "2q" {
		// split 2Q queues as a simple default
		sopt.Policy = twoq.New(max(cfg.Capacity/4, 1), max(cfg.Capacity/2, 1))
	}
	ms := memstore.New(sopt)
	defer func() { _ = ms.Close() }()

	c := cache.New(ms, cache.Options{
		KeyLocks: cfg.KeyLocks,
		Metrics:  m,
		Logf:     log.Printf,
	})

	// ---- Load generation ----
	var cnt counters
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Duration))
	defer cancel()

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < max(cfg.Workers, 1); w++ {
		g.Go(func() error { return work(gctx, c, cfg, w, &cnt) })
	}
	if err := g.Wait(); err != nil {
		log.Fatal(err)
	}
	elapsed := time.Since(start)

	// ---- Report ----
	ops := cnt.ops.Load()
	runs := cnt.factoryRuns.Load()
	saved := 0.0
	if ops > 0 {
		saved = (1 - float64(runs)/float64(ops)) * 100
	}
	hits, misses := ms.Stats()

	fmt.Printf("policy=%s cap=%d shards=%d key-locks=%d workers=%d keys=%d dur=%v seed=%d\n",
		cfg.Policy, cfg.Capacity, cfg.Shards, cfg.KeyLocks, cfg.Workers, cfg.Keys, elapsed, cfg.Seed)
	fmt.Printf("ops=%d (%.0f ops/s)  async=%d  errors=%d\n",
		ops, float64(ops)/elapsed.Seconds(), cnt.async.Load(), cnt.errs.Load())
	fmt.Printf("factory runs=%d  saved=%.2f%%  store hits=%d misses=%d evictions=%d\n",
		runs, saved, hits, misses, ms.Evictions())
	fmt.Printf("Len()=%d\n", c.Len())
}

// work issues GetOrAdd/GetOrAddAsync calls on Zipf-distributed keys until
// ctx is done.
func work(ctx context.Context, c *cache.Cache, cfg Config, id int, cnt *counters) error {
	// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
	r := rand.New(rand.NewSource(cfg.Seed + int64(id)*9973))
	zipf := rand.NewZipf(r, cfg.ZipfS, cfg.ZipfV, uint64(cfg.Keys-1))
	fail := func() bool { return int(r.Int31n(100)) < cfg.ErrorPct }

	for ctx.Err() == nil {
		key := "k:" + strconv.FormatUint(zipf.Uint64(), 10)
		opts := entryOptions(cfg)
		failNext := fail()

		var err error
		if int(r.Int31n(100)) < cfg.AsyncPct {
			cnt.async.Add(1)
			_, err = cache.GetOrAddAsync(ctx, c, key, func(fctx context.Context, _ *store.Entry) (string, error) {
				cnt.factoryRuns.Add(1)
				select {
				case <-time.After(time.Duration(cfg.FactoryDelay)):
				case <-fctx.Done():
					return "", fctx.Err()
				}
				if failNext {
					return "", errFactory
				}
				return "v:" + key, nil
			}, opts)
		} else {
			_, err = cache.GetOrAdd(c, key, func(*store.Entry) (string, error) {
				cnt.factoryRuns.Add(1)
				time.Sleep(time.Duration(cfg.FactoryDelay))
				if failNext {
					return "", errFactory
				}
				return "v:" + key, nil
			}, opts)
		}
		cnt.ops.Add(1)

		switch {
		case err == nil:
		case errors.Is(err, errFactory):
			cnt.errs.Add(1)
		case ctx.Err() != nil:
			return nil
		default:
			return fmt.Errorf("worker %d: %w", id, err)
		}
	}
	return nil
}

func entryOptions(cfg Config) *store.EntryOptions {
	ttl := time.Duration(cfg.TTL)
	if ttl <= 0 {
		return nil
	}
	opts := &store.EntryOptions{}
	if cfg.Sliding {
		opts.SlidingExpiration = ttl
	} else {
		opts.AbsoluteExpirationRelativeToNow = ttl
	}
	if cfg.Immediate {
		opts.EvictionMode = store.Immediate
	}
	return opts
}
