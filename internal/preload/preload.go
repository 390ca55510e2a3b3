// Package preload fetches provider imagery into shared image cache.
//
// Each run lists identifiers from provider, caps working set, skips cached
// locators and fetches the rest with bounded concurrency and per-image timeout.
// Failed images are reported and never retried within run.
package preload

import (
	"context"
	"fmt"
	"image"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/kiosk/helpers"
	"github.com/temoto/kiosk/internal/imgcache"
	"github.com/temoto/kiosk/log2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultConcurrency = 3
	DefaultTimeout     = 20 * time.Second
	DefaultMaxItems    = 25
)

type Config struct {
	Concurrency int `hcl:"concurrency"` // 1 = sequential
	TimeoutMs   int `hcl:"timeout_ms"`
	MaxItems    int `hcl:"max_items"`
}

type Options struct {
	Concurrency int
	Timeout     time.Duration
}

// Lister returns ordered opaque image identifiers for provider key.
type Lister interface {
	List(ctx context.Context, providerKey string) ([]string, error)
}

// Fetcher downloads and decodes image by locator. Must honor ctx,
// Prefetcher enforces timeout even if it does not.
type Fetcher interface {
	Fetch(ctx context.Context, locator string) (image.Image, error)
}

type URLBuilder interface {
	Locator(providerKey, id string) string
}

type Prefetcher struct {
	log      *log2.Log
	cache    *imgcache.Cache
	lister   Lister
	fetcher  Fetcher
	urls     URLBuilder
	defaults Options
	maxItems int
	flight   singleflight.Group
	fetches  int64
}

func New(config Config, cache *imgcache.Cache, lister Lister, fetcher Fetcher, urls URLBuilder, log *log2.Log) *Prefetcher {
	if cache == nil || fetcher == nil {
		panic("code error preload.New cache or fetcher is nil")
	}
	return &Prefetcher{
		log:     log,
		cache:   cache,
		lister:  lister,
		fetcher: fetcher,
		urls:    urls,
		defaults: Options{
			Concurrency: helpers.IntDefault(config.Concurrency, DefaultConcurrency),
			Timeout:     helpers.IntMillisecondDefault(config.TimeoutMs, DefaultTimeout),
		},
		maxItems: helpers.IntDefault(config.MaxItems, DefaultMaxItems),
	}
}

func (self *Prefetcher) Defaults() Options { return self.defaults }

func (self *Prefetcher) Cache() *imgcache.Cache { return self.cache }

// Fetches returns number of network fetches started since creation.
func (self *Prefetcher) Fetches() int64 { return atomic.LoadInt64(&self.fetches) }

// Preload runs one preload to completion and returns final snapshot.
// obs (may be nil) receives snapshot after every change.
// Zero fields in opt are taken from config.
func (self *Prefetcher) Preload(ctx context.Context, providerKey string, opt Options, obs Observer) Progress {
	opt = self.fillOptions(opt)
	r := newRun(providerKey, obs)
	metricRuns.Inc()

	if providerKey == "" {
		r.fail("provider key is not set")
		return r.snapshot()
	}
	if self.lister == nil || self.urls == nil {
		r.fail("provider is not configured")
		return r.snapshot()
	}
	ids, err := self.lister.List(ctx, providerKey)
	if err != nil {
		err = errors.Annotate(err, "preload list")
		self.log.Error(err)
		r.fail(err.Error())
		return r.snapshot()
	}
	locators := self.workingSet(providerKey, ids)
	if len(locators) == 0 {
		r.fail("provider returned no images")
		return r.snapshot()
	}

	self.log.Debugf("preload run=%s total=%d concurrency=%d timeout=%v", r.progress.RunID, len(locators), opt.Concurrency, opt.Timeout)
	r.begin(locators, fmt.Sprintf("loading %d images", len(locators)))

	g := new(errgroup.Group)
	g.SetLimit(opt.Concurrency)
	for _, locator := range locators {
		locator := locator
		if self.cache.Has(locator) {
			metricCached.Inc()
			r.success(locator, "cached")
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				r.failItem(locator, err.Error())
				return nil
			}
			if err := self.load(ctx, locator, opt.Timeout); err != nil {
				self.log.Debugf("preload run=%s locator=%s err=%v", r.progress.RunID, locator, err)
				r.failItem(locator, err.Error())
				return nil
			}
			r.success(locator, "loaded")
			return nil
		})
	}
	_ = g.Wait()
	r.finish()
	final := r.snapshot()
	self.log.Infof("preload run=%s loaded=%d/%d errors=%d", final.RunID, final.Loaded, final.Total, final.Errors())
	return final
}

// Stream runs Preload in background and delivers every snapshot to returned channel,
// closed after final snapshot. Reader must drain channel or cancel ctx.
func (self *Prefetcher) Stream(ctx context.Context, providerKey string, opt Options) <-chan Progress {
	ch := make(chan Progress)
	go func() {
		defer close(ch)
		self.Preload(ctx, providerKey, opt, ObserverFunc(func(p Progress) {
			select {
			case ch <- p:
			case <-ctx.Done():
			}
		}))
	}()
	return ch
}

// Get is cache-through single image load for widgets, sharing dedup with Preload.
func (self *Prefetcher) Get(ctx context.Context, locator string) (image.Image, error) {
	if img, ok := self.cache.Get(locator); ok {
		return img, nil
	}
	if err := self.load(ctx, locator, self.defaults.Timeout); err != nil {
		return nil, err
	}
	if img, ok := self.cache.Get(locator); ok {
		return img, nil
	}
	// evicted right after insert, tiny cache under heavy load
	return nil, errors.NotFoundf("image evicted locator=%s", locator)
}

// load ensures locator is in cache. Concurrent calls for same locator
// share one network fetch and one cache entry.
func (self *Prefetcher) load(ctx context.Context, locator string, timeout time.Duration) error {
	ch := self.flight.DoChan(locator, func() (interface{}, error) {
		if self.cache.Has(locator) {
			return nil, nil
		}
		atomic.AddInt64(&self.fetches, 1)
		// shared fetch outlives any single caller, bounded by timeout
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		img, err := self.fetcher.Fetch(fctx, locator)
		if err != nil {
			metricFetches.WithLabelValues("error").Inc()
			return nil, err
		}
		metricFetches.WithLabelValues("success").Inc()
		self.cache.Put(locator, img)
		return nil, nil
	})

	tmr := time.NewTimer(timeout)
	defer tmr.Stop()
	select {
	case res := <-ch:
		return res.Err
	case <-tmr.C:
		metricFetches.WithLabelValues("timeout").Inc()
		// fetch ignoring ctx may never return, next load must start fresh
		self.flight.Forget(locator)
		return errors.Timeoutf("fetch %v", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// workingSet takes first maxItems identifiers of listing,
// then deduplicates locators preserving order.
func (self *Prefetcher) workingSet(providerKey string, ids []string) []string {
	if len(ids) > self.maxItems {
		ids = ids[:self.maxItems]
	}
	locators := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		locator := self.urls.Locator(providerKey, id)
		if _, ok := seen[locator]; ok {
			continue
		}
		seen[locator] = struct{}{}
		locators = append(locators, locator)
	}
	return locators
}

func (self *Prefetcher) fillOptions(opt Options) Options {
	if opt.Concurrency <= 0 {
		opt.Concurrency = self.defaults.Concurrency
	}
	if opt.Timeout <= 0 {
		opt.Timeout = self.defaults.Timeout
	}
	return opt
}
