// Package cache is the ticker-scoped record cache.
//
// Each symbol owns a bucket with its own store and single-flight group, so there is no lock
// spanning symbols. A bucket keeps one entry per category; an entry is replaced wholesale
// when a fetch for a different fingerprint succeeds. Failed fetches are never stored.
package cache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"yfengine/pkg/records"
)

// Key addresses one cached record set.
type Key struct {
	Symbol      string
	Category    records.Category
	Fingerprint string
}

// Entry is a stored record set.
type Entry struct {
	Fingerprint string
	Set         records.Set
	FetchedAt   time.Time
}

type bucket struct {
	store *gocache.Cache
	group singleflight.Group

	// mu orders stores against invalidation. epochs counts invalidations per category.
	mu     sync.Mutex
	epochs map[records.Category]uint64
}

func (b *bucket) epoch(cat records.Category) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.epochs[cat]
}

// invalidate drops cat and makes every fetch started before it unable to store.
func (b *bucket) invalidate(cat records.Category) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.epochs == nil {
		b.epochs = map[records.Category]uint64{}
	}
	b.epochs[cat]++
	b.store.Delete(string(cat))
}

// save stores e unless cat was invalidated after epoch was read.
func (b *bucket) save(cat records.Category, epoch uint64, e Entry) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.epochs[cat] != epoch {
		return false
	}
	b.store.Set(string(cat), e, gocache.DefaultExpiration)
	return true
}

// Cache stores record sets per symbol.
type Cache struct {
	// TTL is 0 in manual mode: entries live until invalidated.
	ttl        time.Duration
	maxSymbols int
	now        func() time.Time
	log        zerolog.Logger

	buckets sync.Map // symbol -> *bucket
	symbols atomic.Int64

	requests    *prometheus.CounterVec
	fetchErrors *prometheus.CounterVec
}

type Option func(*Cache)

// WithTTL expires entries after ttl. Zero keeps entries until invalidated.
func WithTTL(ttl time.Duration) Option { return func(c *Cache) { c.ttl = ttl } }

// WithMaxSymbols caps the number of symbol buckets, best effort.
func WithMaxSymbols(n int) Option { return func(c *Cache) { c.maxSymbols = n } }

func WithClock(now func() time.Time) Option { return func(c *Cache) { c.now = now } }

func WithLogger(log zerolog.Logger) Option {
	return func(c *Cache) { c.log = log.With().Str("component", "cache").Logger() }
}

// WithRegisterer exports yf_cache_requests_total{category,result} and
// yf_cache_fetch_errors_total{category} to reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Cache) {
		c.requests = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "yf_cache_requests_total",
			Help: "Cache lookups by category and result.",
		}, []string{"category", "result"})
		c.fetchErrors = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "yf_cache_fetch_errors_total",
			Help: "Failed fetches behind cache misses by category.",
		}, []string{"category"})
	}
}

func New(opts ...Option) *Cache {
	c := &Cache{now: time.Now, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) bucket(symbol string) *bucket {
	if b, ok := c.buckets.Load(symbol); ok {
		return b.(*bucket)
	}
	expiration := gocache.NoExpiration
	if c.ttl > 0 {
		expiration = c.ttl
	}
	// No janitor: expired items are ignored on read and overwritten on the next fetch.
	b, loaded := c.buckets.LoadOrStore(symbol, &bucket{store: gocache.New(expiration, 0)})
	if !loaded {
		c.symbols.Add(1)
		c.evict(symbol)
	}
	return b.(*bucket)
}

// evict drops arbitrary other buckets while over the cap.
func (c *Cache) evict(keep string) {
	if c.maxSymbols <= 0 || c.symbols.Load() <= int64(c.maxSymbols) {
		return
	}
	c.buckets.Range(func(k, _ any) bool {
		if k.(string) == keep {
			return true
		}
		if _, ok := c.buckets.LoadAndDelete(k); ok {
			c.symbols.Add(-1)
			c.log.Debug().Str("symbol", k.(string)).Msg("evicted symbol")
		}
		return c.symbols.Load() > int64(c.maxSymbols)
	})
}

// Lookup returns the entry for key when its fingerprint matches.
func (c *Cache) Lookup(key Key) (Entry, bool) {
	v, ok := c.buckets.Load(key.Symbol)
	if !ok {
		return Entry{}, false
	}
	return v.(*bucket).lookup(key)
}

func (b *bucket) lookup(key Key) (Entry, bool) {
	v, ok := b.store.Get(string(key.Category))
	if !ok {
		return Entry{}, false
	}
	e := v.(Entry)
	if e.Fingerprint != key.Fingerprint {
		return Entry{}, false
	}
	return e, true
}

// Invalidate removes every entry of symbol, or only the listed categories.
func (c *Cache) Invalidate(symbol string, categories ...records.Category) {
	if len(categories) == 0 {
		if _, ok := c.buckets.LoadAndDelete(symbol); ok {
			c.symbols.Add(-1)
		}
		return
	}
	v, ok := c.buckets.Load(symbol)
	if !ok {
		return
	}
	for _, cat := range categories {
		v.(*bucket).invalidate(cat)
	}
}

// Len returns the number of live entries for symbol.
func (c *Cache) Len(symbol string) int {
	v, ok := c.buckets.Load(symbol)
	if !ok {
		return 0
	}
	return len(v.(*bucket).store.Items())
}

// Symbols returns the number of symbol buckets.
func (c *Cache) Symbols() int { return int(c.symbols.Load()) }

func (c *Cache) count(cat records.Category, result string) {
	if c.requests != nil {
		c.requests.WithLabelValues(string(cat), result).Inc()
	}
}

// GetOrFetch serves key from the cache or runs fetch and stores its result. Concurrent
// misses for the same key share one fetch. If the fetching caller is canceled, the others
// start their own fetch. A fetch that was in flight when its category was invalidated
// still answers its callers but is not stored, and later callers do not join it.
func GetOrFetch[T records.Set](ctx context.Context, c *Cache, key Key, fetch func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	b := c.bucket(key.Symbol)
	if e, ok := b.lookup(key); ok {
		if set, ok := e.Set.(T); ok {
			c.count(key.Category, "hit")
			return set, nil
		}
	}
	c.count(key.Category, "miss")

	for {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		led := false
		epoch := b.epoch(key.Category)
		flight := string(key.Category) + "\x00" + strconv.FormatUint(epoch, 10) + "\x00" + key.Fingerprint
		ch := b.group.DoChan(flight, func() (any, error) {
			led = true
			if e, ok := b.lookup(key); ok {
				return e.Set, nil
			}
			set, err := fetch(ctx)
			if err != nil {
				if c.fetchErrors != nil {
					c.fetchErrors.WithLabelValues(string(key.Category)).Inc()
				}
				return nil, err
			}
			entry := Entry{Fingerprint: key.Fingerprint, Set: set, FetchedAt: c.now()}
			if !b.save(key.Category, epoch, entry) {
				c.log.Debug().Str("symbol", key.Symbol).Str("category", string(key.Category)).
					Msg("discarded fetch invalidated in flight")
			}
			return set, nil
		})

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				// Only a waiter retries: the leader's own fetch already saw its ctx.
				if !led && isCanceled(res.Err) && ctx.Err() == nil {
					continue
				}
				return zero, res.Err
			}
			set, ok := res.Val.(T)
			if !ok {
				return zero, errors.New("cache: record set type mismatch for " + string(key.Category))
			}
			return set, nil
		}
	}
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
