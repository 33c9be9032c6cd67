// Package yfinance is the engine facade: one method per logical category, each served from
// the ticker cache or fetched, retried and normalized on a miss.
package yfinance

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"yfengine/internal/cache"
	"yfengine/internal/config"
	"yfengine/internal/httpx"
	"yfengine/internal/logging"
	"yfengine/internal/normalize"
	"yfengine/internal/ratelimit"
	"yfengine/internal/request"
	"yfengine/internal/retry"
	"yfengine/internal/session"
	"yfengine/internal/yahoo"
	"yfengine/pkg/records"
)

// chunkConcurrency bounds the parallel quote summary requests of one logical query.
const chunkConcurrency = 4

// Config is the engine configuration. Build it with DefaultConfig or LoadConfig.
type Config = config.Config

// Clock drives retry backoff; see WithRetryClock.
type Clock = retry.Clock

// HTTPClient sends API requests; see WithHTTPClient.
type HTTPClient = yahoo.HTTPClient

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config { return config.Default() }

// LoadConfig reads path (JSON or YAML), env files and YF_* variables over the defaults.
func LoadConfig(path string, envFiles ...string) (Config, error) {
	return config.Load(path, envFiles...)
}

// Engine is safe for concurrent use by many goroutines and many symbols.
type Engine struct {
	log      zerolog.Logger
	sessions *session.Manager
	ctl      *retry.Controller
	// lookups runs external families, which need no session.
	lookups  *retry.Controller
	builder  *request.Builder
	client   *yahoo.Client
	norm     *normalize.Registry
	cache    *cache.Cache
}

type options struct {
	log        *zerolog.Logger
	registerer prometheus.Registerer
	tracer     trace.TracerProvider
	meter      metric.MeterProvider
	now        func() time.Time
	clock      Clock
	httpClient HTTPClient
	sleep      func(ctx context.Context, d time.Duration) error
}

// Option configures an Engine.
type Option func(*options)

// WithLogger replaces the logger built from the log config.
func WithLogger(log zerolog.Logger) Option { return func(o *options) { o.log = &log } }

// WithRegisterer exports cache and session metrics to reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

func WithTracerProvider(tp trace.TracerProvider) Option { return func(o *options) { o.tracer = tp } }
func WithMeterProvider(mp metric.MeterProvider) Option  { return func(o *options) { o.meter = mp } }

// WithClock fixes "now" for relative ranges, session timestamps and cache entries.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// WithRetryClock replaces the clock that drives retry backoff.
func WithRetryClock(c Clock) Option { return func(o *options) { o.clock = c } }

// WithSleeper replaces the delay between session bootstrap attempts.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *options) { o.sleep = sleep }
}

// WithHTTPClient sends API requests through c instead of the pooled transport. Session
// bootstraps keep using the transport.
func WithHTTPClient(c HTTPClient) Option { return func(o *options) { o.httpClient = c } }

// New wires an Engine from cfg. cfg is validated first.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	log := logging.New(logging.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	if o.log != nil {
		log = *o.log
	}

	transport, err := httpx.New(httpx.Options{
		Timeout:   cfg.HTTP.RequestTimeout(),
		ProxyURL:  cfg.HTTP.ProxyURL,
		UserAgent: cfg.HTTP.UserAgent,
		Gate:      ratelimit.New(cfg.HTTP.MaxRequestsPerSecond, cfg.HTTP.Burst, cfg.HTTP.MinRequestInterval()),
		Log:       log,
	})
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}

	sessOpts := []session.Option{session.WithLogger(log), session.WithClock(o.now)}
	if o.sleep != nil {
		sessOpts = append(sessOpts, session.WithSleeper(o.sleep))
	}
	if o.registerer != nil {
		sessOpts = append(sessOpts, session.WithRegisterer(o.registerer))
	}
	sessions := session.New(session.Config{
		Strategy:          session.Strategy(cfg.Session.Strategy),
		CookieURL:         cfg.Session.CookieURL,
		CrumbURL:          cfg.Session.CrumbURL,
		ConsentURL:        cfg.Session.ConsentURL,
		CollectConsentURL: cfg.Session.CollectConsentURL,
		APIURL:            cfg.HTTP.BaseURL,
		Attempts:          cfg.Session.BootstrapAttempts,
		Backoff:           cfg.Session.BootstrapBackoff(),
		MaxBodyBytes:      cfg.HTTP.MaxBodyBytes,
	}, func(jar http.CookieJar) session.Doer { return transport.WithJar(jar) }, sessOpts...)

	retryOpts := []retry.Option{retry.WithLogger(log)}
	if o.clock != nil {
		retryOpts = append(retryOpts, retry.WithClock(o.clock))
	}
	if o.tracer != nil {
		retryOpts = append(retryOpts, retry.WithTracerProvider(o.tracer))
	}
	if o.meter != nil {
		retryOpts = append(retryOpts, retry.WithMeterProvider(o.meter))
	}
	policy := retry.Policy{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		Base:           cfg.Retry.BackoffBase(),
		Multiplier:     cfg.Retry.BackoffMultiplier,
		Cap:            cfg.Retry.BackoffCap(),
		MaxTotalWait:   cfg.Retry.MaxTotalWait(),
		AttemptTimeout: cfg.HTTP.RequestTimeout(),
	}
	ctl := retry.New(policy, sessions, retryOpts...)
	lookups := retry.New(policy, retry.NoSession, append(retryOpts, retry.WithClassifier(retry.ClassifyLookup))...)

	var api HTTPClient = transport
	if o.httpClient != nil {
		api = o.httpClient
	}
	client, err := yahoo.NewClient(
		yahoo.WithBaseURL(cfg.HTTP.BaseURL),
		yahoo.WithLookupURL(cfg.HTTP.ISINLookupURL),
		yahoo.WithHTTPClient(api),
		yahoo.WithMaxBodyBytes(cfg.HTTP.MaxBodyBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("api client: %w", err)
	}

	cacheOpts := []cache.Option{
		cache.WithTTL(cfg.Cache.TTL()),
		cache.WithMaxSymbols(cfg.Cache.MaxSymbols),
		cache.WithClock(o.now),
		cache.WithLogger(log),
	}
	if o.registerer != nil {
		cacheOpts = append(cacheOpts, cache.WithRegisterer(o.registerer))
	}

	return &Engine{
		log:      log.With().Str("component", "engine").Logger(),
		sessions: sessions,
		ctl:      ctl,
		lookups:  lookups,
		builder: request.NewBuilder(
			request.WithNow(o.now),
			request.WithModuleChunk(cfg.Normalize.ModuleChunkSize),
			request.WithLocale(cfg.Locale.Lang, cfg.Locale.Region),
		),
		client: client,
		norm: normalize.NewRegistry(
			normalize.WithThreshold(cfg.Normalize.MalformedThreshold),
			normalize.WithLogger(log),
		),
		cache: cache.New(cacheOpts...),
	}, nil
}

// Invalidate drops cached record sets of symbol: every category, or only the listed ones.
func (e *Engine) Invalidate(symbol string, categories ...records.Category) {
	e.cache.Invalidate(symbol, categories...)
}

// SessionInfo describes the current upstream session without exposing credentials.
type SessionInfo struct {
	Active         bool
	BootstrappedAt time.Time
	Generation     uint64
	Cookies        int
	// Bootstraps counts completed bootstrap runs since the engine was created.
	Bootstraps int64
}

// Session reports the session state for diagnostics.
func (e *Engine) Session() SessionInfo {
	info := SessionInfo{Bootstraps: e.sessions.Bootstraps()}
	if h, ok := e.sessions.Current(); ok {
		info.Active = h.Valid()
		info.BootstrappedAt = h.BootstrappedAt()
		info.Generation = h.Generation()
		info.Cookies = len(h.Cookies())
	}
	return info
}

// ResetSession forces the next request to bootstrap a new session.
func (e *Engine) ResetSession() { e.sessions.Reset() }

// get serves eps from the cache, fetching all of them on a miss. Every endpoint of one
// logical query shares symbol, category and fingerprint.
func get[T records.Set](ctx context.Context, e *Engine, eps []*request.Endpoint) (T, error) {
	ep := eps[0]
	key := cache.Key{Symbol: ep.Symbol(), Category: ep.Category(), Fingerprint: ep.Fingerprint()}
	return cache.GetOrFetch(ctx, e.cache, key, func(ctx context.Context) (T, error) {
		var zero T
		set, err := e.fetch(ctx, eps)
		if err != nil {
			return zero, err
		}
		typed, ok := set.(T)
		if !ok {
			return zero, fmt.Errorf("%s %s: unexpected record set %T", ep.Category(), ep.Symbol(), set)
		}
		return typed, nil
	})
}

func endpoints(ep *request.Endpoint) []*request.Endpoint { return []*request.Endpoint{ep} }

// fetch runs every endpoint under the retry controller and normalizes the responses together.
func (e *Engine) fetch(ctx context.Context, eps []*request.Endpoint) (records.Set, error) {
	raws := make([]*httpx.Raw, len(eps))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(chunkConcurrency)
	for i, ep := range eps {
		g.Go(func() error {
			call := retry.Call{Symbol: ep.Symbol(), Category: string(ep.Category())}
			ctl := e.ctl
			if ep.Family().External() {
				ctl = e.lookups
			}
			raw, err := ctl.Execute(gctx, call, e.client.Attempt(ep))
			if err != nil {
				return err
			}
			raws[i] = raw
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	set, err := e.norm.Normalize(ctx, normalize.Input{Endpoint: eps[0], Raws: raws})
	if err != nil {
		return nil, err
	}
	e.log.Debug().
		Str("symbol", eps[0].Symbol()).
		Str("category", string(eps[0].Category())).
		Int("requests", len(eps)).
		Msg("fetched")
	return set, nil
}
