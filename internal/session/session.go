// Package session owns the upstream cookie + crumb state.
//
// A Manager hands out immutable Handles. Bootstrapping is the only serialization point of the
// engine: concurrent callers that find no valid session share one in-flight bootstrap.
package session

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"yfengine/pkg/yferr"
)

// Doer sends one HTTP request.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DoerFactory returns a Doer that stores cookies in jar.
type DoerFactory func(jar http.CookieJar) Doer

// Strategy selects the bootstrap handshake.
type Strategy string

const (
	// StrategyBasic seeds cookies from the cookie URL and then reads the crumb.
	StrategyBasic Strategy = "basic"
	// StrategyConsent accepts the consent form before reading the crumb.
	StrategyConsent Strategy = "consent"
	// StrategyAuto runs basic and falls back to consent when a consent wall is detected.
	StrategyAuto Strategy = "auto"
)

type Config struct {
	Strategy          Strategy
	CookieURL         string
	CrumbURL          string
	ConsentURL        string
	CollectConsentURL string
	// APIURL is the API origin the cookies are collected for.
	APIURL string
	// Attempts is the number of bootstrap attempts before AuthBootstrapError.
	Attempts int
	// Backoff is the delay after the first failed attempt; it doubles afterwards.
	Backoff time.Duration
	// Timeout bounds one whole bootstrap, independent of the caller that triggered it.
	Timeout      time.Duration
	MaxBodyBytes int64
}

// Handle is an immutable view of one bootstrapped session.
type Handle struct {
	crumb          string
	cookies        []*http.Cookie
	bootstrappedAt time.Time
	generation     uint64
}

// NewHandle builds a handle from credentials obtained elsewhere. Its generation is 0, so it
// never invalidates a managed session.
func NewHandle(crumb string, cookies []*http.Cookie, at time.Time) Handle {
	return Handle{crumb: crumb, cookies: append([]*http.Cookie(nil), cookies...), bootstrappedAt: at}
}

func (h Handle) Crumb() string             { return h.crumb }
func (h Handle) BootstrappedAt() time.Time { return h.bootstrappedAt }
func (h Handle) Generation() uint64        { return h.generation }
func (h Handle) Valid() bool               { return h.crumb != "" }
func (h Handle) Cookies() []*http.Cookie   { return append([]*http.Cookie(nil), h.cookies...) }

// Apply attaches the session cookies and the crumb query parameter to req.
func (h Handle) Apply(req *http.Request) {
	for _, c := range h.cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	if h.crumb == "" {
		return
	}
	q := req.URL.Query()
	q.Set("crumb", h.crumb)
	req.URL.RawQuery = q.Encode()
}

// Manager owns the current session.
type Manager struct {
	cfg       Config
	newDoer   DoerFactory
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time
	log       zerolog.Logger
	apiURL    *url.URL
	bootTotal *prometheus.CounterVec

	group singleflight.Group

	mu         sync.RWMutex
	current    *Handle
	generation uint64

	bootstraps atomic.Int64
}

// Option configures a Manager.
type Option func(*Manager)

func WithLogger(log zerolog.Logger) Option {
	return func(m *Manager) { m.log = log.With().Str("component", "session").Logger() }
}

// WithSleeper replaces the backoff sleep between bootstrap attempts.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(m *Manager) { m.sleep = sleep }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithRegisterer exports yf_session_bootstraps_total{result} to reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(m *Manager) {
		m.bootTotal = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "yf_session_bootstraps_total",
			Help: "Session bootstraps by result.",
		}, []string{"result"})
	}
}

func New(cfg Config, newDoer DoerFactory, opts ...Option) *Manager {
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyAuto
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	m := &Manager{
		cfg:     cfg,
		newDoer: newDoer,
		sleep:   sleepCtx,
		now:     time.Now,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if cfg.APIURL != "" {
		m.apiURL, _ = url.Parse(cfg.APIURL)
	}
	return m
}

// Ensure returns the current session, bootstrapping one if there is none.
// A canceled ctx releases the caller; the shared bootstrap keeps running for the others.
func (m *Manager) Ensure(ctx context.Context) (Handle, error) {
	if h, ok := m.Current(); ok {
		return h, nil
	}
	if err := ctx.Err(); err != nil {
		return Handle{}, err
	}

	ch := m.group.DoChan("bootstrap", func() (any, error) {
		// Another caller may have finished a bootstrap between our check and this call.
		if h, ok := m.Current(); ok {
			return h, nil
		}
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.Timeout)
		defer cancel()
		h, err := m.bootstrap(bctx)
		if err != nil {
			return Handle{}, err
		}
		m.mu.Lock()
		m.generation++
		h.generation = m.generation
		m.current = &h
		m.mu.Unlock()
		return h, nil
	})

	select {
	case <-ctx.Done():
		return Handle{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Handle{}, res.Err
		}
		return res.Val.(Handle), nil
	}
}

// Current returns the session without bootstrapping.
func (m *Manager) Current() (Handle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return Handle{}, false
	}
	return *m.current, true
}

// Invalidate marks h as rejected. It is a no-op when a newer session already replaced h,
// so concurrent rejections of one stale handle cause a single re-bootstrap.
func (m *Manager) Invalidate(h Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil && m.current.generation == h.generation {
		m.log.Info().Uint64("generation", h.generation).Msg("session invalidated")
		m.current = nil
	}
}

// Reset drops whatever session is current.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
}

// Bootstraps counts completed bootstrap runs, successful or not.
func (m *Manager) Bootstraps() int64 { return m.bootstraps.Load() }

func (m *Manager) bootstrap(ctx context.Context) (Handle, error) {
	defer m.bootstraps.Add(1)

	var lastErr error
	backoff := m.cfg.Backoff
	for attempt := 1; attempt <= m.cfg.Attempts; attempt++ {
		h, err := m.handshake(ctx)
		if err == nil {
			m.observe("ok")
			m.log.Info().
				Int("attempt", attempt).
				Int("cookies", len(h.cookies)).
				Msg("session bootstrapped")
			return h, nil
		}
		lastErr = err
		m.log.Warn().Err(err).Int("attempt", attempt).Msg("session bootstrap failed")
		if ctx.Err() != nil {
			break
		}
		if attempt < m.cfg.Attempts && backoff > 0 {
			if err := m.sleep(ctx, backoff); err != nil {
				break
			}
			backoff *= 2
		}
	}
	m.observe("error")
	return Handle{}, yferr.Wrap(yferr.AuthBootstrap, "", "", lastErr, "session bootstrap failed")
}

func (m *Manager) observe(result string) {
	if m.bootTotal != nil {
		m.bootTotal.WithLabelValues(result).Inc()
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
