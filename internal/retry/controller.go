package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"yfengine/internal/httpx"
	"yfengine/internal/session"
	"yfengine/pkg/yferr"
)

const instrumentationName = "yfengine/retry"

// Policy bounds the retries of one logical request.
type Policy struct {
	// MaxAttempts is the number of attempts transient failures may consume.
	MaxAttempts int
	Base        time.Duration
	Multiplier  float64
	Cap         time.Duration
	// MaxTotalWait bounds the sum of all backoff sleeps.
	MaxTotalWait time.Duration
	// AttemptTimeout bounds each HTTP attempt; zero leaves only the caller's deadline.
	AttemptTimeout time.Duration
}

// DefaultPolicy returns 3 attempts, 500ms base doubling to a 10s cap, 30s total wait and a
// 10s per-attempt timeout.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		Base:           500 * time.Millisecond,
		Multiplier:     2,
		Cap:            10 * time.Second,
		MaxTotalWait:   30 * time.Second,
		AttemptTimeout: 10 * time.Second,
	}
}

// Backoff returns the un-jittered delay after the n-th transient failure (n >= 1).
func (p Policy) Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := float64(p.Base) * math.Pow(p.Multiplier, float64(n-1))
	if p.Cap > 0 && d > float64(p.Cap) {
		return p.Cap
	}
	return time.Duration(d)
}

// Clock abstracts time so the state machine can be driven deterministically.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Auth supplies and invalidates sessions. *session.Manager implements it.
type Auth interface {
	Ensure(ctx context.Context) (session.Handle, error)
	Invalidate(h session.Handle)
}

// NoSession is the Auth of services that need no session: it hands out the empty handle.
var NoSession Auth = noSession{}

type noSession struct{}

func (noSession) Ensure(context.Context) (session.Handle, error) { return session.Handle{}, nil }
func (noSession) Invalidate(session.Handle)                      {}

// AttemptFunc performs exactly one HTTP attempt with the given session.
type AttemptFunc func(ctx context.Context, h session.Handle) (*httpx.Raw, error)

// Call identifies the logical request for errors, logs and telemetry.
type Call struct {
	Symbol   string
	Category string
}

// AttemptInfo describes one finished attempt.
type AttemptInfo struct {
	Call
	Attempt   int
	Outcome   Outcome
	Status    int
	RequestID string
	// Wait is the backoff scheduled after this attempt, zero when none.
	Wait time.Duration
	Err  error
}

// Hook observes every attempt.
type Hook func(AttemptInfo)

// Controller runs AttemptFuncs under a Policy. It keeps no state between Execute calls.
type Controller struct {
	policy   Policy
	auth     Auth
	clock    Clock
	jitter   func(time.Duration) time.Duration
	classify func(*httpx.Raw, error) Outcome
	hook     Hook
	log      zerolog.Logger
	tracer   trace.Tracer
	attempts metric.Int64Counter
}

type Option func(*Controller)

func WithClock(c Clock) Option { return func(ctl *Controller) { ctl.clock = c } }

// WithJitter replaces the default jitter, which picks uniformly in [d/2, d).
func WithJitter(f func(time.Duration) time.Duration) Option {
	return func(ctl *Controller) { ctl.jitter = f }
}

// WithClassifier replaces Classify, e.g. with ClassifyLookup.
func WithClassifier(f func(*httpx.Raw, error) Outcome) Option {
	return func(ctl *Controller) { ctl.classify = f }
}

func WithHook(h Hook) Option { return func(ctl *Controller) { ctl.hook = h } }

func WithLogger(log zerolog.Logger) Option {
	return func(ctl *Controller) { ctl.log = log.With().Str("component", "retry").Logger() }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(ctl *Controller) { ctl.tracer = tp.Tracer(instrumentationName) }
}

// WithMeterProvider registers the yf.request.attempts counter on mp.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(ctl *Controller) { ctl.attempts = newAttemptCounter(mp.Meter(instrumentationName)) }
}

func New(policy Policy, auth Auth, opts ...Option) *Controller {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if policy.Multiplier < 1 {
		policy.Multiplier = 1
	}
	c := &Controller{
		policy:   policy,
		auth:     auth,
		clock:    realClock{},
		jitter:   halfJitter,
		classify: Classify,
		log:      zerolog.Nop(),
		tracer:   otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.attempts == nil {
		c.attempts = newAttemptCounter(otel.Meter(instrumentationName))
	}
	return c
}

func newAttemptCounter(m metric.Meter) metric.Int64Counter {
	counter, err := m.Int64Counter("yf.request.attempts",
		metric.WithDescription("Upstream HTTP attempts by category and outcome."),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		otel.Handle(err)
		counter, _ = noop.Meter{}.Int64Counter("yf.request.attempts")
	}
	return counter
}

func halfJitter(d time.Duration) time.Duration {
	if d <= 1 {
		return d
	}
	half := d / 2
	return half + time.Duration(rand.Int64N(int64(d-half)))
}

// Execute runs fn until it succeeds or the policy gives up.
func (c *Controller) Execute(ctx context.Context, call Call, fn AttemptFunc) (*httpx.Raw, error) {
	ctx, span := c.tracer.Start(ctx, "yf.request", trace.WithAttributes(
		attribute.String("yf.symbol", call.Symbol),
		attribute.String("yf.category", call.Category),
	))
	defer span.End()

	raw, err := c.run(ctx, call, fn)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.response.status_code", raw.Status))
	return raw, nil
}

type state int

const (
	stateSession state = iota
	stateAttempt
	stateBackoff
)

func (c *Controller) run(ctx context.Context, call Call, fn AttemptFunc) (*httpx.Raw, error) {
	var (
		st        = stateSession
		handle    session.Handle
		attempt   int
		failures  int
		reauthed  bool
		throttled bool
		waited    time.Duration
		wait      time.Duration
		lastErr   error
		lastRaw   *httpx.Raw
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%s %s: %w", call.Category, call.Symbol, err)
		}

		switch st {
		case stateSession:
			h, err := c.auth.Ensure(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil, fmt.Errorf("%s %s: %w", call.Category, call.Symbol, ctx.Err())
				}
				return nil, yferr.WithContext(err, call.Symbol, call.Category)
			}
			handle = h
			st = stateAttempt

		case stateAttempt:
			attempt++
			raw, err := c.attempt(ctx, handle, fn)
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%s %s: %w", call.Category, call.Symbol, ctx.Err())
			}
			outcome := c.classify(raw, err)
			lastErr, lastRaw = err, raw
			info := AttemptInfo{Call: call, Attempt: attempt, Outcome: outcome, Err: err}
			if raw != nil {
				info.Status = raw.Status
				info.RequestID = raw.RequestID
			}

			switch outcome {
			case Success:
				c.observe(ctx, info)
				return raw, nil

			case Fatal:
				c.observe(ctx, info)
				if yferr.KindOf(err) != 0 {
					return nil, yferr.WithContext(err, call.Symbol, call.Category)
				}
				return nil, requestError(call, raw, err, "request rejected")

			case AuthInvalid:
				c.observe(ctx, info)
				if reauthed {
					return nil, &yferr.Error{
						Kind: yferr.Auth, Symbol: call.Symbol, Category: call.Category,
						Status: info.Status, Msg: "credentials rejected after re-bootstrap", Err: err,
					}
				}
				reauthed = true
				c.auth.Invalidate(handle)
				st = stateSession

			case Transient:
				failures++
				if raw != nil && raw.Status == 429 {
					throttled = true
				}
				if failures >= c.policy.MaxAttempts {
					c.observe(ctx, info)
					return nil, c.exhausted(call, throttled, lastRaw, lastErr, "retry budget exhausted")
				}
				wait = c.jitter(c.policy.Backoff(failures))
				if raw != nil {
					if ra, ok := raw.RetryAfter(c.clock.Now()); ok && ra > wait {
						wait = ra
					}
				}
				if c.policy.MaxTotalWait > 0 && waited+wait > c.policy.MaxTotalWait {
					c.observe(ctx, info)
					return nil, c.exhausted(call, throttled, lastRaw, lastErr, "max total wait exceeded")
				}
				info.Wait = wait
				c.observe(ctx, info)
				st = stateBackoff
			}

		case stateBackoff:
			if err := c.clock.Sleep(ctx, wait); err != nil {
				return nil, fmt.Errorf("%s %s: %w", call.Category, call.Symbol, err)
			}
			waited += wait
			st = stateAttempt
		}
	}
}

func (c *Controller) attempt(ctx context.Context, h session.Handle, fn AttemptFunc) (*httpx.Raw, error) {
	if c.policy.AttemptTimeout <= 0 {
		return fn(ctx, h)
	}
	actx, cancel := context.WithTimeout(ctx, c.policy.AttemptTimeout)
	defer cancel()
	return fn(actx, h)
}

func (c *Controller) exhausted(call Call, throttled bool, raw *httpx.Raw, err error, msg string) error {
	if throttled {
		e := requestError(call, raw, err, msg)
		e.Kind = yferr.RateLimitExceeded
		return e
	}
	return requestError(call, raw, err, msg)
}

func requestError(call Call, raw *httpx.Raw, err error, msg string) *yferr.Error {
	e := &yferr.Error{Kind: yferr.Request, Symbol: call.Symbol, Category: call.Category, Msg: msg, Err: err}
	if raw != nil {
		e.Status = raw.Status
		if snippet := raw.Snippet(200); snippet != "" {
			e.Msg = msg + ": " + snippet
		}
	}
	return e
}

func (c *Controller) observe(ctx context.Context, info AttemptInfo) {
	c.attempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("category", info.Category),
		attribute.String("outcome", info.Outcome.String()),
	))
	trace.SpanFromContext(ctx).AddEvent("attempt", trace.WithAttributes(
		attribute.Int("attempt", info.Attempt),
		attribute.String("outcome", info.Outcome.String()),
		attribute.Int("status", info.Status),
	))
	ev := c.log.Debug()
	if info.Outcome != Success {
		ev = c.log.Info()
	}
	ev.Str("symbol", info.Symbol).
		Str("category", info.Category).
		Int("attempt", info.Attempt).
		Stringer("outcome", info.Outcome).
		Int("status", info.Status).
		Str("request_id", info.RequestID).
		Dur("wait", info.Wait).
		AnErr("error", info.Err).
		Msg("upstream attempt")
	if c.hook != nil {
		c.hook(info)
	}
}
