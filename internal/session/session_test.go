package session_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"yfengine/internal/httpx"
	"yfengine/internal/session"
	"yfengine/pkg/yferr"
)

const consentForm = `<!DOCTYPE html><html><body><form method="post">
<input type="hidden" name="csrfToken" value="tok-1">
<input type="hidden" name="sessionId" value="sid-9">
<button name="agree" value="agree">Accept all</button></form></body></html>`

type upstream struct {
	srv        *httptest.Server
	seedCalls  atomic.Int32
	crumbCalls atomic.Int32
	collected  atomic.Int32

	crumbDelay time.Duration
	// crumbHTML serves a consent page instead of the crumb.
	crumbHTML bool
	// consentOnly serves the crumb only after the consent form was posted.
	consentOnly bool
}

func newUpstream(t *testing.T, configure func(u *upstream)) *upstream {
	t.Helper()
	u := &upstream{}
	if configure != nil {
		configure(u)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/seed", func(w http.ResponseWriter, r *http.Request) {
		u.seedCalls.Add(1)
		http.SetCookie(w, &http.Cookie{Name: "A3", Value: "seed", Path: "/"})
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/crumb", func(w http.ResponseWriter, r *http.Request) {
		u.crumbCalls.Add(1)
		time.Sleep(u.crumbDelay)
		c, err := r.Cookie("A3")
		switch {
		case u.crumbHTML, u.consentOnly && (err != nil || c.Value != "consented"):
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(consentForm))
		case err != nil:
			w.WriteHeader(http.StatusUnauthorized)
		default:
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("crumb-" + c.Value))
		}
	})
	mux.HandleFunc("/consent", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(consentForm))
	})
	mux.HandleFunc("/collect", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.FormValue("csrfToken") != "tok-1" || r.URL.Query().Get("sessionId") != "sid-9" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		u.collected.Add(1)
		http.SetCookie(w, &http.Cookie{Name: "A3", Value: "consented", Path: "/"})
		w.WriteHeader(http.StatusOK)
	})
	u.srv = httptest.NewServer(mux)
	t.Cleanup(u.srv.Close)
	return u
}

func (u *upstream) config(strategy session.Strategy) session.Config {
	return session.Config{
		Strategy:          strategy,
		CookieURL:         u.srv.URL + "/seed",
		CrumbURL:          u.srv.URL + "/crumb",
		ConsentURL:        u.srv.URL + "/consent",
		CollectConsentURL: u.srv.URL + "/collect",
		APIURL:            u.srv.URL,
		Attempts:          3,
		Backoff:           10 * time.Millisecond,
	}
}

func doers(t *testing.T) session.DoerFactory {
	t.Helper()
	base, err := httpx.New(httpx.Options{Timeout: 5 * time.Second})
	require.NoError(t, err)
	return func(jar http.CookieJar) session.Doer { return base.WithJar(jar) }
}

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func TestEnsure_ConcurrentCallersShareOneBootstrap(t *testing.T) {
	t.Parallel()

	// Arrange
	up := newUpstream(t, func(u *upstream) { u.crumbDelay = 50 * time.Millisecond })
	mgr := session.New(up.config(session.StrategyBasic), doers(t))

	// Act
	const callers = 16
	var wg sync.WaitGroup
	handles := make([]session.Handle, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			handles[i], errs[i] = mgr.Ensure(t.Context())
		}()
	}
	wg.Wait()

	// Assert
	for i := range callers {
		require.NoError(t, errs[i])
		require.Equal(t, "crumb-seed", handles[i].Crumb())
		require.Equal(t, handles[0].Generation(), handles[i].Generation())
	}
	require.Equal(t, int64(1), mgr.Bootstraps())
	require.Equal(t, int32(1), up.crumbCalls.Load())
}

func TestEnsure_ReusesSession(t *testing.T) {
	t.Parallel()

	// Arrange
	up := newUpstream(t, nil)
	mgr := session.New(up.config(session.StrategyBasic), doers(t))

	// Act
	h1, err := mgr.Ensure(t.Context())
	require.NoError(t, err)
	h2, err := mgr.Ensure(t.Context())
	require.NoError(t, err)

	// Assert
	require.Equal(t, h1, h2)
	require.Equal(t, int64(1), mgr.Bootstraps())
	require.Equal(t, int32(1), up.seedCalls.Load())
}

func TestInvalidate_IsGenerationChecked(t *testing.T) {
	t.Parallel()

	// Arrange
	up := newUpstream(t, nil)
	mgr := session.New(up.config(session.StrategyBasic), doers(t))
	stale, err := mgr.Ensure(t.Context())
	require.NoError(t, err)

	// Act: two rejections of the same handle
	mgr.Invalidate(stale)
	fresh, err := mgr.Ensure(t.Context())
	require.NoError(t, err)
	mgr.Invalidate(stale)
	again, err := mgr.Ensure(t.Context())
	require.NoError(t, err)

	// Assert: the second rejection did not discard the fresh session
	require.Greater(t, fresh.Generation(), stale.Generation())
	require.Equal(t, fresh, again)
	require.Equal(t, int64(2), mgr.Bootstraps())
}

func TestEnsure_ConsentWallIsBootstrapError(t *testing.T) {
	t.Parallel()

	// Arrange
	up := newUpstream(t, func(u *upstream) { u.crumbHTML = true })
	sleeper := &recordingSleeper{}
	reg := prometheus.NewRegistry()
	mgr := session.New(up.config(session.StrategyBasic), doers(t),
		session.WithSleeper(sleeper.Sleep),
		session.WithRegisterer(reg),
	)

	// Act
	_, err := mgr.Ensure(t.Context())

	// Assert
	require.ErrorIs(t, err, yferr.ErrAuthBootstrap)
	require.Equal(t, int32(3), up.crumbCalls.Load())
	require.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, sleeper.delays)
	require.Equal(t, int64(1), mgr.Bootstraps())
	_, ok := mgr.Current()
	require.False(t, ok)

	count, err := testutil.GatherAndCount(reg, "yf_session_bootstraps_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestEnsure_AutoFallsBackToConsent(t *testing.T) {
	t.Parallel()

	// Arrange
	up := newUpstream(t, func(u *upstream) { u.consentOnly = true })
	mgr := session.New(up.config(session.StrategyAuto), doers(t))

	// Act
	h, err := mgr.Ensure(t.Context())

	// Assert
	require.NoError(t, err)
	require.Equal(t, "crumb-consented", h.Crumb())
	require.Equal(t, int32(1), up.collected.Load())
	cookies := h.Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, "consented", cookies[0].Value)
}

func TestHandle_Apply(t *testing.T) {
	t.Parallel()

	// Arrange
	up := newUpstream(t, nil)
	mgr := session.New(up.config(session.StrategyBasic), doers(t))
	h, err := mgr.Ensure(t.Context())
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodGet, up.srv.URL+"/v8/finance/chart/AAPL?interval=1d", http.NoBody)
	require.NoError(t, err)

	// Act
	h.Apply(req)

	// Assert
	require.Equal(t, "crumb-seed", req.URL.Query().Get("crumb"))
	require.Equal(t, "1d", req.URL.Query().Get("interval"))
	c, err := req.Cookie("A3")
	require.NoError(t, err)
	require.Equal(t, "seed", c.Value)
}

func TestEnsure_CanceledCallerDoesNotAbortBootstrap(t *testing.T) {
	t.Parallel()

	// Arrange
	up := newUpstream(t, func(u *upstream) { u.crumbDelay = 100 * time.Millisecond })
	mgr := session.New(up.config(session.StrategyBasic), doers(t))
	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()

	// Act
	_, err := mgr.Ensure(ctx)
	h, err2 := mgr.Ensure(t.Context())

	// Assert
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NoError(t, err2)
	require.True(t, h.Valid())
	require.Equal(t, int64(1), mgr.Bootstraps())
}
