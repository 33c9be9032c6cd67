package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"
	"yfengine/internal/httpx"
)

var (
	errConsentRequired = errors.New("consent wall")
	errCrumbShape      = errors.New("unexpected crumb payload")

	csrfTokenRe = regexp.MustCompile(`name="csrfToken"\s+value="([^"]+)"`)
	sessionIDRe = regexp.MustCompile(`name="sessionId"\s+value="([^"]+)"`)
)

// handshake runs one bootstrap attempt with a fresh cookie jar.
func (m *Manager) handshake(ctx context.Context) (Handle, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return Handle{}, fmt.Errorf("creating cookie jar: %w", err)
	}
	doer := m.newDoer(jar)

	var crumb string
	switch m.cfg.Strategy {
	case StrategyConsent:
		crumb, err = m.consent(ctx, doer)
	case StrategyBasic:
		crumb, err = m.basic(ctx, doer)
	default:
		crumb, err = m.basic(ctx, doer)
		if errors.Is(err, errConsentRequired) {
			m.log.Debug().Msg("consent wall detected, switching to consent handshake")
			crumb, err = m.consent(ctx, doer)
		}
	}
	if err != nil {
		return Handle{}, err
	}

	return Handle{
		crumb:          crumb,
		cookies:        m.collectCookies(jar),
		bootstrappedAt: m.now(),
	}, nil
}

func (m *Manager) basic(ctx context.Context, doer Doer) (string, error) {
	raw, err := m.get(ctx, doer, m.cfg.CookieURL)
	if err != nil {
		return "", fmt.Errorf("seeding cookies: %w", err)
	}
	// The seed URL answers 404 on success; only a consent redirect matters here.
	if isConsentPage(raw) {
		return "", errConsentRequired
	}
	return m.crumb(ctx, doer)
}

func (m *Manager) consent(ctx context.Context, doer Doer) (string, error) {
	raw, err := m.get(ctx, doer, m.cfg.ConsentURL)
	if err != nil {
		return "", fmt.Errorf("loading consent form: %w", err)
	}
	csrf := csrfTokenRe.FindSubmatch(raw.Body)
	sid := sessionIDRe.FindSubmatch(raw.Body)
	if csrf == nil || sid == nil {
		return "", fmt.Errorf("consent form not recognised (status %d)", raw.Status)
	}

	form := url.Values{}
	form.Set("agree", "agree")
	form.Set("consentUUID", "default")
	form.Set("sessionId", string(sid[1]))
	form.Set("csrfToken", string(csrf[1]))
	form.Set("originalDoneUrl", "https://finance.yahoo.com/")
	form.Set("namespace", "yahoo")

	target := m.cfg.CollectConsentURL + "?sessionId=" + url.QueryEscape(string(sid[1]))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("creating consent request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	res, err := doer.Do(req)
	if err != nil {
		return "", fmt.Errorf("posting consent: %w", err)
	}
	posted, err := httpx.ReadRaw(res, m.cfg.MaxBodyBytes)
	if err != nil {
		return "", fmt.Errorf("posting consent: %w", err)
	}
	if posted.Status >= 400 {
		return "", fmt.Errorf("posting consent: status %d", posted.Status)
	}
	return m.crumb(ctx, doer)
}

func (m *Manager) crumb(ctx context.Context, doer Doer) (string, error) {
	raw, err := m.get(ctx, doer, m.cfg.CrumbURL)
	if err != nil {
		return "", fmt.Errorf("fetching crumb: %w", err)
	}
	if raw.IsHTML() {
		return "", fmt.Errorf("fetching crumb: %w", errConsentRequired)
	}
	if raw.Status != http.StatusOK {
		return "", fmt.Errorf("fetching crumb: status %d: %s", raw.Status, raw.Snippet(80))
	}
	crumb := strings.TrimSpace(string(raw.Body))
	if crumb == "" || len(crumb) > 64 || strings.ContainsAny(crumb, " \t\r\n<>{}\"") {
		return "", fmt.Errorf("fetching crumb: %w: %q", errCrumbShape, raw.Snippet(40))
	}
	return crumb, nil
}

// page is a fetched response together with the host it finally came from.
type page struct {
	*httpx.Raw
	host string
}

func (m *Manager) get(ctx context.Context, doer Doer, target string) (*page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	res, err := doer.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	raw, err := httpx.ReadRaw(res, m.cfg.MaxBodyBytes)
	if err != nil {
		return nil, err
	}
	p := &page{Raw: raw}
	if res.Request != nil && res.Request.URL != nil {
		p.host = res.Request.URL.Hostname()
	}
	return p, nil
}

// isConsentPage detects a redirect to the consent hosts or a served consent form.
func isConsentPage(p *page) bool {
	if strings.HasPrefix(p.host, "consent.") || strings.HasPrefix(p.host, "guce.") {
		return true
	}
	return p.IsHTML() && csrfTokenRe.Match(p.Body)
}

// collectCookies returns the jar cookies that the API origin would receive.
func (m *Manager) collectCookies(jar http.CookieJar) []*http.Cookie {
	seen := map[string]bool{}
	var out []*http.Cookie
	add := func(cs []*http.Cookie) {
		for _, c := range cs {
			if !seen[c.Name] {
				seen[c.Name] = true
				out = append(out, c)
			}
		}
	}
	if m.apiURL != nil {
		add(jar.Cookies(m.apiURL))
	}
	for _, raw := range []string{m.cfg.CrumbURL, m.cfg.CookieURL} {
		if u, err := url.Parse(raw); err == nil {
			add(jar.Cookies(u))
		}
	}
	return out
}
