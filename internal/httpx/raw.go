package httpx

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrBodyTooLarge is returned by ReadRaw when the payload exceeds the limit.
var ErrBodyTooLarge = errors.New("response body exceeds limit")

// Raw is a fully read HTTP response. It is transient: consumers copy what they need.
type Raw struct {
	Status int
	Header http.Header
	Body   []byte
	// RequestID correlates log lines and diagnostics for one attempt.
	RequestID string
	Method    string
	URL       string
}

// ReadRaw drains and closes resp. limit <= 0 means no limit.
func ReadRaw(resp *http.Response, limit int64) (*Raw, error) {
	defer resp.Body.Close()

	var r io.Reader = resp.Body
	if limit > 0 {
		r = io.LimitReader(resp.Body, limit+1)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if limit > 0 && int64(len(body)) > limit {
		return nil, fmt.Errorf("%w (%d bytes)", ErrBodyTooLarge, limit)
	}

	raw := &Raw{
		Status:    resp.StatusCode,
		Header:    resp.Header.Clone(),
		Body:      body,
		RequestID: uuid.NewString(),
	}
	if resp.Request != nil {
		raw.Method = resp.Request.Method
		if resp.Request.URL != nil {
			raw.URL = resp.Request.URL.Redacted()
		}
	}
	return raw, nil
}

// MediaType returns the lower-cased media type of the Content-Type header.
func (r *Raw) MediaType() string {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return strings.ToLower(strings.TrimSpace(r.Header.Get("Content-Type")))
	}
	return mt
}

// IsHTML reports an HTML document, judged by content type or by shape when the type lies.
func (r *Raw) IsHTML() bool {
	switch r.MediaType() {
	case "text/html", "application/xhtml+xml":
		return true
	}
	head := bytes.ToLower(bytes.TrimSpace(r.Body))
	if len(head) > 64 {
		head = head[:64]
	}
	return bytes.HasPrefix(head, []byte("<!doctype html")) || bytes.HasPrefix(head, []byte("<html"))
}

// RetryAfter parses the Retry-After header as delta-seconds or an HTTP date.
func (r *Raw) RetryAfter(now time.Time) (time.Duration, bool) {
	v := strings.TrimSpace(r.Header.Get("Retry-After"))
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

// Snippet returns at most n bytes of the body for error messages.
func (r *Raw) Snippet(n int) string {
	b := bytes.TrimSpace(r.Body)
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
