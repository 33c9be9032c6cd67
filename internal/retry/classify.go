// Package retry executes one logical upstream request under a bounded retry policy.
package retry

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"yfengine/internal/httpx"
	"yfengine/pkg/yferr"
)

// Outcome classifies one attempt.
type Outcome int

const (
	Success Outcome = iota
	// Transient failures are retried with backoff: timeouts, 5xx, 429, connection errors.
	Transient
	// AuthInvalid means the session was rejected: 401/403 or a crumb rejection payload.
	AuthInvalid
	// Fatal failures are not retried: other 4xx and unusable responses.
	Fatal
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Transient:
		return "transient"
	case AuthInvalid:
		return "auth_invalid"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

var crumbRejections = [][]byte{
	[]byte("invalid crumb"),
	[]byte("invalid cookie"),
	[]byte(`"code":"unauthorized"`),
}

// Classify maps a finished attempt to an Outcome. Cancellation of the caller's context is
// handled before classification and never reaches this function as a retryable error.
func Classify(raw *httpx.Raw, err error) Outcome {
	if err != nil {
		if errors.Is(err, httpx.ErrBodyTooLarge) || yferr.KindOf(err) != 0 {
			return Fatal
		}
		// Timeouts, resets and refused connections are all worth another attempt.
		return Transient
	}
	if raw == nil {
		return Fatal
	}

	switch {
	case raw.Status == http.StatusUnauthorized, raw.Status == http.StatusForbidden:
		return AuthInvalid
	case isCrumbRejection(raw.Status, raw.Body):
		return AuthInvalid
	case raw.Status == http.StatusTooManyRequests, raw.Status == http.StatusRequestTimeout:
		return Transient
	case raw.Status >= 500:
		return Transient
	case raw.Status == http.StatusNotFound && raw.MediaType() == "application/json":
		// Upstream answers unknown symbols with a JSON error document; the normalizer owns it.
		return Success
	case raw.Status >= 400:
		return Fatal
	case raw.IsHTML():
		// A consent wall served in place of API JSON means the cookies are no longer honoured.
		return AuthInvalid
	default:
		return Success
	}
}

// ClassifyLookup maps an attempt against a service that needs no session. Any media type
// is acceptable and nothing is treated as a session rejection.
func ClassifyLookup(raw *httpx.Raw, err error) Outcome {
	if err != nil || raw == nil {
		return Classify(raw, err)
	}
	switch {
	case raw.Status == http.StatusTooManyRequests, raw.Status == http.StatusRequestTimeout:
		return Transient
	case raw.Status >= 500:
		return Transient
	case raw.Status >= 300:
		return Fatal
	default:
		return Success
	}
}

// isCrumbRejection looks for a rejection marker. In a successful response only the error
// document counts, so data that merely mentions a marker is not a rejection.
func isCrumbRejection(status int, body []byte) bool {
	if len(body) > 4096 {
		return false
	}
	if status < 300 {
		body = errorDocument(body)
	}
	lower := bytes.ToLower(body)
	for _, marker := range crumbRejections {
		if bytes.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// errorDocument returns the top-level "error" member, or the "error" member of an envelope
// such as {"finance":{"error":{...}}}. It returns nil when there is none.
func errorDocument(body []byte) []byte {
	var doc map[string]json.RawMessage
	if json.Unmarshal(body, &doc) != nil {
		return nil
	}
	if e, ok := doc["error"]; ok {
		return e
	}
	for _, v := range doc {
		var env struct {
			Error json.RawMessage `json:"error"`
		}
		if json.Unmarshal(v, &env) == nil && len(env.Error) > 0 {
			return env.Error
		}
	}
	return nil
}
