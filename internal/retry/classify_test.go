package retry_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"yfengine/internal/httpx"
	"yfengine/internal/retry"
	"yfengine/pkg/yferr"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	json := http.Header{"Content-Type": {"application/json"}}
	html := http.Header{"Content-Type": {"text/html"}}

	cases := []struct {
		name string
		raw  *httpx.Raw
		err  error
		want retry.Outcome
	}{
		{"ok", &httpx.Raw{Status: 200, Header: json, Body: []byte(`{"chart":{}}`)}, nil, retry.Success},
		{"unauthorized", &httpx.Raw{Status: 401, Header: json}, nil, retry.AuthInvalid},
		{"forbidden", &httpx.Raw{Status: 403, Header: json}, nil, retry.AuthInvalid},
		{"invalid cookie body", &httpx.Raw{Status: 200, Header: json, Body: []byte(`{"error":"Invalid Cookie"}`)}, nil, retry.AuthInvalid},
		{"invalid cookie status", &httpx.Raw{Status: 400, Header: json, Body: []byte(`Invalid Cookie`)}, nil, retry.AuthInvalid},
		{"marker inside data", &httpx.Raw{Status: 200, Header: json, Body: []byte(
			`{"quoteSummary":{"result":[{"assetProfile":{"longBusinessSummary":"Rejects any invalid cookie or invalid crumb."}}],"error":null}}`,
		)}, nil, retry.Success},
		{"consent html", &httpx.Raw{Status: 200, Header: html, Body: []byte(`<html>`)}, nil, retry.AuthInvalid},
		{"throttled", &httpx.Raw{Status: 429, Header: json}, nil, retry.Transient},
		{"server error", &httpx.Raw{Status: 502, Header: json}, nil, retry.Transient},
		{"json not found", &httpx.Raw{Status: 404, Header: json, Body: []byte(`{"chart":{"error":{"code":"Not Found"}}}`)}, nil, retry.Success},
		{"html not found", &httpx.Raw{Status: 404, Header: html}, nil, retry.Fatal},
		{"bad request", &httpx.Raw{Status: 400, Header: json}, nil, retry.Fatal},
		{"timeout", nil, fmt.Errorf("performing request: %w", context.DeadlineExceeded), retry.Transient},
		{"reset", nil, errors.New("connection reset by peer"), retry.Transient},
		{"too large", nil, httpx.ErrBodyTooLarge, retry.Fatal},
		{"engine error", nil, yferr.New(yferr.InvalidParameter, "X", "history", "bad"), retry.Fatal},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, retry.Classify(tc.raw, tc.err), tc.name)
	}
}

func TestClassifyLookup(t *testing.T) {
	t.Parallel()

	html := http.Header{"Content-Type": {"text/html"}}

	cases := []struct {
		name string
		raw  *httpx.Raw
		err  error
		want retry.Outcome
	}{
		{"html is data", &httpx.Raw{Status: 200, Header: html, Body: []byte(`mmSuggestDeliver(0)`)}, nil, retry.Success},
		{"marker is data", &httpx.Raw{Status: 200, Header: html, Body: []byte(`{"error":"invalid cookie"}`)}, nil, retry.Success},
		{"forbidden", &httpx.Raw{Status: 403, Header: html}, nil, retry.Fatal},
		{"throttled", &httpx.Raw{Status: 429, Header: html}, nil, retry.Transient},
		{"unavailable", &httpx.Raw{Status: 503, Header: html}, nil, retry.Transient},
		{"reset", nil, errors.New("connection reset by peer"), retry.Transient},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, retry.ClassifyLookup(tc.raw, tc.err), tc.name)
	}
}
