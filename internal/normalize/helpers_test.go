package normalize_test

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"yfengine/internal/httpx"
	"yfengine/internal/request"
	"yfengine/pkg/records"
)

var now = time.Date(2024, 7, 1, 15, 0, 0, 0, time.UTC)

func builder() *request.Builder {
	return request.NewBuilder(request.WithNow(func() time.Time { return now }))
}

func jsonRaw(t *testing.T, v any) *httpx.Raw {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return &httpx.Raw{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": {"application/json;charset=utf-8"}},
		Body:   b,
	}
}

func historyEndpoint(t *testing.T, cat records.Category, q request.HistoryQuery) *request.Endpoint {
	t.Helper()
	if q.Symbol == "" {
		q.Symbol = "AAPL"
	}
	if q.Period == "" && q.Start.IsZero() {
		q.Period = "1mo"
	}
	if q.Interval == "" {
		q.Interval = "1d"
	}
	ep, err := builder().History(cat, q)
	require.NoError(t, err)
	return ep
}

func categoryEndpoint(t *testing.T, cat records.Category, freq records.Frequency) *request.Endpoint {
	t.Helper()
	eps, err := builder().Category("AAPL", cat, freq)
	require.NoError(t, err)
	return eps[0]
}

// summary wraps modules in a quoteSummary envelope.
func summary(modules map[string]any) map[string]any {
	return map[string]any{"quoteSummary": map[string]any{"result": []any{modules}, "error": nil}}
}

// fmtv mimics a formatted upstream value.
func fmtv(v any) map[string]any { return map[string]any{"raw": v, "fmt": "x"} }
