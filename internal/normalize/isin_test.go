package normalize_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"yfengine/internal/httpx"
	"yfengine/internal/normalize"
	"yfengine/pkg/records"
	"yfengine/pkg/yferr"
)

func suggestRaw(body string) *httpx.Raw {
	return &httpx.Raw{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": {"text/html; charset=utf-8"}},
		Body:   []byte(body),
	}
}

func isinEndpoint(t *testing.T, symbol string) normalize.Input {
	t.Helper()
	ep, err := builder().ISIN(symbol)
	require.NoError(t, err)
	return normalize.Input{Endpoint: ep}
}

func TestISIN(t *testing.T) {
	t.Parallel()

	const suggest = `mmSuggestDeliver(0, new Array("Name", "Category", "Keywords", "Bias", "Extension", "IDs"), new Array(` +
		`new Array("Apple Inc.", "Stocks", "AAPL|US0378331005|AAPL||AAPL", "0", "", "908440|AAPL|1|5009"), ` +
		`new Array("Apple Inc. Cert Deposito Arg", "Stocks", "AAPLD|ARDEUT110525|AAPLD||AAPLD", "0", "", "")), 2, 0);`

	cases := []struct {
		name   string
		symbol string
		body   string
		want   string
		reason string
	}{
		{"keyword names the symbol", "AAPL", suggest, "US0378331005", ""},
		{"lower case symbol", "aapl", suggest, "US0378331005", ""},
		{"symbol only in the name", "SAP", `mmSuggestDeliver(0, new Array(), new Array(new Array("SAP SE", "Stocks", "|DE0007164600|SAP.DE", "0")), 1, 0);`, "DE0007164600", ""},
		{"not listed", "ZZZZ", `mmSuggestDeliver(0, new Array(), new Array(), 0, 0);`, "", "no ISIN listed"},
		{"malformed", "AAPL", `new Array("Apple", "Stocks", "AAPL|N/A|AAPL")`, "", "malformed ISIN"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			// Arrange
			in := isinEndpoint(t, tc.symbol)
			in.Raws = []*httpx.Raw{suggestRaw(tc.body)}

			// Act
			set, err := normalize.NewRegistry().Normalize(t.Context(), in)

			// Assert
			require.NoError(t, err)
			got := set.(*records.ISIN)
			require.Equal(t, tc.symbol, got.Symbol)
			require.Equal(t, tc.want, got.ISIN.ValueOrZero())
			if tc.reason == "" {
				require.Empty(t, got.Diagnostics)
				return
			}
			require.Len(t, got.Diagnostics, 1)
			require.Contains(t, got.Diagnostics[0].Reason, tc.reason)
		})
	}
}

func TestISIN_EmptyResponse(t *testing.T) {
	t.Parallel()

	in := isinEndpoint(t, "AAPL")
	in.Raws = []*httpx.Raw{suggestRaw(" \n")}

	_, err := normalize.NewRegistry().Normalize(t.Context(), in)
	require.ErrorIs(t, err, yferr.ErrSchema)
}
