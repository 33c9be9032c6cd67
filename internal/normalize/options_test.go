package normalize_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"yfengine/internal/httpx"
	"yfengine/internal/normalize"
	"yfengine/pkg/records"
	"yfengine/pkg/yferr"
)

func optionPayload(exp int64, contracts ...any) map[string]any {
	return map[string]any{"optionChain": map[string]any{
		"result": []any{map[string]any{
			"underlyingSymbol": "AAPL",
			"expirationDates":  []any{1719532800, 1718928000, 1719532800},
			"strikes":          []any{180.0, 185.0},
			"quote":            map[string]any{"regularMarketPrice": 196.45},
			"options": []any{map[string]any{
				"expirationDate": exp,
				"calls":          contracts,
				"puts":           []any{map[string]any{"contractSymbol": "AAPL240621P00180000", "strike": 180.0, "inTheMoney": false}},
			}},
		}},
		"error": nil,
	}}
}

func TestOptionExpirations(t *testing.T) {
	t.Parallel()

	ep, err := builder().OptionExpirations("AAPL")
	require.NoError(t, err)

	set, err := normalize.NewRegistry().Normalize(t.Context(), normalize.Input{
		Endpoint: ep,
		Raws:     []*httpx.Raw{jsonRaw(t, optionPayload(1718928000))},
	})

	require.NoError(t, err)
	exps := set.(*records.OptionExpirations)
	require.Equal(t, []string{"2024-06-21", "2024-06-28"}, exps.Strings())
	require.Equal(t, []float64{180, 185}, exps.Strikes)
}

func TestOptionChain_SortedByStrike(t *testing.T) {
	t.Parallel()

	// Arrange
	exps := &records.OptionExpirations{Dates: []time.Time{time.Date(2024, 6, 21, 0, 0, 0, 0, time.UTC)}}
	ep, err := builder().OptionChain("AAPL", exps.Dates[0], exps)
	require.NoError(t, err)
	payload := optionPayload(1718928000,
		map[string]any{"contractSymbol": "AAPL240621C00190000", "strike": 190.0, "volume": 12, "impliedVolatility": 0.25, "lastTradeDate": 1718900000},
		map[string]any{"contractSymbol": "AAPL240621C00180000", "strike": 180.0, "bid": 16.1, "ask": 16.4, "inTheMoney": true},
	)

	// Act
	set, err := normalize.NewRegistry().Normalize(t.Context(), normalize.Input{Endpoint: ep, Raws: []*httpx.Raw{jsonRaw(t, payload)}})

	// Assert
	require.NoError(t, err)
	chain := set.(*records.OptionChain)
	require.Equal(t, exps.Dates[0], chain.Expiration)
	require.Equal(t, 196.45, chain.UnderlyingPrice.Float64)
	require.Len(t, chain.Calls, 2)
	require.Equal(t, 180.0, chain.Calls[0].Strike)
	require.True(t, chain.Calls[0].InTheMoney.Bool)
	require.False(t, chain.Calls[0].Volume.Valid)
	require.Equal(t, int64(12), chain.Calls[1].Volume.Int64)
	require.True(t, chain.Calls[1].LastTradeDate.Valid)
	require.Equal(t, exps.Dates[0], chain.Calls[1].Expiration)
	require.Len(t, chain.Puts, 1)
}

func TestOptionChain_WrongExpiration(t *testing.T) {
	t.Parallel()

	exps := &records.OptionExpirations{Dates: []time.Time{time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC)}}
	ep, err := builder().OptionChain("AAPL", exps.Dates[0], exps)
	require.NoError(t, err)

	_, err = normalize.NewRegistry().Normalize(t.Context(), normalize.Input{
		Endpoint: ep,
		Raws:     []*httpx.Raw{jsonRaw(t, optionPayload(1718928000))},
	})
	require.ErrorIs(t, err, yferr.ErrDataUnavailable)
}
