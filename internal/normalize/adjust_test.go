package normalize_test

import (
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"yfengine/internal/normalize"
	"yfengine/pkg/records"
)

func rawBars() ([]records.Bar, []records.Action) {
	d := func(n int) time.Time { return time.Date(2024, 3, n, 0, 0, 0, 0, time.UTC) }
	bar := func(n int, c float64, v int64) records.Bar {
		return records.Bar{Time: d(n), Open: null.FloatFrom(c), High: null.FloatFrom(c + 1), Low: null.FloatFrom(c - 1),
			Close: null.FloatFrom(c), Volume: null.IntFrom(v)}
	}
	bars := []records.Bar{bar(1, 100, 10), bar(4, 102, 10), bar(5, 101, 10), bar(6, 103, 10)}
	actions := []records.Action{
		{Time: d(5), Kind: records.ActionDividend, Amount: 1.02},
		{Time: d(6), Kind: records.ActionSplit, Numerator: 2, Denominator: 1},
	}
	return bars, actions
}

func TestFactors_ReferenceValues(t *testing.T) {
	t.Parallel()

	// Arrange
	bars, actions := rawBars()

	// Act
	split := normalize.Factors(bars, actions, false)
	dividendOnly := normalize.Factors(bars, actions, true)

	// Assert
	require.True(t, floats.EqualApprox([]float64{0.495, 0.495, 0.5, 1}, split, 1e-12), "%v", split)
	require.True(t, floats.EqualApprox([]float64{0.99, 0.99, 1, 1}, dividendOnly, 1e-12), "%v", dividendOnly)
}

func TestAdjust_Idempotent(t *testing.T) {
	t.Parallel()

	// Arrange
	bars, actions := rawBars()

	// Act: derive twice from the same raw inputs
	first := normalize.Adjust(bars, actions, false)
	second := normalize.Adjust(bars, actions, false)

	// Assert
	require.Equal(t, first, second)
	require.Equal(t, 100.0, bars[0].Close.Float64, "raw input must not be modified")
	require.InDelta(t, 49.5, first[0].Close.Float64, 1e-9)
	require.InDelta(t, 50.985, first[1].High.Float64, 1e-9)
	require.Equal(t, int64(20), first[0].Volume.Int64)
	require.Equal(t, int64(10), first[3].Volume.Int64)
	require.InDelta(t, 49.5, first[0].AdjClose.Float64, 1e-9)
}

func TestAdjust_MatchesUpstreamAdjustedClose(t *testing.T) {
	t.Parallel()

	// Arrange: upstream adjusted closes for the same dividend
	bars, actions := rawBars()
	upstream := []float64{99, 100.98, 101, 103}
	for i := range bars {
		bars[i].AdjClose = null.FloatFrom(upstream[i])
	}

	// Act
	derived := normalize.Adjust(bars, actions[:1], true)
	ratio := normalize.RatioFactors(bars)

	// Assert
	closes := make([]float64, len(derived))
	for i, b := range derived {
		closes[i] = b.Close.Float64
	}
	require.True(t, floats.EqualApprox(upstream, closes, 1e-9), "%v", closes)
	require.True(t, floats.EqualApprox(normalize.Factors(bars, actions[:1], true), ratio, 1e-9))
}

func TestAdjust_NoActions(t *testing.T) {
	t.Parallel()

	bars, _ := rawBars()
	out := normalize.Adjust(bars, nil, false)
	require.Equal(t, bars[2].Close, out[2].Close)
	require.Empty(t, normalize.Adjust(nil, nil, true))
}
