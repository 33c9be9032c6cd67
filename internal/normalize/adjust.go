package normalize

import (
	"time"

	"github.com/guregu/null/v6"
	"gonum.org/v1/gonum/floats"
	"yfengine/pkg/records"
)

// Factors returns the backward adjustment multiplier of every bar: the product of the
// factors of all actions strictly after it. A dividend D going ex after bar i contributes
// 1 - D/close(i); a split of ratio r contributes 1/r unless prices are already split
// adjusted. bars and actions must be chronological.
func Factors(bars []records.Bar, actions []records.Action, splitAdjusted bool) []float64 {
	step := make([]float64, len(bars))
	floats.AddConst(1, step)
	if len(bars) == 0 {
		return step
	}
	for _, a := range actions {
		i := lastBefore(bars, a.Time)
		if i < 0 {
			continue
		}
		switch a.Kind {
		case records.ActionDividend:
			c := bars[i].Close
			if !c.Valid || c.Float64 <= 0 || a.Amount >= c.Float64 {
				continue
			}
			step[i] *= 1 - a.Amount/c.Float64
		case records.ActionSplit:
			if !splitAdjusted && a.Ratio() > 0 {
				step[i] /= a.Ratio()
			}
		}
	}
	// The factor of bar i is the product of step[i:], a reversed cumulative product.
	floats.Reverse(step)
	out := floats.CumProd(make([]float64, len(step)), step)
	floats.Reverse(out)
	return out
}

// lastBefore returns the index of the last bar strictly before t, -1 when none.
func lastBefore(bars []records.Bar, t time.Time) int {
	lo, hi := 0, len(bars)
	for lo < hi {
		mid := (lo + hi) / 2
		if bars[mid].Time.Before(t) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo - 1
}

// RatioFactors derives the multipliers from the upstream adjusted close, for sources that
// carry no action events.
func RatioFactors(bars []records.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = 1
		if b.Close.Valid && b.AdjClose.Valid && b.Close.Float64 != 0 {
			out[i] = b.AdjClose.Float64 / b.Close.Float64
		}
	}
	return out
}

// Adjust returns a copy of raw bars with the backward multiplier chain applied to open,
// high, low and close. It is a pure function of its inputs. AdjClose keeps the upstream
// value when present.
func Adjust(bars []records.Bar, actions []records.Action, splitAdjusted bool) []records.Bar {
	return apply(bars, Factors(bars, actions, splitAdjusted), volumeFactors(bars, actions, splitAdjusted))
}

func volumeFactors(bars []records.Bar, actions []records.Action, splitAdjusted bool) []float64 {
	out := make([]float64, len(bars))
	floats.AddConst(1, out)
	if splitAdjusted {
		return out
	}
	for _, a := range actions {
		if a.Kind != records.ActionSplit || a.Ratio() <= 0 {
			continue
		}
		for i := lastBefore(bars, a.Time); i >= 0; i-- {
			out[i] *= a.Ratio()
		}
	}
	return out
}

func apply(bars []records.Bar, price, volume []float64) []records.Bar {
	out := make([]records.Bar, len(bars))
	for i, b := range bars {
		f := price[i]
		if !b.AdjClose.Valid && b.Close.Valid {
			b.AdjClose = scale(b.Close, f)
		}
		b.Open, b.High, b.Low, b.Close = scale(b.Open, f), scale(b.High, f), scale(b.Low, f), scale(b.Close, f)
		if volume != nil && b.Volume.Valid && volume[i] != 1 {
			b.Volume.Int64 = int64(float64(b.Volume.Int64)*volume[i] + 0.5)
		}
		out[i] = b
	}
	return out
}

func scale(v null.Float, f float64) null.Float {
	if !v.Valid {
		return v
	}
	return null.FloatFrom(v.Float64 * f)
}
