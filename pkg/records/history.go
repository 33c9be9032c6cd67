package records

import (
	"time"

	"github.com/guregu/null/v6"
)

// Bar is one OHLCV row. Prices are in History.Currency.
type Bar struct {
	Time     time.Time
	Open     null.Float
	High     null.Float
	Low      null.Float
	Close    null.Float
	AdjClose null.Float
	Volume   null.Int
	// Dividends is the cash dividend paid on this bar, 0 when none.
	Dividends float64
	// StockSplits is the split ratio effective on this bar, 0 when none.
	StockSplits  float64
	CapitalGains float64
}

// History is the record set of the history and download categories.
type History struct {
	Symbol   string
	Currency string
	// Timezone is the IANA name used for Bar.Time, see TimezoneSource.
	Timezone       string
	TimezoneSource TimezoneSource
	Interval       string
	// Adjusted is true when OHLC values carry the backward adjustment chain.
	Adjusted bool
	Bars     []Bar
	// Actions lists the corporate actions inside the range, chronological.
	Actions     []Action
	Diagnostics []Diagnostic

	// Source is CategoryHistory or CategoryDownload.
	Source Category
}

func (h *History) RecordCategory() Category {
	if h.Source == "" {
		return CategoryHistory
	}
	return h.Source
}

// Closes returns the close column, NaN-free: absent closes are skipped.
func (h *History) Closes() []float64 {
	out := make([]float64, 0, len(h.Bars))
	for _, b := range h.Bars {
		if b.Close.Valid {
			out = append(out, b.Close.Float64)
		}
	}
	return out
}

// ActionKind distinguishes corporate actions.
type ActionKind string

const (
	ActionDividend    ActionKind = "dividend"
	ActionSplit       ActionKind = "split"
	ActionCapitalGain ActionKind = "capital_gain"
)

// Action is a single corporate action.
type Action struct {
	Time time.Time
	Kind ActionKind
	// Amount is the cash amount for dividends and capital gains.
	Amount      float64
	Numerator   float64
	Denominator float64
}

// Ratio returns numerator/denominator for splits, 0 otherwise.
func (a Action) Ratio() float64 {
	if a.Kind != ActionSplit || a.Denominator == 0 {
		return 0
	}
	return a.Numerator / a.Denominator
}

// ActionRow is one row of the actions table. Columns not applicable to the row's action
// are absent.
type ActionRow struct {
	Time         time.Time
	Dividends    null.Float
	StockSplits  null.Float
	CapitalGains null.Float
}

// Actions is the record set of the dividends, splits, actions and capital gains categories.
type Actions struct {
	Symbol   string
	Timezone string
	Kind     Category
	Rows     []ActionRow
}

func (a *Actions) RecordCategory() Category { return a.Kind }
