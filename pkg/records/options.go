package records

import (
	"time"

	"github.com/guregu/null/v6"
)

// OptionExpirations enumerates expiration dates, ascending, at midnight UTC.
type OptionExpirations struct {
	Symbol string
	Dates  []time.Time
	// Strikes lists the strikes of the nearest expiration when upstream reports them.
	Strikes []float64
}

func (*OptionExpirations) RecordCategory() Category { return CategoryOptionExpirations }

// Strings returns the dates formatted as YYYY-MM-DD.
func (o *OptionExpirations) Strings() []string {
	out := make([]string, len(o.Dates))
	for i, d := range o.Dates {
		out[i] = d.UTC().Format(DateLayout)
	}
	return out
}

// Contains reports whether date (any time of day) is an enumerated expiration.
func (o *OptionExpirations) Contains(date time.Time) bool {
	want := date.UTC().Format(DateLayout)
	for _, d := range o.Dates {
		if d.UTC().Format(DateLayout) == want {
			return true
		}
	}
	return false
}

// OptionContract is one call or put.
type OptionContract struct {
	ContractSymbol    string
	Strike            float64
	Currency          null.String
	LastPrice         null.Float
	Change            null.Float
	PercentChange     null.Float
	Bid               null.Float
	Ask               null.Float
	Volume            null.Int
	OpenInterest      null.Int
	ImpliedVolatility null.Float
	InTheMoney        null.Bool
	ContractSize      null.String
	Expiration        time.Time
	LastTradeDate     null.Time
}

// OptionChain holds calls and puts for one expiration, each ascending by strike.
type OptionChain struct {
	Symbol          string
	Expiration      time.Time
	UnderlyingPrice null.Float
	Calls           []OptionContract
	Puts            []OptionContract
	Diagnostics     []Diagnostic
}

func (*OptionChain) RecordCategory() Category { return CategoryOptionChain }
