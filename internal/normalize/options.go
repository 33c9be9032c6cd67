package normalize

import (
	"cmp"
	"slices"
	"time"

	"github.com/guregu/null/v6"
	"yfengine/pkg/records"
)

var contractSchema = Schema{
	Required("contractSymbol", KindString),
	Required("strike", KindNumber),
	Optional("currency", KindString),
	Optional("lastPrice", KindNumber),
	Optional("change", KindNumber),
	Optional("percentChange", KindNumber),
	Optional("volume", KindNumber),
	Optional("openInterest", KindNumber),
	Optional("bid", KindNumber),
	Optional("ask", KindNumber),
	Optional("contractSize", KindString),
	Optional("lastTradeDate", KindTime),
	Optional("impliedVolatility", KindNumber),
	Optional("inTheMoney", KindBool),
}

type contractRow struct {
	ContractSymbol    string      `mapstructure:"contractSymbol"`
	Strike            float64     `mapstructure:"strike"`
	Currency          null.String `mapstructure:"currency"`
	LastPrice         null.Float  `mapstructure:"lastPrice"`
	Change            null.Float  `mapstructure:"change"`
	PercentChange     null.Float  `mapstructure:"percentChange"`
	Volume            null.Int    `mapstructure:"volume"`
	OpenInterest      null.Int    `mapstructure:"openInterest"`
	Bid               null.Float  `mapstructure:"bid"`
	Ask               null.Float  `mapstructure:"ask"`
	ContractSize      null.String `mapstructure:"contractSize"`
	LastTradeDate     null.Time   `mapstructure:"lastTradeDate"`
	ImpliedVolatility null.Float  `mapstructure:"impliedVolatility"`
	InTheMoney        null.Bool   `mapstructure:"inTheMoney"`
}

// utcDay truncates an instant to midnight of its UTC date.
func utcDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func (j *job) optionResult() (Node, error) {
	n, err := j.parse(0)
	if err != nil {
		return Node{}, err
	}
	return j.envelope(n, "optionChain")
}

func normalizeOptionExpirations(j *job) (records.Set, error) {
	result, err := j.optionResult()
	if err != nil {
		return nil, err
	}
	out := &records.OptionExpirations{Symbol: j.symbol}
	dates := result.Get("expirationDates")
	if dates.Exists() && dates.Kind() != KindArray {
		return nil, j.schemaError("expirationDates: expected array, got %s", dates.Kind())
	}
	for i, d := range dates.Items() {
		t, ok := d.Time(time.UTC)
		if !ok {
			return nil, j.schemaError("expirationDates[%d]: expected epoch seconds", i)
		}
		out.Dates = append(out.Dates, utcDay(t))
	}
	sortTimes(out.Dates)
	out.Dates = slices.CompactFunc(out.Dates, time.Time.Equal)
	for _, s := range result.Get("strikes").Items() {
		if f, ok := s.Float(); ok {
			out.Strikes = append(out.Strikes, f)
		}
	}
	return out, nil
}

func normalizeOptionChain(j *job) (records.Set, error) {
	result, err := j.optionResult()
	if err != nil {
		return nil, err
	}
	want := j.in.Endpoint.Expiration()
	opts := result.Get("options").Index(0)
	if opts.Kind() != KindObject {
		return nil, j.unavailable("no contracts for expiration %s", want.Format(records.DateLayout))
	}
	if got, ok := opts.Get("expirationDate").Time(time.UTC); ok && !want.IsZero() && !utcDay(got).Equal(want) {
		return nil, j.unavailable("upstream returned expiration %s for %s",
			utcDay(got).Format(records.DateLayout), want.Format(records.DateLayout))
	}

	calls, puts := opts.Get("calls"), opts.Get("puts")
	r := j.rows(calls.Len() + puts.Len())
	out := &records.OptionChain{
		Symbol:          j.symbol,
		Expiration:      want,
		UnderlyingPrice: result.Get("quote", "regularMarketPrice").NullFloat(),
	}
	row := 0
	decode := func(list Node) []records.OptionContract {
		var contracts []records.OptionContract
		for _, n := range list.Items() {
			i := row
			row++
			var c contractRow
			if !r.decodeRow(i, n, contractSchema, &c, time.UTC) {
				continue
			}
			contracts = append(contracts, records.OptionContract{
				ContractSymbol:    c.ContractSymbol,
				Strike:            c.Strike,
				Currency:          c.Currency,
				LastPrice:         c.LastPrice,
				Change:            c.Change,
				PercentChange:     c.PercentChange,
				Bid:               c.Bid,
				Ask:               c.Ask,
				Volume:            c.Volume,
				OpenInterest:      c.OpenInterest,
				ImpliedVolatility: c.ImpliedVolatility,
				InTheMoney:        c.InTheMoney,
				ContractSize:      c.ContractSize,
				Expiration:        want,
				LastTradeDate:     c.LastTradeDate,
			})
		}
		slices.SortStableFunc(contracts, func(a, b records.OptionContract) int { return cmp.Compare(a.Strike, b.Strike) })
		return contracts
	}
	out.Calls = decode(calls)
	out.Puts = decode(puts)
	if err := r.check(); err != nil {
		return nil, err
	}
	out.Diagnostics = r.diags
	return out, nil
}
