package normalize

import (
	"cmp"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/guregu/null/v6"
	"yfengine/internal/request"
	"yfengine/pkg/records"
)

var chartMetaSchema = Schema{
	Optional("currency", KindString),
	Optional("exchangeTimezoneName", KindString),
	Optional("dataGranularity", KindString),
}

var dividendSchema = Schema{
	Required("amount", KindNumber),
	Required("date", KindTime),
}

var splitSchema = Schema{
	Required("date", KindTime),
	Required("numerator", KindNumber),
	Required("denominator", KindNumber),
	Optional("splitRatio", KindString),
}

// chart is a parsed chart payload before category specific shaping.
type chart struct {
	currency string
	tzName   string
	tzSource records.TimezoneSource
	interval string
	bars     []records.Bar
	actions  []records.Action
	diags    []records.Diagnostic
}

func (j *job) chart() (*chart, error) {
	n, err := j.parse(0)
	if err != nil {
		return nil, err
	}
	result, err := j.envelope(n, "chart")
	if err != nil {
		return nil, err
	}
	meta := result.Get("meta")
	if v := chartMetaSchema.Check(meta); v != nil {
		return nil, j.schemaError("chart meta: %v", v)
	}

	q, _ := j.in.Endpoint.History()
	c := &chart{interval: request.CanonicalInterval(q.Interval)}
	c.currency, _ = meta.Get("currency").Str()
	tzName, _ := meta.Get("exchangeTimezoneName").Str()
	loc, src := location(tzName)
	c.tzName, c.tzSource = loc.String(), src
	daily := !request.Intraday(q.Interval)

	actions, diags, err := j.events(result.Get("events"), loc, daily)
	if err != nil {
		return nil, err
	}
	c.actions = actions
	c.diags = diags

	bars, diags, err := j.bars(result, loc, daily)
	if err != nil {
		return nil, err
	}
	c.bars = bars
	c.diags = append(c.diags, diags...)
	attachActions(c.bars, c.actions)
	return c, nil
}

var ohlcv = []string{"open", "high", "low", "close", "volume"}

func (j *job) bars(result Node, loc *time.Location, daily bool) ([]records.Bar, []records.Diagnostic, error) {
	ts := result.Get("timestamp")
	if !ts.Exists() || ts.Len() == 0 {
		return nil, nil, nil
	}
	if ts.Kind() != KindArray {
		return nil, nil, j.schemaError("timestamp: expected array, got %s", ts.Kind())
	}
	quote := result.Get("indicators", "quote").Index(0)
	if quote.Kind() != KindObject {
		return nil, nil, j.schemaError("missing quote indicators for %d timestamps", ts.Len())
	}
	cols := make(map[string]Node, len(ohlcv)+1)
	for _, name := range ohlcv {
		col := quote.Get(name)
		if !col.Exists() {
			if name == "close" {
				return nil, nil, j.schemaError("missing close column")
			}
			continue
		}
		cols[name] = col
	}
	if adj := result.Get("indicators", "adjclose").Index(0).Get("adjclose"); adj.Exists() {
		cols["adjclose"] = adj
	}
	for name, col := range cols {
		if col.Kind() != KindArray || col.Len() != ts.Len() {
			return nil, nil, j.schemaError("column %s has %d values for %d timestamps", name, col.Len(), ts.Len())
		}
	}

	r := j.rows(ts.Len())
	out := make([]records.Bar, 0, ts.Len())
	for i, t := range ts.Items() {
		secs, ok := t.Int()
		if !ok {
			r.drop(i, "timestamp: expected epoch seconds")
			continue
		}
		at := time.Unix(secs, 0).In(loc)
		if daily {
			at = midnight(at)
		}
		bar := records.Bar{Time: at}
		var bad string
		cell := func(name string) null.Float {
			col, ok := cols[name]
			if !ok {
				return null.Float{}
			}
			v := col.Index(i)
			if v.Kind() == KindNull {
				return null.Float{}
			}
			f, ok := v.Float()
			if !ok && bad == "" {
				bad = name + ": expected number, got " + v.Kind().String()
			}
			return null.NewFloat(f, ok)
		}
		bar.Open, bar.High, bar.Low, bar.Close = cell("open"), cell("high"), cell("low"), cell("close")
		bar.AdjClose = cell("adjclose")
		if vol := cell("volume"); vol.Valid {
			bar.Volume = null.IntFrom(int64(math.Round(vol.Float64)))
		}
		if bad != "" {
			r.drop(i, bad)
			continue
		}
		if !bar.Open.Valid && !bar.High.Valid && !bar.Low.Valid && !bar.Close.Valid {
			r.note(i, "no prices")
			continue
		}
		out = append(out, bar)
	}
	if err := r.check(); err != nil {
		return nil, nil, err
	}
	return dedupeBars(out), r.diags, nil
}

// dedupeBars sorts ascending and keeps the last bar for a repeated time. Upstream repeats
// the live bar at the end of intraday ranges.
func dedupeBars(bars []records.Bar) []records.Bar {
	slices.SortStableFunc(bars, func(a, b records.Bar) int { return a.Time.Compare(b.Time) })
	out := bars[:0]
	for _, b := range bars {
		if n := len(out); n > 0 && out[n-1].Time.Equal(b.Time) {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// events parses dividends, splits and capital gains, chronological.
func (j *job) events(ev Node, loc *time.Location, daily bool) ([]records.Action, []records.Diagnostic, error) {
	type entry struct {
		kind   records.ActionKind
		schema Schema
		key    string
	}
	kinds := []entry{
		{records.ActionDividend, dividendSchema, "dividends"},
		{records.ActionSplit, splitSchema, "splits"},
		{records.ActionCapitalGain, dividendSchema, "capitalGains"},
	}
	var total int
	for _, k := range kinds {
		total += ev.Get(k.key).Len()
	}
	r := j.rows(total)
	var out []records.Action
	row := 0
	for _, k := range kinds {
		table := ev.Get(k.key)
		keys := table.Keys()
		slices.SortFunc(keys, epochKey)
		for _, key := range keys {
			n := table.Get(key)
			i := row
			row++
			if v := k.schema.Check(n); v != nil {
				r.drop(i, k.key+" "+key+": "+v.Error())
				continue
			}
			at, _ := n.Get("date").Time(loc)
			if daily {
				at = midnight(at)
			}
			a := records.Action{Time: at, Kind: k.kind}
			if k.kind == records.ActionSplit {
				a.Numerator, _ = n.Get("numerator").Float()
				a.Denominator, _ = n.Get("denominator").Float()
				if a.Numerator <= 0 || a.Denominator <= 0 {
					r.drop(i, "splits "+key+": non-positive ratio")
					continue
				}
			} else {
				a.Amount, _ = n.Get("amount").Float()
			}
			out = append(out, a)
		}
	}
	if err := r.check(); err != nil {
		return nil, nil, err
	}
	slices.SortStableFunc(out, func(a, b records.Action) int { return a.Time.Compare(b.Time) })
	return out, r.diags, nil
}

// attachActions copies each action onto the last bar at or before it.
func attachActions(bars []records.Bar, actions []records.Action) {
	for _, a := range actions {
		i, found := slices.BinarySearchFunc(bars, a.Time, func(b records.Bar, t time.Time) int { return b.Time.Compare(t) })
		if !found {
			i--
		}
		if i < 0 {
			continue
		}
		switch a.Kind {
		case records.ActionDividend:
			bars[i].Dividends += a.Amount
		case records.ActionSplit:
			if bars[i].StockSplits == 0 {
				bars[i].StockSplits = 1
			}
			bars[i].StockSplits *= a.Ratio()
		case records.ActionCapitalGain:
			bars[i].CapitalGains += a.Amount
		}
	}
}

func normalizeHistory(j *job) (records.Set, error) {
	c, err := j.chart()
	if err != nil {
		return nil, err
	}
	if len(c.bars) == 0 {
		return nil, j.unavailable("no price data found, symbol may be delisted")
	}
	q, _ := j.in.Endpoint.History()
	h := &records.History{
		Symbol:         j.symbol,
		Currency:       c.currency,
		Timezone:       c.tzName,
		TimezoneSource: c.tzSource,
		Interval:       c.interval,
		Bars:           c.bars,
		Diagnostics:    c.diags,
		Source:         records.CategoryHistory,
	}
	if q.AutoAdjust {
		// Chart prices arrive split adjusted; only dividends remain in the chain.
		h.Bars = Adjust(h.Bars, c.actions, true)
		h.Adjusted = true
	}
	if q.Actions {
		h.Actions = c.actions
	} else {
		for i := range h.Bars {
			h.Bars[i].Dividends, h.Bars[i].StockSplits, h.Bars[i].CapitalGains = 0, 0, 0
		}
	}
	return h, nil
}

// normalizeActions builds the dividends, splits, capital gains and combined tables.
func normalizeActions(j *job) (records.Set, error) {
	c, err := j.chart()
	if err != nil {
		return nil, err
	}
	out := &records.Actions{Symbol: j.symbol, Timezone: c.tzName, Kind: j.cat}
	for _, a := range c.actions {
		var row records.ActionRow
		switch {
		case a.Kind == records.ActionDividend && (j.cat == records.CategoryDividends || j.cat == records.CategoryActions):
			row.Dividends = null.FloatFrom(a.Amount)
		case a.Kind == records.ActionSplit && (j.cat == records.CategorySplits || j.cat == records.CategoryActions):
			row.StockSplits = null.FloatFrom(a.Ratio())
		case a.Kind == records.ActionCapitalGain && (j.cat == records.CategoryCapitalGains || j.cat == records.CategoryActions):
			row.CapitalGains = null.FloatFrom(a.Amount)
		default:
			continue
		}
		row.Time = a.Time
		if n := len(out.Rows); n > 0 && out.Rows[n-1].Time.Equal(a.Time) {
			mergeActionRow(&out.Rows[n-1], row)
			continue
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

func mergeActionRow(dst *records.ActionRow, src records.ActionRow) {
	if src.Dividends.Valid {
		dst.Dividends = null.FloatFrom(dst.Dividends.Float64 + src.Dividends.Float64)
	}
	if src.StockSplits.Valid {
		dst.StockSplits = src.StockSplits
	}
	if src.CapitalGains.Valid {
		dst.CapitalGains = null.FloatFrom(dst.CapitalGains.Float64 + src.CapitalGains.Float64)
	}
}

// epochKey orders event keys numerically when they are epoch strings.
func epochKey(a, b string) int {
	x, errA := strconv.ParseInt(a, 10, 64)
	y, errB := strconv.ParseInt(b, 10, 64)
	if errA != nil || errB != nil {
		return cmp.Compare(a, b)
	}
	return cmp.Compare(x, y)
}
