package request

import (
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"yfengine/pkg/records"
)

const day = 24 * time.Hour

// Periods accepted for the range parameter.
var Periods = []string{"1d", "5d", "1mo", "3mo", "6mo", "1y", "2y", "5y", "10y", "ytd", "max"}

// Intervals accepted for the interval parameter. 1h is an alias of 60m.
var Intervals = []string{"1m", "2m", "5m", "15m", "30m", "60m", "90m", "1h", "1d", "5d", "1wk", "1mo", "3mo"}

// Defaults applied when a history call names neither.
const (
	DefaultPeriod   = "1mo"
	DefaultInterval = "1d"
)

var periodDays = map[string]int{
	"1d": 1, "5d": 5, "1mo": 31, "3mo": 92, "6mo": 183,
	"1y": 366, "2y": 731, "5y": 1827, "10y": 3653,
}

// intervalLimit bounds how much and how old intraday data upstream serves.
type intervalLimit struct {
	maxSpan time.Duration
	maxAge  time.Duration
}

var intervalLimits = map[string]intervalLimit{
	"1m":  {maxSpan: 7 * day, maxAge: 30 * day},
	"2m":  {maxSpan: 60 * day, maxAge: 60 * day},
	"5m":  {maxSpan: 60 * day, maxAge: 60 * day},
	"15m": {maxSpan: 60 * day, maxAge: 60 * day},
	"30m": {maxSpan: 60 * day, maxAge: 60 * day},
	"90m": {maxSpan: 60 * day, maxAge: 60 * day},
	"60m": {maxSpan: 730 * day, maxAge: 730 * day},
}

// HistoryQuery is a time series query. Exactly one of Period or Start/End must be set;
// a zero End with a non-zero Start means "until now".
type HistoryQuery struct {
	Symbol     string `validate:"required,symbol"`
	Period     string `validate:"omitempty,oneof=1d 5d 1mo 3mo 6mo 1y 2y 5y 10y ytd max"`
	Interval   string `validate:"required,oneof=1m 2m 5m 15m 30m 60m 90m 1h 1d 5d 1wk 1mo 3mo"`
	Start      time.Time
	End        time.Time
	PrePost    bool
	AutoAdjust bool
	Actions    bool
}

// CanonicalInterval maps aliases to the upstream spelling.
func CanonicalInterval(interval string) string {
	if interval == "1h" {
		return "60m"
	}
	return interval
}

// Intraday reports whether interval is below one day.
func Intraday(interval string) bool {
	_, ok := intervalLimits[CanonicalInterval(interval)]
	return ok
}

// PeriodSpan returns the nominal span of a named period. max reports ok=false.
func PeriodSpan(period string, now time.Time) (time.Duration, bool) {
	if period == "ytd" {
		jan1 := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
		return now.Sub(jan1) + day, true
	}
	d, ok := periodDays[period]
	if !ok {
		return 0, false
	}
	return time.Duration(d) * day, true
}

// validateHistory normalises q in place and checks every client-side rule.
func (b *Builder) validateHistory(cat records.Category, q *HistoryQuery) error {
	if err := checkSymbol(q.Symbol, cat); err != nil {
		return err
	}
	if err := validate.Struct(q); err != nil {
		return invalid(q.Symbol, cat, "invalid history query: %v", err)
	}

	hasRange := !q.Start.IsZero() || !q.End.IsZero()
	switch {
	case q.Period != "" && hasRange:
		return invalid(q.Symbol, cat, "period %q and start/end are mutually exclusive", q.Period)
	case q.Period == "" && !hasRange:
		return invalid(q.Symbol, cat, "one of period or start/end is required")
	case hasRange && q.Start.IsZero():
		return invalid(q.Symbol, cat, "end given without start")
	}

	now := b.now()
	if hasRange {
		if q.End.IsZero() {
			q.End = now
		}
		if !q.Start.Before(q.End) {
			return invalid(q.Symbol, cat, "start %s is not before end %s",
				q.Start.UTC().Format(time.RFC3339), q.End.UTC().Format(time.RFC3339))
		}
	}

	limit, intraday := intervalLimits[CanonicalInterval(q.Interval)]
	if !intraday {
		return nil
	}
	var span time.Duration
	var oldest time.Time
	if q.Period != "" {
		s, ok := PeriodSpan(q.Period, now)
		if !ok {
			return invalid(q.Symbol, cat, "interval %s is not available for period %s", q.Interval, q.Period)
		}
		span, oldest = s, now.Add(-s)
	} else {
		span, oldest = q.End.Sub(q.Start), q.Start
	}
	if span > limit.maxSpan {
		return invalid(q.Symbol, cat, "interval %s allows at most %d days per request, got %d",
			q.Interval, int(limit.maxSpan/day), int(math.Ceil(float64(span)/float64(day))))
	}
	if now.Sub(oldest) > limit.maxAge {
		return invalid(q.Symbol, cat, "interval %s data is only available for the last %d days",
			q.Interval, int(limit.maxAge/day))
	}
	return nil
}

// History builds a chart request. cat is the logical category served from the response.
func (b *Builder) History(cat records.Category, q HistoryQuery) (*Endpoint, error) {
	if err := b.validateHistory(cat, &q); err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("interval", CanonicalInterval(q.Interval))
	if q.Period != "" {
		params.Set("range", q.Period)
	} else {
		params.Set("period1", strconv.FormatInt(q.Start.Unix(), 10))
		params.Set("period2", strconv.FormatInt(q.End.Unix(), 10))
	}
	params.Set("includePrePost", strconv.FormatBool(q.PrePost))
	params.Set("events", "div,splits,capitalGains")

	extra := url.Values{
		"category":   {string(cat)},
		"autoAdjust": {strconv.FormatBool(q.AutoAdjust)},
		"actions":    {strconv.FormatBool(q.Actions)},
	}
	return &Endpoint{
		symbol:      q.Symbol,
		family:      FamilyHistory,
		category:    cat,
		path:        "/v8/finance/chart/" + url.PathEscape(q.Symbol),
		params:      params,
		fingerprint: fingerprint(FamilyHistory, params, extra),
		history:     &q,
	}, nil
}

// Download builds a CSV export request. Only daily and coarser intervals are exported.
func (b *Builder) Download(q HistoryQuery) (*Endpoint, error) {
	cat := records.CategoryDownload
	if err := b.validateHistory(cat, &q); err != nil {
		return nil, err
	}
	switch q.Interval {
	case "1d", "1wk", "1mo":
	default:
		return nil, invalid(q.Symbol, cat, "interval %s is not available for download, use 1d, 1wk or 1mo", q.Interval)
	}

	start, end := q.Start, q.End
	if q.Period != "" {
		end = b.now()
		if span, ok := PeriodSpan(q.Period, end); ok {
			start = end.Add(-span)
		} else {
			start = time.Unix(0, 0)
		}
	}
	params := url.Values{}
	params.Set("period1", strconv.FormatInt(start.Unix(), 10))
	params.Set("period2", strconv.FormatInt(end.Unix(), 10))
	params.Set("interval", q.Interval)
	params.Set("events", "history")
	params.Set("includeAdjustedClose", "true")

	// A relative period is fingerprinted by name so repeated calls share a cache entry.
	fpParams := params
	if q.Period != "" {
		fpParams = url.Values{"range": {q.Period}, "interval": {q.Interval}}
	}
	extra := url.Values{"autoAdjust": {strconv.FormatBool(q.AutoAdjust)}}
	return &Endpoint{
		symbol:      q.Symbol,
		family:      FamilyDownload,
		category:    cat,
		path:        "/v7/finance/download/" + url.PathEscape(q.Symbol),
		params:      params,
		fingerprint: fingerprint(FamilyDownload, fpParams, extra),
		history:     &q,
	}, nil
}

// ParseInterval accepts the interval spellings of the public API ("1H", " 5m ").
func ParseInterval(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
