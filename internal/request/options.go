package request

import (
	"net/url"
	"strconv"
	"time"

	"yfengine/pkg/records"
)

// OptionExpirations builds the request enumerating expiration dates.
func (b *Builder) OptionExpirations(symbol string) (*Endpoint, error) {
	cat := records.CategoryOptionExpirations
	if err := checkSymbol(symbol, cat); err != nil {
		return nil, err
	}
	return &Endpoint{
		symbol:      symbol,
		family:      FamilyOptionExpirations,
		category:    cat,
		path:        "/v7/finance/options/" + url.PathEscape(symbol),
		params:      url.Values{},
		fingerprint: fingerprint(FamilyOptionExpirations, nil, nil),
	}, nil
}

// OptionChain builds the chain request for date, which must be one of exps. A zero date
// selects the earliest expiration on or after today (UTC).
func (b *Builder) OptionChain(symbol string, date time.Time, exps *records.OptionExpirations) (*Endpoint, error) {
	cat := records.CategoryOptionChain
	if err := checkSymbol(symbol, cat); err != nil {
		return nil, err
	}
	if exps == nil || len(exps.Dates) == 0 {
		return nil, invalid(symbol, cat, "no option expirations available")
	}
	if date.IsZero() {
		next, ok := b.nextExpiration(exps)
		if !ok {
			return nil, invalid(symbol, cat, "every offered expiration is in the past: %v", exps.Strings())
		}
		date = next
	}
	if !exps.Contains(date) {
		return nil, invalid(symbol, cat, "expiration %s is not offered; available: %v",
			date.UTC().Format(records.DateLayout), exps.Strings())
	}
	u := date.UTC()
	day := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)

	params := url.Values{}
	params.Set("date", strconv.FormatInt(day.Unix(), 10))
	return &Endpoint{
		symbol:      symbol,
		family:      FamilyOptionChain,
		category:    cat,
		path:        "/v7/finance/options/" + url.PathEscape(symbol),
		params:      params,
		fingerprint: fingerprint(FamilyOptionChain, params, nil),
		expiration:  day,
	}, nil
}

func (b *Builder) nextExpiration(exps *records.OptionExpirations) (time.Time, bool) {
	n := b.now().UTC()
	today := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
	var next time.Time
	for _, d := range exps.Dates {
		if d.Before(today) {
			continue
		}
		if next.IsZero() || d.Before(next) {
			next = d
		}
	}
	return next, !next.IsZero()
}
