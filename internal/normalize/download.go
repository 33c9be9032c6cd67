package normalize

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/guregu/null/v6"
	"yfengine/internal/request"
	"yfengine/pkg/records"
)

// Columns of the history export.
const (
	colDate     = "Date"
	colOpen     = "Open"
	colHigh     = "High"
	colLow      = "Low"
	colClose    = "Close"
	colAdjClose = "Adj Close"
	colVolume   = "Volume"
)

var requiredColumns = []string{colDate, colClose}

func normalizeDownload(j *job) (records.Set, error) {
	raw := j.in.Raws[0]
	if raw.IsHTML() {
		return nil, j.schemaError("expected CSV, got HTML")
	}
	body := bytes.TrimSpace(raw.Body)
	if len(body) > 0 && body[0] == '{' {
		return nil, j.exportError(body)
	}

	reader := csv.NewReader(bytes.NewReader(body))
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, j.unavailable("empty export")
	}
	if err != nil {
		return nil, j.schemaError("reading csv header: %v", err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(h)] = i
	}
	for _, c := range requiredColumns {
		if _, ok := index[c]; !ok {
			return nil, j.schemaError("csv missing column %q", c)
		}
	}

	lines, err := reader.ReadAll()
	if err != nil {
		return nil, j.schemaError("reading csv: %v", err)
	}
	r := j.rows(len(lines))
	bars := make([]records.Bar, 0, len(lines))
	for i, line := range lines {
		bar, reason := parseCSVBar(line, index)
		if reason != "" {
			r.drop(i, reason)
			continue
		}
		if !bar.Close.Valid {
			r.note(i, "no prices")
			continue
		}
		bars = append(bars, bar)
	}
	if err := r.check(); err != nil {
		return nil, err
	}
	bars = dedupeBars(bars)
	if len(bars) == 0 {
		return nil, j.unavailable("no price data found")
	}

	q, _ := j.in.Endpoint.History()
	h := &records.History{
		Symbol:         j.symbol,
		Timezone:       time.UTC.String(),
		TimezoneSource: records.TimezoneUTC,
		Interval:       request.CanonicalInterval(q.Interval),
		Bars:           bars,
		Diagnostics:    r.diags,
		Source:         records.CategoryDownload,
	}
	if q.AutoAdjust {
		h.Bars = apply(bars, RatioFactors(bars), nil)
		h.Adjusted = true
	}
	return h, nil
}

func parseCSVBar(line []string, index map[string]int) (records.Bar, string) {
	field := func(name string) (string, bool) {
		i, ok := index[name]
		if !ok || i >= len(line) {
			return "", false
		}
		v := strings.TrimSpace(line[i])
		return v, v != "" && v != "null"
	}
	var bar records.Bar
	d, _ := field(colDate)
	at, err := time.ParseInLocation(records.DateLayout, d, time.UTC)
	if err != nil {
		return bar, "Date: " + strconv.Quote(d) + " is not a date"
	}
	bar.Time = at
	for _, c := range []struct {
		name string
		dst  *null.Float
	}{
		{colOpen, &bar.Open}, {colHigh, &bar.High}, {colLow, &bar.Low},
		{colClose, &bar.Close}, {colAdjClose, &bar.AdjClose},
	} {
		v, ok := field(c.name)
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(f) {
			return bar, c.name + ": " + strconv.Quote(v) + " is not a number"
		}
		*c.dst = null.FloatFrom(f)
	}
	if v, ok := field(colVolume); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return bar, "Volume: " + strconv.Quote(v) + " is not a number"
		}
		bar.Volume = null.IntFrom(int64(math.Round(f)))
	}
	return bar, ""
}

// exportError maps the JSON error body the export endpoint sends instead of CSV.
func (j *job) exportError(body []byte) error {
	n, err := Parse(body)
	if err != nil {
		return j.schemaError("malformed export error payload: %v", err)
	}
	e := n.Get("finance", "error")
	desc, _ := e.Get("description").Str()
	if desc == "" {
		desc = "no data returned"
	}
	return j.unavailable("%s", desc)
}
