package normalize

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/guregu/null/v6"
	"yfengine/pkg/records"
)

var isinRe = regexp.MustCompile(`^[A-Z]{2}[A-Z0-9]{9}[0-9]$`)

// normalizeISIN reads the suggestion script of the lookup service. Each suggestion carries
// a keyword field "SYMBOL|ISIN|...". When no keyword names the symbol but the symbol
// occurs anywhere, the first keyword without a symbol is used.
func normalizeISIN(j *job) (records.Set, error) {
	body := j.in.Raws[0].Body
	out := &records.ISIN{Symbol: j.symbol}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, j.schemaError("empty lookup response")
	}

	text := string(body)
	symbol := strings.ToUpper(j.symbol)
	marker := `"` + symbol + `|`
	if !strings.Contains(text, marker) {
		if !strings.Contains(strings.ToUpper(text), symbol) {
			out.Diagnostics = append(out.Diagnostics, j.diagnostic("no ISIN listed"))
			return out, nil
		}
		marker = `"|`
	}
	_, rest, ok := strings.Cut(text, marker)
	if !ok {
		out.Diagnostics = append(out.Diagnostics, j.diagnostic("no ISIN listed"))
		return out, nil
	}
	field, _, _ := strings.Cut(rest, `"`)
	isin, _, _ := strings.Cut(field, "|")
	if !isinRe.MatchString(isin) {
		out.Diagnostics = append(out.Diagnostics, j.diagnostic("malformed ISIN "+isin+" ignored"))
		return out, nil
	}
	out.ISIN = null.StringFrom(isin)
	return out, nil
}

func (j *job) diagnostic(reason string) records.Diagnostic {
	j.log.Debug().Str("reason", reason).Msg("isin lookup")
	return records.Diagnostic{Symbol: j.symbol, Category: j.cat, Reason: reason}
}
