package request

import (
	"net/url"
	"strings"

	"yfengine/pkg/records"
)

// ISINPath is the search endpoint of the ISIN lookup service.
const ISINPath = "/ajax/SearchController_Suggest"

// HasISIN reports whether symbol can carry an ISIN. Indices, currencies and crypto pairs
// never do.
func HasISIN(symbol string) bool { return !strings.ContainsAny(symbol, "-^=") }

// ISIN builds the lookup request for symbol. It targets the lookup service, not the
// finance API, and needs no session.
func (b *Builder) ISIN(symbol string) (*Endpoint, error) {
	cat := records.CategoryISIN
	if err := checkSymbol(symbol, cat); err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("max_results", "25")
	params.Set("query", strings.ToUpper(symbol))
	return &Endpoint{
		symbol:      symbol,
		family:      FamilyISINLookup,
		category:    cat,
		path:        ISINPath,
		params:      params,
		fingerprint: fingerprint(FamilyISINLookup, params, nil),
	}, nil
}
