package request

import (
	"net/url"
	"slices"
	"strings"

	"yfengine/pkg/records"
)

// Module ids known to the quote summary endpoint.
var KnownModules = []string{
	"assetProfile", "summaryProfile", "summaryDetail", "quoteType", "price",
	"defaultKeyStatistics", "financialData", "calendarEvents", "recommendationTrend",
	"upgradeDowngradeHistory", "earnings", "earningsHistory", "earningsTrend",
	"majorHoldersBreakdown", "institutionOwnership", "fundOwnership",
	"insiderTransactions", "insiderHolders", "netSharePurchaseActivity",
	"incomeStatementHistory", "incomeStatementHistoryQuarterly",
	"balanceSheetHistory", "balanceSheetHistoryQuarterly",
	"cashflowStatementHistory", "cashflowStatementHistoryQuarterly",
	"secFilings", "esgScores", "fundProfile", "topHoldings",
}

var categoryModules = map[records.Category][]string{
	records.CategoryInfo: {
		"assetProfile", "summaryProfile", "summaryDetail", "quoteType",
		"price", "defaultKeyStatistics", "financialData",
	},
	records.CategoryFastInfo:             {"price"},
	records.CategoryCalendar:             {"calendarEvents"},
	records.CategoryRecommendations:      {"recommendationTrend"},
	records.CategoryUpgradesDowngrades:   {"upgradeDowngradeHistory"},
	records.CategoryEarnings:             {"earnings"},
	records.CategoryMajorHolders:         {"majorHoldersBreakdown"},
	records.CategoryInstitutionalHolders: {"institutionOwnership"},
	records.CategoryMutualFundHolders:    {"fundOwnership"},
	records.CategoryInsiderTransactions:  {"insiderTransactions"},
	records.CategoryInsiderRoster:        {"insiderHolders"},
}

var statementModules = map[records.Category][2]string{
	records.CategoryIncomeStatement: {"incomeStatementHistory", "incomeStatementHistoryQuarterly"},
	records.CategoryBalanceSheet:    {"balanceSheetHistory", "balanceSheetHistoryQuarterly"},
	records.CategoryCashFlow:        {"cashflowStatementHistory", "cashflowStatementHistoryQuarterly"},
}

// ModulesFor returns the quote summary modules that back a logical category.
func ModulesFor(cat records.Category, freq records.Frequency) ([]string, bool) {
	if pair, ok := statementModules[cat]; ok {
		if freq == records.Quarterly {
			return []string{pair[1]}, true
		}
		return []string{pair[0]}, true
	}
	m, ok := categoryModules[cat]
	return slices.Clone(m), ok
}

// IsStatement reports whether cat is a financial statement category.
func IsStatement(cat records.Category) bool {
	_, ok := statementModules[cat]
	return ok
}

// Category builds the quote summary requests for a logical category.
func (b *Builder) Category(symbol string, cat records.Category, freq records.Frequency) ([]*Endpoint, error) {
	if err := checkSymbol(symbol, cat); err != nil {
		return nil, err
	}
	if IsStatement(cat) && freq != records.Annual && freq != records.Quarterly {
		return nil, invalid(symbol, cat, "frequency must be annual or quarterly, got %q", freq)
	}
	modules, ok := ModulesFor(cat, freq)
	if !ok {
		return nil, invalid(symbol, cat, "category %q is not served by quote summary modules", cat)
	}
	return b.modules(symbol, cat, freq, modules)
}

// Modules builds the requests for an explicit module selection, split into chunks.
func (b *Builder) Modules(symbol string, cat records.Category, modules []string) ([]*Endpoint, error) {
	if err := checkSymbol(symbol, cat); err != nil {
		return nil, err
	}
	if len(modules) == 0 {
		return nil, invalid(symbol, cat, "at least one module is required")
	}
	for _, m := range modules {
		if !slices.Contains(KnownModules, m) {
			return nil, invalid(symbol, cat, "unknown module %q", m)
		}
	}
	return b.modules(symbol, cat, "", modules)
}

func (b *Builder) modules(symbol string, cat records.Category, freq records.Frequency, modules []string) ([]*Endpoint, error) {
	uniq := slices.Clone(modules)
	slices.Sort(uniq)
	uniq = slices.Compact(uniq)

	// Every chunk shares one fingerprint: the merged result is what gets cached.
	fp := fingerprint(FamilyQuoteSummary, url.Values{"modules": {strings.Join(uniq, ",")}}, url.Values{
		"category":  {string(cat)},
		"frequency": {string(freq)},
		"lang":      {b.lang},
		"region":    {b.region},
	})

	var out []*Endpoint
	for _, chunk := range chunkStrings(uniq, b.moduleChunk) {
		params := url.Values{}
		params.Set("modules", strings.Join(chunk, ","))
		params.Set("formatted", "false")
		params.Set("lang", b.lang)
		params.Set("region", b.region)
		params.Set("corsDomain", "finance.yahoo.com")
		out = append(out, &Endpoint{
			symbol:      symbol,
			family:      FamilyQuoteSummary,
			category:    cat,
			path:        "/v10/finance/quoteSummary/" + url.PathEscape(symbol),
			params:      params,
			fingerprint: fp,
			modules:     slices.Clone(chunk),
			frequency:   freq,
		})
	}
	return out, nil
}
