// Package records holds the Normalized Record Sets returned by the engine.
//
// Column sets are fixed per category. Optional upstream fields that were missing are
// represented by invalid null values, never by omitted fields. Monetary values are in the
// quote currency reported upstream; volumes and share counts are integer counts.
package records

import (
	"time"
)

// Category is one logical data domain.
type Category string

const (
	CategoryHistory              Category = "history"
	CategoryDownload             Category = "download"
	CategoryDividends            Category = "dividends"
	CategorySplits               Category = "splits"
	CategoryActions              Category = "actions"
	CategoryCapitalGains         Category = "capital_gains"
	CategoryInfo                 Category = "info"
	CategoryFastInfo             Category = "fast_info"
	CategoryCalendar             Category = "calendar"
	CategoryRecommendations      Category = "recommendations"
	CategoryUpgradesDowngrades   Category = "upgrades_downgrades"
	CategoryMajorHolders         Category = "major_holders"
	CategoryInstitutionalHolders Category = "institutional_holders"
	CategoryMutualFundHolders    Category = "mutualfund_holders"
	CategoryInsiderTransactions  Category = "insider_transactions"
	CategoryInsiderRoster        Category = "insider_roster_holders"
	CategoryIncomeStatement      Category = "income_stmt"
	CategoryBalanceSheet         Category = "balance_sheet"
	CategoryCashFlow             Category = "cashflow"
	CategoryEarnings             Category = "earnings"
	CategoryOptionExpirations    Category = "options"
	CategoryOptionChain          Category = "option_chain"
	CategoryISIN                 Category = "isin"
	// CategoryModules is an explicit quote summary module selection.
	CategoryModules              Category = "modules"
)

// Set is implemented by every record set.
type Set interface {
	RecordCategory() Category
}

// Diagnostic is a non-fatal signal that the normalizer dropped or repaired a row.
type Diagnostic struct {
	Symbol   string
	Category Category
	// Row is the zero-based index of the row in the upstream payload.
	Row    int
	Reason string
}

// Frequency of a financial statement.
type Frequency string

const (
	Annual    Frequency = "annual"
	Quarterly Frequency = "quarterly"
)

// TimezoneSource records which timezone was used to localise instants.
type TimezoneSource string

const (
	// TimezoneExchange means the exchange timezone declared upstream was used.
	TimezoneExchange TimezoneSource = "exchange"
	// TimezoneUTC means no usable exchange timezone was declared.
	TimezoneUTC TimezoneSource = "utc"
)

// DateLayout is the layout used for option expiration strings.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD date as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}
