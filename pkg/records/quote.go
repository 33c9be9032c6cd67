package records

import (
	"slices"
	"time"

	"github.com/guregu/null/v6"
)

// Info merges the profile, price, summary and statistics modules.
type Info struct {
	Symbol string
	// ISIN comes from the ISIN lookup; it is null when nothing is listed for the symbol.
	ISIN null.String

	ShortName         null.String
	LongName          null.String
	QuoteType         null.String
	Exchange          null.String
	ExchangeTimezone  null.String
	Currency          null.String
	MarketState       null.String
	Sector            null.String
	Industry          null.String
	Country           null.String
	Website           null.String
	Summary           null.String
	FullTimeEmployees null.Int

	RegularMarketPrice         null.Float
	RegularMarketOpen          null.Float
	RegularMarketDayHigh       null.Float
	RegularMarketDayLow        null.Float
	RegularMarketPreviousClose null.Float
	RegularMarketVolume        null.Int
	AverageVolume              null.Int
	MarketCap                  null.Float
	SharesOutstanding          null.Int

	TrailingEPS   null.Float
	TrailingPE    null.Float
	ForwardPE     null.Float
	DividendYield null.Float
	Beta          null.Float

	FiftyTwoWeekLow  null.Float
	FiftyTwoWeekHigh null.Float

	TargetMeanPrice         null.Float
	RecommendationKey       null.String
	NumberOfAnalystOpinions null.Int

	Diagnostics []Diagnostic
}

func (*Info) RecordCategory() Category { return CategoryInfo }

// ISIN is the International Securities Identification Number listed for a symbol.
type ISIN struct {
	Symbol      string
	ISIN        null.String
	Diagnostics []Diagnostic
}

func (*ISIN) RecordCategory() Category { return CategoryISIN }

// FastInfo is the price module subset.
type FastInfo struct {
	Symbol        string
	Name          null.String
	Exchange      null.String
	Currency      null.String
	QuoteType     null.String
	MarketState   null.String
	LastPrice     null.Float
	Open          null.Float
	DayHigh       null.Float
	DayLow        null.Float
	PreviousClose null.Float
	Volume        null.Int
	MarketCap     null.Float
}

func (*FastInfo) RecordCategory() Category { return CategoryFastInfo }

// Calendar lists upcoming events.
type Calendar struct {
	Symbol string
	// EarningsDates is ascending.
	EarningsDates   []time.Time
	ExDividendDate  null.Time
	DividendDate    null.Time
	EarningsAverage null.Float
	EarningsLow     null.Float
	EarningsHigh    null.Float
	RevenueAverage  null.Float
	RevenueLow      null.Float
	RevenueHigh     null.Float
}

func (*Calendar) RecordCategory() Category { return CategoryCalendar }

// RecommendationRow is the analyst count for one relative period ("0m", "-1m", ...).
type RecommendationRow struct {
	Period     string
	StrongBuy  null.Int
	Buy        null.Int
	Hold       null.Int
	Sell       null.Int
	StrongSell null.Int
}

// Recommendations keeps upstream period order.
type Recommendations struct {
	Symbol      string
	Rows        []RecommendationRow
	Diagnostics []Diagnostic
}

func (*Recommendations) RecordCategory() Category { return CategoryRecommendations }

// GradeChange is one analyst action.
type GradeChange struct {
	Time      time.Time
	Firm      string
	ToGrade   null.String
	FromGrade null.String
	Action    null.String
}

// UpgradesDowngrades is sorted most recent first.
type UpgradesDowngrades struct {
	Symbol      string
	Rows        []GradeChange
	Diagnostics []Diagnostic
}

func (*UpgradesDowngrades) RecordCategory() Category { return CategoryUpgradesDowngrades }

// Modules holds quote summary modules as decoded JSON with formatted wrappers removed.
type Modules struct {
	Symbol  string
	Modules map[string]map[string]any
}

func (*Modules) RecordCategory() Category { return CategoryModules }

// Names returns the module ids present.
func (m *Modules) Names() []string {
	out := make([]string, 0, len(m.Modules))
	for k := range m.Modules {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
