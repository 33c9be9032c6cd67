package normalize

import (
	"time"

	"github.com/guregu/null/v6"
	"yfengine/pkg/records"
)

// summary merges the result objects of every chunk into one module map.
func (j *job) summary() (Node, error) {
	merged := map[string]any{}
	for i := range j.in.Raws {
		n, err := j.parse(i)
		if err != nil {
			return Node{}, err
		}
		result, err := j.envelope(n, "quoteSummary")
		if err != nil {
			return Node{}, err
		}
		for _, k := range result.Keys() {
			merged[k] = result.Get(k).v
		}
	}
	return NodeOf(merged), nil
}

// module returns a required module.
func (j *job) module(s Node, name string) (Node, error) {
	m := s.Get(name)
	if m.Kind() != KindObject {
		return Node{}, j.unavailable("module %s not returned", name)
	}
	return m, nil
}

type priceModule struct {
	ShortName                  null.String `mapstructure:"shortName"`
	LongName                   null.String `mapstructure:"longName"`
	QuoteType                  null.String `mapstructure:"quoteType"`
	ExchangeName               null.String `mapstructure:"exchangeName"`
	Currency                   null.String `mapstructure:"currency"`
	MarketState                null.String `mapstructure:"marketState"`
	RegularMarketPrice         null.Float  `mapstructure:"regularMarketPrice"`
	RegularMarketOpen          null.Float  `mapstructure:"regularMarketOpen"`
	RegularMarketDayHigh       null.Float  `mapstructure:"regularMarketDayHigh"`
	RegularMarketDayLow        null.Float  `mapstructure:"regularMarketDayLow"`
	RegularMarketPreviousClose null.Float  `mapstructure:"regularMarketPreviousClose"`
	RegularMarketVolume        null.Int    `mapstructure:"regularMarketVolume"`
	MarketCap                  null.Float  `mapstructure:"marketCap"`
}

type profileModule struct {
	Sector              null.String `mapstructure:"sector"`
	Industry            null.String `mapstructure:"industry"`
	Country             null.String `mapstructure:"country"`
	Website             null.String `mapstructure:"website"`
	LongBusinessSummary null.String `mapstructure:"longBusinessSummary"`
	FullTimeEmployees   null.Int    `mapstructure:"fullTimeEmployees"`
}

type summaryDetailModule struct {
	Currency         null.String `mapstructure:"currency"`
	PreviousClose    null.Float  `mapstructure:"previousClose"`
	Open             null.Float  `mapstructure:"open"`
	DayLow           null.Float  `mapstructure:"dayLow"`
	DayHigh          null.Float  `mapstructure:"dayHigh"`
	Volume           null.Int    `mapstructure:"volume"`
	AverageVolume    null.Int    `mapstructure:"averageVolume"`
	MarketCap        null.Float  `mapstructure:"marketCap"`
	TrailingPE       null.Float  `mapstructure:"trailingPE"`
	ForwardPE        null.Float  `mapstructure:"forwardPE"`
	DividendYield    null.Float  `mapstructure:"dividendYield"`
	Beta             null.Float  `mapstructure:"beta"`
	FiftyTwoWeekLow  null.Float  `mapstructure:"fiftyTwoWeekLow"`
	FiftyTwoWeekHigh null.Float  `mapstructure:"fiftyTwoWeekHigh"`
}

type quoteTypeModule struct {
	QuoteType        null.String `mapstructure:"quoteType"`
	Exchange         null.String `mapstructure:"exchange"`
	ShortName        null.String `mapstructure:"shortName"`
	LongName         null.String `mapstructure:"longName"`
	TimeZoneFullName null.String `mapstructure:"timeZoneFullName"`
}

type keyStatisticsModule struct {
	SharesOutstanding null.Int   `mapstructure:"sharesOutstanding"`
	TrailingEps       null.Float `mapstructure:"trailingEps"`
	ForwardPE         null.Float `mapstructure:"forwardPE"`
	Beta              null.Float `mapstructure:"beta"`
}

type financialDataModule struct {
	CurrentPrice            null.Float  `mapstructure:"currentPrice"`
	TargetMeanPrice         null.Float  `mapstructure:"targetMeanPrice"`
	RecommendationKey       null.String `mapstructure:"recommendationKey"`
	NumberOfAnalystOpinions null.Int    `mapstructure:"numberOfAnalystOpinions"`
	FinancialCurrency       null.String `mapstructure:"financialCurrency"`
}

func firstString(vs ...null.String) null.String {
	for _, v := range vs {
		if v.Valid {
			return v
		}
	}
	return null.String{}
}

func firstFloat(vs ...null.Float) null.Float {
	for _, v := range vs {
		if v.Valid {
			return v
		}
	}
	return null.Float{}
}

func firstInt(vs ...null.Int) null.Int {
	for _, v := range vs {
		if v.Valid {
			return v
		}
	}
	return null.Int{}
}

func normalizeInfo(j *job) (records.Set, error) {
	s, err := j.summary()
	if err != nil {
		return nil, err
	}
	if !s.Get("price").Exists() && !s.Get("quoteType").Exists() {
		return nil, j.unavailable("quote not found")
	}

	var (
		price   priceModule
		asset   profileModule
		summary profileModule
		detail  summaryDetailModule
		qt      quoteTypeModule
		stats   keyStatisticsModule
		fin     financialDataModule
	)
	r := j.rows(0)
	for i, m := range []struct {
		name string
		out  any
	}{
		{"price", &price},
		{"assetProfile", &asset},
		{"summaryProfile", &summary},
		{"summaryDetail", &detail},
		{"quoteType", &qt},
		{"defaultKeyStatistics", &stats},
		{"financialData", &fin},
	} {
		n := s.Get(m.name)
		if !n.Exists() {
			continue
		}
		if err := decodeNode(n, m.out, time.UTC); err != nil {
			r.note(i, m.name+": "+err.Error())
		}
	}

	return &records.Info{
		Symbol:            j.symbol,
		ShortName:         firstString(price.ShortName, qt.ShortName),
		LongName:          firstString(price.LongName, qt.LongName),
		QuoteType:         firstString(qt.QuoteType, price.QuoteType),
		Exchange:          firstString(qt.Exchange, price.ExchangeName),
		ExchangeTimezone:  qt.TimeZoneFullName,
		Currency:          firstString(price.Currency, detail.Currency),
		MarketState:       price.MarketState,
		Sector:            firstString(asset.Sector, summary.Sector),
		Industry:          firstString(asset.Industry, summary.Industry),
		Country:           firstString(asset.Country, summary.Country),
		Website:           firstString(asset.Website, summary.Website),
		Summary:           firstString(asset.LongBusinessSummary, summary.LongBusinessSummary),
		FullTimeEmployees: firstInt(asset.FullTimeEmployees, summary.FullTimeEmployees),

		RegularMarketPrice:         firstFloat(price.RegularMarketPrice, fin.CurrentPrice),
		RegularMarketOpen:          firstFloat(price.RegularMarketOpen, detail.Open),
		RegularMarketDayHigh:       firstFloat(price.RegularMarketDayHigh, detail.DayHigh),
		RegularMarketDayLow:        firstFloat(price.RegularMarketDayLow, detail.DayLow),
		RegularMarketPreviousClose: firstFloat(price.RegularMarketPreviousClose, detail.PreviousClose),
		RegularMarketVolume:        firstInt(price.RegularMarketVolume, detail.Volume),
		AverageVolume:              detail.AverageVolume,
		MarketCap:                  firstFloat(price.MarketCap, detail.MarketCap),
		SharesOutstanding:          stats.SharesOutstanding,

		TrailingEPS:   stats.TrailingEps,
		TrailingPE:    detail.TrailingPE,
		ForwardPE:     firstFloat(detail.ForwardPE, stats.ForwardPE),
		DividendYield: detail.DividendYield,
		Beta:          firstFloat(detail.Beta, stats.Beta),

		FiftyTwoWeekLow:  detail.FiftyTwoWeekLow,
		FiftyTwoWeekHigh: detail.FiftyTwoWeekHigh,

		TargetMeanPrice:         fin.TargetMeanPrice,
		RecommendationKey:       fin.RecommendationKey,
		NumberOfAnalystOpinions: fin.NumberOfAnalystOpinions,

		Diagnostics: r.diags,
	}, nil
}

func normalizeFastInfo(j *job) (records.Set, error) {
	s, err := j.summary()
	if err != nil {
		return nil, err
	}
	n, err := j.module(s, "price")
	if err != nil {
		return nil, err
	}
	var p priceModule
	if err := decodeNode(n, &p, time.UTC); err != nil {
		return nil, j.schemaError("price module: %v", err)
	}
	return &records.FastInfo{
		Symbol:        j.symbol,
		Name:          firstString(p.ShortName, p.LongName),
		Exchange:      p.ExchangeName,
		Currency:      p.Currency,
		QuoteType:     p.QuoteType,
		MarketState:   p.MarketState,
		LastPrice:     p.RegularMarketPrice,
		Open:          p.RegularMarketOpen,
		DayHigh:       p.RegularMarketDayHigh,
		DayLow:        p.RegularMarketDayLow,
		PreviousClose: p.RegularMarketPreviousClose,
		Volume:        p.RegularMarketVolume,
		MarketCap:     p.MarketCap,
	}, nil
}

type calendarModule struct {
	Earnings struct {
		EarningsDate    []time.Time `mapstructure:"earningsDate"`
		EarningsAverage null.Float  `mapstructure:"earningsAverage"`
		EarningsLow     null.Float  `mapstructure:"earningsLow"`
		EarningsHigh    null.Float  `mapstructure:"earningsHigh"`
		RevenueAverage  null.Float  `mapstructure:"revenueAverage"`
		RevenueLow      null.Float  `mapstructure:"revenueLow"`
		RevenueHigh     null.Float  `mapstructure:"revenueHigh"`
	} `mapstructure:"earnings"`
	ExDividendDate null.Time `mapstructure:"exDividendDate"`
	DividendDate   null.Time `mapstructure:"dividendDate"`
}

func normalizeCalendar(j *job) (records.Set, error) {
	s, err := j.summary()
	if err != nil {
		return nil, err
	}
	n, err := j.module(s, "calendarEvents")
	if err != nil {
		return nil, err
	}
	var c calendarModule
	if err := decodeNode(n, &c, time.UTC); err != nil {
		return nil, j.schemaError("calendarEvents module: %v", err)
	}
	dates := c.Earnings.EarningsDate
	sortTimes(dates)
	return &records.Calendar{
		Symbol:          j.symbol,
		EarningsDates:   dates,
		ExDividendDate:  c.ExDividendDate,
		DividendDate:    c.DividendDate,
		EarningsAverage: c.Earnings.EarningsAverage,
		EarningsLow:     c.Earnings.EarningsLow,
		EarningsHigh:    c.Earnings.EarningsHigh,
		RevenueAverage:  c.Earnings.RevenueAverage,
		RevenueLow:      c.Earnings.RevenueLow,
		RevenueHigh:     c.Earnings.RevenueHigh,
	}, nil
}

func normalizeModules(j *job) (records.Set, error) {
	s, err := j.summary()
	if err != nil {
		return nil, err
	}
	out := &records.Modules{Symbol: j.symbol, Modules: map[string]map[string]any{}}
	for _, name := range s.Keys() {
		if m, ok := s.Get(name).Value().(map[string]any); ok {
			out.Modules[name] = m
		}
	}
	if len(out.Modules) == 0 {
		return nil, j.unavailable("no modules returned")
	}
	return out, nil
}
