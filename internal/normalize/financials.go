package normalize

import (
	"slices"
	"time"

	"github.com/guregu/null/v6"
	"yfengine/pkg/records"
)

// statementLists maps each statement category to the list key inside its modules.
var statementLists = map[records.Category]string{
	records.CategoryIncomeStatement: "incomeStatementHistory",
	records.CategoryBalanceSheet:    "balanceSheetStatements",
	records.CategoryCashFlow:        "cashflowStatements",
}

var statementSchema = Schema{Required("endDate", KindTime)}

// Keys carried by every statement row that are not line items.
var statementMeta = []string{"endDate", "maxAge"}

func normalizeStatement(j *job) (records.Set, error) {
	s, err := j.summary()
	if err != nil {
		return nil, err
	}
	modules := j.in.Endpoint.Modules()
	if len(modules) != 1 {
		return nil, j.schemaError("statement request must select one module, got %v", modules)
	}
	m, err := j.module(s, modules[0])
	if err != nil {
		return nil, err
	}
	list := m.Get(statementLists[j.cat])
	r := j.rows(list.Len())
	out := &records.Statement{Symbol: j.symbol, Kind: j.cat, Frequency: j.in.Endpoint.Frequency()}

	out.LineItems = records.StatementItems(j.cat)
	unknown := map[string]bool{}
	for i, n := range list.Items() {
		if v := statementSchema.Check(n); v != nil {
			r.drop(i, v.Error())
			continue
		}
		end, _ := n.Get("endDate").Time(time.UTC)
		period := records.StatementPeriod{EndDate: end, Values: make(map[string]null.Float, len(out.LineItems))}
		bad := ""
		for _, key := range out.LineItems {
			v := n.Get(key)
			switch k := v.Kind(); {
			case k == KindNumber:
				period.Values[key] = v.NullFloat()
			case k == KindMissing || k == KindNull || (k == KindObject && v.Len() == 0):
				period.Values[key] = null.Float{}
			default:
				bad = key + ": expected number, got " + k.String()
			}
			if bad != "" {
				break
			}
		}
		if bad != "" {
			r.drop(i, bad)
			continue
		}
		for _, key := range n.Keys() {
			if unknown[key] || slices.Contains(statementMeta, key) || slices.Contains(out.LineItems, key) {
				continue
			}
			unknown[key] = true
			r.note(i, "unknown line item "+key+" ignored")
		}
		out.Periods = append(out.Periods, period)
	}
	if err := r.check(); err != nil {
		return nil, err
	}

	slices.SortStableFunc(out.Periods, func(a, b records.StatementPeriod) int { return a.EndDate.Compare(b.EndDate) })
	out.Diagnostics = r.diags
	return out, nil
}

var yearlySchema = Schema{
	Required("date", KindNumber),
	Optional("revenue", KindNumber),
	Optional("earnings", KindNumber),
}

var quarterlySchema = Schema{
	Required("date", KindString),
	Optional("revenue", KindNumber),
	Optional("earnings", KindNumber),
}

var epsSchema = Schema{
	Required("date", KindString),
	Optional("actual", KindNumber),
	Optional("estimate", KindNumber),
}

type yearlyRow struct {
	Date     int        `mapstructure:"date"`
	Revenue  null.Float `mapstructure:"revenue"`
	Earnings null.Float `mapstructure:"earnings"`
}

type quarterlyRow struct {
	Date     string     `mapstructure:"date"`
	Revenue  null.Float `mapstructure:"revenue"`
	Earnings null.Float `mapstructure:"earnings"`
}

type epsRow struct {
	Date     string     `mapstructure:"date"`
	Actual   null.Float `mapstructure:"actual"`
	Estimate null.Float `mapstructure:"estimate"`
}

func normalizeEarnings(j *job) (records.Set, error) {
	s, err := j.summary()
	if err != nil {
		return nil, err
	}
	m, err := j.module(s, "earnings")
	if err != nil {
		return nil, err
	}
	out := &records.Earnings{Symbol: j.symbol, Currency: m.Get("financialCurrency").NullString()}

	yearly := m.Get("financialsChart", "yearly")
	quarterly := m.Get("financialsChart", "quarterly")
	eps := m.Get("earningsChart", "quarterly")
	r := j.rows(yearly.Len() + quarterly.Len() + eps.Len())
	row := 0

	for _, n := range yearly.Items() {
		var y yearlyRow
		if r.decodeRow(row, n, yearlySchema, &y, time.UTC) {
			out.Yearly = append(out.Yearly, records.YearlyEarnings{Year: y.Date, Revenue: y.Revenue, Earnings: y.Earnings})
		}
		row++
	}
	for _, n := range quarterly.Items() {
		var q quarterlyRow
		if r.decodeRow(row, n, quarterlySchema, &q, time.UTC) {
			out.Quarterly = append(out.Quarterly, records.QuarterlyEarnings{Quarter: q.Date, Revenue: q.Revenue, Earnings: q.Earnings})
		}
		row++
	}
	for _, n := range eps.Items() {
		var e epsRow
		if r.decodeRow(row, n, epsSchema, &e, time.UTC) {
			out.QuarterlyEPS = append(out.QuarterlyEPS, records.QuarterlyEPS{Quarter: e.Date, Actual: e.Actual, Estimate: e.Estimate})
		}
		row++
	}
	if err := r.check(); err != nil {
		return nil, err
	}
	slices.SortStableFunc(out.Yearly, func(a, b records.YearlyEarnings) int { return a.Year - b.Year })
	out.Diagnostics = r.diags
	return out, nil
}
