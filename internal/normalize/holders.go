package normalize

import (
	"slices"
	"time"

	"github.com/guregu/null/v6"
	"yfengine/pkg/records"
)

var ownershipSchema = Schema{
	Required("reportDate", KindTime),
	Required("organization", KindString),
	Optional("pctHeld", KindNumber),
	Optional("position", KindNumber),
	Optional("value", KindNumber),
	Optional("pctChange", KindNumber),
}

type ownershipRow struct {
	ReportDate   time.Time  `mapstructure:"reportDate"`
	Organization string     `mapstructure:"organization"`
	PctHeld      null.Float `mapstructure:"pctHeld"`
	Position     null.Int   `mapstructure:"position"`
	Value        null.Float `mapstructure:"value"`
	PctChange    null.Float `mapstructure:"pctChange"`
}

var insiderTransactionSchema = Schema{
	Required("startDate", KindTime),
	Required("filerName", KindString),
	Optional("filerRelation", KindString),
	Optional("transactionText", KindString),
	Optional("ownership", KindString),
	Optional("shares", KindNumber),
	Optional("value", KindNumber),
}

type insiderTransactionRow struct {
	StartDate       time.Time   `mapstructure:"startDate"`
	FilerName       string      `mapstructure:"filerName"`
	FilerRelation   null.String `mapstructure:"filerRelation"`
	TransactionText null.String `mapstructure:"transactionText"`
	Ownership       null.String `mapstructure:"ownership"`
	Shares          null.Int    `mapstructure:"shares"`
	Value           null.Float  `mapstructure:"value"`
}

var rosterSchema = Schema{
	Required("name", KindString),
	Optional("relation", KindString),
	Optional("url", KindString),
	Optional("transactionDescription", KindString),
	Optional("latestTransDate", KindTime),
	Optional("positionDirect", KindNumber),
	Optional("positionDirectDate", KindTime),
}

type rosterRow struct {
	Name                   string      `mapstructure:"name"`
	Relation               null.String `mapstructure:"relation"`
	URL                    null.String `mapstructure:"url"`
	TransactionDescription null.String `mapstructure:"transactionDescription"`
	LatestTransDate        null.Time   `mapstructure:"latestTransDate"`
	PositionDirect         null.Int    `mapstructure:"positionDirect"`
	PositionDirectDate     null.Time   `mapstructure:"positionDirectDate"`
}

func sortTimes(ts []time.Time) { slices.SortFunc(ts, time.Time.Compare) }

func normalizeMajorHolders(j *job) (records.Set, error) {
	s, err := j.summary()
	if err != nil {
		return nil, err
	}
	m, err := j.module(s, "majorHoldersBreakdown")
	if err != nil {
		return nil, err
	}
	out := &records.MajorHolders{Symbol: j.symbol}
	for _, key := range records.MajorHolderBreakdowns {
		v := m.Get(key)
		if v.Exists() && v.Kind() != KindNumber && !(v.Kind() == KindObject && v.Len() == 0) {
			return nil, j.schemaError("%s: expected number, got %s", key, v.Kind())
		}
		out.Rows = append(out.Rows, records.MajorHolderRow{Breakdown: key, Value: v.NullFloat()})
	}
	return out, nil
}

func normalizeOwnership(j *job) (records.Set, error) {
	s, err := j.summary()
	if err != nil {
		return nil, err
	}
	name := "institutionOwnership"
	if j.cat == records.CategoryMutualFundHolders {
		name = "fundOwnership"
	}
	m, err := j.module(s, name)
	if err != nil {
		return nil, err
	}
	list := m.Get("ownershipList")
	r := j.rows(list.Len())
	out := &records.Holders{Symbol: j.symbol, Kind: j.cat}
	for i, n := range list.Items() {
		var row ownershipRow
		if !r.decodeRow(i, n, ownershipSchema, &row, time.UTC) {
			continue
		}
		out.Rows = append(out.Rows, records.Holder{
			DateReported: row.ReportDate,
			Holder:       row.Organization,
			Shares:       row.Position,
			Value:        row.Value,
			PctHeld:      row.PctHeld,
			PctChange:    row.PctChange,
		})
	}
	if err := r.check(); err != nil {
		return nil, err
	}
	slices.SortStableFunc(out.Rows, func(a, b records.Holder) int { return a.DateReported.Compare(b.DateReported) })
	out.Diagnostics = r.diags
	return out, nil
}

func normalizeInsiderTransactions(j *job) (records.Set, error) {
	s, err := j.summary()
	if err != nil {
		return nil, err
	}
	m, err := j.module(s, "insiderTransactions")
	if err != nil {
		return nil, err
	}
	list := m.Get("transactions")
	r := j.rows(list.Len())
	out := &records.InsiderTransactions{Symbol: j.symbol}
	for i, n := range list.Items() {
		var row insiderTransactionRow
		if !r.decodeRow(i, n, insiderTransactionSchema, &row, time.UTC) {
			continue
		}
		out.Rows = append(out.Rows, records.InsiderTransaction{
			StartDate:   row.StartDate,
			Insider:     row.FilerName,
			Position:    row.FilerRelation,
			Transaction: row.TransactionText,
			Shares:      row.Shares,
			Value:       row.Value,
			Ownership:   row.Ownership,
		})
	}
	if err := r.check(); err != nil {
		return nil, err
	}
	slices.SortStableFunc(out.Rows, func(a, b records.InsiderTransaction) int { return b.StartDate.Compare(a.StartDate) })
	out.Diagnostics = r.diags
	return out, nil
}

func normalizeInsiderRoster(j *job) (records.Set, error) {
	s, err := j.summary()
	if err != nil {
		return nil, err
	}
	m, err := j.module(s, "insiderHolders")
	if err != nil {
		return nil, err
	}
	list := m.Get("holders")
	r := j.rows(list.Len())
	out := &records.InsiderRoster{Symbol: j.symbol}
	for i, n := range list.Items() {
		var row rosterRow
		if !r.decodeRow(i, n, rosterSchema, &row, time.UTC) {
			continue
		}
		out.Rows = append(out.Rows, records.RosterHolder{
			Name:                  row.Name,
			Relation:              row.Relation,
			URL:                   row.URL,
			MostRecentTransaction: row.TransactionDescription,
			LatestTransactionDate: row.LatestTransDate,
			PositionDirect:        row.PositionDirect,
			PositionDirectDate:    row.PositionDirectDate,
		})
	}
	if err := r.check(); err != nil {
		return nil, err
	}
	out.Diagnostics = r.diags
	return out, nil
}
