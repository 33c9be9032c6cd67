package normalize

import (
	"slices"
	"time"

	"github.com/guregu/null/v6"
	"yfengine/pkg/records"
)

var trendSchema = Schema{
	Required("period", KindString),
	Optional("strongBuy", KindNumber),
	Optional("buy", KindNumber),
	Optional("hold", KindNumber),
	Optional("sell", KindNumber),
	Optional("strongSell", KindNumber),
}

type trendRow struct {
	Period     string   `mapstructure:"period"`
	StrongBuy  null.Int `mapstructure:"strongBuy"`
	Buy        null.Int `mapstructure:"buy"`
	Hold       null.Int `mapstructure:"hold"`
	Sell       null.Int `mapstructure:"sell"`
	StrongSell null.Int `mapstructure:"strongSell"`
}

var gradeSchema = Schema{
	Required("epochGradeDate", KindTime),
	Required("firm", KindString),
	Optional("toGrade", KindString),
	Optional("fromGrade", KindString),
	Optional("action", KindString),
}

type gradeRow struct {
	EpochGradeDate time.Time   `mapstructure:"epochGradeDate"`
	Firm           string      `mapstructure:"firm"`
	ToGrade        null.String `mapstructure:"toGrade"`
	FromGrade      null.String `mapstructure:"fromGrade"`
	Action         null.String `mapstructure:"action"`
}

func normalizeRecommendations(j *job) (records.Set, error) {
	s, err := j.summary()
	if err != nil {
		return nil, err
	}
	m, err := j.module(s, "recommendationTrend")
	if err != nil {
		return nil, err
	}
	list := m.Get("trend")
	r := j.rows(list.Len())
	out := &records.Recommendations{Symbol: j.symbol}
	for i, n := range list.Items() {
		var row trendRow
		if !r.decodeRow(i, n, trendSchema, &row, time.UTC) {
			continue
		}
		out.Rows = append(out.Rows, records.RecommendationRow{
			Period:     row.Period,
			StrongBuy:  row.StrongBuy,
			Buy:        row.Buy,
			Hold:       row.Hold,
			Sell:       row.Sell,
			StrongSell: row.StrongSell,
		})
	}
	if err := r.check(); err != nil {
		return nil, err
	}
	out.Diagnostics = r.diags
	return out, nil
}

func normalizeUpgradesDowngrades(j *job) (records.Set, error) {
	s, err := j.summary()
	if err != nil {
		return nil, err
	}
	m, err := j.module(s, "upgradeDowngradeHistory")
	if err != nil {
		return nil, err
	}
	list := m.Get("history")
	r := j.rows(list.Len())
	out := &records.UpgradesDowngrades{Symbol: j.symbol}
	for i, n := range list.Items() {
		var row gradeRow
		if !r.decodeRow(i, n, gradeSchema, &row, time.UTC) {
			continue
		}
		out.Rows = append(out.Rows, records.GradeChange{
			Time:      row.EpochGradeDate,
			Firm:      row.Firm,
			ToGrade:   row.ToGrade,
			FromGrade: row.FromGrade,
			Action:    row.Action,
		})
	}
	if err := r.check(); err != nil {
		return nil, err
	}
	slices.SortStableFunc(out.Rows, func(a, b records.GradeChange) int { return b.Time.Compare(a.Time) })
	out.Diagnostics = r.diags
	return out, nil
}
