package records_test

import (
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/require"
	"yfengine/pkg/records"
)

func TestActionRatio(t *testing.T) {
	t.Parallel()

	require.InDelta(t, 4.0, records.Action{Kind: records.ActionSplit, Numerator: 4, Denominator: 1}.Ratio(), 1e-12)
	require.Zero(t, records.Action{Kind: records.ActionSplit, Numerator: 4}.Ratio())
	require.Zero(t, records.Action{Kind: records.ActionDividend, Amount: 0.24}.Ratio())
}

func TestOptionExpirations_Contains(t *testing.T) {
	t.Parallel()

	d, err := records.ParseDate("2024-06-21")
	require.NoError(t, err)
	exps := &records.OptionExpirations{Dates: []time.Time{d}}

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	require.True(t, exps.Contains(time.Date(2024, 6, 21, 15, 0, 0, 0, time.UTC)))
	require.True(t, exps.Contains(time.Date(2024, 6, 20, 22, 0, 0, 0, ny)))
	require.False(t, exps.Contains(time.Date(2024, 6, 22, 0, 0, 0, 0, time.UTC)))
	require.Equal(t, []string{"2024-06-21"}, exps.Strings())
}

func TestHistory_CategoryAndCloses(t *testing.T) {
	t.Parallel()

	h := &records.History{Bars: []records.Bar{
		{Close: null.FloatFrom(1)},
		{},
		{Close: null.FloatFrom(3)},
	}}

	require.Equal(t, records.CategoryHistory, h.RecordCategory())
	require.Equal(t, []float64{1, 3}, h.Closes())

	h.Source = records.CategoryDownload
	require.Equal(t, records.CategoryDownload, h.RecordCategory())
}

func TestStatementValue(t *testing.T) {
	t.Parallel()

	s := &records.Statement{Periods: []records.StatementPeriod{
		{Values: map[string]null.Float{"totalRevenue": null.FloatFrom(100)}},
	}}

	require.Equal(t, 100.0, s.Value("totalRevenue", 0).Float64)
	require.False(t, s.Value("netIncome", 0).Valid)
	require.False(t, s.Value("totalRevenue", 3).Valid)
}

func TestModulesNames(t *testing.T) {
	t.Parallel()

	m := &records.Modules{Modules: map[string]map[string]any{"price": {}, "assetProfile": {}}}
	require.Equal(t, []string{"assetProfile", "price"}, m.Names())
}
