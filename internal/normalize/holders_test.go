package normalize_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"yfengine/internal/httpx"
	"yfengine/internal/normalize"
	"yfengine/pkg/records"
	"yfengine/pkg/yferr"
)

const day = 86400

func ownershipPayload(total, malformed int) map[string]any {
	rows := make([]any, total)
	for i := range rows {
		row := map[string]any{
			"maxAge":       1,
			"reportDate":   fmtv(1719705600 - (i%5)*day),
			"organization": "Fund " + string(rune('A'+i%26)),
			"pctHeld":      fmtv(0.01),
			"position":     fmtv(1000 + i),
			"value":        fmtv(150000.5),
			"pctChange":    map[string]any{},
		}
		if i < malformed {
			delete(row, "organization")
		}
		rows[i] = row
	}
	return summary(map[string]any{"institutionOwnership": map[string]any{"ownershipList": rows}})
}

func TestOwnership_DropsFewMalformedRows(t *testing.T) {
	t.Parallel()

	// Arrange: 1 of 50 rows lacks the holder name
	reg := normalize.NewRegistry()
	in := normalize.Input{
		Endpoint: categoryEndpoint(t, records.CategoryInstitutionalHolders, ""),
		Raws:     []*httpx.Raw{jsonRaw(t, ownershipPayload(50, 1))},
	}

	// Act
	set, err := reg.Normalize(t.Context(), in)

	// Assert
	require.NoError(t, err)
	h := set.(*records.Holders)
	require.Len(t, h.Rows, 49)
	require.Len(t, h.Diagnostics, 1)
	require.Equal(t, 0, h.Diagnostics[0].Row)
	require.Equal(t, records.CategoryInstitutionalHolders, h.Diagnostics[0].Category)
	require.Contains(t, h.Diagnostics[0].Reason, "organization")

	// Assert: ascending report date, ties keep upstream order
	for i := 1; i < len(h.Rows); i++ {
		prev, cur := h.Rows[i-1], h.Rows[i]
		require.False(t, cur.DateReported.Before(prev.DateReported))
		if cur.DateReported.Equal(prev.DateReported) {
			require.Less(t, prev.Shares.Int64, cur.Shares.Int64)
		}
	}
	require.True(t, h.Rows[0].PctHeld.Valid)
	require.False(t, h.Rows[0].PctChange.Valid)
}

func TestOwnership_TooManyMalformedRows(t *testing.T) {
	t.Parallel()

	// Arrange: 30 of 50 rows are malformed
	reg := normalize.NewRegistry()
	in := normalize.Input{
		Endpoint: categoryEndpoint(t, records.CategoryInstitutionalHolders, ""),
		Raws:     []*httpx.Raw{jsonRaw(t, ownershipPayload(50, 30))},
	}

	// Act
	set, err := reg.Normalize(t.Context(), in)

	// Assert
	require.ErrorIs(t, err, yferr.ErrSchema)
	require.Nil(t, set)
	var e *yferr.Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, "AAPL", e.Symbol)
	require.Equal(t, string(records.CategoryInstitutionalHolders), e.Category)
}

func TestOwnership_ThresholdIsConfigurable(t *testing.T) {
	t.Parallel()

	reg := normalize.NewRegistry(normalize.WithThreshold(0.7))
	in := normalize.Input{
		Endpoint: categoryEndpoint(t, records.CategoryInstitutionalHolders, ""),
		Raws:     []*httpx.Raw{jsonRaw(t, ownershipPayload(50, 30))},
	}

	set, err := reg.Normalize(t.Context(), in)
	require.NoError(t, err)
	require.Len(t, set.(*records.Holders).Rows, 20)
}

func TestMutualFundHolders_MissingModule(t *testing.T) {
	t.Parallel()

	in := normalize.Input{
		Endpoint: categoryEndpoint(t, records.CategoryMutualFundHolders, ""),
		Raws:     []*httpx.Raw{jsonRaw(t, summary(map[string]any{"price": map[string]any{}}))},
	}

	_, err := normalize.NewRegistry().Normalize(t.Context(), in)
	require.ErrorIs(t, err, yferr.ErrDataUnavailable)
}

func TestMajorHolders(t *testing.T) {
	t.Parallel()

	in := normalize.Input{
		Endpoint: categoryEndpoint(t, records.CategoryMajorHolders, ""),
		Raws: []*httpx.Raw{jsonRaw(t, summary(map[string]any{"majorHoldersBreakdown": map[string]any{
			"insidersPercentHeld":     fmtv(0.017),
			"institutionsPercentHeld": fmtv(0.61),
			"institutionsCount":       fmtv(6000),
		}}))},
	}

	set, err := normalize.NewRegistry().Normalize(t.Context(), in)
	require.NoError(t, err)
	m := set.(*records.MajorHolders)
	require.Len(t, m.Rows, len(records.MajorHolderBreakdowns))
	require.InDelta(t, 0.61, m.Value(records.BreakdownInstitutionsPercentHeld).Float64, 1e-12)
	require.False(t, m.Value(records.BreakdownInstitutionsFloatPercentHeld).Valid)
}

func TestInsiderTransactions_MostRecentFirst(t *testing.T) {
	t.Parallel()

	in := normalize.Input{
		Endpoint: categoryEndpoint(t, records.CategoryInsiderTransactions, ""),
		Raws: []*httpx.Raw{jsonRaw(t, summary(map[string]any{"insiderTransactions": map[string]any{
			"transactions": []any{
				map[string]any{"filerName": "A", "startDate": fmtv(1700000000), "shares": fmtv(10)},
				map[string]any{"filerName": "B", "startDate": fmtv(1710000000), "transactionText": "Sale"},
				map[string]any{"filerName": "C", "startDate": "not a date"},
			},
		}}))},
	}

	set, err := normalize.NewRegistry(normalize.WithThreshold(0.5)).Normalize(t.Context(), in)
	require.NoError(t, err)
	tx := set.(*records.InsiderTransactions)
	require.Len(t, tx.Rows, 2)
	require.Equal(t, "B", tx.Rows[0].Insider)
	require.Equal(t, "Sale", tx.Rows[0].Transaction.String)
	require.False(t, tx.Rows[0].Shares.Valid)
	require.Equal(t, int64(10), tx.Rows[1].Shares.Int64)
	require.Len(t, tx.Diagnostics, 1)
}

func TestInsiderRoster(t *testing.T) {
	t.Parallel()

	in := normalize.Input{
		Endpoint: categoryEndpoint(t, records.CategoryInsiderRoster, ""),
		Raws: []*httpx.Raw{jsonRaw(t, summary(map[string]any{"insiderHolders": map[string]any{
			"holders": []any{
				map[string]any{"name": "Z", "relation": "CEO", "latestTransDate": fmtv(1700000000), "positionDirect": fmtv(5)},
				map[string]any{"name": "A", "url": ""},
			},
		}}))},
	}

	set, err := normalize.NewRegistry().Normalize(t.Context(), in)
	require.NoError(t, err)
	r := set.(*records.InsiderRoster)
	require.Equal(t, []string{"Z", "A"}, []string{r.Rows[0].Name, r.Rows[1].Name})
	require.True(t, r.Rows[0].LatestTransactionDate.Valid)
	require.False(t, r.Rows[1].URL.Valid)
}
