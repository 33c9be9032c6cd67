package records

import (
	"time"

	"github.com/guregu/null/v6"
)

// Major holder breakdown keys, in output order.
const (
	BreakdownInsidersPercentHeld          = "insidersPercentHeld"
	BreakdownInstitutionsPercentHeld      = "institutionsPercentHeld"
	BreakdownInstitutionsFloatPercentHeld = "institutionsFloatPercentHeld"
	BreakdownInstitutionsCount            = "institutionsCount"
)

// MajorHolderBreakdowns is the fixed row set of MajorHolders.
var MajorHolderBreakdowns = []string{
	BreakdownInsidersPercentHeld,
	BreakdownInstitutionsPercentHeld,
	BreakdownInstitutionsFloatPercentHeld,
	BreakdownInstitutionsCount,
}

// MajorHolderRow is one breakdown value. Percentages are fractions (0.05 = 5%).
type MajorHolderRow struct {
	Breakdown string
	Value     null.Float
}

type MajorHolders struct {
	Symbol string
	Rows   []MajorHolderRow
}

func (*MajorHolders) RecordCategory() Category { return CategoryMajorHolders }

// Value returns the value for a breakdown key.
func (m *MajorHolders) Value(breakdown string) null.Float {
	for _, r := range m.Rows {
		if r.Breakdown == breakdown {
			return r.Value
		}
	}
	return null.Float{}
}

// Holder is one institutional or fund position.
type Holder struct {
	DateReported time.Time
	Holder       string
	Shares       null.Int
	Value        null.Float
	PctHeld      null.Float
	PctChange    null.Float
}

// Holders keeps filing order: ascending report date, ties in upstream order.
type Holders struct {
	Symbol      string
	Kind        Category
	Rows        []Holder
	Diagnostics []Diagnostic
}

func (h *Holders) RecordCategory() Category { return h.Kind }

// InsiderTransaction is one reported insider trade.
type InsiderTransaction struct {
	StartDate   time.Time
	Insider     string
	Position    null.String
	Transaction null.String
	Shares      null.Int
	Value       null.Float
	Ownership   null.String
}

// InsiderTransactions is sorted most recent first.
type InsiderTransactions struct {
	Symbol      string
	Rows        []InsiderTransaction
	Diagnostics []Diagnostic
}

func (*InsiderTransactions) RecordCategory() Category { return CategoryInsiderTransactions }

// RosterHolder is one insider on the roster.
type RosterHolder struct {
	Name                  string
	Relation              null.String
	URL                   null.String
	MostRecentTransaction null.String
	LatestTransactionDate null.Time
	PositionDirect        null.Int
	PositionDirectDate    null.Time
}

// InsiderRoster keeps upstream order.
type InsiderRoster struct {
	Symbol      string
	Rows        []RosterHolder
	Diagnostics []Diagnostic
}

func (*InsiderRoster) RecordCategory() Category { return CategoryInsiderRoster }
