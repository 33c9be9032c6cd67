package records

import (
	"slices"
	"time"

	"github.com/guregu/null/v6"
)

// IncomeStatementItems are the line items of every income statement, in upstream order.
var IncomeStatementItems = []string{
	"researchDevelopment", "effectOfAccountingCharges", "incomeBeforeTax", "minorityInterest",
	"netIncome", "sellingGeneralAdministrative", "grossProfit", "ebit", "operatingIncome",
	"otherOperatingExpenses", "interestExpense", "extraordinaryItems", "nonRecurring",
	"otherItems", "incomeTaxExpense", "totalRevenue", "totalOperatingExpenses",
	"costOfRevenue", "totalOtherIncomeExpenseNet", "discontinuedOperations",
	"netIncomeFromContinuingOps", "netIncomeApplicableToCommonShares",
}

var BalanceSheetItems = []string{
	"intangibleAssets", "capitalSurplus", "totalLiab", "totalStockholderEquity",
	"otherCurrentLiab", "totalAssets", "commonStock", "otherCurrentAssets",
	"retainedEarnings", "otherLiab", "goodWill", "treasuryStock", "otherAssets", "cash",
	"totalCurrentLiabilities", "deferredLongTermAssetCharges", "shortLongTermDebt",
	"otherStockholderEquity", "propertyPlantEquipment", "totalCurrentAssets",
	"longTermInvestments", "netTangibleAssets", "shortTermInvestments", "netReceivables",
	"longTermDebt", "inventory", "accountsPayable",
}

var CashFlowItems = []string{
	"changeToLiabilities", "totalCashflowsFromInvestingActivities", "netBorrowings",
	"totalCashFromFinancingActivities", "changeToOperatingActivities", "issuanceOfStock",
	"netIncome", "changeInCash", "repurchaseOfStock", "totalCashFromOperatingActivities",
	"depreciation", "otherCashflowsFromInvestingActivities", "dividendsPaid",
	"changeToInventory", "changeToAccountReceivables", "otherCashflowsFromFinancingActivities",
	"changeToNetincome", "capitalExpenditures", "investments", "effectOfExchangeRate",
}

// StatementItems returns a copy of the fixed line items of a statement category, or nil.
func StatementItems(cat Category) []string {
	switch cat {
	case CategoryIncomeStatement:
		return slices.Clone(IncomeStatementItems)
	case CategoryBalanceSheet:
		return slices.Clone(BalanceSheetItems)
	case CategoryCashFlow:
		return slices.Clone(CashFlowItems)
	default:
		return nil
	}
}

// StatementPeriod holds every declared line item for one fiscal period end.
type StatementPeriod struct {
	EndDate time.Time
	Values  map[string]null.Float
}

// Statement is an income statement, balance sheet or cash flow.
// LineItems is the fixed list of the category. Periods are ascending by end date; every
// period carries every LineItems key.
type Statement struct {
	Symbol      string
	Kind        Category
	Frequency   Frequency
	LineItems   []string
	Periods     []StatementPeriod
	Diagnostics []Diagnostic
}

func (s *Statement) RecordCategory() Category { return s.Kind }

// Value returns a line item for the period at index i.
func (s *Statement) Value(item string, i int) null.Float {
	if i < 0 || i >= len(s.Periods) {
		return null.Float{}
	}
	return s.Periods[i].Values[item]
}

// YearlyEarnings is revenue and net earnings for one fiscal year.
type YearlyEarnings struct {
	Year     int
	Revenue  null.Float
	Earnings null.Float
}

// QuarterlyEarnings is revenue and net earnings for one fiscal quarter ("2Q2024").
type QuarterlyEarnings struct {
	Quarter  string
	Revenue  null.Float
	Earnings null.Float
}

// QuarterlyEPS is actual against estimated EPS ("1Q2025").
type QuarterlyEPS struct {
	Quarter  string
	Actual   null.Float
	Estimate null.Float
}

type Earnings struct {
	Symbol       string
	Currency     null.String
	Yearly       []YearlyEarnings
	Quarterly    []QuarterlyEarnings
	QuarterlyEPS []QuarterlyEPS
	Diagnostics  []Diagnostic
}

func (*Earnings) RecordCategory() Category { return CategoryEarnings }
