package yfinance

import (
	"context"
	"slices"

	"yfengine/internal/request"
	"yfengine/pkg/records"
)

func category[T records.Set](ctx context.Context, e *Engine, symbol string, cat records.Category, freq records.Frequency) (T, error) {
	eps, err := e.builder.Category(symbol, cat, freq)
	if err != nil {
		var zero T
		return zero, err
	}
	return get[T](ctx, e, eps)
}

// Module fetches an explicit selection of quote summary modules as unwrapped maps.
func (e *Engine) Module(ctx context.Context, symbol string, modules ...string) (*records.Modules, error) {
	eps, err := e.builder.Modules(symbol, records.CategoryModules, modules)
	if err != nil {
		return nil, err
	}
	return get[*records.Modules](ctx, e, eps)
}

// Info merges the profile, price, summary, key statistics and financial data modules, and
// adds the ISIN from the lookup service. A failed lookup leaves ISIN null with a diagnostic.
func (e *Engine) Info(ctx context.Context, symbol string) (*records.Info, error) {
	info, err := category[*records.Info](ctx, e, symbol, records.CategoryInfo, "")
	if err != nil {
		return nil, err
	}
	out := *info
	out.Diagnostics = slices.Clone(info.Diagnostics)
	isin, err := e.ISIN(ctx, symbol)
	switch {
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case err != nil:
		e.log.Warn().Err(err).Str("symbol", symbol).Msg("isin lookup failed")
		out.Diagnostics = append(out.Diagnostics, records.Diagnostic{
			Symbol: symbol, Category: records.CategoryISIN, Reason: "isin lookup failed: " + err.Error(),
		})
	default:
		out.ISIN = isin.ISIN
	}
	return &out, nil
}

// ISIN looks up the International Securities Identification Number of symbol. Symbols that
// cannot carry one, and symbols the service does not list, give a null ISIN.
func (e *Engine) ISIN(ctx context.Context, symbol string) (*records.ISIN, error) {
	ep, err := e.builder.ISIN(symbol)
	if err != nil {
		return nil, err
	}
	if !request.HasISIN(symbol) {
		return &records.ISIN{Symbol: symbol}, nil
	}
	return get[*records.ISIN](ctx, e, endpoints(ep))
}

func (e *Engine) FastInfo(ctx context.Context, symbol string) (*records.FastInfo, error) {
	return category[*records.FastInfo](ctx, e, symbol, records.CategoryFastInfo, "")
}

func (e *Engine) Calendar(ctx context.Context, symbol string) (*records.Calendar, error) {
	return category[*records.Calendar](ctx, e, symbol, records.CategoryCalendar, "")
}

func (e *Engine) Recommendations(ctx context.Context, symbol string) (*records.Recommendations, error) {
	return category[*records.Recommendations](ctx, e, symbol, records.CategoryRecommendations, "")
}

// UpgradesDowngrades returns analyst grade changes, most recent first.
func (e *Engine) UpgradesDowngrades(ctx context.Context, symbol string) (*records.UpgradesDowngrades, error) {
	return category[*records.UpgradesDowngrades](ctx, e, symbol, records.CategoryUpgradesDowngrades, "")
}

func (e *Engine) MajorHolders(ctx context.Context, symbol string) (*records.MajorHolders, error) {
	return category[*records.MajorHolders](ctx, e, symbol, records.CategoryMajorHolders, "")
}

func (e *Engine) InstitutionalHolders(ctx context.Context, symbol string) (*records.Holders, error) {
	return category[*records.Holders](ctx, e, symbol, records.CategoryInstitutionalHolders, "")
}

func (e *Engine) MutualFundHolders(ctx context.Context, symbol string) (*records.Holders, error) {
	return category[*records.Holders](ctx, e, symbol, records.CategoryMutualFundHolders, "")
}

// InsiderTransactions returns reported insider trades, most recent first.
func (e *Engine) InsiderTransactions(ctx context.Context, symbol string) (*records.InsiderTransactions, error) {
	return category[*records.InsiderTransactions](ctx, e, symbol, records.CategoryInsiderTransactions, "")
}

func (e *Engine) InsiderRoster(ctx context.Context, symbol string) (*records.InsiderRoster, error) {
	return category[*records.InsiderRoster](ctx, e, symbol, records.CategoryInsiderRoster, "")
}

// IncomeStatement returns the annual or quarterly income statement, periods ascending.
func (e *Engine) IncomeStatement(ctx context.Context, symbol string, freq records.Frequency) (*records.Statement, error) {
	return category[*records.Statement](ctx, e, symbol, records.CategoryIncomeStatement, freq)
}

func (e *Engine) BalanceSheet(ctx context.Context, symbol string, freq records.Frequency) (*records.Statement, error) {
	return category[*records.Statement](ctx, e, symbol, records.CategoryBalanceSheet, freq)
}

func (e *Engine) CashFlow(ctx context.Context, symbol string, freq records.Frequency) (*records.Statement, error) {
	return category[*records.Statement](ctx, e, symbol, records.CategoryCashFlow, freq)
}

// Earnings returns yearly and quarterly earnings with quarterly EPS estimates.
func (e *Engine) Earnings(ctx context.Context, symbol string) (*records.Earnings, error) {
	return category[*records.Earnings](ctx, e, symbol, records.CategoryEarnings, "")
}
