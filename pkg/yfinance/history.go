package yfinance

import (
	"context"
	"time"

	"yfengine/internal/request"
	"yfengine/pkg/records"
)

// HistoryOption adjusts a time series query. Defaults: period 1mo, interval 1d, adjusted
// prices, corporate actions included.
type HistoryOption func(*request.HistoryQuery)

// WithPeriod selects a named period such as 5d, 1y, ytd or max.
func WithPeriod(period string) HistoryOption {
	return func(q *request.HistoryQuery) { q.Period = period }
}

// WithInterval selects the bar interval such as 1m, 1h, 1d or 1wk.
func WithInterval(interval string) HistoryOption {
	return func(q *request.HistoryQuery) { q.Interval = request.ParseInterval(interval) }
}

// WithRange selects an explicit [start, end) range. A zero end means now.
func WithRange(start, end time.Time) HistoryOption {
	return func(q *request.HistoryQuery) {
		q.Period = ""
		q.Start, q.End = start, end
	}
}

// WithPrePost includes pre and post market bars for intraday intervals.
func WithPrePost() HistoryOption { return func(q *request.HistoryQuery) { q.PrePost = true } }

// WithoutAdjust keeps raw prices; AdjClose still carries the adjusted close.
func WithoutAdjust() HistoryOption { return func(q *request.HistoryQuery) { q.AutoAdjust = false } }

// WithoutActions omits dividends and splits from the bars.
func WithoutActions() HistoryOption { return func(q *request.HistoryQuery) { q.Actions = false } }

func historyQuery(symbol string, opts []HistoryOption) request.HistoryQuery {
	q := request.HistoryQuery{
		Symbol:     symbol,
		Period:     request.DefaultPeriod,
		Interval:   request.DefaultInterval,
		AutoAdjust: true,
		Actions:    true,
	}
	for _, opt := range opts {
		opt(&q)
	}
	return q
}

// History returns OHLCV bars for symbol.
func (e *Engine) History(ctx context.Context, symbol string, opts ...HistoryOption) (*records.History, error) {
	ep, err := e.builder.History(records.CategoryHistory, historyQuery(symbol, opts))
	if err != nil {
		return nil, err
	}
	return get[*records.History](ctx, e, endpoints(ep))
}

// Download returns bars from the CSV export endpoint. Only 1d, 1wk and 1mo are exported.
func (e *Engine) Download(ctx context.Context, symbol string, opts ...HistoryOption) (*records.History, error) {
	ep, err := e.builder.Download(historyQuery(symbol, opts))
	if err != nil {
		return nil, err
	}
	return get[*records.History](ctx, e, endpoints(ep))
}

// Dividends returns every dividend on record.
func (e *Engine) Dividends(ctx context.Context, symbol string) (*records.Actions, error) {
	return e.actions(ctx, symbol, records.CategoryDividends)
}

// Splits returns every stock split on record.
func (e *Engine) Splits(ctx context.Context, symbol string) (*records.Actions, error) {
	return e.actions(ctx, symbol, records.CategorySplits)
}

// Actions returns dividends and splits merged by date.
func (e *Engine) Actions(ctx context.Context, symbol string) (*records.Actions, error) {
	return e.actions(ctx, symbol, records.CategoryActions)
}

// CapitalGains returns fund capital gain distributions.
func (e *Engine) CapitalGains(ctx context.Context, symbol string) (*records.Actions, error) {
	return e.actions(ctx, symbol, records.CategoryCapitalGains)
}

func (e *Engine) actions(ctx context.Context, symbol string, cat records.Category) (*records.Actions, error) {
	ep, err := e.builder.History(cat, request.HistoryQuery{
		Symbol:   symbol,
		Period:   "max",
		Interval: "1d",
		Actions:  true,
	})
	if err != nil {
		return nil, err
	}
	return get[*records.Actions](ctx, e, endpoints(ep))
}
