package yfinance

import (
	"context"
	"time"

	"yfengine/pkg/records"
)

// OptionExpirations returns the expiration dates offered for symbol.
func (e *Engine) OptionExpirations(ctx context.Context, symbol string) (*records.OptionExpirations, error) {
	ep, err := e.builder.OptionExpirations(symbol)
	if err != nil {
		return nil, err
	}
	return get[*records.OptionExpirations](ctx, e, endpoints(ep))
}

// OptionChain returns calls and puts for date, which must be one of the offered expirations.
// A zero date selects the nearest expiration. The expirations come from the cache when present.
func (e *Engine) OptionChain(ctx context.Context, symbol string, date time.Time) (*records.OptionChain, error) {
	exps, err := e.OptionExpirations(ctx, symbol)
	if err != nil {
		return nil, err
	}
	ep, err := e.builder.OptionChain(symbol, date, exps)
	if err != nil {
		return nil, err
	}
	return get[*records.OptionChain](ctx, e, endpoints(ep))
}
