// Package quote resolves a reference spot price for an underlying from the
// Trade and Quote streams of a dxLink session.
package quote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/gex-live/internal/dxlink"
)

const (
	// DefaultBudget bounds the whole resolution.
	DefaultBudget = 5 * time.Second

	// readTimeout is the per-message wait, short enough to observe the budget.
	readTimeout = time.Second
)

// Source tells where a spot price came from.
type Source string

const (
	SourceTrade   Source = "trade"
	SourceQuote   Source = "quote"
	SourceDefault Source = "default"
)

// Price is a resolved spot price.
type Price struct {
	Value  float64 `json:"value"`
	Source Source  `json:"source"`
}

// Feed is the part of a dxlink.Session the resolver needs.
type Feed interface {
	Subscribe(ctx context.Context, subs []dxlink.Subscription) error
	Next(ctx context.Context, timeout time.Duration) (dxlink.Message, error)
}

// Resolver finds the spot price of an underlying.
type Resolver struct {
	budget      time.Duration
	readTimeout time.Duration
	logger      *zap.Logger
}

// NewResolver creates a Resolver. A non-positive budget uses DefaultBudget.
func NewResolver(budget time.Duration, logger *zap.Logger) *Resolver {
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Resolver{
		budget:      budget,
		readTimeout: readTimeout,
		logger:      logger,
	}
}

// Resolve subscribes Trade and Quote for symbol and polls until a trade
// price is seen or the budget runs out. A trade price wins over the quote
// midpoint. ok is false when neither was observed; the caller substitutes
// its default.
func (r *Resolver) Resolve(ctx context.Context, feed Feed, symbol string) (Price, bool) {
	subs := dxlink.Subscriptions([]string{symbol}, dxlink.EventTrade, dxlink.EventQuote)
	if err := feed.Subscribe(ctx, subs); err != nil {
		r.logger.Warn("failed to subscribe underlying",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
		return Price{}, false
	}

	deadline := time.Now().Add(r.budget)
	var mid *float64

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}

		msg, err := feed.Next(ctx, min(r.readTimeout, remaining))
		if err != nil {
			if dxlink.IsTolerated(err) {
				continue
			}
			if !errors.Is(err, dxlink.ErrClosed) && ctx.Err() == nil {
				r.logger.Debug("price resolution read failed", zap.Error(err))
			}
			// Nothing more can arrive on a closed session or a cancelled context.
			break
		}

		events, _ := msg.Events()
		for _, ev := range events {
			if ev.EventSymbol != symbol {
				continue
			}
			switch ev.EventType {
			case dxlink.EventTrade:
				if price, ok := positive(ev.Price); ok {
					r.logger.Debug("spot from trade",
						zap.String("symbol", symbol),
						zap.Float64("price", price),
					)
					return Price{Value: price, Source: SourceTrade}, true
				}
			case dxlink.EventQuote:
				bid, okBid := positive(ev.BidPrice)
				ask, okAsk := positive(ev.AskPrice)
				if okBid && okAsk {
					m := (bid + ask) / 2
					mid = &m
				}
			}
		}
	}

	if mid != nil {
		r.logger.Debug("spot from quote midpoint",
			zap.String("symbol", symbol),
			zap.Float64("price", *mid),
		)
		return Price{Value: *mid, Source: SourceQuote}, true
	}

	r.logger.Info("no spot price within budget",
		zap.String("symbol", symbol),
		zap.Duration("budget", r.budget),
	)
	return Price{}, false
}

// Default wraps a configured fallback price.
func Default(value float64) Price {
	return Price{Value: value, Source: SourceDefault}
}

func (p Price) String() string {
	return fmt.Sprintf("%.2f (%s)", p.Value, p.Source)
}

// positive treats zero, NaN and absent prices alike as unusable.
func positive(n *dxlink.Number) (float64, bool) {
	f, ok := n.Finite()
	if !ok || f <= 0 {
		return 0, false
	}
	return f, true
}
