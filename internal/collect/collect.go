// Package collect runs the time-boxed collection window that merges Greeks,
// Summary and Trade events into one record per option symbol.
package collect

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/gex-live/internal/dxlink"
)

const (
	DefaultWindow      = 15 * time.Second
	DefaultReadTimeout = 500 * time.Millisecond
)

// Kinds are the event kinds subscribed for every option symbol.
var Kinds = []dxlink.EventType{dxlink.EventGreeks, dxlink.EventSummary, dxlink.EventTrade}

// Feed is the part of a dxlink.Session the aggregator needs.
type Feed interface {
	Subscribe(ctx context.Context, subs []dxlink.Subscription) error
	Next(ctx context.Context, timeout time.Duration) (dxlink.Message, error)
}

// Record holds whatever fields were observed for one symbol. A nil field was
// never observed; a present field may still be NaN.
type Record struct {
	Gamma        *float64 `json:"gamma,omitempty"`
	Delta        *float64 `json:"delta,omitempty"`
	IV           *float64 `json:"iv,omitempty"`
	OpenInterest *float64 `json:"open_interest,omitempty"`
	Volume       *float64 `json:"volume,omitempty"`
}

// Records maps option symbol to its merged record. Symbols that never
// produced an event are absent.
type Records map[string]*Record

// Stats describes one collection window.
type Stats struct {
	Messages int           `json:"messages"`
	Events   int           `json:"events"`
	Skipped  int           `json:"skipped"`
	Timeouts int           `json:"timeouts"`
	Elapsed  time.Duration `json:"elapsed"`
	// Closed is set when the session went away before the window ended.
	Closed bool `json:"closed"`
}

// Options configures a collection window.
type Options struct {
	Window      time.Duration
	ReadTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Window <= 0 {
		o.Window = DefaultWindow
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = DefaultReadTimeout
	}
	return o
}

// Collector runs collection windows.
type Collector struct {
	opts   Options
	logger *zap.Logger
}

// NewCollector creates a Collector; zero options take the defaults.
func NewCollector(opts Options, logger *zap.Logger) *Collector {
	return &Collector{
		opts:   opts.withDefaults(),
		logger: logger,
	}
}

// Collect subscribes the symbols and absorbs events until the window closes.
// Only a failed subscription is returned as an error; timeouts, malformed
// frames and a closed session inside the window end in a partial result.
func (c *Collector) Collect(ctx context.Context, feed Feed, symbols []string) (Records, Stats, error) {
	records := make(Records, len(symbols))
	var stats Stats

	if err := feed.Subscribe(ctx, dxlink.Subscriptions(symbols, Kinds...)); err != nil {
		return nil, stats, fmt.Errorf("subscribing %d option symbols: %w", len(symbols), err)
	}

	start := time.Now()
	deadline := start.Add(c.opts.Window)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}

		msg, err := feed.Next(ctx, min(c.opts.ReadTimeout, remaining))
		if err != nil {
			if dxlink.IsTolerated(err) {
				if errors.Is(err, dxlink.ErrReadTimeout) {
					stats.Timeouts++
				} else {
					stats.Skipped++
				}
				continue
			}
			if errors.Is(err, dxlink.ErrClosed) {
				stats.Closed = true
				c.logger.Warn("session closed during collection", zap.Error(err))
			}
			break
		}

		stats.Messages++
		events, skipped := msg.Events()
		stats.Skipped += skipped
		for _, ev := range events {
			records.Apply(ev)
			stats.Events++
		}
	}

	stats.Elapsed = time.Since(start)

	c.logger.Info("collection window finished",
		zap.Int("symbols", len(symbols)),
		zap.Int("records", len(records)),
		zap.Int("messages", stats.Messages),
		zap.Int("events", stats.Events),
		zap.Int("timeouts", stats.Timeouts),
		zap.Duration("elapsed", stats.Elapsed),
	)

	return records, stats, nil
}

// Apply merges one event into its symbol's record. Only the fields the
// event kind carries and actually sent are written.
// Quote events carry nothing a record holds and are ignored.
func (r Records) Apply(ev dxlink.Event) {
	switch ev.EventType {
	case dxlink.EventGreeks:
		rec := r.get(ev.EventSymbol)
		overwrite(&rec.Gamma, ev.Gamma)
		overwrite(&rec.Delta, ev.Delta)
		overwrite(&rec.IV, ev.Volatility)
	case dxlink.EventSummary:
		overwrite(&r.get(ev.EventSymbol).OpenInterest, ev.OpenInterest)
	case dxlink.EventTrade:
		// dayVolume is already the feed's running total.
		overwrite(&r.get(ev.EventSymbol).Volume, ev.DayVolume)
	}
}

func (r Records) get(symbol string) *Record {
	rec, ok := r[symbol]
	if !ok {
		rec = &Record{}
		r[symbol] = rec
	}
	return rec
}

func overwrite(dst **float64, n *dxlink.Number) {
	if f := n.Float(); f != nil {
		*dst = f
	}
}
