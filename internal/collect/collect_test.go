package collect

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/gex-live/internal/dxlink"
	"github.com/dgnsrekt/gex-live/internal/faker"
	"github.com/dgnsrekt/gex-live/internal/option"
)

func TestApplyMergesPartialFields(t *testing.T) {
	records := make(Records)
	sym := ".SPXW251114C6000"

	records.Apply(dxlink.Event{
		EventSymbol: sym,
		EventType:   dxlink.EventGreeks,
		Gamma:       dxlink.NewNumber(0.01),
		Delta:       dxlink.NewNumber(0.5),
		Volatility:  dxlink.NewNumber(0.2),
	})
	records.Apply(dxlink.Event{EventSymbol: sym, EventType: dxlink.EventSummary, OpenInterest: dxlink.NewNumber(150)})
	// A later Greeks event without gamma keeps the earlier gamma.
	records.Apply(dxlink.Event{EventSymbol: sym, EventType: dxlink.EventGreeks, Delta: dxlink.NewNumber(0.55)})
	records.Apply(dxlink.Event{EventSymbol: sym, EventType: dxlink.EventTrade, DayVolume: dxlink.NewNumber(10)})
	records.Apply(dxlink.Event{EventSymbol: sym, EventType: dxlink.EventTrade, DayVolume: dxlink.NewNumber(25)})

	rec := records[sym]
	if rec == nil {
		t.Fatal("expected a record")
	}
	if rec.Gamma == nil || *rec.Gamma != 0.01 {
		t.Errorf("expected gamma 0.01, got %v", rec.Gamma)
	}
	if rec.Delta == nil || *rec.Delta != 0.55 {
		t.Errorf("expected delta 0.55, got %v", rec.Delta)
	}
	if rec.OpenInterest == nil || *rec.OpenInterest != 150 {
		t.Errorf("expected open interest 150, got %v", rec.OpenInterest)
	}
	if rec.Volume == nil || *rec.Volume != 25 {
		t.Errorf("expected volume 25, got %v", rec.Volume)
	}
}

func TestApplyIgnoresQuotes(t *testing.T) {
	records := make(Records)
	records.Apply(dxlink.Event{EventSymbol: "SPX", EventType: dxlink.EventQuote, BidPrice: dxlink.NewNumber(1)})
	if len(records) != 0 {
		t.Errorf("expected no records, got %d", len(records))
	}
}

func TestApplyKeepsNaN(t *testing.T) {
	records := make(Records)
	records.Apply(dxlink.Event{EventSymbol: "X", EventType: dxlink.EventGreeks, Volatility: dxlink.NewNumber(math.NaN())})

	iv := records["X"].IV
	if iv == nil || !math.IsNaN(*iv) {
		t.Errorf("expected NaN IV to be recorded as present, got %v", iv)
	}
}

type failingFeed struct{}

func (failingFeed) Subscribe(ctx context.Context, subs []dxlink.Subscription) error {
	return dxlink.ErrClosed
}

func (failingFeed) Next(ctx context.Context, timeout time.Duration) (dxlink.Message, error) {
	return dxlink.Message{}, dxlink.ErrClosed
}

func TestCollectSubscribeFailure(t *testing.T) {
	c := NewCollector(Options{Window: 10 * time.Millisecond}, zap.NewNop())
	_, _, err := c.Collect(context.Background(), failingFeed{}, []string{"X"})
	if !errors.Is(err, dxlink.ErrClosed) {
		t.Errorf("expected wrapped ErrClosed, got %v", err)
	}
}

func TestCollectAgainstFeed(t *testing.T) {
	const exp = "251114"

	// Strike 6005 only ever reports open interest; 9999 reports nothing.
	summaryOnly := map[string]bool{
		option.Encode("SPXW", exp, option.Call, 6005): true,
		option.Encode("SPXW", exp, option.Put, 6005):  true,
	}
	silent := option.Encode("SPXW", exp, option.Call, 9999)
	market := &faker.Market{
		Underlying: "SPX",
		Spot:       6000,
		Drop: func(symbol string, kind dxlink.EventType) bool {
			return symbol == silent || (summaryOnly[symbol] && kind != dxlink.EventSummary)
		},
	}
	ts := faker.NewTestServer(t, market, faker.Options{Interval: 20 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := dxlink.Connect(ctx, ts.FeedURL(), "token", zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer sess.Close()

	strikes := option.Chain(6000, 5, 1, 1)
	symbols := option.Symbols("SPXW", exp, strikes)
	symbols = append(symbols, silent)

	c := NewCollector(Options{Window: 200 * time.Millisecond, ReadTimeout: 50 * time.Millisecond}, zap.NewNop())
	records, stats, err := c.Collect(ctx, sess, symbols)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if stats.Events == 0 || stats.Messages == 0 {
		t.Errorf("expected events, got %+v", stats)
	}

	full := records[option.Encode("SPXW", exp, option.Call, 6000)]
	if full == nil || full.Gamma == nil || full.OpenInterest == nil || full.Volume == nil || full.IV == nil {
		t.Fatalf("expected a complete record at 6000, got %+v", full)
	}

	partial := records[option.Encode("SPXW", exp, option.Put, 6005)]
	if partial == nil {
		t.Fatal("expected a record for the summary-only put")
	}
	if partial.OpenInterest == nil {
		t.Error("expected open interest on the summary-only put")
	}
	if partial.Gamma != nil || partial.Volume != nil {
		t.Errorf("expected only open interest, got %+v", partial)
	}

	if _, ok := records[silent]; ok {
		t.Error("expected no record for a symbol without events")
	}
}

func TestCollectStopsOnClosedSession(t *testing.T) {
	ts := faker.NewTestServer(t, &faker.Market{Underlying: "SPX", Spot: 6000}, faker.Options{Interval: 20 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := dxlink.Connect(ctx, ts.FeedURL(), "token", zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c := NewCollector(Options{Window: 3 * time.Second, ReadTimeout: 50 * time.Millisecond}, zap.NewNop())
	symbols := option.Symbols("SPXW", "251114", option.Chain(6000, 5, 1, 1))

	go func() {
		time.Sleep(100 * time.Millisecond)
		sess.Close()
	}()

	start := time.Now()
	_, stats, err := c.Collect(ctx, sess, symbols)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !stats.Closed {
		t.Error("expected the window to report a closed session")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("expected early stop, took %v", elapsed)
	}
}
