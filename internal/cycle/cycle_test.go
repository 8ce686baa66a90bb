package cycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/dgnsrekt/gex-live/internal/dxlink"
	"github.com/dgnsrekt/gex-live/internal/faker"
	"github.com/dgnsrekt/gex-live/internal/instrumentation"
	"github.com/dgnsrekt/gex-live/internal/quote"
	"github.com/dgnsrekt/gex-live/internal/token"
)

func testRequest(feedURL string) Request {
	return Request{
		Underlying:   "SPX",
		OptionPrefix: "SPXW",
		Expiration:   "251114",
		DefaultPrice: 5000,
		Increment:    5,
		StrikesAbove: 3,
		StrikesBelow: 3,
		Window:       300 * time.Millisecond,
		ReadTimeout:  50 * time.Millisecond,
		PriceBudget:  300 * time.Millisecond,
		FeedURL:      feedURL,
	}
}

func TestRun(t *testing.T) {
	ts := faker.NewTestServer(t, &faker.Market{Underlying: "SPX", Spot: 6000}, faker.Options{
		Token:    "secret",
		Interval: 50 * time.Millisecond,
	})

	tokens := token.Static{Credentials: token.Credentials{Token: "secret"}}
	f := NewFetcher(tokens, instrumentation.NewMetrics(prometheus.NewRegistry()), zap.NewNop())

	if f.Latest() != nil {
		t.Fatal("expected no result before the first cycle")
	}

	res, err := f.Run(context.Background(), testRequest(ts.FeedURL()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.ID == "" {
		t.Error("expected a cycle ID")
	}
	if res.Spot.Value != 6000 || res.Spot.Source != quote.SourceTrade {
		t.Errorf("expected spot 6000 from trade, got %v", res.Spot)
	}
	if len(res.Symbols) != 14 {
		t.Errorf("expected 14 symbols, got %d", len(res.Symbols))
	}
	if len(res.Strikes) != 7 {
		t.Errorf("expected 7 strike rows, got %d", len(res.Strikes))
	}
	if len(res.GEX) != 7 {
		t.Errorf("expected 7 GEX rows, got %d", len(res.GEX))
	}
	if res.Strikes[0].Strike != 5985 || res.Strikes[6].Strike != 6015 {
		t.Errorf("expected strikes 5985..6015, got %v..%v", res.Strikes[0].Strike, res.Strikes[6].Strike)
	}
	if res.Metrics.NumOptions != 14 {
		t.Errorf("expected 14 options with gamma and OI, got %d", res.Metrics.NumOptions)
	}
	if !res.PCROI.OK || res.PCROI.Value <= 1 {
		t.Errorf("expected put-heavy OI ratio, got %+v", res.PCROI)
	}
	if res.Duration() <= 0 {
		t.Error("expected a positive duration")
	}

	if f.Latest() != res {
		t.Error("expected Latest to return the new result")
	}
}

func TestRunDefaultSpot(t *testing.T) {
	market := &faker.Market{
		Underlying: "SPX",
		Spot:       6000,
		Drop: func(symbol string, kind dxlink.EventType) bool {
			return symbol == "SPX"
		},
	}
	ts := faker.NewTestServer(t, market, faker.Options{Interval: 50 * time.Millisecond})

	f := NewFetcher(token.Static{Credentials: token.Credentials{Token: "t"}}, nil, zap.NewNop())
	req := testRequest(ts.FeedURL())
	req.PriceBudget = 100 * time.Millisecond

	res, err := f.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Spot.Source != quote.SourceDefault || res.Spot.Value != 5000 {
		t.Errorf("expected default spot 5000, got %v", res.Spot)
	}
	if res.Strikes[0].Strike != 4985 {
		t.Errorf("expected the chain to center on the default, got %v", res.Strikes[0].Strike)
	}
}

func TestRunFailureKeepsLatest(t *testing.T) {
	ts := faker.NewTestServer(t, &faker.Market{Underlying: "SPX", Spot: 6000}, faker.Options{
		Token:    "secret",
		Interval: 50 * time.Millisecond,
	})

	good := NewFetcher(token.Static{Credentials: token.Credentials{Token: "secret"}}, nil, zap.NewNop())
	first, err := good.Run(context.Background(), testRequest(ts.FeedURL()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Same fetcher, now with a rejected token.
	good.tokens = token.Static{Credentials: token.Credentials{Token: "wrong"}}
	_, err = good.Run(context.Background(), testRequest(ts.FeedURL()))
	if !errors.Is(err, dxlink.ErrAuthRejected) {
		t.Fatalf("expected ErrAuthRejected, got %v", err)
	}

	if good.Latest() != first {
		t.Error("expected a failed cycle to leave the previous result in place")
	}
}

type invalidatingProvider struct {
	token.Static
	invalidated bool
}

func (p *invalidatingProvider) Invalidate() {
	p.invalidated = true
}

func TestRunInvalidatesRejectedToken(t *testing.T) {
	ts := faker.NewTestServer(t, &faker.Market{Underlying: "SPX", Spot: 6000}, faker.Options{Token: "secret"})

	p := &invalidatingProvider{Static: token.Static{Credentials: token.Credentials{Token: "stale"}}}
	f := NewFetcher(p, nil, zap.NewNop())

	if _, err := f.Run(context.Background(), testRequest(ts.FeedURL())); err == nil {
		t.Fatal("expected an error")
	}
	if !p.invalidated {
		t.Error("expected the cached token to be invalidated")
	}
}

func TestRunTokenFailure(t *testing.T) {
	f := NewFetcher(token.Static{}, nil, zap.NewNop())

	_, err := f.Run(context.Background(), testRequest("ws://127.0.0.1:1/realtime"))
	if !errors.Is(err, token.ErrNoToken) {
		t.Errorf("expected ErrNoToken, got %v", err)
	}
}

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Request)
	}{
		{"missing underlying", func(r *Request) { r.Underlying = "" }},
		{"missing prefix", func(r *Request) { r.OptionPrefix = "" }},
		{"bad expiration", func(r *Request) { r.Expiration = "2025-11-14" }},
		{"zero increment", func(r *Request) { r.Increment = 0 }},
		{"negative strikes", func(r *Request) { r.StrikesBelow = -1 }},
	}

	for _, tt := range tests {
		req := testRequest("")
		tt.modify(&req)
		if err := req.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tt.name)
		}
	}

	if err := testRequest("").Validate(); err != nil {
		t.Errorf("expected valid request, got %v", err)
	}
}
