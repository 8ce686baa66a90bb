// Package cycle runs one complete fetch: token, session, spot price, option
// chain, collection window and analytics.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dgnsrekt/gex-live/internal/collect"
	"github.com/dgnsrekt/gex-live/internal/dxlink"
	"github.com/dgnsrekt/gex-live/internal/gex"
	"github.com/dgnsrekt/gex-live/internal/instrumentation"
	"github.com/dgnsrekt/gex-live/internal/option"
	"github.com/dgnsrekt/gex-live/internal/quote"
	"github.com/dgnsrekt/gex-live/internal/strikes"
	"github.com/dgnsrekt/gex-live/internal/token"
)

// Request describes one fetch cycle.
type Request struct {
	Underlying   string
	OptionPrefix string
	Expiration   string // YYMMDD
	DefaultPrice float64
	Increment    float64
	StrikesAbove int
	StrikesBelow int

	Window      time.Duration
	ReadTimeout time.Duration
	PriceBudget time.Duration

	// FeedURL is used when the token provider does not name an endpoint.
	FeedURL string
}

// Validate checks the request before any connection is made.
func (r Request) Validate() error {
	switch {
	case r.Underlying == "":
		return errors.New("underlying is required")
	case r.OptionPrefix == "":
		return errors.New("option prefix is required")
	case len(r.Expiration) != 6:
		return fmt.Errorf("expiration %q is not YYMMDD", r.Expiration)
	case r.Increment <= 0:
		return errors.New("increment must be positive")
	case r.StrikesAbove < 0 || r.StrikesBelow < 0:
		return errors.New("strike counts must not be negative")
	}
	return nil
}

// Result is the immutable outcome of one successful cycle.
type Result struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Underlying string      `json:"underlying"`
	Expiration string      `json:"expiration"`
	Spot       quote.Price `json:"spot"`

	Symbols   []string        `json:"symbols"`
	Records   collect.Records `json:"records"`
	Stats     collect.Stats   `json:"stats"`
	Strikes   strikes.Table   `json:"strikes"`
	GEX       []gex.StrikeGEX `json:"gex"`
	Metrics   gex.Metrics     `json:"metrics"`
	PCROI     strikes.Ratio   `json:"pcr_oi"`
	PCRVolume strikes.Ratio   `json:"pcr_volume"`
}

// Duration is the wall time the cycle took.
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Fetcher runs fetch cycles. Each Run owns its own session and state, so
// cycles may run concurrently.
type Fetcher struct {
	tokens  token.Provider
	metrics *instrumentation.Metrics
	logger  *zap.Logger

	mu     sync.RWMutex
	latest *Result
}

// NewFetcher creates a Fetcher. metrics may be nil.
func NewFetcher(tokens token.Provider, metrics *instrumentation.Metrics, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		tokens:  tokens,
		metrics: metrics,
		logger:  logger,
	}
}

// Latest returns the last successful result, or nil before the first one.
// A failed cycle never replaces it.
func (f *Fetcher) Latest() *Result {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.latest
}

// Run executes one cycle. Token, connection and handshake failures abort it
// with no partial result; everything after the handshake is best effort.
func (f *Fetcher) Run(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()

	res, err := f.run(ctx, req, started)
	seconds := time.Since(started).Seconds()
	if err != nil {
		f.metrics.RecordCycle(seconds, "failure")
		f.logger.Error("fetch cycle failed",
			zap.String("underlying", req.Underlying),
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(err),
		)
		return nil, err
	}

	f.metrics.RecordCycle(seconds, "success")
	f.metrics.RecordEvents(res.Stats.Events)
	f.metrics.RecordRecords(len(res.Records))
	f.metrics.RecordSnapshot(res.Underlying, string(res.Spot.Source), res.Spot.Value, res.Metrics.NetGEX)

	f.mu.Lock()
	f.latest = res
	f.mu.Unlock()

	f.logger.Info("fetch cycle complete",
		zap.String("id", res.ID),
		zap.String("underlying", res.Underlying),
		zap.String("expiration", res.Expiration),
		zap.Float64("spot", res.Spot.Value),
		zap.String("spot_source", string(res.Spot.Source)),
		zap.Int("options", res.Metrics.NumOptions),
		zap.Float64("net_gex", res.Metrics.NetGEX),
		zap.Duration("elapsed", res.Duration()),
	)
	return res, nil
}

func (f *Fetcher) run(ctx context.Context, req Request, started time.Time) (*Result, error) {
	if err := req.Validate(); err != nil {
		f.metrics.RecordError("cycle", "request")
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	creds, err := f.tokens.Token(ctx)
	if err != nil {
		f.metrics.RecordError("token", "fetch")
		return nil, fmt.Errorf("getting feed token: %w", err)
	}

	url := creds.DxlinkURL
	if url == "" {
		url = req.FeedURL
	}

	sess, err := dxlink.Connect(ctx, url, creds.Token, f.logger)
	if err != nil {
		f.metrics.RecordError("dxlink", errorType(err))
		if errors.Is(err, dxlink.ErrAuthRejected) {
			if inv, ok := f.tokens.(token.Invalidator); ok {
				inv.Invalidate()
			}
		}
		return nil, fmt.Errorf("connecting to feed: %w", err)
	}
	defer sess.Close()

	resolver := quote.NewResolver(req.PriceBudget, f.logger)
	spot, ok := resolver.Resolve(ctx, sess, req.Underlying)
	if !ok {
		f.logger.Warn("using default spot price",
			zap.String("underlying", req.Underlying),
			zap.Float64("default", req.DefaultPrice),
		)
		spot = quote.Default(req.DefaultPrice)
	}

	chain := option.Chain(spot.Value, req.Increment, req.StrikesAbove, req.StrikesBelow)
	symbols := option.Symbols(req.OptionPrefix, req.Expiration, chain)

	collector := collect.NewCollector(collect.Options{
		Window:      req.Window,
		ReadTimeout: req.ReadTimeout,
	}, f.logger)
	records, stats, err := collector.Collect(ctx, sess, symbols)
	if err != nil {
		f.metrics.RecordError("collect", "subscribe")
		return nil, fmt.Errorf("collecting option data: %w", err)
	}
	sess.Close()

	table := strikes.Aggregate(records)
	calc := gex.FromRecords(spot.Value, records)

	return &Result{
		ID:         uuid.New().String(),
		StartedAt:  started,
		FinishedAt: time.Now(),
		Underlying: req.Underlying,
		Expiration: req.Expiration,
		Spot:       spot,
		Symbols:    symbols,
		Records:    records,
		Stats:      stats,
		Strikes:    table,
		GEX:        calc.GEXByStrike(),
		Metrics:    calc.TotalMetrics(),
		PCROI:      table.PutCallRatioOI(),
		PCRVolume:  table.PutCallRatioVolume(),
	}, nil
}

func errorType(err error) string {
	switch {
	case errors.Is(err, dxlink.ErrAuthRejected):
		return "auth_rejected"
	case errors.Is(err, dxlink.ErrHandshake):
		return "handshake"
	default:
		return "connect"
	}
}
