package main

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/gex-live/internal/config"
	"github.com/dgnsrekt/gex-live/internal/cycle"
	"github.com/dgnsrekt/gex-live/internal/token"
)

// overrides are command-line values that win over the config file.
type overrides struct {
	underlying string
	expiration string
	strikes    int
	duration   time.Duration
}

// buildRequest resolves the cycle request for one underlying.
func buildRequest(cfg *config.Config, o overrides, now time.Time) (cycle.Request, error) {
	underlying := cfg.Underlying
	if o.underlying != "" {
		underlying = strings.ToUpper(o.underlying)
	}

	preset, ok := cfg.PresetFor(underlying)
	if !ok {
		return cycle.Request{}, fmt.Errorf("unknown underlying %s", underlying)
	}

	expiration := cfg.ExpirationFor(now)
	if o.expiration != "" {
		expiration = o.expiration
	}

	above, below := cfg.Strikes.Above, cfg.Strikes.Below
	if o.strikes > 0 {
		if o.strikes < config.MinStrikes || o.strikes > config.MaxStrikes {
			return cycle.Request{}, fmt.Errorf("strikes must be within %d..%d", config.MinStrikes, config.MaxStrikes)
		}
		above, below = o.strikes, o.strikes
	}

	window := cfg.Fetch.Duration
	if o.duration > 0 {
		if o.duration < 5*time.Second || o.duration > 30*time.Second {
			return cycle.Request{}, fmt.Errorf("duration must be within 5s..30s")
		}
		window = o.duration
	}

	req := cycle.Request{
		Underlying:   underlying,
		OptionPrefix: preset.OptionPrefix,
		Expiration:   expiration,
		DefaultPrice: preset.DefaultPrice,
		Increment:    preset.Increment,
		StrikesAbove: above,
		StrikesBelow: below,
		Window:       window,
		ReadTimeout:  cfg.Fetch.ReadTimeout,
		PriceBudget:  cfg.Fetch.PriceBudget,
		FeedURL:      cfg.Feed.URL,
	}
	return req, req.Validate()
}

// newTokenProvider prefers a static feed token and falls back to the auth API.
func newTokenProvider(cfg *config.Config, logger *zap.Logger) token.Provider {
	if cfg.Feed.Token != "" {
		logger.Debug("using static feed token", zap.String("token", token.MaskToken(cfg.Feed.Token)))
		return token.Static{Credentials: token.Credentials{
			Token:     cfg.Feed.Token,
			DxlinkURL: cfg.Feed.URL,
		}}
	}

	logger.Debug("using auth API for feed tokens", zap.String("baseURL", cfg.Auth.BaseURL))
	return token.NewHTTPProvider(
		cfg.Auth.BaseURL,
		cfg.Auth.SessionToken,
		cfg.Auth.RatePerSecond,
		time.Duration(cfg.Auth.TimeoutSec)*time.Second,
		time.Duration(cfg.Auth.RetryDelay)*time.Second,
		cfg.Auth.RetryCount,
		cfg.Auth.CacheTTL,
		logger,
	)
}
