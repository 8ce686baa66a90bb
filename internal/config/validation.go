package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgnsrekt/gex-live/internal/option"
)

// FieldError is one invalid setting.
type FieldError struct {
	Field   string
	Message string
}

// ValidationErrors collects all validation errors
type ValidationErrors struct {
	UnknownUnderlying string
	validUnderlyings  string
	InvalidFields     []FieldError
}

// HasErrors returns true if any validation errors exist
func (e *ValidationErrors) HasErrors() bool {
	return e.UnknownUnderlying != "" || len(e.InvalidFields) > 0
}

// Error formats all validation errors into a clear message
func (e *ValidationErrors) Error() string {
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")

	if e.UnknownUnderlying != "" {
		sb.WriteString(fmt.Sprintf("\nUnknown underlying: %s\n", e.UnknownUnderlying))
		sb.WriteString(fmt.Sprintf("\nValid underlyings: %s\n", e.validUnderlyings))
	}

	if len(e.InvalidFields) > 0 {
		sb.WriteString("\nInvalid settings:\n")
		for _, fe := range e.InvalidFields {
			sb.WriteString(fmt.Sprintf("  - %s: %s\n", fe.Field, fe.Message))
		}
	}

	return sb.String()
}

func (e *ValidationErrors) add(field, format string, args ...any) {
	e.InvalidFields = append(e.InvalidFields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	errs := &ValidationErrors{}

	if c.Underlying == "" {
		errs.add("underlying", "required")
	} else if _, ok := c.Preset(); !ok {
		errs.UnknownUnderlying = c.Underlying
		errs.validUnderlyings = c.underlyingsList()
	}
	symbols := make([]string, 0, len(c.Presets))
	for sym := range c.Presets {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	for _, sym := range symbols {
		validatePreset(errs, strings.ToUpper(sym), c.Presets[sym])
	}

	if c.Expiration != "" {
		if _, err := time.Parse(option.ExpirationLayout, c.Expiration); err != nil || len(c.Expiration) != 6 {
			errs.add("expiration", "%q is not a YYMMDD date", c.Expiration)
		}
	}

	validateRange(errs, "strikes.above", c.Strikes.Above)
	validateRange(errs, "strikes.below", c.Strikes.Below)

	if c.Fetch.Duration < 5*time.Second || c.Fetch.Duration > 30*time.Second {
		errs.add("fetch.duration", "%s is outside 5s..30s", c.Fetch.Duration)
	}
	if c.Fetch.PriceBudget <= 0 {
		errs.add("fetch.price_budget", "must be positive")
	}
	if c.Fetch.ReadTimeout <= 0 || c.Fetch.ReadTimeout >= time.Second*2 {
		errs.add("fetch.read_timeout", "%s must be positive and under 2s", c.Fetch.ReadTimeout)
	}
	if c.Fetch.Workers < 1 || c.Fetch.Workers > len(c.Presets) {
		errs.add("fetch.workers", "%d is outside 1..%d", c.Fetch.Workers, len(c.Presets))
	}

	if c.Feed.Token == "" && c.Auth.SessionToken == "" {
		errs.add("feed.token", "either a feed token (GEX_FEED_TOKEN) or an auth session token (GEX_SESSION_TOKEN) is required")
	}
	if c.Feed.Token != "" && c.Feed.URL == "" {
		errs.add("feed.url", "required with a static feed token")
	}

	if c.Watch.Interval <= 0 {
		errs.add("watch.interval", "must be positive")
	}

	if c.Export.Enabled && c.Export.Directory == "" {
		errs.add("export.directory", "required when export is enabled")
	}

	if err := c.Notify.Validate(); err != nil {
		errs.add("notify", "%v", err)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validatePreset(errs *ValidationErrors, sym string, p Preset) {
	if p.OptionPrefix == "" {
		errs.add("presets."+sym+".option_prefix", "required")
	}
	if p.Increment <= 0 {
		errs.add("presets."+sym+".increment", "must be positive")
	}
	if p.DefaultPrice <= 0 {
		errs.add("presets."+sym+".default_price", "must be positive")
	}
}

func validateRange(errs *ValidationErrors, field string, n int) {
	if n < MinStrikes || n > MaxStrikes {
		errs.add(field, "%d is outside %d..%d", n, MinStrikes, MaxStrikes)
	}
}
