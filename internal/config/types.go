package config

import (
	"sort"
	"strings"
)

// DefaultFeedURL is the public dxLink endpoint.
const DefaultFeedURL = "wss://tasty-openapi-ws.dxfeed.com/realtime"

// Preset describes how options on one underlying are listed.
type Preset struct {
	OptionPrefix string  `mapstructure:"option_prefix"`
	DefaultPrice float64 `mapstructure:"default_price"`
	Increment    float64 `mapstructure:"increment"`
}

// DefaultPresets lists the supported underlyings.
var DefaultPresets = map[string]Preset{
	"SPX": {OptionPrefix: "SPXW", DefaultPrice: 6000, Increment: 5},
	"NDX": {OptionPrefix: "NDXP", DefaultPrice: 20000, Increment: 25},
	"SPY": {OptionPrefix: "SPY", DefaultPrice: 680, Increment: 1},
	"QQQ": {OptionPrefix: "QQQ", DefaultPrice: 612, Increment: 1},
	"IWM": {OptionPrefix: "IWM", DefaultPrice: 240, Increment: 1},
	"DIA": {OptionPrefix: "DIA", DefaultPrice: 450, Increment: 1},
}

// Strike range and window limits.
const (
	MinStrikes = 5
	MaxStrikes = 100
)

func defaultPresetsMap() map[string]any {
	presets := make(map[string]any, len(DefaultPresets))
	for sym, p := range DefaultPresets {
		presets[strings.ToLower(sym)] = map[string]any{
			"option_prefix": p.OptionPrefix,
			"default_price": p.DefaultPrice,
			"increment":     p.Increment,
		}
	}
	return presets
}

func (c *Config) underlyingsList() string {
	symbols := make([]string, 0, len(c.Presets))
	for sym := range c.Presets {
		symbols = append(symbols, strings.ToUpper(sym))
	}
	sort.Strings(symbols)
	return strings.Join(symbols, ", ")
}
