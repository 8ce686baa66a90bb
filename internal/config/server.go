package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// FakerConfig configures the local fake feed server.
type FakerConfig struct {
	Port         string
	Underlying   string
	Spot         float64
	Token        string // accepted feed token; empty accepts any
	SessionToken string // accepted auth session token; empty accepts any
	Interval     time.Duration
	NoTrades     bool
}

func LoadFakerConfig() (*FakerConfig, error) {
	underlying := strings.ToUpper(getEnvOrDefault("FAKER_UNDERLYING", "SPX"))

	// Spot defaults to the preset price of the underlying
	defaultSpot := "6000"
	if p, ok := DefaultPresets[underlying]; ok {
		defaultSpot = strconv.FormatFloat(p.DefaultPrice, 'f', -1, 64)
	}
	spot, err := strconv.ParseFloat(getEnvOrDefault("FAKER_SPOT", defaultSpot), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid FAKER_SPOT: %w", err)
	}

	intervalStr := getEnvOrDefault("FAKER_INTERVAL", "1s")
	interval, err := time.ParseDuration(intervalStr)
	if err != nil {
		interval = time.Second // Default to 1s on parse error
	}

	cfg := &FakerConfig{
		Port:         getEnvOrDefault("PORT", "8080"),
		Underlying:   underlying,
		Spot:         spot,
		Token:        os.Getenv("FAKER_TOKEN"),
		SessionToken: os.Getenv("FAKER_SESSION_TOKEN"),
		Interval:     interval,
		NoTrades:     getEnvOrDefault("FAKER_NO_TRADES", "false") == "true",
	}

	// Validate
	if cfg.Spot <= 0 {
		return nil, fmt.Errorf("invalid FAKER_SPOT: %v (must be positive)", cfg.Spot)
	}
	if _, ok := DefaultPresets[cfg.Underlying]; !ok {
		return nil, fmt.Errorf("invalid FAKER_UNDERLYING: %s", cfg.Underlying)
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
