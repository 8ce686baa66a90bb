package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithFeedToken(t *testing.T) {
	t.Setenv("GEX_FEED_TOKEN", "feed-token-123")
	t.Setenv("GEX_SESSION_TOKEN", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected config to load with feed token, got error: %v", err)
	}

	if cfg.Feed.Token != "feed-token-123" {
		t.Errorf("expected feed token 'feed-token-123', got '%s'", cfg.Feed.Token)
	}
	if cfg.Feed.URL != DefaultFeedURL {
		t.Errorf("expected default feed URL, got '%s'", cfg.Feed.URL)
	}
	if cfg.Underlying != "SPX" {
		t.Errorf("expected SPX by default, got %s", cfg.Underlying)
	}
	if cfg.Strikes.Above != 25 || cfg.Strikes.Below != 25 {
		t.Errorf("expected 25 strikes each side, got %d/%d", cfg.Strikes.Above, cfg.Strikes.Below)
	}
	if cfg.Fetch.Duration != 15*time.Second {
		t.Errorf("expected 15s fetch duration, got %s", cfg.Fetch.Duration)
	}
	if cfg.Fetch.Workers != 3 {
		t.Errorf("expected 3 workers by default, got %d", cfg.Fetch.Workers)
	}
	if cfg.Fetch.ReadTimeout != 500*time.Millisecond {
		t.Errorf("expected 500ms read timeout, got %s", cfg.Fetch.ReadTimeout)
	}

	p, ok := cfg.Preset()
	if !ok {
		t.Fatal("expected SPX preset")
	}
	if p.OptionPrefix != "SPXW" || p.Increment != 5 {
		t.Errorf("unexpected SPX preset: %+v", p)
	}
}

func TestLoadWithoutToken(t *testing.T) {
	t.Setenv("GEX_FEED_TOKEN", "")
	t.Setenv("GEX_SESSION_TOKEN", "")

	_, err := Load("")
	if err == nil {
		t.Fatal("expected error when no token is configured")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("GEX_SESSION_TOKEN", "session")
	t.Setenv("GEX_FEED_TOKEN", "")
	t.Setenv("GEX_UNDERLYING", "ndx")
	t.Setenv("GEX_STRIKES_ABOVE", "10")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Underlying != "NDX" {
		t.Errorf("expected NDX, got %s", cfg.Underlying)
	}
	if cfg.Strikes.Above != 10 {
		t.Errorf("expected 10 strikes above, got %d", cfg.Strikes.Above)
	}
	if cfg.Auth.SessionToken != "session" {
		t.Errorf("expected session token from env, got '%s'", cfg.Auth.SessionToken)
	}
	if p, _ := cfg.Preset(); p.OptionPrefix != "NDXP" {
		t.Errorf("expected NDXP prefix, got %s", p.OptionPrefix)
	}
}

func TestLoadConfigFile(t *testing.T) {
	t.Setenv("GEX_FEED_TOKEN", "")
	t.Setenv("GEX_SESSION_TOKEN", "")

	path := filepath.Join(t.TempDir(), "gex.yaml")
	content := `
underlying: xsp
expiration: "251114"
presets:
  xsp:
    option_prefix: XSP
    default_price: 600
    increment: 1
fetch:
  duration: 10s
feed:
  token: from-file
export:
  enabled: true
  directory: /tmp/gex
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p, ok := cfg.Preset()
	if !ok || p.OptionPrefix != "XSP" || p.DefaultPrice != 600 {
		t.Errorf("expected custom XSP preset, got %+v (%v)", p, ok)
	}
	if cfg.Fetch.Duration != 10*time.Second {
		t.Errorf("expected 10s duration, got %s", cfg.Fetch.Duration)
	}
	if !cfg.Export.Enabled || cfg.Export.Directory != "/tmp/gex" {
		t.Errorf("unexpected export config: %+v", cfg.Export)
	}
	if got := cfg.ExpirationFor(time.Now()); got != "251114" {
		t.Errorf("expected configured expiration, got %s", got)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Error("expected error for an explicit missing config file")
	}
}

func TestPresetForCaseInsensitive(t *testing.T) {
	cfg := validConfig()
	if _, ok := cfg.PresetFor("spy"); !ok {
		t.Error("expected lower-case lookup to succeed")
	}
	if _, ok := cfg.PresetFor("SPY"); !ok {
		t.Error("expected upper-case lookup to succeed")
	}
	if _, ok := cfg.PresetFor("TSLA"); ok {
		t.Error("expected unknown underlying to fail")
	}
}

func TestLoadFakerConfig(t *testing.T) {
	t.Setenv("FAKER_UNDERLYING", "ndx")
	t.Setenv("FAKER_SPOT", "")
	t.Setenv("FAKER_INTERVAL", "250ms")
	t.Setenv("FAKER_NO_TRADES", "true")

	cfg, err := LoadFakerConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Underlying != "NDX" {
		t.Errorf("expected NDX, got %s", cfg.Underlying)
	}
	if cfg.Spot != 20000 {
		t.Errorf("expected preset spot 20000, got %v", cfg.Spot)
	}
	if cfg.Interval != 250*time.Millisecond {
		t.Errorf("expected 250ms interval, got %s", cfg.Interval)
	}
	if !cfg.NoTrades {
		t.Error("expected NoTrades")
	}
}

func TestLoadFakerConfigInvalid(t *testing.T) {
	t.Setenv("FAKER_UNDERLYING", "SPX")
	t.Setenv("FAKER_SPOT", "-1")

	if _, err := LoadFakerConfig(); err == nil {
		t.Error("expected error for negative spot")
	}

	t.Setenv("FAKER_SPOT", "")
	t.Setenv("FAKER_UNDERLYING", "TSLA")
	if _, err := LoadFakerConfig(); err == nil {
		t.Error("expected error for unknown underlying")
	}
}
