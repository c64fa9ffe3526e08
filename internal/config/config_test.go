package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("STARTING_CASH", "")
	t.Setenv("PRICE_POLL_SECS", "")

	cfg := Load()
	if cfg.RedisURL != "localhost:6379" {
		t.Fatalf("expected default redis url, got %s", cfg.RedisURL)
	}
	if cfg.StartingCash != 10000 {
		t.Fatalf("expected default starting cash 10000, got %v", cfg.StartingCash)
	}
	if cfg.BuyCashFraction != 0.15 || cfg.ConcentrationCap != 0.20 {
		t.Fatalf("unexpected sizing defaults: %+v", cfg)
	}
	if cfg.MinTradesPerRun != 2 || cfg.MaxTradesPerRun != 5 {
		t.Fatalf("unexpected trade count defaults: %+v", cfg)
	}
	if len(cfg.RedditSubs) == 0 {
		t.Fatal("expected default reddit subs")
	}
}

func TestLoadWithEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("REDIS_URL", "redis:6379")
	t.Setenv("STARTING_CASH", "1000")
	t.Setenv("REDDIT_SUBS", "stocks, options")
	t.Setenv("PRICE_POLL_SECS", "120")

	cfg := Load()
	if cfg.DatabaseURL != "postgres://example" || cfg.RedisURL != "redis:6379" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.StartingCash != 1000 {
		t.Fatalf("expected starting cash 1000, got %v", cfg.StartingCash)
	}
	if len(cfg.RedditSubs) != 2 || cfg.RedditSubs[1] != "options" {
		t.Fatalf("unexpected reddit subs: %v", cfg.RedditSubs)
	}
	if cfg.PricePollSecs != 120 {
		t.Fatalf("expected poll secs 120, got %d", cfg.PricePollSecs)
	}

	t.Setenv("PRICE_POLL_SECS", "bad")
	cfg = Load()
	if cfg.PricePollSecs != 300 {
		t.Fatalf("invalid poll secs should fall back to default, got %d", cfg.PricePollSecs)
	}
}
