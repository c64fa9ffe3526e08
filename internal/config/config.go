package config

import (
	"log"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	DatabaseURL      string
	RedisURL         string
	TelegramBotToken string

	OpenAIAPIKey string
	OpenAIModel  string

	StartingCash     float64
	BuyCashFraction  float64
	ConcentrationCap float64
	MinTradesPerRun  int
	MaxTradesPerRun  int
	HoldingPeriodDay int
	StaleDataDays    int

	CycleCronSpec  string
	PricePollSecs  int
	RedditSubs     []string
	NewsFeedLimit  int
	SocialPostsMax int

	HTTPPort int
	APIKey   string

	SSHPort        int
	SSHHostKeyPath string

	MCPTransport string
	MCPHTTPBind  string
	MCPHTTPPort  int
}

func Load() *Config {
	cfg := &Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		APIKey:           os.Getenv("API_KEY"),
	}

	if cfg.DatabaseURL == "" {
		log.Println("Warning: DATABASE_URL not set")
	}
	if cfg.RedisURL == "" {
		log.Println("Warning: REDIS_URL not set, defaulting to localhost:6379")
		cfg.RedisURL = "localhost:6379"
	}
	if cfg.TelegramBotToken == "" {
		log.Println("Warning: TELEGRAM_BOT_TOKEN not set")
	}

	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	if cfg.OpenAIAPIKey == "" {
		log.Println("Warning: OPENAI_API_KEY not set, sentiment judging degrades to heuristics")
	}
	cfg.OpenAIModel = strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	if cfg.OpenAIModel == "" {
		cfg.OpenAIModel = "gpt-4o-mini"
	}

	cfg.StartingCash = 10000
	if v := strings.TrimSpace(os.Getenv("STARTING_CASH")); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil && n > 0 {
			cfg.StartingCash = n
		}
	}

	cfg.BuyCashFraction = 0.15
	if v := strings.TrimSpace(os.Getenv("BUY_CASH_FRACTION")); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil && n > 0 && n < 1 {
			cfg.BuyCashFraction = n
		}
	}

	cfg.ConcentrationCap = 0.20
	if v := strings.TrimSpace(os.Getenv("CONCENTRATION_CAP")); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil && n > 0 && n <= 1 {
			cfg.ConcentrationCap = n
		}
	}

	cfg.MinTradesPerRun = 2
	if v := strings.TrimSpace(os.Getenv("MIN_TRADES_PER_RUN")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.MinTradesPerRun = n
		}
	}

	cfg.MaxTradesPerRun = 5
	if v := strings.TrimSpace(os.Getenv("MAX_TRADES_PER_RUN")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxTradesPerRun = n
		}
	}

	cfg.HoldingPeriodDay = 7
	if v := strings.TrimSpace(os.Getenv("HOLDING_PERIOD_DAYS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HoldingPeriodDay = n
		}
	}

	cfg.StaleDataDays = 3
	if v := strings.TrimSpace(os.Getenv("STALE_DATA_DAYS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.StaleDataDays = n
		}
	}

	cfg.CycleCronSpec = strings.TrimSpace(os.Getenv("CYCLE_CRON_SPEC"))
	if cfg.CycleCronSpec == "" {
		// 2:00 PM ET on weekdays, expressed in UTC.
		cfg.CycleCronSpec = "0 18 * * 1-5"
	}

	cfg.PricePollSecs = 300
	if v := strings.TrimSpace(os.Getenv("PRICE_POLL_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PricePollSecs = n
		}
	}

	cfg.RedditSubs = []string{"stocks", "investing", "wallstreetbets", "ValueInvesting", "SecurityAnalysis"}
	if v := strings.TrimSpace(os.Getenv("REDDIT_SUBS")); v != "" {
		var subs []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				subs = append(subs, s)
			}
		}
		if len(subs) > 0 {
			cfg.RedditSubs = subs
		}
	}

	cfg.NewsFeedLimit = 20
	if v := strings.TrimSpace(os.Getenv("NEWS_FEED_LIMIT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.NewsFeedLimit = n
		}
	}

	cfg.SocialPostsMax = 25
	if v := strings.TrimSpace(os.Getenv("SOCIAL_POSTS_MAX")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SocialPostsMax = n
		}
	}

	cfg.HTTPPort = 8080
	if v := strings.TrimSpace(os.Getenv("HTTP_PORT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HTTPPort = n
		}
	}

	cfg.SSHPort = 2222
	if v := strings.TrimSpace(os.Getenv("SSH_PORT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SSHPort = n
		}
	}

	cfg.SSHHostKeyPath = strings.TrimSpace(os.Getenv("SSH_HOST_KEY_PATH"))
	if cfg.SSHHostKeyPath == "" {
		cfg.SSHHostKeyPath = ".ssh/agent_arena_ed25519"
	}

	cfg.MCPTransport = strings.ToLower(strings.TrimSpace(os.Getenv("MCP_TRANSPORT")))
	if cfg.MCPTransport == "" {
		cfg.MCPTransport = "stdio"
	}
	if cfg.MCPTransport != "stdio" && cfg.MCPTransport != "http" {
		log.Printf("Warning: unsupported MCP_TRANSPORT=%q, defaulting to stdio", cfg.MCPTransport)
		cfg.MCPTransport = "stdio"
	}

	cfg.MCPHTTPBind = strings.TrimSpace(os.Getenv("MCP_HTTP_BIND"))
	if cfg.MCPHTTPBind == "" {
		cfg.MCPHTTPBind = "127.0.0.1"
	}

	cfg.MCPHTTPPort = 8090
	if v := strings.TrimSpace(os.Getenv("MCP_HTTP_PORT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MCPHTTPPort = n
		}
	}

	return cfg
}
