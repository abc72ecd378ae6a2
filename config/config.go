package config

import (
    "time"

    "github.com/caarlos0/env/v6"
)

type Config struct {
    // Database configuration
    Database struct {
        Path string `env:"DATABASE_PATH" envDefault:"database/flipradar.db"`
    }

    // HTTP server configuration
    HTTP struct {
        Port string `env:"PORT" envDefault:"5250"`
    }

    // Scanner configuration
    Scanner struct {
        // Minutes between automatic scan cycles
        IntervalMinutes int `env:"SCANNER_INTERVAL_MINUTES" envDefault:"10"`

        // Maximum number of watch queries scanned per cycle
        BatchSize int `env:"SCANNER_BATCH_SIZE" envDefault:"25"`

        // Number of concurrent per-query fetches
        WorkerCount int `env:"SCANNER_WORKER_COUNT" envDefault:"4"`

        // Minimum minutes between scans of the same watch query
        MinScanIntervalMinutes int `env:"SCANNER_MIN_SCAN_INTERVAL" envDefault:"5"`

        // Maximum number of retries for transient fetch failures
        MaxRetries int `env:"SCANNER_MAX_RETRIES" envDefault:"3"`

        // Base delay between retries in seconds (doubles per attempt)
        RetryBackoffSeconds int `env:"SCANNER_RETRY_BACKOFF" envDefault:"2"`

        // Timeout for a single snapshot fetch in seconds
        FetchTimeoutSeconds int `env:"SCANNER_FETCH_TIMEOUT" envDefault:"30"`

        // Consecutive failures before a source is circuit-broken
        BreakerThreshold int `env:"SCANNER_BREAKER_THRESHOLD" envDefault:"5"`

        // How long a circuit-broken source stays disabled
        BreakerCooldown time.Duration `env:"SCANNER_BREAKER_COOLDOWN" envDefault:"15m"`

        // Outbound requests per second allowed against one source
        SourceRateLimit float64 `env:"SCANNER_SOURCE_RATE_LIMIT" envDefault:"1"`

        // Hours a found opportunity stays alive before expiring
        OpportunityTTLHours int `env:"SCANNER_OPPORTUNITY_TTL" envDefault:"72"`
    }

    // Pricing configuration
    Pricing struct {
        // Marketplace selling fees as a fraction of the sale price
        FeePct float64 `env:"PRICING_FEE_PCT" envDefault:"0.13"`

        // Average outbound shipping cost in dollars
        ShippingCost float64 `env:"PRICING_SHIPPING_COST" envDefault:"7.00"`

        // Target profit margin on the buy price
        TargetMargin float64 `env:"PRICING_TARGET_MARGIN" envDefault:"0.40"`

        // Sell-through rate cutoffs for the liquidity rating
        HotSTR    float64 `env:"PRICING_HOT_STR" envDefault:"0.60"`
        SteadySTR float64 `env:"PRICING_STEADY_STR" envDefault:"0.35"`
        SlowSTR   float64 `env:"PRICING_SLOW_STR" envDefault:"0.15"`

        // Maximum average days to sell for a hot rating
        HotMaxDays float64 `env:"PRICING_HOT_MAX_DAYS" envDefault:"21"`

        // Coefficient of variation above which sold prices count as spread-risky
        SpreadCVLimit float64 `env:"PRICING_SPREAD_CV_LIMIT" envDefault:"0.5"`

        // Width of the fingerprint price bucket in dollars
        PriceBucketSize float64 `env:"PRICING_PRICE_BUCKET" envDefault:"10"`
    }

    // Relist pipeline configuration
    Relist struct {
        // Whether to auto-publish generated listings via the seller API
        AutoPublish bool `env:"RELIST_AUTO_PUBLISH" envDefault:"false"`
    }

    // Telegram notification configuration
    Telegram struct {
        IsEnabled bool   `env:"TELEGRAM_ENABLED" envDefault:"false"`
        BotToken  string `env:"TELEGRAM_BOT_TOKEN" envDefault:""`
        ChatID    string `env:"TELEGRAM_CHAT_ID" envDefault:""`

        // Only alert on deals at or above this score
        MinScore int `env:"TELEGRAM_MIN_SCORE" envDefault:"75"`
    }

    // Aggregator configuration
    Aggregator struct {
        // Base URL of the market-data aggregator service
        BaseURL string `env:"AGGREGATOR_URL" envDefault:"http://localhost:5260"`
    }
}

func LoadConfig() (*Config, error) {
    cfg := &Config{}
    if err := env.Parse(cfg); err != nil {
        return nil, err
    }
    return cfg, nil
}
