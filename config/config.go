package config

import "github.com/caarlos0/env/v6"

type Config struct {
	// Database configuration
	Database struct {
		// Path to the sqlite database file
		Path string `env:"DB_PATH" envDefault:"database/homefinder.db"`
	}

	// Matching configuration. Weights are tuned so that outcode + street +
	// price alone stays below the match threshold: only a full postcode,
	// close coordinates or a shared image can push a pair over the line.
	Matching struct {
		FullPostcodeScore float64 `env:"MATCH_FULL_POSTCODE_SCORE" envDefault:"40"`
		OutcodeScore      float64 `env:"MATCH_OUTCODE_SCORE" envDefault:"10"`
		CoordinateScore   float64 `env:"MATCH_COORDINATE_SCORE" envDefault:"40"`
		StreetScore       float64 `env:"MATCH_STREET_SCORE" envDefault:"20"`
		PriceScore        float64 `env:"MATCH_PRICE_SCORE" envDefault:"15"`
		ImageHashScore    float64 `env:"MATCH_IMAGE_HASH_SCORE" envDefault:"40"`

		// Distance in meters below which the coordinate signal scores full,
		// and the radius at which it decays to zero
		CoordinateFullMeters float64 `env:"MATCH_COORD_FULL_METERS" envDefault:"50"`
		CoordinateMaxMeters  float64 `env:"MATCH_COORD_MAX_METERS" envDefault:"150"`

		// Price difference (fractional) below which the price signal scores
		// full, and the bound at which it decays to zero
		PriceFullPct float64 `env:"MATCH_PRICE_FULL_PCT" envDefault:"0.03"`
		PriceMaxPct  float64 `env:"MATCH_PRICE_MAX_PCT" envDefault:"0.10"`

		// Maximum Hamming distance between perceptual hashes for two images
		// to count as the same photo
		ImageHashMaxDistance int `env:"MATCH_IMAGE_HASH_MAX_DISTANCE" envDefault:"8"`

		// Image comparison is O(images²) per pair, so it can be switched off
		// for large areas
		ImageHashEnabled bool `env:"MATCH_IMAGE_HASH_ENABLED" envDefault:"true"`

		MatchThreshold float64 `env:"MATCH_THRESHOLD" envDefault:"55"`
		MinSignals     int     `env:"MATCH_MIN_SIGNALS" envDefault:"2"`
	}

	// Pipeline configuration
	Pipeline struct {
		// Maximum number of enrichment attempts before a property is marked
		// permanently failed
		MaxEnrichmentAttempts int `env:"PIPELINE_MAX_ENRICHMENT_ATTEMPTS" envDefault:"3"`

		// Number of concurrent enrichment fetches
		EnrichmentWorkers int `env:"PIPELINE_ENRICHMENT_WORKERS" envDefault:"5"`

		// Number of concurrent analysis calls
		AnalysisWorkers int `env:"PIPELINE_ANALYSIS_WORKERS" envDefault:"15"`

		// How far back persisted properties are loaded as reconciliation
		// anchors (in days)
		AnchorWindowDays int `env:"PIPELINE_ANCHOR_WINDOW_DAYS" envDefault:"14"`

		// Minutes between scheduled pipeline runs
		RunIntervalMinutes int `env:"PIPELINE_RUN_INTERVAL_MINUTES" envDefault:"60"`

		// Path of the lock file that enforces one run at a time
		LockPath string `env:"PIPELINE_LOCK_PATH" envDefault:"database/pipeline.lock"`

		// Search area passed to the platform spiders
		SearchArea string `env:"PIPELINE_SEARCH_AREA" envDefault:"london"`

		// Platforms to scrape, comma separated
		Platforms []string `env:"PIPELINE_PLATFORMS" envDefault:"rightmove,zoopla,openrent" envSeparator:","`

		// Maximum number of cached geocoding results
		GeocodeCacheSize int `env:"PIPELINE_GEOCODE_CACHE_SIZE" envDefault:"5000"`
	}

	// External enrichment service
	Enrichment struct {
		ServiceURL     string `env:"ENRICHMENT_SERVICE_URL" envDefault:"http://localhost:8091"`
		TimeoutSeconds int    `env:"ENRICHMENT_TIMEOUT_SECONDS" envDefault:"30"`
	}

	// External quality-analysis service
	Analysis struct {
		ServiceURL     string `env:"ANALYSIS_SERVICE_URL" envDefault:"http://localhost:8092"`
		TimeoutSeconds int    `env:"ANALYSIS_TIMEOUT_SECONDS" envDefault:"60"`
	}

	// HTTP API configuration
	API struct {
		Port    int  `env:"API_PORT" envDefault:"5250"`
		Enabled bool `env:"API_ENABLED" envDefault:"true"`
	}

	// Notification configuration
	Telegram struct {
		BotToken string `env:"TELEGRAM_BOT_TOKEN"`
		ChatID   string `env:"TELEGRAM_CHAT_ID"`
	}
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
