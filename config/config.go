package config

import (
	"errors"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	// Source site
	Source struct {
		BaseURL    string `env:"SOURCE_BASE_URL" envDefault:"https://www.rightmove.co.uk"`
		SearchPath string `env:"SOURCE_SEARCH_PATH" envDefault:"/property-for-sale/find.html"`
		UserAgent  string `env:"SOURCE_USER_AGENT" envDefault:"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_3) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"`

		// Per-request timeout
		RequestTimeout time.Duration `env:"SOURCE_REQUEST_TIMEOUT" envDefault:"5s"`

		// The description container uses generated class names and moves when the site is redeployed
		DescriptionSelector string `env:"SOURCE_DESCRIPTION_SELECTOR" envDefault:"div.STw8udCxUaBUMfOOZu0iL._3nPVwR0HZYQah5tkVJHFh5"`
	}

	// Search criteria for the daily crawl
	Search struct {
		LocationIdentifier string   `env:"SEARCH_LOCATION" envDefault:"REGION^87490"`
		PropertyTypes      []string `env:"SEARCH_PROPERTY_TYPES" envSeparator:"," envDefault:"bungalow,detached,flat,park-home,semi-detached,terraced"`
		MaxDaysSinceAdded  int      `env:"SEARCH_MAX_DAYS_SINCE_ADDED" envDefault:"1"`
		Keywords           string   `env:"SEARCH_KEYWORDS"`
	}

	Crawl struct {
		// Number of concurrent listing extractions
		Workers int `env:"CRAWL_WORKERS" envDefault:"4"`

		// Upper bound on listing requests per second across all workers
		RequestsPerSecond float64 `env:"CRAWL_RPS" envDefault:"1"`

		// Politeness delay between result pages
		PageDelayMin time.Duration `env:"CRAWL_PAGE_DELAY_MIN" envDefault:"2s"`
		PageDelayMax time.Duration `env:"CRAWL_PAGE_DELAY_MAX" envDefault:"8s"`

		// Listing fetch retry policy
		FetchAttempts   int           `env:"CRAWL_FETCH_ATTEMPTS" envDefault:"2"`
		RetryBackoffMin time.Duration `env:"CRAWL_RETRY_BACKOFF_MIN" envDefault:"30s"`
		RetryBackoffMax time.Duration `env:"CRAWL_RETRY_BACKOFF_MAX" envDefault:"90s"`

		// Sample mode: only the first subsequent result page is crawled
		TestMode bool `env:"TEST_MODE" envDefault:"false"`

		// Hard limit on a single run
		RunTimeout time.Duration `env:"RUN_TIMEOUT" envDefault:"6h"`
	}

	Storage struct {
		// "local" or "gcs"
		Backend  string `env:"STORAGE_BACKEND" envDefault:"local"`
		LocalDir string `env:"STORAGE_LOCAL_DIR" envDefault:"./data/bucket"`
		Bucket   string `env:"STORAGE_BUCKET" envDefault:"london-properties"`
		TempDir  string `env:"STORAGE_TEMP_DIR"`

		// Maximum number of retries for failed uploads
		MaxRetries int `env:"STORAGE_MAX_RETRIES" envDefault:"3"`

		// Delay between retries
		RetryDelay time.Duration `env:"STORAGE_RETRY_DELAY" envDefault:"5s"`
	}

	Catalog struct {
		// "sqlite" or "postgres"
		Backend     string `env:"CATALOG_BACKEND" envDefault:"sqlite"`
		SQLitePath  string `env:"CATALOG_SQLITE_PATH" envDefault:"./database/ingest.db"`
		PostgresDSN string `env:"CATALOG_POSTGRES_DSN"`
		TableName   string `env:"CATALOG_TABLE" envDefault:"properties_dataset.raw_london_properties"`
	}

	Notify struct {
		TelegramToken  string `env:"TELEGRAM_BOT_TOKEN"`
		TelegramChatID string `env:"TELEGRAM_CHAT_ID"`
		TelegramAPIURL string `env:"TELEGRAM_API_URL" envDefault:"https://api.telegram.org"`
		KafkaBroker    string `env:"KAFKA_BROKER"`
		KafkaTopic     string `env:"KAFKA_TOPIC" envDefault:"properties.snapshots"`
	}

	Redis struct {
		Addr    string        `env:"REDIS_ADDR"`
		LockTTL time.Duration `env:"RUN_LOCK_TTL" envDefault:"8h"`
	}

	API struct {
		Addr string `env:"API_ADDR" envDefault:":5250"`
	}

	// Daily run time, local clock
	Schedule struct {
		Hour   int `env:"SCHEDULE_HOUR" envDefault:"19"`
		Minute int `env:"SCHEDULE_MINUTE" envDefault:"50"`
	}
}

// LoadConfig reads an optional .env file and then the process environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
