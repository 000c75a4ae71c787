package common

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// EnvPrefix is the prefix for all environment variable overrides
const EnvPrefix = "PRICEWATCH"

// Config represents the application configuration
type Config struct {
	Environment string           `toml:"environment" split_words:"true"` // "development" or "production"
	Server      ServerConfig     `toml:"server"`
	Logging     LoggingConfig    `toml:"logging"`
	Storage     StorageConfig    `toml:"storage"`
	Inventory   InventoryConfig  `toml:"inventory"`
	Provider    ProviderConfig   `toml:"provider"`
	Retry       RetryConfig      `toml:"retry"`
	Filter      FilterConfig     `toml:"filter"`
	Classifier  ClassifierConfig `toml:"classifier"`
	Report      ReportConfig     `toml:"report"`
	Pipeline    PipelineConfig   `toml:"pipeline"`
	WebSocket   WebSocketConfig  `toml:"websocket" envconfig:"WEBSOCKET"`
	Scheduler   SchedulerConfig  `toml:"scheduler"`
}

type ServerConfig struct {
	Port int    `toml:"port" split_words:"true" validate:"min=1,max=65535"`
	Host string `toml:"host" split_words:"true"`
}

type LoggingConfig struct {
	Level      string   `toml:"level" split_words:"true" validate:"oneof=debug info warn error"`
	Output     []string `toml:"output" split_words:"true"` // "stdout", "file"
	TimeFormat string   `toml:"time_format" split_words:"true"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" split_words:"true" validate:"required"` // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup" split_words:"true"`
}

// InventoryConfig describes where the catalog lives and which columns hold name and price.
// Column indexes are 0-based.
type InventoryConfig struct {
	Path         string   `toml:"path" split_words:"true" validate:"required"`
	NameColumn   int      `toml:"name_column" split_words:"true" validate:"gte=0"`
	PriceColumn  int      `toml:"price_column" split_words:"true" validate:"gte=0,nefield=NameColumn"`
	HeaderLabels []string `toml:"header_labels" split_words:"true"`
	Sheet        string   `toml:"sheet" split_words:"true"` // xlsx only, empty = active sheet
}

// ProviderConfig contains the shopping-search provider settings (SerpAPI Google Shopping)
type ProviderConfig struct {
	APIKey         string `toml:"api_key" split_words:"true"`
	BaseURL        string `toml:"base_url" split_words:"true" validate:"required,url"`
	Engine         string `toml:"engine" split_words:"true" validate:"required"`
	Location       string `toml:"location" split_words:"true"`
	GoogleDomain   string `toml:"google_domain" split_words:"true"`
	Language       string `toml:"language" split_words:"true"` // hl
	Country        string `toml:"country" split_words:"true"`  // gl
	ResultLimit    int    `toml:"result_limit" split_words:"true" validate:"min=1,max=100"`
	SortBy         string `toml:"sort_by" split_words:"true"`
	RequestTimeout string `toml:"request_timeout" split_words:"true" validate:"duration"` // Per attempt
	MinInterval    string `toml:"min_interval" split_words:"true" validate:"duration"`    // Pacing between provider calls
}

// RetryConfig controls retry/backoff against the provider
type RetryConfig struct {
	MaxAttempts          int     `toml:"max_attempts" split_words:"true" validate:"min=1"`
	InitialDelay         string  `toml:"initial_delay" split_words:"true" validate:"duration"`
	Multiplier           float64 `toml:"multiplier" split_words:"true" validate:"gte=1"`
	RetryableStatusCodes []int   `toml:"retryable_status_codes" split_words:"true"`
}

// FilterConfig contains listing plausibility rules
type FilterConfig struct {
	// OutlierFactor rejects prices above factor*median or below median/factor (<= 1 disables).
	// The default of 3 is a heuristic awaiting product-owner confirmation.
	OutlierFactor    float64  `toml:"outlier_factor" split_words:"true" validate:"gte=0"`
	NonNewConditions []string `toml:"non_new_conditions" split_words:"true"`
	FinancingTerms   []string `toml:"financing_terms" split_words:"true"`
}

type ClassifierConfig struct {
	TolerancePercent float64 `toml:"tolerance_percent" split_words:"true" validate:"gte=0,lt=100"` // 0 = strict comparison
}

type ReportConfig struct {
	Dir      string `toml:"dir" split_words:"true" validate:"required"`
	BaseName string `toml:"base_name" split_words:"true" validate:"required"`
	Format   string `toml:"format" split_words:"true" validate:"oneof=csv xlsx pdf"`
}

type PipelineConfig struct {
	FetchConcurrency     int  `toml:"fetch_concurrency" split_words:"true" validate:"min=1,max=16"`
	WritePartialOnCancel bool `toml:"write_partial_on_cancel" split_words:"true"`
}

// WebSocketConfig contains configuration for progress streaming
type WebSocketConfig struct {
	PollInterval string `toml:"poll_interval" split_words:"true" validate:"duration"` // Output drain tick
	WriteTimeout string `toml:"write_timeout" split_words:"true" validate:"duration"`
}

type SchedulerConfig struct {
	Schedule string `toml:"schedule" split_words:"true" validate:"omitempty,schedule"` // Empty disables scheduled runs
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8000,
			Host: "localhost",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Inventory: InventoryConfig{
			Path:         "./book.xlsx",
			NameColumn:   2, // Column C in the catalog workbook
			PriceColumn:  3,
			HeaderLabels: []string{"product name", "name", "product", "price", "internal price"},
		},
		Provider: ProviderConfig{
			BaseURL:        "https://serpapi.com/search.json",
			Engine:         "google_shopping",
			Location:       "Hyderabad, Telangana, India",
			GoogleDomain:   "google.com",
			Language:       "en",
			Country:        "in",
			ResultLimit:    5,
			SortBy:         "1",
			RequestTimeout: "30s",
			MinInterval:    "2s",
		},
		Retry: RetryConfig{
			MaxAttempts:          5,
			InitialDelay:         "1s",
			Multiplier:           7,
			RetryableStatusCodes: []int{429, 500, 503, 504},
		},
		Filter: FilterConfig{
			OutlierFactor:    3,
			NonNewConditions: []string{"refurbished", "renewed", "used", "pre-owned", "preowned", "second hand", "second-hand", "open box"},
			FinancingTerms:   []string{"emi", "installment", "instalment", "rent", "rental", "lease", "/mo", "per month", "down payment"},
		},
		Report: ReportConfig{
			Dir:      "./thesis",
			BaseName: "final_market_analysis",
			Format:   "csv",
		},
		Pipeline: PipelineConfig{
			FetchConcurrency: 1,
		},
		WebSocket: WebSocketConfig{
			PollInterval: "50ms",
			WriteTimeout: "5s",
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2 -> ... -> .env -> env.
// Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	// .env is optional; variables already present in the environment win
	_ = godotenv.Load()

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies PRICEWATCH_<SECTION>_<KEY> environment variables to config.
// Leaf fields use split_words so no unprefixed variable (PATH, PORT) is ever consulted.
func applyEnvOverrides(config *Config) error {
	if err := envconfig.Process(EnvPrefix, config); err != nil {
		return fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	// The provider's own variable is honoured when no prefixed key is set
	if config.Provider.APIKey == "" {
		config.Provider.APIKey = os.Getenv("SERPAPI_API_KEY")
	}

	return nil
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks the configuration using struct tags
func (c *Config) Validate() error {
	validate := validator.New()
	_ = validate.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		_, err := time.ParseDuration(fl.Field().String())
		return err == nil
	})
	_ = validate.RegisterValidation("schedule", func(fl validator.FieldLevel) bool {
		return ValidateSchedule(fl.Field().String()) == nil
	})

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ValidateSchedule validates a standard 5-field cron expression
func ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// MustDuration parses a duration string, falling back when it is empty or invalid
func MustDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
