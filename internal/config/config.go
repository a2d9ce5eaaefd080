// Package config loads the pipeline configuration from a YAML file, .env and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StrategyFuzzy = "fuzzy"
	StrategyTags  = "tags"

	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Sources    []SourceConfig   `yaml:"sources"`
	Scrape     ScrapeConfig     `yaml:"scrape"`
	Cluster    ClusterConfig    `yaml:"cluster"`
	Budget     BudgetConfig     `yaml:"budget"`
	Generation GenerationConfig `yaml:"generation"`
	Storage    StorageConfig    `yaml:"storage"`
	Cache      CacheConfig      `yaml:"cache"`
	Media      MediaConfig      `yaml:"media"`
	Upload     UploadConfig     `yaml:"upload"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Server     ServerConfig     `yaml:"server"`

	// Pipeline settings
	MinArticles int    `yaml:"min_articles"` // run aborts below this many articles for the day
	OutputDir   string `yaml:"output_dir"`
	Locale      string `yaml:"locale"`
	LogLevel    string `yaml:"log_level"`
	Debug       bool   `yaml:"debug"`
}

// SourceConfig describes one outlet. Listing pages come from Categories
// (HTML, links picked with LinkSelector) or from FeedURL (RSS/Atom).
type SourceConfig struct {
	Name             string   `yaml:"name"`
	BaseURL          string   `yaml:"base_url"`
	Categories       []string `yaml:"categories"`
	FeedURL          string   `yaml:"feed_url"`
	LinkSelector     string   `yaml:"link_selector"`
	LinkPattern      string   `yaml:"link_pattern"`
	TitleSelector    string   `yaml:"title_selector"`
	AbstractSelector string   `yaml:"abstract_selector"`
	BodySelector     string   `yaml:"body_selector"`
	AuthorSelector   string   `yaml:"author_selector"`
	DateSelector     string   `yaml:"date_selector"`
	DateAttr         string   `yaml:"date_attr"`
	JunkPhrases      []string `yaml:"junk_phrases"`
	MaxArticles      int      `yaml:"max_articles"`
}

type ScrapeConfig struct {
	Concurrency    int           `yaml:"concurrency"`
	SourceTimeout  time.Duration `yaml:"source_timeout"` // join deadline per source
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RequestDelay   time.Duration `yaml:"request_delay"`
	UserAgent      string        `yaml:"user_agent"`
}

type ClusterConfig struct {
	Strategy      string  `yaml:"strategy"` // fuzzy | tags
	Threshold     float64 `yaml:"threshold"`
	TagThreshold  float64 `yaml:"tag_threshold"`
	WindowDays    int     `yaml:"window_days"`
	MinBodyLength int     `yaml:"min_body_length"`
	StopWords     bool    `yaml:"stop_words"` // drop German stop words before fuzzy scoring
}

type BudgetConfig struct {
	MaxTokens       int `yaml:"max_tokens"`
	ReservedTokens  int `yaml:"reserved_tokens"` // kept free for the response
	MinOutputTokens int `yaml:"min_output_tokens"`
}

// MaxInputTokens is the ceiling for one assembled request.
func (b BudgetConfig) MaxInputTokens() int {
	return b.MaxTokens - b.ReservedTokens
}

type GenerationConfig struct {
	Provider         string        `yaml:"provider"` // gemini | openai | anthropic
	Model            string        `yaml:"model"`
	Attempts         int           `yaml:"attempts"`
	RetryDelay       time.Duration `yaml:"retry_delay"`
	Concurrency      int           `yaml:"concurrency"`
	MaxDailyRequests int           `yaml:"max_daily_requests"` // 0 = unlimited
	RemoteCompress   bool          `yaml:"remote_compress"`
	OpenAIBaseURL    string        `yaml:"openai_base_url"` // OpenAI compatible endpoint

	GeminiAPIKey    string `yaml:"-"`
	OpenAIAPIKey    string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
}

type StorageConfig struct {
	Driver string `yaml:"driver"` // postgres | sqlite
	DSN    string `yaml:"dsn"`
}

type CacheConfig struct {
	RedisURL string        `yaml:"redis_url"` // empty = in-memory
	TTL      time.Duration `yaml:"ttl"`
}

type MediaConfig struct {
	Enabled      bool    `yaml:"enabled"`
	LanguageCode string  `yaml:"language_code"`
	Voice        string  `yaml:"voice"`
	SpeakingRate float64 `yaml:"speaking_rate"`
	FFmpegPath   string  `yaml:"ffmpeg_path"`
	IntroPath    string  `yaml:"intro_path"`
	FallbackImg  string  `yaml:"fallback_image"`
	FPS          int     `yaml:"fps"`
}

type UploadConfig struct {
	Enabled         bool     `yaml:"enabled"`
	CredentialsFile string   `yaml:"credentials_file"`
	TitleTemplate   string   `yaml:"title_template"`
	Description     string   `yaml:"description"`
	Tags            []string `yaml:"tags"`
	CategoryID      string   `yaml:"category_id"`
	Privacy         string   `yaml:"privacy"`
}

type TelegramConfig struct {
	Token  string `yaml:"-"`
	ChatID string `yaml:"chat_id"`
}

type ServerConfig struct {
	Port         string   `yaml:"port"`
	AllowOrigins []string `yaml:"allow_origins"`
}

// Load reads .env, then the YAML file at path (missing file is fine), then env overrides.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = getEnvOrDefault("NEWSREEL_CONFIG", "configs/newsreel.yaml")
	}
	if err := cfg.mergeFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnv()

	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}

	return cfg, cfg.Validate()
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Sources: DefaultSources(),
		Scrape: ScrapeConfig{
			Concurrency:    4,
			SourceTimeout:  10 * time.Minute,
			RequestTimeout: 15 * time.Second,
			RequestDelay:   500 * time.Millisecond,
			UserAgent:      "newsreel/1.0 (+https://github.com/deusflow/newsreel)",
		},
		Cluster: ClusterConfig{
			Strategy:      StrategyFuzzy,
			Threshold:     0.6,
			TagThreshold:  0.3,
			WindowDays:    14,
			MinBodyLength: 1000,
		},
		Budget: BudgetConfig{
			MaxTokens:       4000,
			ReservedTokens:  1500,
			MinOutputTokens: 200,
		},
		Generation: GenerationConfig{
			Provider:    ProviderGemini,
			Attempts:    5,
			RetryDelay:  5 * time.Second,
			Concurrency: 2,
		},
		Storage: StorageConfig{
			Driver: DriverSQLite,
		},
		Cache: CacheConfig{
			TTL: 72 * time.Hour,
		},
		Media: MediaConfig{
			LanguageCode: "de-CH",
			Voice:        "de-DE-Wavenet-F",
			SpeakingRate: 1.1,
			FFmpegPath:   "ffmpeg",
			FPS:          24,
		},
		Upload: UploadConfig{
			TitleTemplate: "News Noise CH - %s",
			Description: `Dieses Video wurde automatisch erstellt.
Die Korrektheit der Inhalte kann nicht garantiert werden.

Mittels einer KI wurde eine Zusammenfassung/Video erstellt.`,
			Tags:       []string{"News", "Schweiz", "Deutschland"},
			CategoryID: "25",
			Privacy:    "public",
		},
		Server: ServerConfig{
			Port:         "8080",
			AllowOrigins: []string{"*"},
		},
		MinArticles: 10,
		Locale:      "de",
		LogLevel:    "info",
	}
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}

	// decoding over a copy keeps defaults for keys the file omits
	merged := *c
	if err := yaml.Unmarshal(data, &merged); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	*c = merged
	return nil
}

func (c *Config) applyEnv() {
	c.Generation.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	c.Generation.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	c.Generation.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	c.Telegram.Token = os.Getenv("TELEGRAM_TOKEN")

	c.Telegram.ChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", c.Telegram.ChatID)
	c.Generation.Provider = getEnvOrDefault("LLM_PROVIDER", c.Generation.Provider)
	c.Generation.Model = getEnvOrDefault("LLM_MODEL", c.Generation.Model)
	c.Generation.OpenAIBaseURL = getEnvOrDefault("OPENAI_BASE_URL", c.Generation.OpenAIBaseURL)
	c.Generation.Attempts = getEnvIntOrDefault("GENERATION_ATTEMPTS", c.Generation.Attempts)
	c.Generation.Concurrency = getEnvIntOrDefault("GENERATION_CONCURRENCY", c.Generation.Concurrency)
	c.Generation.MaxDailyRequests = getEnvIntOrDefault("MAX_DAILY_REQUESTS", c.Generation.MaxDailyRequests)
	c.Generation.RetryDelay = getEnvDurationOrDefault("GENERATION_RETRY_DELAY", c.Generation.RetryDelay)

	c.Storage.Driver = getEnvOrDefault("DB_DRIVER", c.Storage.Driver)
	c.Storage.DSN = getEnvOrDefault("DATABASE_URL", c.Storage.DSN)
	c.Cache.RedisURL = getEnvOrDefault("REDIS_URL", c.Cache.RedisURL)

	c.Cluster.Strategy = getEnvOrDefault("CLUSTER_STRATEGY", c.Cluster.Strategy)
	c.Cluster.Threshold = getEnvFloatOrDefault("SIMILARITY_THRESHOLD", c.Cluster.Threshold)
	c.Cluster.WindowDays = getEnvIntOrDefault("CLUSTER_WINDOW_DAYS", c.Cluster.WindowDays)

	c.Scrape.Concurrency = getEnvIntOrDefault("SCRAPE_CONCURRENCY", c.Scrape.Concurrency)
	c.Scrape.SourceTimeout = getEnvDurationOrDefault("SCRAPE_TIMEOUT", c.Scrape.SourceTimeout)

	c.MinArticles = getEnvIntOrDefault("MIN_ARTICLES", c.MinArticles)
	c.OutputDir = getEnvOrDefault("OUTPUT_DIR", c.OutputDir)
	c.Server.Port = getEnvOrDefault("PORT", c.Server.Port)
	c.Upload.CredentialsFile = getEnvOrDefault("YOUTUBE_CREDENTIALS_FILE", c.Upload.CredentialsFile)
	c.LogLevel = getEnvOrDefault("LOG_LEVEL", c.LogLevel)

	if os.Getenv("DEBUG") == "true" {
		c.Debug = true
	}
	if os.Getenv("MEDIA_ENABLED") == "true" {
		c.Media.Enabled = true
	}
	if os.Getenv("UPLOAD_ENABLED") == "true" {
		c.Upload.Enabled = true
	}
}

// resolvePaths fills XDG-based defaults for the SQLite file and the run output directory.
func (c *Config) resolvePaths() error {
	if c.Storage.Driver == DriverSQLite && c.Storage.DSN == "" {
		p, err := xdg.DataFile(filepath.Join("newsreel", "articles.db"))
		if err != nil {
			return fmt.Errorf("resolve database path: %w", err)
		}
		c.Storage.DSN = p
	}
	if c.OutputDir == "" {
		c.OutputDir = filepath.Join(xdg.DataHome, "newsreel", "runs")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func (c *Config) Validate() error {
	switch c.Cluster.Strategy {
	case StrategyFuzzy, StrategyTags:
	default:
		return fmt.Errorf("cluster strategy must be %q or %q, got %q", StrategyFuzzy, StrategyTags, c.Cluster.Strategy)
	}
	if c.Cluster.Threshold <= 0 || c.Cluster.Threshold > 1 {
		return fmt.Errorf("similarity threshold must be in (0,1], got %v", c.Cluster.Threshold)
	}
	if c.Cluster.WindowDays < 1 {
		return fmt.Errorf("cluster window must be at least one day")
	}
	if c.Budget.MaxInputTokens() <= 0 {
		return fmt.Errorf("budget: max_tokens (%d) must exceed reserved_tokens (%d)", c.Budget.MaxTokens, c.Budget.ReservedTokens)
	}
	if c.Generation.Attempts < 1 {
		return fmt.Errorf("generation attempts must be >= 1")
	}

	switch c.Generation.Provider {
	case ProviderGemini:
		if c.Generation.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required")
		}
	case ProviderOpenAI:
		if c.Generation.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required")
		}
	case ProviderAnthropic:
		if c.Generation.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required")
		}
	default:
		return fmt.Errorf("unknown LLM provider %q", c.Generation.Provider)
	}

	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("DATABASE_URL is required for postgres")
		}
	case DriverSQLite:
	default:
		return fmt.Errorf("DB_DRIVER must be 'postgres' or 'sqlite'")
	}

	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}
	seen := make(map[string]bool, len(c.Sources))
	for _, s := range c.Sources {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return fmt.Errorf("source without name")
		}
		if seen[name] {
			return fmt.Errorf("duplicate source %q", name)
		}
		seen[name] = true
	}
	if c.Upload.Enabled && c.Upload.CredentialsFile == "" {
		return fmt.Errorf("YOUTUBE_CREDENTIALS_FILE is required when upload is enabled")
	}
	return nil
}
