package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone   = "UTC"
	configPathEnv     = "ARTICLE_PIPELINE_CONFIG"
	databaseDSNEnv    = "DATABASE_DSN"
	redisAddrEnv      = "REDIS_ADDR"
	openAIAPIKeyEnv   = "OPENAI_API_KEY"
	openAIModelEnv    = "OPENAI_MODEL"
	jwtSecretEnv      = "JWT_SECRET"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
	logLevelEnv       = "LOG_LEVEL"
	httpAddrEnv       = "HTTP_ADDR"

	// AnalyzerChatGPT selects the OpenAI-compatible chat completion backend.
	AnalyzerChatGPT = "chatgpt"
	// AnalyzerML selects the plain JSON inference service.
	AnalyzerML = "ml"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	HTTP          HTTPConfig         `yaml:"http"`
	Auth          AuthConfig         `yaml:"auth"`
	Database      DatabaseConfig     `yaml:"database"`
	Redis         RedisConfig        `yaml:"redis"`
	Pipeline      PipelineConfig     `yaml:"pipeline"`
	Resolver      ResolverConfig     `yaml:"resolver"`
	Crawler       CrawlerConfig      `yaml:"crawler"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Notifications NotificationConfig `yaml:"notifications"`
	ML            MLConfig           `yaml:"ml"`
	ChatGPT       ChatGPTConfig      `yaml:"chatgpt"`
	Sites         []SiteConfig       `yaml:"sites"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// AuthConfig verifies bearer tokens; the subject claim is the owner id.
type AuthConfig struct {
	JWTSecret string `yaml:"jwtSecret"`
	Issuer    string `yaml:"issuer"`
}

// DatabaseConfig describes Postgres connection details. An empty DSN keeps
// articles in memory.
type DatabaseConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"maxConns"`
}

// RedisConfig describes the shared decode cache. An empty Addr keeps the
// cache in process.
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"keyPrefix"`
	TTL       time.Duration `yaml:"ttl"`
}

// PipelineConfig holds pacing, limits and timeouts of the stages.
type PipelineConfig struct {
	DecodeInterval      time.Duration `yaml:"decodeInterval"`
	AnalyzeInterval     time.Duration `yaml:"analyzeInterval"`
	AnalyzeDefaultLimit int           `yaml:"analyzeDefaultLimit"`
	AnalyzeMaxLimit     int           `yaml:"analyzeMaxLimit"`
	ResolverTimeout     time.Duration `yaml:"resolverTimeout"`
	InferenceTimeout    time.Duration `yaml:"inferenceTimeout"`
	CrawlTimeout        time.Duration `yaml:"crawlTimeout"`
	Analyzer            string        `yaml:"analyzer"`
}

// ResolverConfig points the decode stage at the wrapped-link service.
type ResolverConfig struct {
	BaseURL   string `yaml:"baseUrl"`
	UserAgent string `yaml:"userAgent"`
}

// CrawlerConfig enables best-effort full-content crawling before analysis.
type CrawlerConfig struct {
	Enabled   bool   `yaml:"enabled"`
	UserAgent string `yaml:"userAgent"`
}

// SchedulerConfig defines when and for whom the pipeline runs unattended.
type SchedulerConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Interval time.Duration  `yaml:"interval"`
	Owners   []string       `yaml:"owners"`
	Timezone string         `yaml:"timezone"`
	location *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send run reports.
type TelegramConfig struct {
	BotToken  string `yaml:"botToken"`
	ChatID    string `yaml:"chatId"`
	SkipEmpty bool   `yaml:"skipEmpty"`
}

// MLConfig describes the plain JSON inference service.
type MLConfig struct {
	InferenceURL string `yaml:"inferenceUrl"`
	APIKey       string `yaml:"apiKey"`
}

// ChatGPTConfig defines how to contact an OpenAI-compatible API.
type ChatGPTConfig struct {
	Endpoint     string `yaml:"endpoint"`
	Model        string `yaml:"model"`
	APIKey       string `yaml:"apiKey"`
	SystemPrompt string `yaml:"systemPrompt"`
}

// SiteConfig describes a single source with its scanner strategy.
type SiteConfig struct {
	Name    string            `yaml:"name"`
	Scanner string            `yaml:"scanner"`
	Feeds   []FeedConfig      `yaml:"feeds"`
	Options map[string]string `yaml:"options"`
}

// FeedConfig holds one concrete feed endpoint of a site.
type FeedConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	return LoadFrom(os.Getenv(configPathEnv))
}

// LoadFrom is Load with an explicit YAML path; an empty path skips the file.
func LoadFrom(path string) Config {
	cfg := defaultConfig()

	if path != "" {
		fileCfg, err := ReadFile(path)
		if err != nil {
			log.Printf("config: %v (falling back to defaults)", err)
		} else {
			cfg = mergeConfig(cfg, fileCfg)
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	if len(cfg.Sites) == 0 {
		cfg.Sites = defaultConfig().Sites
	}

	return cfg
}

// ReadFile parses a YAML file without applying defaults.
func ReadFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	var errs []error

	p := c.Pipeline
	if p.AnalyzeMaxLimit <= 0 {
		errs = append(errs, errors.New("pipeline.analyzeMaxLimit must be positive"))
	}
	if p.AnalyzeDefaultLimit <= 0 || p.AnalyzeDefaultLimit > p.AnalyzeMaxLimit {
		errs = append(errs, errors.New("pipeline.analyzeDefaultLimit must be in [1, analyzeMaxLimit]"))
	}
	if p.DecodeInterval < 0 || p.AnalyzeInterval < 0 {
		errs = append(errs, errors.New("pipeline intervals must not be negative"))
	}
	if p.ResolverTimeout <= 0 || p.InferenceTimeout <= 0 || p.CrawlTimeout <= 0 {
		errs = append(errs, errors.New("pipeline timeouts must be positive"))
	}
	if p.Analyzer != AnalyzerChatGPT && p.Analyzer != AnalyzerML {
		errs = append(errs, fmt.Errorf("pipeline.analyzer must be %q or %q", AnalyzerChatGPT, AnalyzerML))
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		errs = append(errs, errors.New("scheduler.interval must be positive when enabled"))
	}
	for _, site := range c.Sites {
		if site.Name == "" || site.Scanner == "" {
			errs = append(errs, errors.New("every site needs a name and a scanner"))
			break
		}
	}

	return errors.Join(errs...)
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(redisAddrEnv); v != "" {
		c.Redis.Addr = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv(openAIAPIKeyEnv); v != "" {
		c.ChatGPT.APIKey = v
	}

	if v := os.Getenv(openAIModelEnv); v != "" {
		c.ChatGPT.Model = v
	}

	if v := os.Getenv(jwtSecretEnv); v != "" {
		c.Auth.JWTSecret = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(httpAddrEnv); v != "" {
		c.HTTP.Addr = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	if override.HTTP.Addr != "" {
		base.HTTP.Addr = override.HTTP.Addr
	}
	if override.HTTP.ShutdownTimeout > 0 {
		base.HTTP.ShutdownTimeout = override.HTTP.ShutdownTimeout
	}

	if override.Auth.JWTSecret != "" {
		base.Auth.JWTSecret = override.Auth.JWTSecret
	}
	if override.Auth.Issuer != "" {
		base.Auth.Issuer = override.Auth.Issuer
	}

	if override.Database.DSN != "" {
		base.Database.DSN = override.Database.DSN
	}
	if override.Database.MaxConns > 0 {
		base.Database.MaxConns = override.Database.MaxConns
	}

	if override.Redis.Addr != "" {
		base.Redis = mergeRedis(base.Redis, override.Redis)
	}

	base.Pipeline = mergePipeline(base.Pipeline, override.Pipeline)

	if override.Resolver.BaseURL != "" {
		base.Resolver.BaseURL = override.Resolver.BaseURL
	}
	if override.Resolver.UserAgent != "" {
		base.Resolver.UserAgent = override.Resolver.UserAgent
	}

	if override.Crawler.Enabled {
		base.Crawler.Enabled = true
	}
	if override.Crawler.UserAgent != "" {
		base.Crawler.UserAgent = override.Crawler.UserAgent
	}

	if override.Scheduler.Enabled {
		base.Scheduler.Enabled = true
	}
	if override.Scheduler.Interval > 0 {
		base.Scheduler.Interval = override.Scheduler.Interval
	}
	if len(override.Scheduler.Owners) > 0 {
		base.Scheduler.Owners = override.Scheduler.Owners
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}
	if override.Notifications.Telegram.SkipEmpty {
		base.Notifications.Telegram.SkipEmpty = true
	}

	if override.ML.InferenceURL != "" {
		base.ML.InferenceURL = override.ML.InferenceURL
	}
	if override.ML.APIKey != "" {
		base.ML.APIKey = override.ML.APIKey
	}

	if override.ChatGPT.Endpoint != "" {
		base.ChatGPT.Endpoint = override.ChatGPT.Endpoint
	}
	if override.ChatGPT.Model != "" {
		base.ChatGPT.Model = override.ChatGPT.Model
	}
	if override.ChatGPT.APIKey != "" {
		base.ChatGPT.APIKey = override.ChatGPT.APIKey
	}
	if override.ChatGPT.SystemPrompt != "" {
		base.ChatGPT.SystemPrompt = override.ChatGPT.SystemPrompt
	}

	if len(override.Sites) > 0 {
		base.Sites = override.Sites
	}

	return base
}

func mergeRedis(base, override RedisConfig) RedisConfig {
	base.Addr = override.Addr
	base.Password = override.Password
	base.DB = override.DB
	if override.KeyPrefix != "" {
		base.KeyPrefix = override.KeyPrefix
	}
	if override.TTL > 0 {
		base.TTL = override.TTL
	}
	return base
}

func mergePipeline(base, override PipelineConfig) PipelineConfig {
	if override.DecodeInterval > 0 {
		base.DecodeInterval = override.DecodeInterval
	}
	if override.AnalyzeInterval > 0 {
		base.AnalyzeInterval = override.AnalyzeInterval
	}
	if override.AnalyzeDefaultLimit > 0 {
		base.AnalyzeDefaultLimit = override.AnalyzeDefaultLimit
	}
	if override.AnalyzeMaxLimit > 0 {
		base.AnalyzeMaxLimit = override.AnalyzeMaxLimit
	}
	if override.ResolverTimeout > 0 {
		base.ResolverTimeout = override.ResolverTimeout
	}
	if override.InferenceTimeout > 0 {
		base.InferenceTimeout = override.InferenceTimeout
	}
	if override.CrawlTimeout > 0 {
		base.CrawlTimeout = override.CrawlTimeout
	}
	if override.Analyzer != "" {
		base.Analyzer = override.Analyzer
	}
	return base
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		HTTP:    HTTPConfig{Addr: ":8080", ShutdownTimeout: 10 * time.Second},
		Redis:   RedisConfig{KeyPrefix: "decode:"},
		Pipeline: PipelineConfig{
			DecodeInterval:      3 * time.Second,
			AnalyzeInterval:     time.Second,
			AnalyzeDefaultLimit: 10,
			AnalyzeMaxLimit:     50,
			ResolverTimeout:     10 * time.Second,
			InferenceTimeout:    30 * time.Second,
			CrawlTimeout:        15 * time.Second,
			Analyzer:            AnalyzerChatGPT,
		},
		Resolver: ResolverConfig{BaseURL: "https://news.google.com"},
		Scheduler: SchedulerConfig{
			Interval: time.Hour,
			Timezone: defaultTimezone,
			location: tz,
		},
		ML: MLConfig{InferenceURL: "http://localhost:8000", APIKey: ""},
		ChatGPT: ChatGPTConfig{
			Endpoint:     "https://api.openai.com/v1",
			Model:        "gpt-4o-mini",
			APIKey:       "",
			SystemPrompt: "",
		},
		Sites: []SiteConfig{
			{
				Name:    "google-news",
				Scanner: "aggregator-search",
				Options: map[string]string{"hl": "en-US", "gl": "US", "ceid": "US:en"},
			},
		},
	}
}
