package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the jobcatalog pipeline.
type Config struct {
	Log          LogConfig
	Storage      StorageConfig
	Sources      []SourceConfig
	Queries      []QueryConfig
	Collector    CollectorConfig
	Processor    ProcessorConfig
	Dedup        DedupConfig
	Embedding    EmbeddingConfig
	Skills       SkillsConfig
	Orchestrator OrchestratorConfig
	Index        IndexConfig
	Lock         LockConfig
	Notification NotificationConfig
	API          APIConfig
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console, json, text
	File   string `yaml:"file"`   // optional JSON log file, fanned out alongside stdout
}

// StorageConfig locates the relational and key-value stores.
type StorageConfig struct {
	Driver    string `yaml:"driver"` // "sqlite" or "postgres"
	DSN       string `yaml:"dsn"`
	BadgerDir string `yaml:"badger_dir"` // raw collections and the vector index
}

// SourceConfig describes a single job board to collect from.
type SourceConfig struct {
	Name       string          `yaml:"name"` // source identifier
	Kind       string          `yaml:"kind"` // greenhouse, lever, ashby, workday
	Company    string          `yaml:"company"`
	BoardToken string          `yaml:"board_token"`
	WorkdayURL string          `yaml:"workday_url"`
	BaseURL    string          `yaml:"base_url"` // overrides the public API host
	Enabled    bool            `yaml:"enabled"`
	RateLimit  RateLimitConfig `yaml:"-"`
}

// RateLimitConfig controls one source's limiter.
type RateLimitConfig struct {
	Strategy string // token_bucket, fixed_window, none
	RPS      float64
	Burst    int
	MinDelay time.Duration
}

// QueryConfig is a search sent to every enabled source.
type QueryConfig struct {
	Text     string `yaml:"text"`
	Location string `yaml:"location"`
}

// CollectorConfig bounds source calls.
type CollectorConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Timeout     time.Duration // per attempt
	MaxPages    int
}

// ProcessorConfig sizes the transform worker pools.
type ProcessorConfig struct {
	BatchWorkers      int
	ItemWorkers       int
	EmbeddingAttempts int
	EmbeddingDelay    time.Duration
}

// DedupConfig holds matcher thresholds.
type DedupConfig struct {
	FuzzyThreshold     float64
	EmbeddingThreshold float64
	AutoMergeThreshold float64
	CandidateLimit     int
	ConflictAttempts   int
}

// EmbeddingConfig selects the embedding function.
type EmbeddingConfig struct {
	Provider  string        // hash, openai, ollama
	Model     string        // model identifier, versions stored vectors
	BaseURL   string        // provider endpoint
	APIKey    string        // expanded from env var by Load
	Dimension int           // expected vector length
	Timeout   time.Duration // per-request timeout
}

// SkillsConfig points at an optional taxonomy file.
type SkillsConfig struct {
	TaxonomyFile string `yaml:"taxonomy_file"`
}

// OrchestratorConfig controls run scheduling.
type OrchestratorConfig struct {
	Schedule    string        // cron expression, takes precedence over Interval
	Interval    time.Duration // fallback tick interval
	SettleDelay time.Duration // wait between collecting and processing
	RunTimeout  time.Duration
}

// IndexConfig controls the vector index outbox worker.
type IndexConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	BaseDelay    time.Duration
}

// LockConfig enables the distributed signature lock.
type LockConfig struct {
	RedisAddr string        `yaml:"redis_addr"`
	TTL       time.Duration `yaml:"-"`
}

// NotificationConfig controls which notifier receives alerts and run summaries.
type NotificationConfig struct {
	Type       string     `yaml:"type"`        // "log", "slack" or "amqp"
	WebhookURL string     `yaml:"webhook_url"` // required if type is "slack"
	AMQP       AMQPConfig `yaml:"amqp"`
}

// AMQPConfig locates the alert exchange.
type AMQPConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
}

// APIConfig controls the HTTP surface.
type APIConfig struct {
	Addr string `yaml:"addr"`
}

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOllamaBaseURL = "http://localhost:11434"
	defaultHashModel     = "hash-v1"
	defaultHashDimension = 256
)

// rawConfig is used for YAML unmarshaling (snake_case fields and duration as string).
type rawConfig struct {
	Log          LogConfig             `yaml:"log"`
	Storage      StorageConfig         `yaml:"storage"`
	Sources      []rawSourceConfig     `yaml:"sources"`
	Queries      []QueryConfig         `yaml:"queries"`
	Collector    rawCollectorConfig    `yaml:"collector"`
	Processor    rawProcessorConfig    `yaml:"processor"`
	Dedup        rawDedupConfig        `yaml:"dedup"`
	Embedding    rawEmbeddingConfig    `yaml:"embedding"`
	Skills       SkillsConfig          `yaml:"skills"`
	Orchestrator rawOrchestratorConfig `yaml:"orchestrator"`
	Index        rawIndexConfig        `yaml:"index"`
	Lock         rawLockConfig         `yaml:"lock"`
	Notification NotificationConfig    `yaml:"notification"`
	API          APIConfig             `yaml:"api"`
}

type rawSourceConfig struct {
	SourceConfig `yaml:",inline"`
	RateLimit    rawRateLimitConfig `yaml:"rate_limit"`
}

type rawRateLimitConfig struct {
	Strategy string  `yaml:"strategy"`
	RPS      float64 `yaml:"rps"`
	Burst    int     `yaml:"burst"`
	MinDelay string  `yaml:"min_delay"`
}

type rawCollectorConfig struct {
	MaxAttempts int    `yaml:"max_attempts"`
	BaseDelay   string `yaml:"base_delay"`
	MaxDelay    string `yaml:"max_delay"`
	Timeout     string `yaml:"timeout"`
	MaxPages    int    `yaml:"max_pages"`
}

type rawProcessorConfig struct {
	BatchWorkers      int    `yaml:"batch_workers"`
	ItemWorkers       int    `yaml:"item_workers"`
	EmbeddingAttempts int    `yaml:"embedding_attempts"`
	EmbeddingDelay    string `yaml:"embedding_delay"`
}

type rawDedupConfig struct {
	FuzzyThreshold     float64 `yaml:"fuzzy_threshold"`
	EmbeddingThreshold float64 `yaml:"embedding_threshold"`
	AutoMergeThreshold float64 `yaml:"auto_merge_threshold"`
	CandidateLimit     int     `yaml:"candidate_limit"`
	ConflictAttempts   int     `yaml:"conflict_attempts"`
}

type rawEmbeddingConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	Dimension int    `yaml:"dimension"`
	Timeout   string `yaml:"timeout"`
}

type rawOrchestratorConfig struct {
	Schedule    string `yaml:"schedule"`
	Interval    string `yaml:"interval"`
	SettleDelay string `yaml:"settle_delay"`
	RunTimeout  string `yaml:"run_timeout"`
}

type rawIndexConfig struct {
	PollInterval string `yaml:"poll_interval"`
	BatchSize    int    `yaml:"batch_size"`
	MaxAttempts  int    `yaml:"max_attempts"`
	BaseDelay    string `yaml:"base_delay"`
}

type rawLockConfig struct {
	RedisAddr string `yaml:"redis_addr"`
	TTL       string `yaml:"ttl"`
}

// LoadDotEnv loads .env from the working directory when present.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// Load reads and parses the YAML config file at path, validates it, and returns Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse builds a Config from YAML bytes.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	p := durationParser{}
	cfg := &Config{
		Log: LogConfig{
			Level:  orDefault(raw.Log.Level, "info"),
			Format: orDefault(raw.Log.Format, "console"),
			File:   raw.Log.File,
		},
		Storage: StorageConfig{
			Driver:    orDefault(raw.Storage.Driver, "sqlite"),
			DSN:       orDefault(raw.Storage.DSN, "jobcatalog.db"),
			BadgerDir: orDefault(raw.Storage.BadgerDir, "data/badger"),
		},
		Queries: raw.Queries,
		Collector: CollectorConfig{
			MaxAttempts: intOrDefault(raw.Collector.MaxAttempts, 4),
			BaseDelay:   p.parse("collector.base_delay", raw.Collector.BaseDelay, 2*time.Second),
			MaxDelay:    p.parse("collector.max_delay", raw.Collector.MaxDelay, time.Minute),
			Timeout:     p.parse("collector.timeout", raw.Collector.Timeout, 30*time.Second),
			MaxPages:    intOrDefault(raw.Collector.MaxPages, 10),
		},
		Processor: ProcessorConfig{
			BatchWorkers:      intOrDefault(raw.Processor.BatchWorkers, 4),
			ItemWorkers:       intOrDefault(raw.Processor.ItemWorkers, 8),
			EmbeddingAttempts: intOrDefault(raw.Processor.EmbeddingAttempts, 3),
			EmbeddingDelay:    p.parse("processor.embedding_delay", raw.Processor.EmbeddingDelay, time.Second),
		},
		Dedup: DedupConfig{
			FuzzyThreshold:     floatOrDefault(raw.Dedup.FuzzyThreshold, 0.85),
			EmbeddingThreshold: floatOrDefault(raw.Dedup.EmbeddingThreshold, 0.92),
			AutoMergeThreshold: floatOrDefault(raw.Dedup.AutoMergeThreshold, 0.9),
			CandidateLimit:     intOrDefault(raw.Dedup.CandidateLimit, 200),
			ConflictAttempts:   intOrDefault(raw.Dedup.ConflictAttempts, 3),
		},
		Embedding: EmbeddingConfig{
			Provider:  orDefault(raw.Embedding.Provider, "hash"),
			Model:     raw.Embedding.Model,
			BaseURL:   raw.Embedding.BaseURL,
			APIKey:    raw.Embedding.APIKey,
			Dimension: raw.Embedding.Dimension,
			Timeout:   p.parse("embedding.timeout", raw.Embedding.Timeout, 30*time.Second),
		},
		Skills: raw.Skills,
		Orchestrator: OrchestratorConfig{
			Schedule:    raw.Orchestrator.Schedule,
			Interval:    p.parse("orchestrator.interval", raw.Orchestrator.Interval, 6*time.Hour),
			SettleDelay: p.parse("orchestrator.settle_delay", raw.Orchestrator.SettleDelay, 5*time.Second),
			RunTimeout:  p.parse("orchestrator.run_timeout", raw.Orchestrator.RunTimeout, time.Hour),
		},
		Index: IndexConfig{
			PollInterval: p.parse("index.poll_interval", raw.Index.PollInterval, 5*time.Second),
			BatchSize:    intOrDefault(raw.Index.BatchSize, 100),
			MaxAttempts:  intOrDefault(raw.Index.MaxAttempts, 10),
			BaseDelay:    p.parse("index.base_delay", raw.Index.BaseDelay, 5*time.Second),
		},
		Lock: LockConfig{
			RedisAddr: raw.Lock.RedisAddr,
			TTL:       p.parse("lock.ttl", raw.Lock.TTL, 30*time.Second),
		},
		Notification: raw.Notification,
		API: APIConfig{
			Addr: orDefault(raw.API.Addr, ":8080"),
		},
	}
	if cfg.Notification.Type == "" {
		cfg.Notification.Type = "log"
	}

	for i, rs := range raw.Sources {
		src := rs.SourceConfig
		src.RateLimit = RateLimitConfig{
			Strategy: rs.RateLimit.Strategy,
			RPS:      rs.RateLimit.RPS,
			Burst:    rs.RateLimit.Burst,
			MinDelay: p.parse(fmt.Sprintf("sources[%d].rate_limit.min_delay", i), rs.RateLimit.MinDelay, 0),
		}
		cfg.Sources = append(cfg.Sources, src)
	}

	applyEmbeddingDefaults(&cfg.Embedding)

	if p.err != nil {
		return nil, p.err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EnabledSources returns the sources with enabled: true.
func (c *Config) EnabledSources() []SourceConfig {
	var out []SourceConfig
	for _, s := range c.Sources {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// Source looks up a source by name.
func (c *Config) Source(name string) (SourceConfig, bool) {
	for _, s := range c.Sources {
		if s.Name == name {
			return s, true
		}
	}
	return SourceConfig{}, false
}

func applyEmbeddingDefaults(e *EmbeddingConfig) {
	switch e.Provider {
	case "hash":
		if e.Model == "" {
			e.Model = defaultHashModel
		}
		if e.Dimension == 0 {
			e.Dimension = defaultHashDimension
		}
	case "openai":
		if e.BaseURL == "" {
			e.BaseURL = defaultOpenAIBaseURL
		}
		if e.Model == "" {
			e.Model = "text-embedding-3-small"
		}
		if e.Dimension == 0 {
			e.Dimension = 1536
		}
	case "ollama":
		if e.BaseURL == "" {
			e.BaseURL = defaultOllamaBaseURL
		}
		if e.Model == "" {
			e.Model = "nomic-embed-text"
		}
		if e.Dimension == 0 {
			e.Dimension = 768
		}
	}
}

func validate(cfg *Config) error {
	switch cfg.Storage.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("storage.driver must be \"sqlite\" or \"postgres\", got %q", cfg.Storage.Driver)
	}

	seen := make(map[string]bool)
	enabled := 0
	for _, s := range cfg.Sources {
		if s.Name == "" {
			return fmt.Errorf("every source needs a name")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate source name %q", s.Name)
		}
		seen[s.Name] = true
		switch s.Kind {
		case "greenhouse", "lever", "ashby":
			if s.BoardToken == "" {
				return fmt.Errorf("source %q: board_token is required for %s", s.Name, s.Kind)
			}
		case "workday":
			if s.WorkdayURL == "" {
				return fmt.Errorf("source %q: workday_url is required for workday", s.Name)
			}
		default:
			return fmt.Errorf("source %q: unknown kind %q", s.Name, s.Kind)
		}
		if s.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return fmt.Errorf("at least one source must be enabled")
	}

	if cfg.Collector.MaxAttempts < 1 {
		return fmt.Errorf("collector.max_attempts must be at least 1, got %d", cfg.Collector.MaxAttempts)
	}
	if cfg.Collector.Timeout <= 0 {
		return fmt.Errorf("collector.timeout must be positive, got %v", cfg.Collector.Timeout)
	}

	for name, v := range map[string]float64{
		"dedup.fuzzy_threshold":      cfg.Dedup.FuzzyThreshold,
		"dedup.embedding_threshold":  cfg.Dedup.EmbeddingThreshold,
		"dedup.auto_merge_threshold": cfg.Dedup.AutoMergeThreshold,
	} {
		if v <= 0 || v > 1 {
			return fmt.Errorf("%s must be in (0, 1], got %v", name, v)
		}
	}

	switch cfg.Embedding.Provider {
	case "hash", "ollama":
	case "openai":
		if cfg.Embedding.APIKey == "" {
			return fmt.Errorf("embedding.api_key is required when embedding.provider is \"openai\"")
		}
	default:
		return fmt.Errorf("embedding.provider must be hash, openai or ollama, got %q", cfg.Embedding.Provider)
	}
	if cfg.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be positive, got %d", cfg.Embedding.Dimension)
	}

	if cfg.Orchestrator.Schedule == "" && cfg.Orchestrator.Interval <= 0 {
		return fmt.Errorf("orchestrator.interval must be positive when no schedule is set, got %v", cfg.Orchestrator.Interval)
	}

	switch cfg.Notification.Type {
	case "log":
	case "slack":
		if cfg.Notification.WebhookURL == "" {
			return fmt.Errorf("notification.webhook_url is required when type is \"slack\"")
		}
		if !strings.HasPrefix(cfg.Notification.WebhookURL, "https://hooks.slack.com/") {
			return fmt.Errorf("notification.webhook_url must start with https://hooks.slack.com/")
		}
	case "amqp":
		if cfg.Notification.AMQP.URL == "" || cfg.Notification.AMQP.Exchange == "" {
			return fmt.Errorf("notification.amqp.url and notification.amqp.exchange are required when type is \"amqp\"")
		}
	default:
		return fmt.Errorf("notification.type must be log, slack or amqp, got %q", cfg.Notification.Type)
	}

	return nil
}

// durationParser keeps the first parse error so Parse can read top to bottom.
type durationParser struct {
	err error
}

func (p *durationParser) parse(field, value string, def time.Duration) time.Duration {
	if value == "" || p.err != nil {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		p.err = fmt.Errorf("parse %s %q: %w", field, value, err)
		return def
	}
	return d
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func intOrDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func floatOrDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}
