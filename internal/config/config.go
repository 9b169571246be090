package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/imagedex/internal/domain/image"
)

// Database drivers.
const (
	DriverRedis     = "redis"
	DriverFirestore = "firestore"
	DriverMemory    = "memory"
	DriverBadger    = "badger"
)

// Provider names.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderNone   = "none"
)

// Config holds the imagedex configuration.
type Config struct {
	HTTP         HTTPConfig         `yaml:"http"`
	Database     DatabaseConfig     `yaml:"database"`
	Firestore    FirestoreConfig    `yaml:"firestore"`
	Local        LocalConfig        `yaml:"local"`
	Embedding    EmbeddingConfig    `yaml:"embedding"`
	Providers    ProvidersConfig    `yaml:"providers"`
	Pipeline     PipelineConfig     `yaml:"pipeline"`
	Cursor       CursorConfig       `yaml:"cursor"`
	Associations AssociationsConfig `yaml:"associations"`
	Auth         AuthConfig         `yaml:"auth"`
	Index        IndexConfig        `yaml:"index"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig selects the document store.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // redis, firestore, memory (default: redis)
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	KeyPrefix        string   `yaml:"key_prefix"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	WriteTimeoutSec  int      `yaml:"write_timeout_sec"` // 0 keeps the client default
}

// FirestoreConfig holds Cloud Firestore settings.
type FirestoreConfig struct {
	ProjectID  string `yaml:"project_id"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// LocalConfig holds settings for on-disk local state.
type LocalConfig struct {
	Dir string `yaml:"dir"`
}

// IndexConfig holds vector index settings.
type IndexConfig struct {
	Name            string   `yaml:"name"`
	Algorithm       string   `yaml:"algorithm"` // hnsw (default) or flat
	HNSWM           int      `yaml:"hnsw_m"`
	HNSWEFConstruct int      `yaml:"hnsw_ef_construction"`
	Distances       []string `yaml:"distances"`
	DefaultPageSize int      `yaml:"default_page_size"`
	MaxPageSize     int      `yaml:"max_page_size"`
}

// EmbeddingConfig lists the vector dimensions every record carries.
type EmbeddingConfig struct {
	Dimensions []int       `yaml:"dimensions"`
	Cache      CacheConfig `yaml:"cache"`
}

// CacheConfig holds text embedding cache settings.
type CacheConfig struct {
	Enabled  bool `yaml:"enabled"`
	TTLHours int  `yaml:"ttl_hours"`
}

// ProvidersConfig selects and configures annotation and embedding providers.
type ProvidersConfig struct {
	Annotator     string       `yaml:"annotator"`      // gemini, openai, none
	TextEmbedder  string       `yaml:"text_embedder"`  // gemini, openai, none
	ImageEmbedder string       `yaml:"image_embedder"` // gemini, none
	TimeoutSec    int          `yaml:"timeout_sec"`
	Gemini        GeminiConfig `yaml:"gemini"`
	OpenAI        OpenAIConfig `yaml:"openai"`
	Budget        BudgetConfig `yaml:"budget"`
}

// BudgetConfig caps provider token spend. Zero limits disable tracking.
type BudgetConfig struct {
	DailyTokens   int64  `yaml:"daily_tokens"`
	MonthlyTokens int64  `yaml:"monthly_tokens"`
	Action        string `yaml:"action"` // warn, reject (default: warn)
}

// Enabled reports whether any limit is set.
func (b BudgetConfig) Enabled() bool {
	return b.DailyTokens > 0 || b.MonthlyTokens > 0
}

// GeminiConfig holds Gemini settings. Project and Location switch to Vertex AI.
type GeminiConfig struct {
	APIKey         string `yaml:"api_key"`
	Project        string `yaml:"project"`
	Location       string `yaml:"location"`
	Model          string `yaml:"model"`
	EmbeddingModel string `yaml:"embedding_model"`
}

// OpenAIConfig holds OpenAI-compatible API settings.
type OpenAIConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	EmbeddingModel string `yaml:"embedding_model"`
}

// PipelineConfig holds enrichment run settings.
type PipelineConfig struct {
	Name            string `yaml:"name"`
	BatchSize       int    `yaml:"batch_size"`
	MaxPages        int    `yaml:"max_pages"` // 0 = until drained
	Concurrency     int    `yaml:"concurrency"`
	WrapAround      bool   `yaml:"wrap_around"`
	StoreRetries    int    `yaml:"store_retries"`
	ProviderTimeout int    `yaml:"provider_timeout_sec"`
	StoreTimeout    int    `yaml:"store_timeout_sec"`
}

// CursorConfig selects where the resume cursor is persisted.
type CursorConfig struct {
	Driver string `yaml:"driver"` // redis, badger
	Key    string `yaml:"key"`
}

// AssociationsConfig points at the company/album JSON-lines snapshot.
type AssociationsConfig struct {
	Path string `yaml:"path"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverRedis
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Database.KeyPrefix == "" {
		c.Database.KeyPrefix = "imagedex:"
	}
	if c.Firestore.Database == "" {
		c.Firestore.Database = "(default)"
	}
	if c.Firestore.Collection == "" {
		c.Firestore.Collection = "images"
	}
	if c.Local.Dir == "" {
		c.Local.Dir = ".imagedex"
	}
	if c.Index.Name == "" {
		c.Index.Name = "images"
	}
	if c.Index.Algorithm == "" {
		c.Index.Algorithm = "hnsw"
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 32
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 400
	}
	if len(c.Index.Distances) == 0 {
		c.Index.Distances = []string{string(image.DotProduct)}
	}
	if c.Index.DefaultPageSize <= 0 {
		c.Index.DefaultPageSize = 20
	}
	if c.Index.MaxPageSize <= 0 {
		c.Index.MaxPageSize = 100
	}
	if len(c.Embedding.Dimensions) == 0 {
		c.Embedding.Dimensions = []int{512, 1408}
	}
	if c.Embedding.Cache.TTLHours <= 0 {
		c.Embedding.Cache.TTLHours = 24 * 30
	}
	c.applyProviderDefaults()
	c.applyPipelineDefaults()
	if c.Cursor.Driver == "" {
		if c.Database.Driver == DriverRedis {
			c.Cursor.Driver = DriverRedis
		} else {
			c.Cursor.Driver = DriverBadger
		}
	}
	if c.Cursor.Key == "" {
		c.Cursor.Key = "cursor:" + c.Pipeline.Name
	}
}

func (c *Config) applyProviderDefaults() {
	p := &c.Providers
	if p.Annotator == "" {
		p.Annotator = ProviderGemini
	}
	if p.TextEmbedder == "" {
		p.TextEmbedder = ProviderGemini
	}
	if p.ImageEmbedder == "" {
		p.ImageEmbedder = ProviderGemini
	}
	if p.TimeoutSec <= 0 {
		p.TimeoutSec = 60
	}
	if p.Gemini.Model == "" {
		p.Gemini.Model = "gemini-2.5-flash"
	}
	if p.Gemini.EmbeddingModel == "" {
		p.Gemini.EmbeddingModel = "multimodalembedding@001"
	}
	if p.OpenAI.Model == "" {
		p.OpenAI.Model = "gpt-4o-mini"
	}
	if p.OpenAI.EmbeddingModel == "" {
		p.OpenAI.EmbeddingModel = "text-embedding-3-small"
	}
	if p.Budget.Action == "" {
		p.Budget.Action = "warn"
	}
}

func (c *Config) applyPipelineDefaults() {
	p := &c.Pipeline
	if p.Name == "" {
		p.Name = "rehydrate"
	}
	if p.BatchSize <= 0 {
		p.BatchSize = 200
	}
	if p.Concurrency <= 0 {
		p.Concurrency = 1
	}
	if p.StoreRetries <= 0 {
		p.StoreRetries = 3
	}
	if p.ProviderTimeout <= 0 {
		p.ProviderTimeout = 60
	}
	if p.StoreTimeout <= 0 {
		p.StoreTimeout = 15
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Database.Driver {
	case DriverRedis:
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required")
		}
	case DriverFirestore:
		if c.Firestore.ProjectID == "" {
			return fmt.Errorf("firestore.project_id is required")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("database.driver must be redis, firestore or memory, got %q", c.Database.Driver)
	}
	for _, dim := range c.Embedding.Dimensions {
		if dim <= 0 {
			return fmt.Errorf("embedding.dimensions must be positive, got %d", dim)
		}
	}
	for _, d := range c.Index.Distances {
		if _, err := image.ParseDistance(d); err != nil {
			return fmt.Errorf("index.distances: %w", err)
		}
	}
	if err := validateOneOf("index.algorithm", c.Index.Algorithm, "hnsw", "flat"); err != nil {
		return err
	}
	if err := validateOneOf("providers.annotator", c.Providers.Annotator,
		ProviderGemini, ProviderOpenAI, ProviderNone); err != nil {
		return err
	}
	if err := validateOneOf("providers.text_embedder", c.Providers.TextEmbedder,
		ProviderGemini, ProviderOpenAI, ProviderNone); err != nil {
		return err
	}
	if err := validateOneOf("providers.image_embedder", c.Providers.ImageEmbedder,
		ProviderGemini, ProviderNone); err != nil {
		return err
	}
	if err := validateOneOf("providers.budget.action", c.Providers.Budget.Action, "warn", "reject"); err != nil {
		return err
	}
	if c.Providers.Budget.DailyTokens < 0 || c.Providers.Budget.MonthlyTokens < 0 {
		return fmt.Errorf("providers.budget limits must not be negative")
	}
	switch c.Cursor.Driver {
	case DriverRedis:
		if c.Database.Driver != DriverRedis {
			return fmt.Errorf("cursor.driver redis requires database.driver redis")
		}
	case DriverBadger:
	default:
		return fmt.Errorf("cursor.driver must be redis or badger, got %q", c.Cursor.Driver)
	}
	if c.Pipeline.MaxPages < 0 {
		return fmt.Errorf("pipeline.max_pages must not be negative, got %d", c.Pipeline.MaxPages)
	}
	return nil
}

// ProviderTimeout is the per-call provider deadline.
func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.Pipeline.ProviderTimeout) * time.Second
}

// StoreTimeout is the per-call store deadline.
func (c *Config) StoreTimeout() time.Duration {
	return time.Duration(c.Pipeline.StoreTimeout) * time.Second
}

// Fields returns every configured embedding field in dimension order, text first.
func (c *Config) Fields() []image.EmbeddingField {
	out := make([]image.EmbeddingField, 0, 2*len(c.Embedding.Dimensions))
	for _, dim := range c.Embedding.Dimensions {
		for _, kind := range image.Kinds {
			out = append(out, image.Field(kind, dim))
		}
	}
	return out
}

// ParsedDistances returns Index.Distances as domain values. Call after Validate.
func (c *Config) ParsedDistances() []image.Distance {
	out := make([]image.Distance, 0, len(c.Index.Distances))
	for _, s := range c.Index.Distances {
		if d, err := image.ParseDistance(s); err == nil {
			out = append(out, d)
		}
	}
	return out
}

func validateOneOf(name, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", name, strings.Join(allowed, ", "), value)
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
