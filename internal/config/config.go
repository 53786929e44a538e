// Package config handles loading and hot-reloading configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

// Config is the full caselight configuration.
type Config struct {
	OpenAI      OpenAIConfig      `mapstructure:"openai" yaml:"openai"`
	VectorStore VectorStoreConfig `mapstructure:"vector_store" yaml:"vector_store"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline" yaml:"pipeline"`
	Boundary    BoundaryConfig    `mapstructure:"boundary" yaml:"boundary"`
	Chunking    ChunkingConfig    `mapstructure:"chunking" yaml:"chunking"`
	Facts       FactsConfig       `mapstructure:"facts" yaml:"facts"`
	Timeouts    TimeoutConfig     `mapstructure:"timeouts" yaml:"timeouts"`
	Retry       RetryConfig       `mapstructure:"retry" yaml:"retry"`
}

// OpenAIConfig configures the LLM and embedding clients.
type OpenAIConfig struct {
	APIKey         string  `mapstructure:"api_key" yaml:"api_key"`
	ChatModel      string  `mapstructure:"chat_model" yaml:"chat_model"`
	EmbedModel     string  `mapstructure:"embed_model" yaml:"embed_model"`
	RateLimit      float64 `mapstructure:"rate_limit" yaml:"rate_limit"` // requests/sec
	EmbedBatchSize int     `mapstructure:"embed_batch_size" yaml:"embed_batch_size"`
}

// VectorStoreConfig configures the Qdrant adapter and its container.
type VectorStoreConfig struct {
	URL               string   `mapstructure:"url" yaml:"url"`
	VectorDim         int      `mapstructure:"vector_dim" yaml:"vector_dim"`
	UpsertBatchSize   int      `mapstructure:"upsert_batch_size" yaml:"upsert_batch_size"`
	SparseMaxEntries  int      `mapstructure:"sparse_max_entries" yaml:"sparse_max_entries"`
	SharedCollections []string `mapstructure:"shared_collections" yaml:"shared_collections"`
	ManageContainer   bool     `mapstructure:"manage_container" yaml:"manage_container"`
	ContainerImage    string   `mapstructure:"container_image" yaml:"container_image"`
	ContainerName     string   `mapstructure:"container_name" yaml:"container_name"`
	HostPort          string   `mapstructure:"host_port" yaml:"host_port"`
}

// PipelineConfig holds the orchestrator concurrency knobs.
type PipelineConfig struct {
	FileConcurrency     int     `mapstructure:"file_concurrency" yaml:"file_concurrency"`         // N
	SegmentConcurrency  int     `mapstructure:"segment_concurrency" yaml:"segment_concurrency"`   // M
	EmbedInflight       int     `mapstructure:"embed_inflight" yaml:"embed_inflight"`             // B
	UpsertInflight      int     `mapstructure:"upsert_inflight" yaml:"upsert_inflight"`           // U
	SegmentFailureAbort float64 `mapstructure:"segment_failure_abort" yaml:"segment_failure_abort"`
}

// BoundaryConfig tunes the boundary detector.
type BoundaryConfig struct {
	SoftThreshold  float64 `mapstructure:"soft_threshold" yaml:"soft_threshold"`
	OCRRelaxFactor float64 `mapstructure:"ocr_relax_factor" yaml:"ocr_relax_factor"`
}

// ChunkingConfig tunes the chunker.
type ChunkingConfig struct {
	TargetTokens  int `mapstructure:"target_tokens" yaml:"target_tokens"`
	OverlapTokens int `mapstructure:"overlap_tokens" yaml:"overlap_tokens"`
}

// FactsConfig tunes fact extraction and deduplication.
type FactsConfig struct {
	DedupCosine   float64 `mapstructure:"dedup_cosine" yaml:"dedup_cosine"`
	DedupTextSim  float64 `mapstructure:"dedup_text_sim" yaml:"dedup_text_sim"`
	ClassifyFloor float64 `mapstructure:"classify_floor" yaml:"classify_floor"`
}

// TimeoutConfig holds per-RPC timeouts.
type TimeoutConfig struct {
	BoundaryDetect time.Duration `mapstructure:"boundary_detect" yaml:"boundary_detect"`
	Classify       time.Duration `mapstructure:"classify" yaml:"classify"`
	EmbedBatch     time.Duration `mapstructure:"embed_batch" yaml:"embed_batch"`
	UpsertBatch    time.Duration `mapstructure:"upsert_batch" yaml:"upsert_batch"`
	FactExtract    time.Duration `mapstructure:"fact_extract" yaml:"fact_extract"`
}

// RetryConfig bounds retries for idempotent operations.
type RetryConfig struct {
	MaxAttempts uint          `mapstructure:"max_attempts" yaml:"max_attempts"`
	MaxDelay    time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
}

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a new config manager and loads initial config.
func NewManager(cfgFile string) (*Manager, error) {
	cm := &Manager{
		callbacks: make([]func(*Config), 0),
	}

	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile string) error {
	defaults := DefaultConfig()
	viper.SetDefault("openai", defaults.OpenAI)
	viper.SetDefault("vector_store", defaults.VectorStore)
	viper.SetDefault("pipeline", defaults.Pipeline)
	viper.SetDefault("boundary", defaults.Boundary)
	viper.SetDefault("chunking", defaults.Chunking)
	viper.SetDefault("facts", defaults.Facts)
	viper.SetDefault("timeouts", defaults.Timeouts)
	viper.SetDefault("retry", defaults.Retry)

	// Environment variables with CASELIGHT_ prefix
	viper.SetEnvPrefix("CASELIGHT")
	viper.AutomaticEnv()

	// Config file
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.caselight")
	}

	// Try to read config file (not required)
	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration.
func (cm *Manager) WatchConfig() {
	viper.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	viper.WatchConfig()
}

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	pattern := regexp.MustCompile(`\$\{([^}]+)\}`)
	return pattern.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// ResolveAPIKey returns the OpenAI API key with env references expanded.
func (c *Config) ResolveAPIKey() string {
	return ResolveEnvVars(c.OpenAI.APIKey)
}

// IsSharedCollection reports whether name is one of the configured shared,
// case-independent collections.
func (c *Config) IsSharedCollection(name string) bool {
	for _, s := range c.VectorStore.SharedCollections {
		if s == name {
			return true
		}
	}
	return false
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Caselight configuration
# API keys use ${ENV_VAR} syntax to reference environment variables
# Set these in your shell: export OPENAI_API_KEY=xxx

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
