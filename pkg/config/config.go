// Package config loads and validates station configuration.
//
// Tunables that are data rather than code (slot templates, DJ personas,
// forbidden-term sets, word-count targets) live in station.yaml so they can be
// changed without recompiling. Connection-level settings come from the
// environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the fully merged, validated station configuration.
type Config struct {
	Queue      *QueueConfig      `yaml:"queue"`
	Chunker    *ChunkerConfig    `yaml:"chunker"`
	Embedding  *EmbeddingConfig  `yaml:"embedding"`
	Retrieval  *RetrievalConfig  `yaml:"retrieval"`
	Generation *GenerationConfig `yaml:"generation"`
	TTS        *TTSConfig        `yaml:"tts"`
	Mastering  *MasteringConfig  `yaml:"mastering"`
	Playout    *PlayoutConfig    `yaml:"playout"`
	Retention  *RetentionConfig  `yaml:"retention"`
}

// Initialize loads, merges with defaults, and validates configuration.
// This is the primary entry point for configuration loading.
func Initialize(configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg := Default()

	path := filepath.Join(configDir, "station.yaml")
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		log.Warn("station.yaml not found, using built-in defaults", "path", path)
	case err != nil:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("Configuration initialized",
		"slot_templates", len(cfg.Generation.SlotTemplates),
		"personas", len(cfg.Generation.Personas),
		"forbidden_term_sets", len(cfg.Generation.ForbiddenTerms))
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Queue:      DefaultQueueConfig(),
		Chunker:    DefaultChunkerConfig(),
		Embedding:  DefaultEmbeddingConfig(),
		Retrieval:  DefaultRetrievalConfig(),
		Generation: DefaultGenerationConfig(),
		TTS:        DefaultTTSConfig(),
		Mastering:  DefaultMasteringConfig(),
		Playout:    DefaultPlayoutConfig(),
		Retention:  DefaultRetentionConfig(),
	}
}

// Validate checks the merged configuration for invalid values.
func (c *Config) Validate() error {
	if c.Queue.MaxConcurrentJobs < 1 {
		return fmt.Errorf("queue.max_concurrent_jobs must be >= 1")
	}
	if c.Queue.LeaseSeconds <= 0 {
		return fmt.Errorf("queue.lease_seconds must be positive")
	}
	if c.Chunker.MinTokens <= 0 || c.Chunker.MaxTokens <= c.Chunker.MinTokens {
		return fmt.Errorf("chunker token bounds invalid: min=%d max=%d",
			c.Chunker.MinTokens, c.Chunker.MaxTokens)
	}
	if c.Chunker.OverlapTokens < 0 || c.Chunker.OverlapTokens >= c.Chunker.MinTokens {
		return fmt.Errorf("chunker.overlap_tokens must be in [0, min_tokens)")
	}
	if c.Embedding.BatchSize < 1 {
		return fmt.Errorf("embedding.batch_size must be >= 1")
	}
	if c.Retrieval.VectorWeight+c.Retrieval.LexicalWeight != 1.0 {
		return fmt.Errorf("retrieval score weights must sum to 1.0")
	}
	if c.Generation.FutureYearOffset < 0 {
		return fmt.Errorf("generation.future_year_offset must be >= 0")
	}
	if c.Retention.CleanupInterval <= 0 {
		return fmt.Errorf("retention.cleanup_interval must be positive")
	}
	return nil
}

// LogLevel reads LOG_LEVEL (debug, info, warn, error; case-insensitive).
// Unset or unrecognized values mean Info.
func LogLevel() slog.Level {
	v := os.Getenv("LOG_LEVEL")
	if v == "" {
		return slog.LevelInfo
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		slog.Warn("Unrecognized LOG_LEVEL, using info", "value", v)
		return slog.LevelInfo
	}
	return level
}

// applyEnvOverrides maps the documented environment variables onto the config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MAX_CONCURRENT_JOBS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Queue.MaxConcurrentJobs = n
		}
	}
	if v := os.Getenv("FUTURE_YEAR_OFFSET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Generation.FutureYearOffset = n
		}
	}
	if v := os.Getenv("TONE_MIN_ACCEPTABLE_SCORE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Generation.ToneMinScore = n
		}
	}
	if v := os.Getenv("TTS_URL"); v != "" {
		cfg.TTS.URL = v
	}
	if v := os.Getenv("EMBEDDING_URL"); v != "" {
		cfg.Embedding.URL = v
	}
}
