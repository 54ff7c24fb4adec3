package config

import "time"

// ChunkerConfig bounds the sentence-window chunker.
type ChunkerConfig struct {
	MinTokens     int `yaml:"min_tokens"`
	MaxTokens     int `yaml:"max_tokens"`
	OverlapTokens int `yaml:"overlap_tokens"`
}

// DefaultChunkerConfig returns the built-in chunker defaults.
func DefaultChunkerConfig() *ChunkerConfig {
	return &ChunkerConfig{
		MinTokens:     300,
		MaxTokens:     800,
		OverlapTokens: 50,
	}
}

// EmbeddingConfig tunes the embedding service and its cache.
type EmbeddingConfig struct {
	URL             string        `yaml:"url"`
	BatchSize       int           `yaml:"batch_size"`
	InterBatchDelay time.Duration `yaml:"inter_batch_delay"`
	CacheSize       int           `yaml:"cache_size"`
	Timeout         time.Duration `yaml:"timeout"` // per batch
}

// DefaultEmbeddingConfig returns the built-in embedding defaults.
func DefaultEmbeddingConfig() *EmbeddingConfig {
	return &EmbeddingConfig{
		URL:             "http://localhost:8090",
		BatchSize:       32,
		InterBatchDelay: 500 * time.Millisecond,
		CacheSize:       10000,
		Timeout:         30 * time.Second,
	}
}

// RetrievalConfig tunes the hybrid retrieval pipeline.
type RetrievalConfig struct {
	DefaultTopK     int           `yaml:"default_top_k"`
	VectorThreshold float64       `yaml:"vector_threshold"`
	VectorWeight    float64       `yaml:"vector_weight"`
	LexicalWeight   float64       `yaml:"lexical_weight"`
	MaxKeywords     int           `yaml:"max_keywords"`
	MaxRecencyBoost float64       `yaml:"max_recency_boost"`
	Budget          time.Duration `yaml:"budget"`
}

// DefaultRetrievalConfig returns the built-in retrieval defaults.
func DefaultRetrievalConfig() *RetrievalConfig {
	return &RetrievalConfig{
		DefaultTopK:     12,
		VectorThreshold: 0.3,
		VectorWeight:    0.7,
		LexicalWeight:   0.3,
		MaxKeywords:     10,
		MaxRecencyBoost: 0.3,
		Budget:          2000 * time.Millisecond,
	}
}

// TTSConfig points at the external synthesis server.
type TTSConfig struct {
	URL     string        `yaml:"url"`
	Model   string        `yaml:"model"`
	Speed   float64       `yaml:"speed"`
	Timeout time.Duration `yaml:"timeout"` // per call

	// InterTurnSilence is the gap inserted between dialogue turns when
	// multi-speaker audio is concatenated.
	InterTurnSilence time.Duration `yaml:"inter_turn_silence"`
}

// DefaultTTSConfig returns the built-in TTS defaults.
func DefaultTTSConfig() *TTSConfig {
	return &TTSConfig{
		URL:              "http://localhost:8100",
		Model:            "aether-voice-1",
		Speed:            1.0,
		Timeout:          60 * time.Second,
		InterTurnSilence: 800 * time.Millisecond,
	}
}

// MasteringConfig holds loudness normalization targets and tolerances.
type MasteringConfig struct {
	SpeechLUFS    float64       `yaml:"speech_lufs"`
	MusicLUFS     float64       `yaml:"music_lufs"`
	PeakCeiling   float64       `yaml:"peak_ceiling"` // dBTP
	LUFSTolerance float64       `yaml:"lufs_tolerance"`
	Timeout       time.Duration `yaml:"timeout"` // per normalization run
}

// DefaultMasteringConfig returns the built-in mastering defaults.
func DefaultMasteringConfig() *MasteringConfig {
	return &MasteringConfig{
		SpeechLUFS:    -16.0,
		MusicLUFS:     -14.0,
		PeakCeiling:   -1.0,
		LUFSTolerance: 1.0,
		Timeout:       300 * time.Second,
	}
}

// TargetLUFS returns the loudness target for a finalize content type.
func (c *MasteringConfig) TargetLUFS(contentType string) float64 {
	if contentType == "speech" {
		return c.SpeechLUFS
	}
	return c.MusicLUFS
}

// PlayoutConfig tunes the playout feed.
type PlayoutConfig struct {
	SignedURLTTL time.Duration `yaml:"signed_url_ttl"`
	DefaultLimit int           `yaml:"default_limit"`
}

// DefaultPlayoutConfig returns the built-in playout defaults.
func DefaultPlayoutConfig() *PlayoutConfig {
	return &PlayoutConfig{
		SignedURLTTL: time.Hour,
		DefaultLimit: 5,
	}
}
