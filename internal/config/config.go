// Package config provides the configuration structure for the voice-clone-service.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/book-expert/voice-clone-service/internal/core"
)

// Reference defaults for the generation and audio stages.
const (
	DefaultListenAddress    = ":8000"
	DefaultMaxUploadBytes   = 20 << 20
	DefaultRequestTimeout   = 300
	DefaultModelTimeout     = 120
	DefaultDevice           = "auto"
	DefaultTokenizer        = "HKUST-Audio/Llasa-1B"
	DefaultLanguageModel    = "HKUST-Audio/Llasa-1B"
	DefaultCodec            = "HKUST-Audio/xcodec2"
	DefaultMaxLength        = 2048
	DefaultTopP             = 1.0
	DefaultTemperature      = 0.8
	DefaultPromptText       = "This is prompt voice. "
	DefaultSampleRate       = core.TargetSampleRate
	DefaultStorageBackend   = StorageBackendFile
	DefaultOutputDir        = "static/generated_audio"
	DefaultTranscribeModel  = "whisper-1"
	DefaultTranscribeKeyEnv = "OPENAI_API_KEY"
	DefaultCloneSubject     = "voice.clone.requested"
	DefaultAudioBucket      = "voice-clone-audio"
)

// Storage backends.
const (
	StorageBackendFile = "file"
	StorageBackendNATS = "nats"
)

// Validation errors.
var (
	ErrBackendURLEmpty   = errors.New("models.backend_url cannot be empty")
	ErrMaxLengthInvalid  = errors.New("generation.max_length must be positive")
	ErrTopPRange         = errors.New("generation.top_p must be in (0.0, 1.0]")
	ErrTemperatureRange  = errors.New("generation.temperature must be > 0.0")
	ErrSampleRateFixed   = errors.New("audio.target_sample_rate must be 16000, the codec rate")
	ErrStorageBackend    = errors.New("storage.backend must be 'file' or 'nats'")
	ErrNATSURLEmpty      = errors.New("nats.url is required for the nats storage backend")
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	ListenAddress         string   `toml:"listen_address"`
	PublicBaseURL         string   `toml:"public_base_url"`
	AllowedOrigins        []string `toml:"allowed_origins"`
	MaxUploadBytes        int64    `toml:"max_upload_bytes"`
	RequestTimeoutSeconds int      `toml:"request_timeout_seconds"`
}

// ModelsConfig describes where the model handles live and how they are placed.
type ModelsConfig struct {
	BackendURL         string  `toml:"backend_url"`
	Tokenizer          string  `toml:"tokenizer"`
	LanguageModel      string  `toml:"language_model"`
	Codec              string  `toml:"codec"`
	Device             string  `toml:"device"`
	TimeoutSeconds     int     `toml:"timeout_seconds"`
	RateLimitPerSecond float64 `toml:"rate_limit_per_second"`
}

// GenerationConfig holds the prompted generation parameters.
type GenerationConfig struct {
	PromptText         string  `toml:"prompt_text"`
	MaxLength          int     `toml:"max_length"`
	TopP               float64 `toml:"top_p"`
	Temperature        float64 `toml:"temperature"`
	IncludePromptCodes bool    `toml:"include_prompt_codes"`
	NormalizeText      bool    `toml:"normalize_text"`
}

// AudioConfig holds the normalizer settings.
type AudioConfig struct {
	FFmpegPath       string `toml:"ffmpeg_path"`
	TargetSampleRate int    `toml:"target_sample_rate"`
}

// StorageConfig selects where generated audio is kept.
type StorageConfig struct {
	Backend   string `toml:"backend"`
	OutputDir string `toml:"output_dir"`
}

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                    string `toml:"url"`
	CloneRequestSubject    string `toml:"clone_request_subject"`
	AudioObjectStoreBucket string `toml:"audio_object_store_bucket"`
}

// TranscriptionConfig enables prompt transcription through a Whisper-compatible API.
type TranscriptionConfig struct {
	APIKeyEnv string `toml:"api_key_env"`
	BaseURL   string `toml:"base_url"`
	Model     string `toml:"model"`
	Language  string `toml:"language"`
	Enabled   bool   `toml:"enabled"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	Server        ServerConfig        `toml:"server"`
	Models        ModelsConfig        `toml:"models"`
	Generation    GenerationConfig    `toml:"generation"`
	Audio         AudioConfig         `toml:"audio"`
	Storage       StorageConfig       `toml:"storage"`
	NATS          NATSConfig          `toml:"nats"`
	Transcription TranscriptionConfig `toml:"transcription"`
	Paths         PathsConfig         `toml:"paths"`
}

// Load loads the configuration for the voice-clone-service, fills defaults and
// validates the result.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.ApplyDefaults()

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &cfg, nil
}

// ApplyDefaults fills every unset field with its reference value.
func (c *Config) ApplyDefaults() {
	c.Server.ListenAddress = orDefault(c.Server.ListenAddress, DefaultListenAddress)

	if c.Server.MaxUploadBytes <= 0 {
		c.Server.MaxUploadBytes = DefaultMaxUploadBytes
	}

	if c.Server.RequestTimeoutSeconds <= 0 {
		c.Server.RequestTimeoutSeconds = DefaultRequestTimeout
	}

	c.Models.Tokenizer = orDefault(c.Models.Tokenizer, DefaultTokenizer)
	c.Models.LanguageModel = orDefault(c.Models.LanguageModel, DefaultLanguageModel)
	c.Models.Codec = orDefault(c.Models.Codec, DefaultCodec)
	c.Models.Device = orDefault(c.Models.Device, DefaultDevice)

	if c.Models.TimeoutSeconds <= 0 {
		c.Models.TimeoutSeconds = DefaultModelTimeout
	}

	c.Generation.PromptText = orDefault(c.Generation.PromptText, DefaultPromptText)

	if c.Generation.MaxLength == 0 {
		c.Generation.MaxLength = DefaultMaxLength
	}

	if c.Generation.TopP == 0 {
		c.Generation.TopP = DefaultTopP
	}

	if c.Generation.Temperature == 0 {
		c.Generation.Temperature = DefaultTemperature
	}

	if c.Audio.TargetSampleRate == 0 {
		c.Audio.TargetSampleRate = DefaultSampleRate
	}

	c.Storage.Backend = orDefault(c.Storage.Backend, DefaultStorageBackend)
	c.Storage.OutputDir = orDefault(c.Storage.OutputDir, DefaultOutputDir)

	c.NATS.CloneRequestSubject = orDefault(c.NATS.CloneRequestSubject, DefaultCloneSubject)
	c.NATS.AudioObjectStoreBucket = orDefault(c.NATS.AudioObjectStoreBucket, DefaultAudioBucket)

	c.Transcription.Model = orDefault(c.Transcription.Model, DefaultTranscribeModel)
	c.Transcription.APIKeyEnv = orDefault(c.Transcription.APIKeyEnv, DefaultTranscribeKeyEnv)
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if c.Models.BackendURL == "" {
		return ErrBackendURLEmpty
	}

	if c.Generation.MaxLength <= 0 {
		return fmt.Errorf("%w: got %d", ErrMaxLengthInvalid, c.Generation.MaxLength)
	}

	if c.Generation.TopP <= 0.0 || c.Generation.TopP > 1.0 {
		return fmt.Errorf("%w: got %f", ErrTopPRange, c.Generation.TopP)
	}

	if c.Generation.Temperature <= 0.0 {
		return fmt.Errorf("%w: got %f", ErrTemperatureRange, c.Generation.Temperature)
	}

	if c.Audio.TargetSampleRate != core.TargetSampleRate {
		return fmt.Errorf("%w: got %d", ErrSampleRateFixed, c.Audio.TargetSampleRate)
	}

	switch c.Storage.Backend {
	case StorageBackendFile:
	case StorageBackendNATS:
		if c.NATS.URL == "" {
			return ErrNATSURLEmpty
		}
	default:
		return fmt.Errorf("%w: got %q", ErrStorageBackend, c.Storage.Backend)
	}

	return nil
}

// RequestTimeout returns the deadline applied to a single clone request.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// ModelTimeout returns the deadline applied to a single backend call.
func (c *Config) ModelTimeout() time.Duration {
	return time.Duration(c.Models.TimeoutSeconds) * time.Second
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}

	return value
}
