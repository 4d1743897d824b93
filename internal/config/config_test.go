// Package config_test tests the configuration loading for the voice-clone-service.
package config_test

import (
	"testing"
	"time"

	"github.com/book-expert/voice-clone-service/internal/config"
	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	tomlData := `
[server]
listen_address = ":9090"
public_base_url = "https://voices.example.com"
allowed_origins = ["https://app.example.com"]
max_upload_bytes = 1048576
request_timeout_seconds = 60

[models]
backend_url = "http://127.0.0.1:8001"
device = "cuda:0"
rate_limit_per_second = 2.5

[generation]
max_length = 1024
top_p = 0.95
temperature = 0.7
include_prompt_codes = true
normalize_text = true

[audio]
ffmpeg_path = "/usr/bin/ffmpeg"

[storage]
backend = "nats"

[nats]
url = "nats://127.0.0.1:4222"
clone_request_subject = "voice.clone.requested"
audio_object_store_bucket = "AUDIO_FILES"

[transcription]
enabled = true
language = "en"
`

	var cfg config.Config

	err := toml.Unmarshal([]byte(tomlData), &cfg)
	require.NoError(t, err)

	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":9090", cfg.Server.ListenAddress)
	assert.Equal(t, "https://voices.example.com", cfg.Server.PublicBaseURL)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, int64(1048576), cfg.Server.MaxUploadBytes)
	assert.Equal(t, time.Minute, cfg.RequestTimeout())
	assert.Equal(t, "http://127.0.0.1:8001", cfg.Models.BackendURL)
	assert.Equal(t, "cuda:0", cfg.Models.Device)
	assert.InEpsilon(t, 2.5, cfg.Models.RateLimitPerSecond, 0.001)
	assert.Equal(t, 1024, cfg.Generation.MaxLength)
	assert.InEpsilon(t, 0.95, cfg.Generation.TopP, 0.001)
	assert.InEpsilon(t, 0.7, cfg.Generation.Temperature, 0.001)
	assert.True(t, cfg.Generation.IncludePromptCodes)
	assert.True(t, cfg.Generation.NormalizeText)
	assert.Equal(t, "/usr/bin/ffmpeg", cfg.Audio.FFmpegPath)
	assert.Equal(t, config.StorageBackendNATS, cfg.Storage.Backend)
	assert.Equal(t, "voice.clone.requested", cfg.NATS.CloneRequestSubject)
	assert.Equal(t, "AUDIO_FILES", cfg.NATS.AudioObjectStoreBucket)
	assert.True(t, cfg.Transcription.Enabled)
	assert.Equal(t, config.DefaultTranscribeModel, cfg.Transcription.Model)
}

func TestApplyDefaults(t *testing.T) {
	t.Parallel()

	cfg := config.Config{Models: config.ModelsConfig{BackendURL: "http://localhost:8001"}}
	cfg.ApplyDefaults()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, config.DefaultListenAddress, cfg.Server.ListenAddress)
	assert.Equal(t, config.DefaultMaxLength, cfg.Generation.MaxLength)
	assert.InEpsilon(t, config.DefaultTopP, cfg.Generation.TopP, 0.001)
	assert.InEpsilon(t, config.DefaultTemperature, cfg.Generation.Temperature, 0.001)
	assert.Equal(t, config.DefaultPromptText, cfg.Generation.PromptText)
	assert.Equal(t, config.DefaultSampleRate, cfg.Audio.TargetSampleRate)
	assert.Equal(t, config.StorageBackendFile, cfg.Storage.Backend)
	assert.Equal(t, config.DefaultOutputDir, cfg.Storage.OutputDir)
	assert.Equal(t, config.DefaultDevice, cfg.Models.Device)
	assert.Equal(t, config.DefaultCloneSubject, cfg.NATS.CloneRequestSubject)
	assert.Equal(t, config.DefaultAudioBucket, cfg.NATS.AudioObjectStoreBucket)
	assert.Equal(t, time.Duration(config.DefaultModelTimeout)*time.Second, cfg.ModelTimeout())
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mutate func(cfg *config.Config)
		want   error
		name   string
	}{
		{name: "missing backend", mutate: func(cfg *config.Config) { cfg.Models.BackendURL = "" }, want: config.ErrBackendURLEmpty},
		{name: "negative max length", mutate: func(cfg *config.Config) { cfg.Generation.MaxLength = -1 }, want: config.ErrMaxLengthInvalid},
		{name: "top_p above one", mutate: func(cfg *config.Config) { cfg.Generation.TopP = 1.5 }, want: config.ErrTopPRange},
		{name: "negative temperature", mutate: func(cfg *config.Config) { cfg.Generation.Temperature = -0.1 }, want: config.ErrTemperatureRange},
		{name: "negative sample rate", mutate: func(cfg *config.Config) { cfg.Audio.TargetSampleRate = -1 }, want: config.ErrSampleRateFixed},
		{name: "other sample rate", mutate: func(cfg *config.Config) { cfg.Audio.TargetSampleRate = 24000 }, want: config.ErrSampleRateFixed},
		{name: "unknown storage", mutate: func(cfg *config.Config) { cfg.Storage.Backend = "s3" }, want: config.ErrStorageBackend},
		{name: "nats without url", mutate: func(cfg *config.Config) { cfg.Storage.Backend = config.StorageBackendNATS }, want: config.ErrNATSURLEmpty},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.Config{Models: config.ModelsConfig{BackendURL: "http://localhost:8001"}}
			cfg.ApplyDefaults()
			testCase.mutate(&cfg)

			require.ErrorIs(t, cfg.Validate(), testCase.want)
		})
	}
}
