package audio

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-clone-service/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFFmpeg(t *testing.T, script string) *FFmpegDecoder {
	t.Helper()

	log, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	binDir := t.TempDir()
	binary := filepath.Join(binDir, "ffmpeg")
	require.NoError(t, os.WriteFile(binary, []byte(script), 0o700))

	decoder := NewFFmpegDecoder(binary, log)
	decoder.tempDir = t.TempDir()

	return decoder
}

func TestNewFFmpegDecoder_EmptyPathDisables(t *testing.T) {
	t.Parallel()

	assert.Nil(t, NewFFmpegDecoder("", nil))
}

func TestFFmpegDecoder_ConvertsAndCleansUp(t *testing.T) {
	t.Parallel()

	fixture := filepath.Join(t.TempDir(), "fixture.wav")
	wavData, err := EncodeWAV(core.Waveform{Samples: make([]float32, 320), SampleRate: core.TargetSampleRate})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(fixture, wavData, 0o600))

	// Copies the fixture to the last argument, which is the output path.
	decoder := newTestFFmpeg(t, "#!/bin/sh\nfor last; do :; done\ncp '"+fixture+"' \"$last\"\n")

	normalizer := NewNormalizer(core.TargetSampleRate, nil, decoder)

	waveform, err := normalizer.Normalize(context.Background(), []byte("fLaC-pretend-flac-data"))
	require.NoError(t, err)
	assert.Len(t, waveform.Samples, 320)

	leftovers, err := os.ReadDir(decoder.tempDir)
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestFFmpegDecoder_FailureIsConversionErrorAndCleansUp(t *testing.T) {
	t.Parallel()

	decoder := newTestFFmpeg(t, "#!/bin/sh\necho 'invalid data' >&2\nexit 1\n")
	normalizer := NewNormalizer(core.TargetSampleRate, nil, decoder)

	_, err := normalizer.Normalize(context.Background(), []byte("OggS-not-really"))
	require.Error(t, err)
	require.ErrorIs(t, err, core.ErrAudioDecode)
	assert.Equal(t, core.KindConversion, core.KindOf(err))

	leftovers, err := os.ReadDir(decoder.tempDir)
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}
