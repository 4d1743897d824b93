package audio_test

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/voice-clone-service/internal/audio"
	"github.com/book-expert/voice-clone-service/internal/core"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sineWAV renders one channel of a 440 Hz tone as WAV bytes.
func sineWAV(t *testing.T, sampleRate int, seconds float64) []byte {
	t.Helper()

	count := int(float64(sampleRate) * seconds)
	samples := make([]float32, count)

	for i := range samples {
		samples[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
	}

	data, err := audio.EncodeWAV(core.Waveform{Samples: samples, SampleRate: sampleRate})
	require.NoError(t, err)

	return data
}

// stereoWAV writes interleaved 16-bit frames with the given left/right values.
func stereoWAV(t *testing.T, sampleRate, frames int, left, right int) []byte {
	t.Helper()

	path := filepath.Join(t.TempDir(), "stereo.wav")

	file, err := os.Create(path)
	require.NoError(t, err)

	data := make([]int, 0, frames*2)
	for range frames {
		data = append(data, left, right)
	}

	encoder := wav.NewEncoder(file, sampleRate, 16, 2, 1)
	require.NoError(t, encoder.Write(&goaudio.IntBuffer{
		Data:           data,
		Format:         &goaudio.Format{SampleRate: sampleRate, NumChannels: 2},
		SourceBitDepth: 16,
	}))
	require.NoError(t, encoder.Close())
	require.NoError(t, file.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	return raw
}

func TestDetect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want audio.Format
		raw  []byte
	}{
		{name: "wav", raw: []byte("RIFF\x00\x00\x00\x00WAVEfmt "), want: audio.FormatWAV},
		{name: "id3 mp3", raw: []byte("ID3\x04\x00"), want: audio.FormatMP3},
		{name: "mpeg frame", raw: []byte{0xFF, 0xFB, 0x90, 0x00}, want: audio.FormatMP3},
		{name: "aac adts mpeg-4", raw: []byte{0xFF, 0xF1, 0x50, 0x80}, want: audio.FormatUnknown},
		{name: "aac adts mpeg-2", raw: []byte{0xFF, 0xF9, 0x50, 0x80}, want: audio.FormatUnknown},
		{name: "flac", raw: []byte("fLaC\x00"), want: audio.FormatFLAC},
		{name: "ogg", raw: []byte("OggS\x00"), want: audio.FormatOGG},
		{name: "m4a", raw: []byte("\x00\x00\x00\x20ftypM4A "), want: audio.FormatM4A},
		{name: "text", raw: []byte("hello world"), want: audio.FormatUnknown},
		{name: "short", raw: []byte{0x01}, want: audio.FormatUnknown},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.want, audio.Detect(testCase.raw))
		})
	}
}

func TestNormalize_TargetRateIsIdempotent(t *testing.T) {
	t.Parallel()

	original := make([]float32, core.TargetSampleRate)
	for i := range original {
		original[i] = float32(0.25 * math.Sin(2*math.Pi*220*float64(i)/core.TargetSampleRate))
	}

	raw, err := audio.EncodeWAV(core.Waveform{Samples: original, SampleRate: core.TargetSampleRate})
	require.NoError(t, err)

	normalizer := audio.NewNormalizer(core.TargetSampleRate, nil, nil)

	waveform, err := normalizer.Normalize(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, core.TargetSampleRate, waveform.SampleRate)
	require.Len(t, waveform.Samples, len(original))

	for i := range original {
		assert.InDelta(t, original[i], waveform.Samples[i], 1.0/16000)
	}
}

func TestNormalize_ResamplesTo16k(t *testing.T) {
	t.Parallel()

	raw := sineWAV(t, 44100, 1.0)
	normalizer := audio.NewNormalizer(core.TargetSampleRate, nil, nil)

	waveform, err := normalizer.Normalize(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, core.TargetSampleRate, waveform.SampleRate)
	assert.InDelta(t, 16000, len(waveform.Samples), 100, "the resampler tail must be flushed")
}

func TestNormalize_DownmixesStereo(t *testing.T) {
	t.Parallel()

	normalizer := audio.NewNormalizer(core.TargetSampleRate, nil, nil)

	cancelling := stereoWAV(t, core.TargetSampleRate, 1600, 16384, -16384)

	waveform, err := normalizer.Normalize(context.Background(), cancelling)
	require.NoError(t, err)
	require.Len(t, waveform.Samples, 1600)
	assert.InDelta(t, 0.0, waveform.Samples[100], 1e-6)

	equal := stereoWAV(t, core.TargetSampleRate, 1600, 8192, 8192)

	waveform, err = normalizer.Normalize(context.Background(), equal)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, waveform.Samples[100], 1e-4)
}

func TestNormalize_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		want     error
		name     string
		raw      []byte
		wantKind core.Kind
	}{
		{name: "empty", raw: nil, wantKind: core.KindInput, want: core.ErrAudioMissing},
		{name: "unknown container", raw: []byte("definitely not audio"), wantKind: core.KindInput, want: core.ErrUnsupportedFormat},
		{name: "flac without fallback", raw: []byte("fLaC\x00\x00\x00\x22"), wantKind: core.KindInput, want: core.ErrUnsupportedFormat},
		{name: "aac adts without fallback", raw: []byte{0xFF, 0xF1, 0x50, 0x80, 0x02, 0x1F, 0xFC}, wantKind: core.KindInput, want: core.ErrUnsupportedFormat},
		{
			name:     "corrupt wav",
			raw:      []byte("RIFF\x24\x00\x00\x00WAVEjunkjunkjunkjunk"),
			wantKind: core.KindConversion,
			want:     core.ErrAudioDecode,
		},
	}

	normalizer := audio.NewNormalizer(core.TargetSampleRate, nil, nil)

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			_, err := normalizer.Normalize(context.Background(), testCase.raw)
			require.Error(t, err)
			require.ErrorIs(t, err, testCase.want)
			assert.Equal(t, testCase.wantKind, core.KindOf(err))
		})
	}
}

func TestEncodeWAV_RejectsEmptyWaveform(t *testing.T) {
	t.Parallel()

	_, err := audio.EncodeWAV(core.Waveform{SampleRate: core.TargetSampleRate})
	require.ErrorIs(t, err, audio.ErrInvalidWaveform)

	_, err = audio.EncodeWAV(core.Waveform{Samples: []float32{0.1}})
	require.ErrorIs(t, err, audio.ErrInvalidWaveform)
}

func TestEncodeWAV_ClampsOutOfRange(t *testing.T) {
	t.Parallel()

	raw, err := audio.EncodeWAV(core.Waveform{Samples: []float32{2.0, -2.0, 0}, SampleRate: core.TargetSampleRate})
	require.NoError(t, err)
	assert.Equal(t, audio.FormatWAV, audio.Detect(raw))

	waveform, err := audio.NewNormalizer(core.TargetSampleRate, nil, nil).Normalize(context.Background(), raw)
	require.NoError(t, err)
	require.Len(t, waveform.Samples, 3)
	assert.InDelta(t, 1.0, waveform.Samples[0], 1e-3)
	assert.InDelta(t, -1.0, waveform.Samples[1], 1e-3)
}
