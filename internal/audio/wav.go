package audio

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/book-expert/voice-clone-service/internal/core"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
)

const (
	wavFormatPCM    = 1
	outputBitDepth  = 16
	outputChannels  = 1
	maxInt16        = 32767
	filePermissions = 0o600
)

// pcm is decoded interleaved audio normalized to [-1, 1].
type pcm struct {
	samples    []float64
	sampleRate int
	channels   int
}

func decodeWAV(raw []byte) (*pcm, error) {
	decoder := wav.NewDecoder(bytes.NewReader(raw))
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("%w: invalid wav header", core.ErrAudioDecode)
	}

	if decoder.WavAudioFormat != wavFormatPCM {
		return nil, fmt.Errorf("%w: wav audio format %d", core.ErrUnsupportedFormat, decoder.WavAudioFormat)
	}

	buffer, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrAudioDecode, err)
	}

	channels := buffer.Format.NumChannels

	channelsErr := validateChannels(channels)
	if channelsErr != nil {
		return nil, channelsErr
	}

	bitDepth := buffer.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = int(decoder.BitDepth)
	}

	samples, convErr := intToFloat(buffer.Data, bitDepth)
	if convErr != nil {
		return nil, convErr
	}

	return &pcm{samples: samples, sampleRate: buffer.Format.SampleRate, channels: channels}, nil
}

func intToFloat(data []int, bitDepth int) ([]float64, error) {
	samples := make([]float64, len(data))

	switch bitDepth {
	case 8:
		// 8-bit PCM is unsigned.
		for i, value := range data {
			samples[i] = float64(value-128) / 128.0
		}
	case 16, 24, 32:
		scale := math.Exp2(float64(bitDepth - 1))
		for i, value := range data {
			samples[i] = float64(value) / scale
		}
	default:
		return nil, fmt.Errorf("%w: unsupported bit depth %d", core.ErrAudioDecode, bitDepth)
	}

	return samples, nil
}

// EncodeWAV renders a mono waveform as 16-bit PCM WAV. The encoder needs a
// seekable writer, so the data passes through a uniquely named temp file that is
// always removed.
func EncodeWAV(waveform core.Waveform) ([]byte, error) {
	validateErr := ValidateWaveform(waveform)
	if validateErr != nil {
		return nil, validateErr
	}

	tempPath := filepath.Join(os.TempDir(), "voice-clone-"+uuid.NewString()+".wav")

	file, err := os.OpenFile(tempPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, filePermissions)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp wav file: %w", err)
	}

	defer os.Remove(tempPath)

	writeErr := writeWAV(file, waveform)
	closeErr := file.Close()

	if writeErr != nil {
		return nil, writeErr
	}

	if closeErr != nil {
		return nil, fmt.Errorf("failed to close temp wav file: %w", closeErr)
	}

	data, err := os.ReadFile(tempPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read temp wav file: %w", err)
	}

	return data, nil
}

func writeWAV(file *os.File, waveform core.Waveform) error {
	intData := make([]int, len(waveform.Samples))

	for i, sample := range waveform.Samples {
		clamped := math.Max(-1.0, math.Min(1.0, float64(sample)))
		intData[i] = int(math.Round(clamped * maxInt16))
	}

	encoder := wav.NewEncoder(file, waveform.SampleRate, outputBitDepth, outputChannels, wavFormatPCM)
	buffer := &goaudio.IntBuffer{
		Data:           intData,
		Format:         &goaudio.Format{SampleRate: waveform.SampleRate, NumChannels: outputChannels},
		SourceBitDepth: outputBitDepth,
	}

	err := encoder.Write(buffer)
	if err != nil {
		return fmt.Errorf("failed to write wav data: %w", err)
	}

	err = encoder.Close()
	if err != nil {
		return fmt.Errorf("failed to finalize wav data: %w", err)
	}

	return nil
}
