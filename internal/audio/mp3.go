package audio

import (
	"bytes"
	"fmt"
	"io"

	"github.com/book-expert/voice-clone-service/internal/core"
	"github.com/hajimehoshi/go-mp3"
)

// go-mp3 always emits 16-bit little-endian stereo.
const (
	mp3Channels    = 2
	mp3SampleBytes = 2
	int16Scale     = 32768.0
)

func decodeMP3(raw []byte) (*pcm, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrAudioDecode, err)
	}

	data, err := io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrAudioDecode, err)
	}

	count := len(data) / mp3SampleBytes
	if count == 0 {
		return nil, fmt.Errorf("%w: mp3 stream has no frames", core.ErrAudioDecode)
	}

	samples := make([]float64, count)
	for i := range count {
		value := int16(uint16(data[2*i]) | uint16(data[2*i+1])<<8)
		samples[i] = float64(value) / int16Scale
	}

	return &pcm{samples: samples, sampleRate: decoder.SampleRate(), channels: mp3Channels}, nil
}
