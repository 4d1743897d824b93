// Package audio decodes uploaded prompt audio into normalized mono waveforms and
// encodes generated waveforms as WAV.
package audio

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/book-expert/voice-clone-service/internal/core"
)

// Format represents a detected audio container.
type Format string

// Containers recognized by Detect.
const (
	FormatUnknown Format = ""
	FormatWAV     Format = "wav"
	FormatMP3     Format = "mp3"
	FormatFLAC    Format = "flac"
	FormatOGG     Format = "ogg"
	FormatM4A     Format = "m4a"
)

// Limits for waveform validation.
const (
	MaxSampleRate = 192000
	MaxChannels   = 8
)

const (
	errFmtSampleRateRange = "%w: sample rate must be between 1 and %d Hz, got %d"
	errFmtChannelsRange   = "%w: channels must be between 1 and %d, got %d"
	errFmtEmptyWaveform   = "%w: waveform has no samples"
)

// ErrInvalidWaveform reports a waveform that cannot be fed to the codec.
var ErrInvalidWaveform = errors.New("invalid waveform")

var (
	magicRIFF = []byte("RIFF")
	magicWAVE = []byte("WAVE")
	magicID3  = []byte("ID3")
	magicFLAC = []byte("fLaC")
	magicOGG  = []byte("OggS")
	magicFTYP = []byte("ftyp")
)

// Detect inspects magic bytes and reports the container format.
func Detect(raw []byte) Format {
	switch {
	case len(raw) >= 12 && bytes.Equal(raw[0:4], magicRIFF) && bytes.Equal(raw[8:12], magicWAVE):
		return FormatWAV
	case bytes.HasPrefix(raw, magicID3):
		return FormatMP3
	case len(raw) >= 2 && raw[0] == 0xFF && raw[1]&0xE0 == 0xE0 && raw[1]&0x06 != 0:
		// Layer bits 00 are reserved for MPEG audio and used by AAC ADTS.
		return FormatMP3
	case bytes.HasPrefix(raw, magicFLAC):
		return FormatFLAC
	case bytes.HasPrefix(raw, magicOGG):
		return FormatOGG
	case len(raw) >= 8 && bytes.Equal(raw[4:8], magicFTYP):
		return FormatM4A
	default:
		return FormatUnknown
	}
}

// ValidateWaveform checks that a waveform is non-empty and has a usable rate.
func ValidateWaveform(waveform core.Waveform) error {
	if waveform.SampleRate <= 0 || waveform.SampleRate > MaxSampleRate {
		return fmt.Errorf(errFmtSampleRateRange, ErrInvalidWaveform, MaxSampleRate, waveform.SampleRate)
	}

	if len(waveform.Samples) == 0 {
		return fmt.Errorf(errFmtEmptyWaveform, ErrInvalidWaveform)
	}

	return nil
}

func validateChannels(channels int) error {
	if channels <= 0 || channels > MaxChannels {
		return fmt.Errorf(errFmtChannelsRange, core.ErrAudioDecode, MaxChannels, channels)
	}

	return nil
}

// downmix averages interleaved channels into a mono signal.
func downmix(interleaved []float64, channels int) []float64 {
	if channels == 1 {
		return interleaved
	}

	frames := len(interleaved) / channels
	mono := make([]float64, frames)

	for frame := range frames {
		var sum float64

		for channel := range channels {
			sum += interleaved[frame*channels+channel]
		}

		mono[frame] = sum / float64(channels)
	}

	return mono
}
