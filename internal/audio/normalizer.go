package audio

import (
	"context"
	"errors"
	"fmt"

	"github.com/book-expert/voice-clone-service/internal/core"
)

const stageNormalize = "normalize"

// Normalizer decodes uploaded prompt audio and emits a mono waveform at the
// target rate.
type Normalizer struct {
	resampler  Resampler
	ffmpeg     *FFmpegDecoder
	targetRate int
}

// NewNormalizer creates a Normalizer. A nil ffmpeg decoder limits input to WAV and MP3.
func NewNormalizer(targetRate int, resampler Resampler, ffmpeg *FFmpegDecoder) *Normalizer {
	if resampler == nil {
		resampler = PolyphaseResampler{}
	}

	return &Normalizer{targetRate: targetRate, resampler: resampler, ffmpeg: ffmpeg}
}

// Normalize decodes raw audio, downmixes it to mono and resamples it to the
// target rate. Errors are *core.PipelineError values: KindInput for empty or
// unsupported input, KindConversion for corrupt data.
func (n *Normalizer) Normalize(ctx context.Context, raw []byte) (core.Waveform, error) {
	if len(raw) == 0 {
		return core.Waveform{}, core.NewError(core.KindInput, stageNormalize, core.ErrAudioMissing)
	}

	decoded, err := n.decode(ctx, raw)
	if err != nil {
		return core.Waveform{}, classify(err)
	}

	mono := downmix(decoded.samples, decoded.channels)
	if len(mono) == 0 {
		return core.Waveform{}, core.NewError(core.KindConversion, stageNormalize,
			fmt.Errorf("%w: no audio frames", core.ErrAudioDecode))
	}

	resampled, err := n.resampler.Resample(mono, decoded.sampleRate, n.targetRate)
	if err != nil {
		return core.Waveform{}, core.NewError(core.KindConversion, stageNormalize, err)
	}

	samples := make([]float32, len(resampled))
	for i, value := range resampled {
		samples[i] = float32(value)
	}

	waveform := core.Waveform{Samples: samples, SampleRate: n.targetRate}

	validateErr := ValidateWaveform(waveform)
	if validateErr != nil {
		return core.Waveform{}, core.NewError(core.KindConversion, stageNormalize, validateErr)
	}

	return waveform, nil
}

func (n *Normalizer) decode(ctx context.Context, raw []byte) (*pcm, error) {
	format := Detect(raw)

	var (
		decoded *pcm
		err     error
	)

	switch format {
	case FormatWAV:
		decoded, err = decodeWAV(raw)
	case FormatMP3:
		decoded, err = decodeMP3(raw)
	default:
		err = fmt.Errorf("%w: %q", core.ErrUnsupportedFormat, string(format))
	}

	if err == nil {
		return decoded, nil
	}

	if n.ffmpeg == nil {
		return nil, err
	}

	converted, convertErr := n.ffmpeg.Convert(ctx, raw, n.targetRate)
	if convertErr != nil {
		return nil, fmt.Errorf("native decode: %w; ffmpeg: %w", err, convertErr)
	}

	return converted, nil
}

func classify(err error) error {
	if errors.Is(err, core.ErrAudioDecode) {
		return core.NewError(core.KindConversion, stageNormalize, err)
	}

	if errors.Is(err, core.ErrUnsupportedFormat) {
		return core.NewError(core.KindInput, stageNormalize, err)
	}

	return core.NewError(core.KindConversion, stageNormalize, err)
}
