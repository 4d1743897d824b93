// Package speechcodec bridges normalized waveforms and discrete speech codes
// through the codec handle of the model bundle.
package speechcodec

import (
	"context"
	"fmt"

	"github.com/book-expert/voice-clone-service/internal/audio"
	"github.com/book-expert/voice-clone-service/internal/core"
	"github.com/book-expert/voice-clone-service/internal/model"
)

const (
	stageEncode = "encode"
	stageDecode = "decode"
)

// HandleSource provides loaded model handles. *model.Bundle satisfies it.
type HandleSource interface {
	Handles() (*model.Handles, error)
}

// Bridge encodes and decodes through the bundle's codec. It never loads the
// bundle: calls before a successful load fail with core.ErrModelNotInitialized.
type Bridge struct {
	handles    HandleSource
	sampleRate int
}

// NewBridge creates a Bridge for a codec trained at sampleRate.
func NewBridge(handles HandleSource, sampleRate int) *Bridge {
	return &Bridge{handles: handles, sampleRate: sampleRate}
}

// Encode turns a normalized waveform into speech codes.
func (b *Bridge) Encode(ctx context.Context, waveform core.Waveform) (core.SpeechCodes, error) {
	codec, err := b.codec()
	if err != nil {
		return nil, core.NewError(core.KindModel, stageEncode, err)
	}

	validateErr := audio.ValidateWaveform(waveform)
	if validateErr != nil {
		return nil, core.NewError(core.KindModel, stageEncode, validateErr)
	}

	if waveform.SampleRate != b.sampleRate {
		return nil, core.NewError(core.KindModel, stageEncode,
			fmt.Errorf("waveform is %d Hz, codec expects %d Hz", waveform.SampleRate, b.sampleRate))
	}

	codes, err := codec.EncodeCode(ctx, waveform)
	if err != nil {
		return nil, core.NewError(core.KindModel, stageEncode, err)
	}

	if len(codes) == 0 {
		return nil, core.NewError(core.KindModel, stageEncode, core.ErrEmptySpeechCodes)
	}

	return codes, nil
}

// Decode turns speech codes back into a waveform at the codec rate. An empty
// sequence is an error rather than an empty waveform.
func (b *Bridge) Decode(ctx context.Context, codes core.SpeechCodes) (core.Waveform, error) {
	codec, err := b.codec()
	if err != nil {
		return core.Waveform{}, core.NewError(core.KindModel, stageDecode, err)
	}

	if len(codes) == 0 {
		return core.Waveform{}, core.NewError(core.KindModel, stageDecode, core.ErrEmptySpeechCodes)
	}

	waveform, err := codec.DecodeCode(ctx, codes)
	if err != nil {
		return core.Waveform{}, core.NewError(core.KindModel, stageDecode, err)
	}

	if waveform.SampleRate == 0 {
		waveform.SampleRate = b.sampleRate
	}

	validateErr := audio.ValidateWaveform(waveform)
	if validateErr != nil {
		return core.Waveform{}, core.NewError(core.KindModel, stageDecode, validateErr)
	}

	return waveform, nil
}

func (b *Bridge) codec() (core.Codec, error) {
	handles, err := b.handles.Handles()
	if err != nil {
		return nil, err
	}

	return handles.Codec, nil
}
