package speechcodec_test

import (
	"context"
	"errors"
	"testing"

	"github.com/book-expert/voice-clone-service/internal/core"
	"github.com/book-expert/voice-clone-service/internal/model"
	"github.com/book-expert/voice-clone-service/internal/speechcodec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errMockCodec = errors.New("mock codec error")

type mockCodec struct {
	encodeErr   error
	decodeErr   error
	encoded     core.SpeechCodes
	decoded     core.Waveform
	decodedWith core.SpeechCodes
}

func (m *mockCodec) EncodeCode(context.Context, core.Waveform) (core.SpeechCodes, error) {
	return m.encoded, m.encodeErr
}

func (m *mockCodec) DecodeCode(_ context.Context, codes core.SpeechCodes) (core.Waveform, error) {
	m.decodedWith = codes

	return m.decoded, m.decodeErr
}

func loadedBundle(codec core.Codec) *model.Bundle {
	return model.NewLoadedBundle(&model.Handles{Codec: codec}, "cpu")
}

func oneSecond() core.Waveform {
	return core.Waveform{Samples: make([]float32, core.TargetSampleRate), SampleRate: core.TargetSampleRate}
}

func TestBridge_NotInitialized(t *testing.T) {
	t.Parallel()

	bridge := speechcodec.NewBridge(model.NewBundle(nil, model.DeviceAuto, nil), core.TargetSampleRate)

	_, err := bridge.Encode(context.Background(), oneSecond())
	require.ErrorIs(t, err, core.ErrModelNotInitialized)
	assert.Equal(t, core.KindModel, core.KindOf(err))

	_, err = bridge.Decode(context.Background(), core.SpeechCodes{1})
	require.ErrorIs(t, err, core.ErrModelNotInitialized)
	assert.Equal(t, core.KindModel, core.KindOf(err))
}

func TestBridge_Encode(t *testing.T) {
	t.Parallel()

	codec := &mockCodec{encoded: core.SpeechCodes{10, 11, 12}}
	bridge := speechcodec.NewBridge(loadedBundle(codec), core.TargetSampleRate)

	codes, err := bridge.Encode(context.Background(), oneSecond())
	require.NoError(t, err)
	assert.Equal(t, core.SpeechCodes{10, 11, 12}, codes)
}

func TestBridge_EncodeErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		codec    *mockCodec
		want     error
		name     string
		waveform core.Waveform
	}{
		{name: "backend failure", codec: &mockCodec{encodeErr: errMockCodec}, waveform: oneSecond(), want: errMockCodec},
		{name: "empty codes", codec: &mockCodec{}, waveform: oneSecond(), want: core.ErrEmptySpeechCodes},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			bridge := speechcodec.NewBridge(loadedBundle(testCase.codec), core.TargetSampleRate)

			_, err := bridge.Encode(context.Background(), testCase.waveform)
			require.ErrorIs(t, err, testCase.want)
			assert.Equal(t, core.KindModel, core.KindOf(err))
		})
	}
}

func TestBridge_EncodeRejectsWrongRate(t *testing.T) {
	t.Parallel()

	bridge := speechcodec.NewBridge(loadedBundle(&mockCodec{encoded: core.SpeechCodes{1}}), core.TargetSampleRate)

	_, err := bridge.Encode(context.Background(), core.Waveform{Samples: []float32{0}, SampleRate: 44100})
	require.Error(t, err)
	assert.Equal(t, core.KindModel, core.KindOf(err))
}

func TestBridge_DecodeEmptyIsModelError(t *testing.T) {
	t.Parallel()

	codec := &mockCodec{decoded: oneSecond()}
	bridge := speechcodec.NewBridge(loadedBundle(codec), core.TargetSampleRate)

	_, err := bridge.Decode(context.Background(), nil)
	require.ErrorIs(t, err, core.ErrEmptySpeechCodes)
	assert.Equal(t, core.KindModel, core.KindOf(err))
	assert.Nil(t, codec.decodedWith, "codec must not be called for an empty sequence")
}

func TestBridge_DecodeFillsCodecRate(t *testing.T) {
	t.Parallel()

	codec := &mockCodec{decoded: core.Waveform{Samples: []float32{0.1, 0.2}}}
	bridge := speechcodec.NewBridge(loadedBundle(codec), core.TargetSampleRate)

	waveform, err := bridge.Decode(context.Background(), core.SpeechCodes{7, 8})
	require.NoError(t, err)
	assert.Equal(t, core.TargetSampleRate, waveform.SampleRate)
	assert.Equal(t, core.SpeechCodes{7, 8}, codec.decodedWith)
}

func TestBridge_DecodeBackendFailure(t *testing.T) {
	t.Parallel()

	bridge := speechcodec.NewBridge(loadedBundle(&mockCodec{decodeErr: errMockCodec}), core.TargetSampleRate)

	_, err := bridge.Decode(context.Background(), core.SpeechCodes{1})
	require.ErrorIs(t, err, errMockCodec)
	assert.Equal(t, core.KindModel, core.KindOf(err))
}
