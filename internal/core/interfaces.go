// Package core defines the shared data types and interfaces for the voice-clone service.
package core

import "context"

// TargetSampleRate is the rate every normalized prompt waveform and every decoded
// waveform uses. The codec is trained at this rate.
const TargetSampleRate = 16000

// Waveform is a mono sequence of float samples in [-1, 1] at SampleRate Hz.
type Waveform struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the waveform length in seconds.
func (w Waveform) Duration() float64 {
	if w.SampleRate <= 0 {
		return 0
	}

	return float64(len(w.Samples)) / float64(w.SampleRate)
}

// SpeechCodes is an ordered sequence of codec codebook indices.
type SpeechCodes []int

// ChatMessage is a single turn of a structured prompt.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateParams controls a single autoregressive generation call.
type GenerateParams struct {
	MaxLength   int     `json:"max_length"`
	EOSTokenID  int     `json:"eos_token_id"`
	DoSample    bool    `json:"do_sample"`
	TopP        float64 `json:"top_p"`
	Temperature float64 `json:"temperature"`
}

// Tokenizer converts between structured prompts, token IDs and token strings.
type Tokenizer interface {
	// ApplyChatTemplate renders messages into input token IDs. When
	// continueFinalMessage is set the last turn is left open so generation
	// resumes from its end.
	ApplyChatTemplate(ctx context.Context, messages []ChatMessage, continueFinalMessage bool) ([]int, error)
	// TokenID returns the vocabulary ID of a single token string.
	TokenID(ctx context.Context, token string) (int, error)
	// DecodeTokens returns one string per ID. Special tokens decode to "".
	DecodeTokens(ctx context.Context, ids []int) ([]string, error)
}

// LanguageModel runs autoregressive generation. The returned slice holds the
// input IDs followed by the generated IDs.
type LanguageModel interface {
	Generate(ctx context.Context, inputIDs []int, params GenerateParams) ([]int, error)
}

// Codec converts between waveforms and speech codes. Implementations run
// encoding in inference-only mode.
type Codec interface {
	EncodeCode(ctx context.Context, waveform Waveform) (SpeechCodes, error)
	DecodeCode(ctx context.Context, codes SpeechCodes) (Waveform, error)
}

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}
