// Package pipeline sequences the voice-cloning stages: normalize the reference
// clip, encode it to speech codes, generate continuation symbols for the target
// text, and decode them back into a waveform.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-clone-service/internal/audio"
	"github.com/book-expert/voice-clone-service/internal/core"
	"github.com/book-expert/voice-clone-service/internal/fileutil"
	"github.com/book-expert/voice-clone-service/internal/generation"
	"github.com/book-expert/voice-clone-service/internal/speechtoken"
	"github.com/book-expert/voice-clone-service/internal/transcribe"
)

const (
	stageValidate   = "validate"
	stageEncode     = "encode"
	stageSymbols    = "symbols"
	stageGenerate   = "generate"
	stageDecode     = "decode"
	stagePackage    = "package"
	transcriptClip  = "prompt.wav"
	malformedToShow = 3
)

// Normalizer turns uploaded audio into a normalized waveform.
type Normalizer interface {
	Normalize(ctx context.Context, raw []byte) (core.Waveform, error)
}

// SpeechCodec converts between waveforms and speech codes.
type SpeechCodec interface {
	Encode(ctx context.Context, waveform core.Waveform) (core.SpeechCodes, error)
	Decode(ctx context.Context, codes core.SpeechCodes) (core.Waveform, error)
}

// Generator produces speech symbols for target text in the prompt's voice.
type Generator interface {
	Generate(ctx context.Context, req generation.Request) (*generation.Result, error)
}

// Transcriber returns what is said in a clip.
type Transcriber interface {
	Transcribe(ctx context.Context, clip transcribe.Clip) (string, error)
}

// TextNormalizer rewrites target text into its spoken form.
type TextNormalizer interface {
	Normalize(text string) string
}

// Request is one cloning call.
type Request struct {
	Sampling       *generation.Sampling
	TargetText     string
	ReferenceAudio []byte
}

// Stats describes what happened during a call.
type Stats struct {
	PromptText       string
	PromptDuration   float64
	OutputDuration   float64
	PromptCodes      int
	GeneratedSymbols int
	Malformed        int
	Truncated        bool
}

// Result is the synthesized waveform. SampleRate is always the codec rate.
type Result struct {
	Waveform   core.Waveform
	Stats      Stats
	SampleRate int
}

// Option configures optional stages.
type Option func(*Pipeline)

// WithTranscriber transcribes the reference clip and uses the transcript as
// the prompt text. Transcription failures fall back to the default prompt text.
func WithTranscriber(transcriber Transcriber) Option {
	return func(p *Pipeline) {
		p.transcriber = transcriber
	}
}

// WithTextNormalizer rewrites target text before prompting.
func WithTextNormalizer(normalizer TextNormalizer) Option {
	return func(p *Pipeline) {
		p.textNormalizer = normalizer
	}
}

// Pipeline runs CloneVoice. The model stages (encode, generate, decode) share
// device state, so one mutex serializes them across all callers.
type Pipeline struct {
	normalizer     Normalizer
	codec          SpeechCodec
	generator      Generator
	transcriber    Transcriber
	textNormalizer TextNormalizer
	log            *logger.Logger
	mu             sync.Mutex
	outputRate     int
}

// New creates a Pipeline.
func New(
	normalizer Normalizer,
	codec SpeechCodec,
	generator Generator,
	log *logger.Logger,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		normalizer: normalizer,
		codec:      codec,
		generator:  generator,
		log:        log,
		outputRate: core.TargetSampleRate,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// CloneVoice synthesizes req.TargetText in the voice of req.ReferenceAudio.
// Every failure is a *core.PipelineError and no partial result is returned.
func (p *Pipeline) CloneVoice(ctx context.Context, req Request) (*Result, error) {
	err := validate(req)
	if err != nil {
		return nil, err
	}

	err = checkDeadline(ctx, stageValidate)
	if err != nil {
		return nil, err
	}

	targetText := strings.TrimSpace(req.TargetText)
	if p.textNormalizer != nil {
		if normalized := p.textNormalizer.Normalize(targetText); normalized != "" {
			targetText = normalized
		}
	}

	waveform, err := p.normalizer.Normalize(ctx, req.ReferenceAudio)
	if err != nil {
		return nil, withDeadline(ctx, err)
	}

	promptText := p.promptText(ctx, waveform)

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.synthesize(ctx, waveform, generation.Request{
		Sampling:   req.Sampling,
		PromptText: promptText,
		TargetText: targetText,
	})
}

func (p *Pipeline) synthesize(
	ctx context.Context,
	prompt core.Waveform,
	genReq generation.Request,
) (*Result, error) {
	err := checkDeadline(ctx, stageEncode)
	if err != nil {
		return nil, err
	}

	promptCodes, err := p.codec.Encode(ctx, prompt)
	if err != nil {
		return nil, withDeadline(ctx, err)
	}

	genReq.PromptSymbols, err = speechtoken.ToSymbols(promptCodes)
	if err != nil {
		return nil, core.NewError(core.KindModel, stageSymbols, err)
	}

	err = checkDeadline(ctx, stageGenerate)
	if err != nil {
		return nil, err
	}

	generated, err := p.generator.Generate(ctx, genReq)
	if err != nil {
		return nil, withDeadline(ctx, err)
	}

	if generated.Truncated {
		p.warn("Generation reached max length before the end marker; output may be cut short")
	}

	codes, malformed := speechtoken.FromSymbols(generated.Symbols)
	if len(malformed) > 0 {
		p.warn("Skipped %d malformed speech symbols, first: %s", len(malformed), describe(malformed))
	}

	err = checkDeadline(ctx, stageDecode)
	if err != nil {
		return nil, err
	}

	output, err := p.codec.Decode(ctx, codes)
	if err != nil {
		return nil, withDeadline(ctx, err)
	}

	if output.SampleRate != p.outputRate {
		return nil, core.NewError(core.KindModel, stagePackage, audio.ErrInvalidWaveform)
	}

	return &Result{
		Waveform:   output,
		SampleRate: p.outputRate,
		Stats: Stats{
			PromptText:       genReq.PromptText,
			PromptDuration:   prompt.Duration(),
			OutputDuration:   output.Duration(),
			PromptCodes:      len(promptCodes),
			GeneratedSymbols: len(generated.Symbols),
			Malformed:        len(malformed),
			Truncated:        generated.Truncated,
		},
	}, nil
}

// promptText returns the transcript of the prompt, or "" to keep the
// generator's default description.
func (p *Pipeline) promptText(ctx context.Context, prompt core.Waveform) string {
	if p.transcriber == nil {
		return ""
	}

	clip, err := audio.EncodeWAV(prompt)
	if err != nil {
		p.warn("Failed to encode prompt for transcription: %v", err)

		return ""
	}

	transcript, err := p.transcriber.Transcribe(ctx, transcribe.Clip{
		Data:        clip,
		Name:        transcriptClip,
		ContentType: fileutil.AudioContentType(transcriptClip),
	})
	if err != nil {
		p.warn("Transcription failed, using default prompt text: %v", err)

		return ""
	}

	return transcript
}

func (p *Pipeline) warn(format string, args ...any) {
	if p.log != nil {
		p.log.Warn(format, args...)
	}
}

func validate(req Request) error {
	if strings.TrimSpace(req.TargetText) == "" {
		return core.NewError(core.KindInput, stageValidate, core.ErrTextEmpty)
	}

	if len(req.ReferenceAudio) == 0 {
		return core.NewError(core.KindInput, stageValidate, core.ErrAudioMissing)
	}

	err := req.Sampling.Validate()
	if err != nil {
		return core.NewError(core.KindInput, stageValidate, err)
	}

	return nil
}

// checkDeadline reports an expired caller deadline before stage starts.
func checkDeadline(ctx context.Context, stage string) error {
	err := ctx.Err()
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return core.NewError(core.KindTimeout, stage, err)
	}

	return core.NewError(core.KindInternal, stage, err)
}

// withDeadline reclassifies a stage failure caused by the caller's deadline.
func withDeadline(ctx context.Context, err error) error {
	if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return err
	}

	stage := "pipeline"

	var pipelineErr *core.PipelineError
	if errors.As(err, &pipelineErr) {
		stage = pipelineErr.Stage
	}

	return core.NewError(core.KindTimeout, stage, err)
}

func describe(malformed []speechtoken.Malformed) string {
	parts := make([]string, 0, malformedToShow)

	for i, entry := range malformed {
		if i == malformedToShow {
			break
		}

		parts = append(parts, entry.String())
	}

	return strings.Join(parts, ", ")
}
