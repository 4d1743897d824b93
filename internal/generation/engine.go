// Package generation builds the voice-cloning prompt, runs the causal language
// model and extracts the newly generated speech symbols.
package generation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-clone-service/internal/core"
	"github.com/book-expert/voice-clone-service/internal/model"
	"github.com/book-expert/voice-clone-service/internal/speechtoken"
)

const stageGenerate = "generate"

// Reference generation settings.
const (
	DefaultPromptText  = "This is prompt voice. "
	DefaultMaxLength   = 2048
	DefaultTopP        = 1.0
	DefaultTemperature = 0.8
)

const (
	roleUser       = "user"
	roleAssistant  = "assistant"
	synthesizeVerb = "Convert the text to speech:"
)

// Sampling errors.
var (
	ErrTopPRange        = errors.New("top_p must be in (0, 1]")
	ErrTemperatureRange = errors.New("temperature must be positive and finite")
	ErrMaxLengthRange   = errors.New("max_length must be positive")
	ErrShortOutput      = errors.New("generation output is shorter than its input")
)

// HandleSource provides loaded model handles. *model.Bundle satisfies it.
type HandleSource interface {
	Handles() (*model.Handles, error)
}

// Options are the engine-wide defaults.
type Options struct {
	PromptText         string
	MaxLength          int
	TopP               float64
	Temperature        float64
	IncludePromptCodes bool
}

// Sampling overrides the engine defaults for one request. Zero fields keep the default.
type Sampling struct {
	TopP        float64 `json:"top_p,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxLength   int     `json:"max_length,omitempty"`
}

// Validate rejects out-of-range and non-finite overrides.
func (s *Sampling) Validate() error {
	if s == nil {
		return nil
	}

	if !isFinite(s.TopP) || s.TopP < 0 || s.TopP > 1 {
		return fmt.Errorf("%w: got %g", ErrTopPRange, s.TopP)
	}

	if !isFinite(s.Temperature) || s.Temperature < 0 {
		return fmt.Errorf("%w: got %g", ErrTemperatureRange, s.Temperature)
	}

	if s.MaxLength < 0 {
		return fmt.Errorf("%w: got %d", ErrMaxLengthRange, s.MaxLength)
	}

	return nil
}

func isFinite(value float64) bool {
	return !math.IsNaN(value) && !math.IsInf(value, 0)
}

// Request is one generation call.
type Request struct {
	Sampling *Sampling
	// PromptText replaces Options.PromptText when set, e.g. with a transcript
	// of the reference clip.
	PromptText    string
	TargetText    string
	PromptSymbols []string
}

// Result holds the generated speech symbols.
type Result struct {
	Symbols []string
	// NewTokens counts generated IDs before the end sentinel.
	NewTokens int
	// Truncated is set when generation stopped at max length without emitting
	// the end sentinel.
	Truncated bool
}

// Engine runs prompted generation against the bundle's tokenizer and model.
type Engine struct {
	handles HandleSource
	log     *logger.Logger
	opts    Options
}

// NewEngine creates an Engine. Unset options take the reference defaults.
func NewEngine(handles HandleSource, opts Options, log *logger.Logger) *Engine {
	if opts.PromptText == "" {
		opts.PromptText = DefaultPromptText
	}

	if opts.MaxLength <= 0 {
		opts.MaxLength = DefaultMaxLength
	}

	if opts.TopP <= 0 {
		opts.TopP = DefaultTopP
	}

	if opts.Temperature <= 0 {
		opts.Temperature = DefaultTemperature
	}

	return &Engine{handles: handles, opts: opts, log: log}
}

// BuildMessages renders the two-turn prompt. The assistant turn is left open so
// generation continues right after the prompt symbols.
func BuildMessages(promptText, targetText string, promptSymbols []string) []core.ChatMessage {
	inputText := promptText + " " + targetText
	wrapped := speechtoken.TextUnderstandingStart + inputText + speechtoken.TextUnderstandingEnd

	return []core.ChatMessage{
		{Role: roleUser, Content: synthesizeVerb + wrapped},
		{Role: roleAssistant, Content: speechtoken.SpeechGenerationStart + speechtoken.Join(promptSymbols)},
	}
}

// Generate produces the speech symbols that continue the prompt in the
// reference voice. Every failure is a model error.
func (e *Engine) Generate(ctx context.Context, req Request) (*Result, error) {
	result, err := e.generate(ctx, req)
	if err != nil {
		return nil, core.NewError(core.KindModel, stageGenerate, err)
	}

	return result, nil
}

func (e *Engine) generate(ctx context.Context, req Request) (*Result, error) {
	handles, err := e.handles.Handles()
	if err != nil {
		return nil, err
	}

	params, err := e.params(req.Sampling)
	if err != nil {
		return nil, err
	}

	promptText := e.opts.PromptText
	if strings.TrimSpace(req.PromptText) != "" {
		promptText = req.PromptText
	}

	messages := BuildMessages(promptText, req.TargetText, req.PromptSymbols)

	inputIDs, err := handles.Tokenizer.ApplyChatTemplate(ctx, messages, true)
	if err != nil {
		return nil, err
	}

	if len(inputIDs) >= params.MaxLength {
		return nil, fmt.Errorf("%w: %d input tokens, max_length %d",
			core.ErrPromptTooLong, len(inputIDs), params.MaxLength)
	}

	params.EOSTokenID, err = handles.Tokenizer.TokenID(ctx, speechtoken.SpeechGenerationEnd)
	if err != nil {
		return nil, err
	}

	outputIDs, err := handles.Model.Generate(ctx, inputIDs, params)
	if err != nil {
		return nil, err
	}

	newIDs, truncated, err := NewTokens(inputIDs, outputIDs, params.EOSTokenID)
	if err != nil {
		return nil, err
	}

	if truncated && e.log != nil {
		e.log.Warn("Generation reached max_length %d without end sentinel", params.MaxLength)
	}

	generated, err := e.decode(ctx, handles.Tokenizer, newIDs)
	if err != nil {
		return nil, err
	}

	symbols := generated
	if e.opts.IncludePromptCodes {
		symbols = append(slices.Clone(req.PromptSymbols), generated...)
	}

	return &Result{Symbols: symbols, NewTokens: len(newIDs), Truncated: truncated}, nil
}

// NewTokens returns the IDs generated after the input, cut before the first end
// sentinel. truncated reports that no end sentinel was produced.
func NewTokens(inputIDs, outputIDs []int, endID int) ([]int, bool, error) {
	if len(outputIDs) < len(inputIDs) {
		return nil, false, fmt.Errorf("%w: %d < %d", ErrShortOutput, len(outputIDs), len(inputIDs))
	}

	tail := outputIDs[len(inputIDs):]

	end := slices.Index(tail, endID)
	if end < 0 {
		return tail, true, nil
	}

	return tail[:end], false, nil
}

func (e *Engine) decode(ctx context.Context, tokenizer core.Tokenizer, ids []int) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	tokens, err := tokenizer.DecodeTokens(ctx, ids)
	if err != nil {
		return nil, err
	}

	// Special tokens decode to empty strings.
	return slices.DeleteFunc(tokens, func(token string) bool { return token == "" }), nil
}

func (e *Engine) params(sampling *Sampling) (core.GenerateParams, error) {
	params := core.GenerateParams{
		MaxLength:   e.opts.MaxLength,
		DoSample:    true,
		TopP:        e.opts.TopP,
		Temperature: e.opts.Temperature,
	}

	err := sampling.Validate()
	if err != nil {
		return params, err
	}

	if sampling == nil {
		return params, nil
	}

	if sampling.TopP > 0 {
		params.TopP = sampling.TopP
	}

	if sampling.Temperature > 0 {
		params.Temperature = sampling.Temperature
	}

	if sampling.MaxLength > 0 {
		params.MaxLength = sampling.MaxLength
	}

	return params, nil
}
