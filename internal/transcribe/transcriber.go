// Package transcribe turns the reference clip into text with a Whisper-compatible
// transcription API. The transcript is used as the prompt description so the
// model hears what the reference speaker actually said.
package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultBaseURL is the OpenAI API root.
const DefaultBaseURL = "https://api.openai.com/v1/"

// Error messages.
const (
	errFmtTranscriptionFailed = "transcription request failed: %w"
)

var (
	// ErrAPIKeyNotSet is returned when no API key is configured.
	ErrAPIKeyNotSet = errors.New("transcription API key not set")
	// ErrEmptyTranscript is returned when the service recognizes no speech.
	ErrEmptyTranscript = errors.New("transcript is empty")
)

// Clip is the audio sent for transcription.
type Clip struct {
	Data        []byte
	Name        string
	ContentType string
}

// Transcriber calls the audio transcription endpoint.
type Transcriber struct {
	client   openai.Client
	model    string
	language string
}

// New creates a Transcriber. An empty baseURL uses DefaultBaseURL.
func New(apiKey, baseURL, model, language string, timeout time.Duration) (*Transcriber, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(strings.TrimRight(baseURL, "/") + "/"),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
		option.WithMaxRetries(0),
	}

	return &Transcriber{
		client:   openai.NewClient(opts...),
		model:    model,
		language: language,
	}, nil
}

// Transcribe returns the trimmed transcript of clip.
func (t *Transcriber) Transcribe(ctx context.Context, clip Clip) (string, error) {
	params := openai.AudioTranscriptionNewParams{
		Model:          openai.AudioModel(t.model),
		File:           openai.File(bytes.NewReader(clip.Data), clip.Name, clip.ContentType),
		ResponseFormat: openai.AudioResponseFormatJSON,
	}

	if t.language != "" {
		params.Language = openai.String(t.language)
	}

	transcription, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf(errFmtTranscriptionFailed, err)
	}

	text := strings.TrimSpace(transcription.Text)
	if text == "" {
		return "", ErrEmptyTranscript
	}

	return text, nil
}
