package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/book-expert/voice-clone-service/internal/audio"
	"github.com/book-expert/voice-clone-service/internal/core"
	"github.com/book-expert/voice-clone-service/internal/fileutil"
	"github.com/book-expert/voice-clone-service/internal/generation"
	"github.com/book-expert/voice-clone-service/internal/pipeline"
	"github.com/google/uuid"
)

const (
	fieldTargetText  = "target_text"
	fieldPromptAudio = "prompt_audio_file"
	fieldTopP        = "top_p"
	fieldTemperature = "temperature"
	fieldMaxLength   = "max_length"

	downloadPath   = "/download_audio/"
	audioKeyPrefix = "generated_"
	audioKeySuffix = ".wav"

	multipartMemory = 8 << 20
)

// Client-facing messages.
const (
	msgTextRequired      = "Text input is required."
	msgAudioRequired     = "Prompt audio file is required."
	msgUploadTooLarge    = "Prompt audio file is too large."
	msgUnsupportedFormat = "Unsupported audio format."
	msgConversionFailed  = "Failed to convert audio to WAV."
	msgGenerationFailed  = "TTS generation failed."
	msgTimeout           = "Request timed out."
	msgInternal          = "Internal server error."
	msgAudioNotFound     = "Audio file not found."
)

func (h *Handler) handleCloneVoice(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)

	err := r.ParseMultipartForm(multipartMemory)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge, msgUploadTooLarge)

			return
		}

		writeError(w, http.StatusBadRequest, msgAudioRequired)

		return
	}

	targetText := r.FormValue(fieldTargetText)
	if strings.TrimSpace(targetText) == "" {
		writeError(w, http.StatusBadRequest, msgTextRequired)

		return
	}

	sampling, err := valueSampling(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())

		return
	}

	promptAudio, err := readPromptAudio(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, msgAudioRequired)

		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.RequestTimeout)
	defer cancel()

	result, err := h.cloner.CloneVoice(ctx, pipeline.Request{
		TargetText:     targetText,
		ReferenceAudio: promptAudio,
		Sampling:       sampling,
	})
	if err != nil {
		h.log.Error("Voice cloning failed: %v", err)
		writeError(w, statusFor(err), messageFor(err))

		return
	}

	wavData, err := audio.EncodeWAV(result.Waveform)
	if err != nil {
		h.log.Error("Failed to encode generated audio: %v", err)
		writeError(w, http.StatusInternalServerError, msgInternal)

		return
	}

	name := audioKeyPrefix + uuid.NewString() + audioKeySuffix

	err = h.store.Upload(ctx, name, wavData)
	if err != nil {
		h.log.Error("Failed to store generated audio %s: %v", name, err)
		writeError(w, http.StatusInternalServerError, msgInternal)

		return
	}

	h.log.Info("Generated %s (%s of audio, %s) in %s",
		name,
		fileutil.FormatDuration(result.Waveform.Duration()),
		fileutil.FormatFileSize(int64(len(wavData))),
		fileutil.FormatDuration(time.Since(started).Seconds()))

	writeJson(w, http.StatusOK, CloneResponse{AudioURL: h.downloadURL(r, name)})
}

// readPromptAudio returns the uploaded clip. A missing or empty file is an error.
func readPromptAudio(r *http.Request) ([]byte, error) {
	file, _, err := r.FormFile(fieldPromptAudio)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", fieldPromptAudio, err)
	}

	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", fieldPromptAudio, err)
	}

	if len(data) == 0 {
		return nil, core.ErrAudioMissing
	}

	return data, nil
}

// valueSampling parses the optional sampling overrides. It returns nil when
// none are set.
func valueSampling(r *http.Request) (*generation.Sampling, error) {
	var (
		sampling generation.Sampling
		set      bool
	)

	if val := r.FormValue(fieldTopP); val != "" {
		topP, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %q", fieldTopP, val)
		}

		sampling.TopP = topP
		set = true
	}

	if val := r.FormValue(fieldTemperature); val != "" {
		temperature, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %q", fieldTemperature, val)
		}

		sampling.Temperature = temperature
		set = true
	}

	if val := r.FormValue(fieldMaxLength); val != "" {
		maxLength, err := strconv.Atoi(val)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %q", fieldMaxLength, val)
		}

		sampling.MaxLength = maxLength
		set = true
	}

	if !set {
		return nil, nil
	}

	err := sampling.Validate()
	if err != nil {
		return nil, err
	}

	return &sampling, nil
}

func (h *Handler) downloadURL(r *http.Request, name string) string {
	base := strings.TrimSuffix(h.opts.PublicBaseURL, "/")
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}

		if forwarded := r.Header.Get("X-Forwarded-Proto"); forwarded != "" {
			scheme = forwarded
		}

		base = scheme + "://" + r.Host
	}

	return base + downloadPath + name
}

func statusFor(err error) int {
	switch core.KindOf(err) {
	case core.KindInput:
		return http.StatusBadRequest
	case core.KindConversion:
		return http.StatusUnprocessableEntity
	case core.KindTimeout:
		return http.StatusGatewayTimeout
	case core.KindModel, core.KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func messageFor(err error) string {
	switch core.KindOf(err) {
	case core.KindInput:
		switch {
		case errors.Is(err, core.ErrTextEmpty):
			return msgTextRequired
		case errors.Is(err, core.ErrAudioMissing):
			return msgAudioRequired
		case errors.Is(err, core.ErrUnsupportedFormat):
			return msgUnsupportedFormat
		default:
			return inputMessage(err)
		}
	case core.KindConversion:
		return msgConversionFailed
	case core.KindModel:
		return msgGenerationFailed
	case core.KindTimeout:
		return msgTimeout
	case core.KindInternal:
		return msgInternal
	default:
		return msgInternal
	}
}

// inputMessage returns the cause of a rejected input without the stage prefix.
func inputMessage(err error) string {
	var pipelineErr *core.PipelineError
	if errors.As(err, &pipelineErr) {
		return pipelineErr.Err.Error()
	}

	return err.Error()
}
