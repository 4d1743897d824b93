// Package client talks to a running voice-clone-service over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// API endpoints and paths.
const (
	apiCloneVoice = "/clone_voice/"
	apiHealth     = "/health"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
	contentTypeWAV    = "audio/wav"
)

// Form fields.
const (
	fieldTargetText  = "target_text"
	fieldPromptAudio = "prompt_audio_file"
	fieldTopP        = "top_p"
	fieldTemperature = "temperature"
)

// Error messages.
const (
	errFmtServiceError       = "voice-clone-service error (%s): %s"
	errFmtServiceNonOKStatus = "voice-clone-service returned non-OK status: %s, body: %s"
	errFmtUnexpectedType     = "unexpected content type: expected %s, got %s"
)

var (
	// ErrTextEmpty is returned when no target text is given.
	ErrTextEmpty = errors.New("text cannot be empty")
	// ErrPromptEmpty is returned when no reference clip is given.
	ErrPromptEmpty = errors.New("prompt audio cannot be empty")
	// ErrEmptyAudio is returned when a download yields no bytes.
	ErrEmptyAudio = errors.New("received empty audio data")
	// ErrNoAudioURL is returned when a clone response carries no link.
	ErrNoAudioURL = errors.New("response carries no audio_url")
)

// HTTPClient is a client for the voice-clone HTTP service.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
}

// CloneRequest is one clone call. Zero sampling fields keep the server defaults.
type CloneRequest struct {
	TargetText  string
	PromptName  string
	PromptAudio []byte
	TopP        float64
	Temperature float64
}

// Health is the service's health report.
type Health struct {
	Status      string `json:"status"`
	Device      string `json:"device,omitempty"`
	ModelLoaded bool   `json:"model_loaded"`
}

type cloneResponse struct {
	AudioURL string `json:"audio_url"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewHTTPClient creates a client. The baseURL should include the protocol and
// port (e.g. "http://localhost:8000"). The timeout applies to every request.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// CloneVoice uploads the prompt and text and returns the generated audio URL.
func (c *HTTPClient) CloneVoice(ctx context.Context, req CloneRequest) (string, error) {
	if strings.TrimSpace(req.TargetText) == "" {
		return "", ErrTextEmpty
	}

	if len(req.PromptAudio) == 0 {
		return "", ErrPromptEmpty
	}

	body, contentType, err := cloneForm(req)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+apiCloneVoice, body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentType)
	httpReq.Header.Set(headerAccept, contentTypeJSON)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request to voice-clone-service at %s: %w", c.baseURL, err)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", parseErrorResponse(resp)
	}

	var result cloneResponse

	err = json.NewDecoder(resp.Body).Decode(&result)
	if err != nil {
		return "", fmt.Errorf("failed to decode clone response: %w", err)
	}

	if result.AudioURL == "" {
		return "", ErrNoAudioURL
	}

	return result.AudioURL, nil
}

// Download fetches generated audio. audioURL may be absolute or a path on the
// service.
func (c *HTTPClient) Download(ctx context.Context, audioURL string) ([]byte, error) {
	if strings.HasPrefix(audioURL, "/") {
		audioURL = c.baseURL + audioURL
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	httpReq.Header.Set(headerAccept, contentTypeWAV)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", audioURL, err)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, parseErrorResponse(resp)
	}

	contentType := resp.Header.Get(headerContentType)
	if contentType != contentTypeWAV {
		return nil, fmt.Errorf(errFmtUnexpectedType, contentTypeWAV, contentType)
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}

	if len(audioData) == 0 {
		return nil, ErrEmptyAudio
	}

	return audioData, nil
}

// HealthCheck returns the service's health. A service that is up but still
// loading models reports an error alongside its Health.
func (c *HTTPClient) HealthCheck(ctx context.Context) (*Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiHealth, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("health check failed for service at %s: %w", c.baseURL, err)
	}

	defer func() { _ = resp.Body.Close() }()

	var health Health

	decodeErr := json.NewDecoder(resp.Body).Decode(&health)

	if resp.StatusCode != http.StatusOK {
		return &health, fmt.Errorf("health check failed with status: %s", resp.Status)
	}

	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode health response: %w", decodeErr)
	}

	return &health, nil
}

func cloneForm(req CloneRequest) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	promptName := req.PromptName
	if promptName == "" {
		promptName = "prompt.wav"
	}

	fields := map[string]string{fieldTargetText: req.TargetText}

	if req.TopP > 0 {
		fields[fieldTopP] = strconv.FormatFloat(req.TopP, 'f', -1, 64)
	}

	if req.Temperature > 0 {
		fields[fieldTemperature] = strconv.FormatFloat(req.Temperature, 'f', -1, 64)
	}

	for name, value := range fields {
		err := writer.WriteField(name, value)
		if err != nil {
			return nil, "", fmt.Errorf("failed to write form field %s: %w", name, err)
		}
	}

	part, err := writer.CreateFormFile(fieldPromptAudio, promptName)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}

	_, err = part.Write(req.PromptAudio)
	if err != nil {
		return nil, "", fmt.Errorf("failed to write prompt audio: %w", err)
	}

	err = writer.Close()
	if err != nil {
		return nil, "", fmt.Errorf("failed to close form: %w", err)
	}

	return body, writer.FormDataContentType(), nil
}

// parseErrorResponse decodes the service's {"error": ...} body, falling back
// to the raw body for non-JSON errors.
func parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errorResp errorResponse

	err := json.Unmarshal(body, &errorResp)
	if err == nil && errorResp.Error != "" {
		return fmt.Errorf(errFmtServiceError, resp.Status, errorResp.Error)
	}

	return fmt.Errorf(errFmtServiceNonOKStatus, resp.Status, string(body))
}
