// Package inference provides the model handles backed by a standalone model-serving
// sidecar. The sidecar hosts the tokenizer, the causal language model and the
// neural codec; this package only speaks its HTTP API.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/book-expert/voice-clone-service/internal/model"
	"github.com/vmihailenco/msgpack/v5"
)

// API endpoints and paths.
const (
	apiHealth       = "/health"
	apiLoad         = "/v1/models/load"
	apiChatTemplate = "/v1/tokenizer/chat_template"
	apiTokenID      = "/v1/tokenizer/token_id"
	apiDecode       = "/v1/tokenizer/decode"
	apiGenerate     = "/v1/generate"
	apiCodecEncode  = "/v1/codec/encode"
	apiCodecDecode  = "/v1/codec/decode"
)

// HTTP headers.
const (
	headerContentType  = "Content-Type"
	headerAccept       = "Accept"
	contentTypeJSON    = "application/json"
	contentTypeMsgpack = "application/msgpack"
)

// Error messages.
const (
	errFmtServiceErrorWithCode = "inference service error (%s): %s (code: %s)"
	errFmtServiceNonOKStatus   = "inference service returned non-OK status: %s, body: %s"
	errFmtSendRequest          = "failed to send request to inference service at %s: %w"
)

// ErrUnexpectedContentType is returned when the sidecar answers in an unexpected encoding.
var ErrUnexpectedContentType = errors.New("unexpected content type")

// ModelNames identifies the checkpoints the sidecar loads.
type ModelNames struct {
	Tokenizer     string `json:"tokenizer"`
	LanguageModel string `json:"language_model"`
	Codec         string `json:"codec"`
}

// Client talks to the model-serving sidecar and implements model.Loader.
type Client struct {
	httpClient         *http.Client
	baseURL            string
	names              ModelNames
	rateLimitPerSecond float64
}

// ErrorResponse is the structured error body returned by the sidecar.
type ErrorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

type healthResponse struct {
	Status  string   `json:"status"`
	Devices []string `json:"devices"`
}

type loadRequest struct {
	ModelNames

	Device string `json:"device"`
}

// NewClient creates a client for the sidecar at baseURL (e.g. "http://localhost:8001").
// The timeout applies to every HTTP request made by this client. A positive
// rateLimitPerSecond throttles generation calls.
func NewClient(baseURL string, timeout time.Duration, names ModelNames, rateLimitPerSecond float64) *Client {
	return &Client{
		baseURL:            baseURL,
		names:              names,
		rateLimitPerSecond: rateLimitPerSecond,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// HealthCheck verifies that the sidecar is running.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.health(ctx)

	return err
}

// Devices lists the devices the sidecar reports.
func (c *Client) Devices(ctx context.Context) ([]string, error) {
	health, err := c.health(ctx)
	if err != nil {
		return nil, err
	}

	return health.Devices, nil
}

// Load asks the sidecar to load every checkpoint onto device and returns handles
// bound to this client.
func (c *Client) Load(ctx context.Context, device string) (*model.Handles, error) {
	req := loadRequest{ModelNames: c.names, Device: device}

	err := c.postJSON(ctx, apiLoad, req, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load models: %w", err)
	}

	return &model.Handles{
		Tokenizer: &tokenizer{client: c},
		Model:     model.NewRateLimitedModel(&languageModel{client: c}, c.rateLimitPerSecond),
		Codec:     &codec{client: c},
	}, nil
}

func (c *Client) health(ctx context.Context) (*healthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiHealth, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("health check failed for service at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("health check failed with status: %s", resp.Status)
	}

	var health healthResponse

	err = json.NewDecoder(resp.Body).Decode(&health)
	if err != nil {
		return nil, fmt.Errorf("failed to decode health response: %w", err)
	}

	return &health, nil
}

// postJSON sends a JSON request and decodes a JSON response into out when out is non-nil.
func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.do(ctx, path, body, contentTypeJSON)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)

		return nil
	}

	err = json.NewDecoder(resp.Body).Decode(out)
	if err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}

	return nil
}

// postMsgpack is postJSON for the codec endpoints, which carry sample arrays.
func (c *Client) postMsgpack(ctx context.Context, path string, in, out any) error {
	body, err := msgpack.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.do(ctx, path, body, contentTypeMsgpack)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get(headerContentType)
	if contentType != contentTypeMsgpack {
		return fmt.Errorf("%w: expected %s, got %s", ErrUnexpectedContentType, contentTypeMsgpack, contentType)
	}

	err = msgpack.NewDecoder(resp.Body).Decode(out)
	if err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}

	return nil
}

func (c *Client) do(ctx context.Context, path string, body []byte, contentType string) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentType)
	httpReq.Header.Set(headerAccept, contentType)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf(errFmtSendRequest, c.baseURL, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()

		return nil, parseErrorResponse(resp)
	}

	return resp, nil
}

// parseErrorResponse attempts to decode a structured JSON error from the sidecar.
// If structured parsing fails, it falls back to the raw response body.
func parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errorResp ErrorResponse

	err := json.Unmarshal(body, &errorResp)
	if err == nil && errorResp.Detail != "" {
		return fmt.Errorf(errFmtServiceErrorWithCode, resp.Status, errorResp.Detail, errorResp.ErrorCode)
	}

	return fmt.Errorf(errFmtServiceNonOKStatus, resp.Status, string(body))
}
