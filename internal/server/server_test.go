package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-clone-service/internal/audio"
	"github.com/book-expert/voice-clone-service/internal/core"
	"github.com/book-expert/voice-clone-service/internal/objectstore"
	"github.com/book-expert/voice-clone-service/internal/pipeline"
	"github.com/book-expert/voice-clone-service/internal/server"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUnexpected = errors.New("unexpected failure")

type mockCloner struct {
	err     error
	request pipeline.Request
	calls   int
	mu      sync.Mutex
}

func (m *mockCloner) CloneVoice(_ context.Context, req pipeline.Request) (*pipeline.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	m.request = req

	if m.err != nil {
		return nil, m.err
	}

	return &pipeline.Result{
		Waveform:   core.Waveform{Samples: make([]float32, core.TargetSampleRate/4), SampleRate: core.TargetSampleRate},
		SampleRate: core.TargetSampleRate,
	}, nil
}

func (m *mockCloner) snapshot() (pipeline.Request, int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.request, m.calls
}

type modelState struct {
	device string
	loaded bool
}

func (m modelState) Loaded() bool { return m.loaded }
func (m modelState) Device() string { return m.device }

func newTestServer(t *testing.T, cloner server.Cloner, opts server.Options) *httptest.Server {
	t.Helper()

	store, err := objectstore.NewFileStore(t.TempDir())
	require.NoError(t, err)

	return newStoreServer(t, cloner, store, opts)
}

func newStoreServer(t *testing.T, cloner server.Cloner, store core.ObjectStore, opts server.Options) *httptest.Server {
	t.Helper()

	testLogger, err := logger.New(t.TempDir(), "server-test.log")
	require.NoError(t, err)

	handler := server.New(cloner, store, modelState{loaded: true, device: "cuda:0"}, opts, testLogger)
	testServer := httptest.NewServer(handler.Router())

	t.Cleanup(func() {
		testServer.Close()
		_ = testLogger.Close()
	})

	return testServer
}

// cloneForm builds a multipart body. Empty values are omitted.
func cloneForm(t *testing.T, fields map[string]string, audioData []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for name, value := range fields {
		require.NoError(t, writer.WriteField(name, value))
	}

	if audioData != nil {
		part, err := writer.CreateFormFile("prompt_audio_file", "prompt.wav")
		require.NoError(t, err)

		_, err = part.Write(audioData)
		require.NoError(t, err)
	}

	require.NoError(t, writer.Close())

	return body, writer.FormDataContentType()
}

func postClone(t *testing.T, baseURL string, fields map[string]string, audioData []byte) *http.Response {
	t.Helper()

	body, contentType := cloneForm(t, fields, audioData)

	resp, err := http.Post(baseURL+"/clone_voice/", contentType, body)
	require.NoError(t, err)

	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

func decodeError(t *testing.T, resp *http.Response) string {
	t.Helper()

	var body server.ErrorResponse

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	return body.Error
}

func TestCloneVoice_Success(t *testing.T) {
	t.Parallel()

	cloner := &mockCloner{}
	testServer := newTestServer(t, cloner, server.Options{})

	resp := postClone(t, testServer.URL, map[string]string{"target_text": "Hello world"}, []byte("clip"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body server.CloneResponse

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Regexp(t, `^`+regexp.QuoteMeta(testServer.URL)+`/download_audio/generated_[0-9a-f-]{36}\.wav$`, body.AudioURL)

	request, calls := cloner.snapshot()
	assert.Equal(t, 1, calls)
	assert.Equal(t, "Hello world", request.TargetText)
	assert.Equal(t, []byte("clip"), request.ReferenceAudio)
	assert.Nil(t, request.Sampling)

	download, err := http.Get(body.AudioURL)
	require.NoError(t, err)

	defer func() { _ = download.Body.Close() }()

	require.Equal(t, http.StatusOK, download.StatusCode)
	assert.Equal(t, "audio/wav", download.Header.Get("Content-Type"))

	wavData, err := io.ReadAll(download.Body)
	require.NoError(t, err)
	assert.Equal(t, audio.FormatWAV, audio.Detect(wavData))
}

func TestCloneVoice_PublicBaseURLAndSampling(t *testing.T) {
	t.Parallel()

	cloner := &mockCloner{}
	testServer := newTestServer(t, cloner, server.Options{PublicBaseURL: "https://voices.example.com/"})

	resp := postClone(t, testServer.URL, map[string]string{
		"target_text": "Hello world",
		"top_p":       "0.9",
		"temperature": "0.7",
	}, []byte("clip"))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body server.CloneResponse

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, strings.HasPrefix(body.AudioURL, "https://voices.example.com/download_audio/generated_"))

	request, _ := cloner.snapshot()
	require.NotNil(t, request.Sampling)
	assert.InDelta(t, 0.9, request.Sampling.TopP, 1e-9)
	assert.InDelta(t, 0.7, request.Sampling.Temperature, 1e-9)
}

func TestCloneVoice_RejectsBadRequests(t *testing.T) {
	t.Parallel()

	tests := []struct {
		fields  map[string]string
		name    string
		message string
		audio   []byte
	}{
		{
			name:    "missing text",
			fields:  map[string]string{},
			audio:   []byte("clip"),
			message: "Text input is required.",
		},
		{
			name:    "blank text",
			fields:  map[string]string{"target_text": "   "},
			audio:   []byte("clip"),
			message: "Text input is required.",
		},
		{
			name:    "missing audio",
			fields:  map[string]string{"target_text": "Hello"},
			message: "Prompt audio file is required.",
		},
		{
			name:    "empty audio",
			fields:  map[string]string{"target_text": "Hello"},
			audio:   []byte{},
			message: "Prompt audio file is required.",
		},
		{
			name:    "malformed top_p",
			fields:  map[string]string{"target_text": "Hello", "top_p": "high"},
			audio:   []byte("clip"),
			message: `invalid top_p: "high"`,
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			cloner := &mockCloner{}
			testServer := newTestServer(t, cloner, server.Options{})

			resp := postClone(t, testServer.URL, testCase.fields, testCase.audio)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, testCase.message, decodeError(t, resp))

			_, calls := cloner.snapshot()
			assert.Zero(t, calls, "the pipeline must not run")
		})
	}
}

func TestCloneVoice_OutOfRangeSampling(t *testing.T) {
	t.Parallel()

	tests := []struct {
		fields map[string]string
		name   string
		want   string
	}{
		{name: "top_p above one", fields: map[string]string{"top_p": "1.5"}, want: "top_p"},
		{name: "NaN top_p", fields: map[string]string{"top_p": "NaN"}, want: "top_p"},
		{name: "infinite temperature", fields: map[string]string{"temperature": "inf"}, want: "temperature"},
		{name: "NaN temperature", fields: map[string]string{"temperature": "nan"}, want: "temperature"},
		{
			name:   "infinite temperature with NaN top_p",
			fields: map[string]string{"temperature": "+Inf", "top_p": "NaN"},
			want:   "top_p",
		},
		{name: "negative max_length", fields: map[string]string{"max_length": "-1"}, want: "max_length"},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			cloner := &mockCloner{}
			testServer := newTestServer(t, cloner, server.Options{})

			fields := map[string]string{"target_text": "Hello"}
			for name, value := range testCase.fields {
				fields[name] = value
			}

			resp := postClone(t, testServer.URL, fields, []byte("clip"))
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Contains(t, decodeError(t, resp), testCase.want)

			_, calls := cloner.snapshot()
			assert.Zero(t, calls, "the pipeline must not run")
		})
	}
}

func TestCloneVoice_UploadTooLarge(t *testing.T) {
	t.Parallel()

	cloner := &mockCloner{}
	testServer := newTestServer(t, cloner, server.Options{MaxUploadBytes: 1024})

	resp := postClone(t, testServer.URL, map[string]string{"target_text": "Hello"}, make([]byte, 8*1024))
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.Equal(t, "Prompt audio file is too large.", decodeError(t, resp))
}

func TestCloneVoice_MapsPipelineErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err     error
		name    string
		message string
		status  int
	}{
		{
			name:    "unsupported format",
			err:     core.NewError(core.KindInput, "normalize", core.ErrUnsupportedFormat),
			status:  http.StatusBadRequest,
			message: "Unsupported audio format.",
		},
		{
			name:    "corrupt audio",
			err:     core.NewError(core.KindConversion, "normalize", core.ErrAudioDecode),
			status:  http.StatusUnprocessableEntity,
			message: "Failed to convert audio to WAV.",
		},
		{
			name:    "model failure",
			err:     core.NewError(core.KindModel, "encode", core.ErrEmptySpeechCodes),
			status:  http.StatusInternalServerError,
			message: "TTS generation failed.",
		},
		{
			name:    "deadline",
			err:     core.NewError(core.KindTimeout, "generate", context.DeadlineExceeded),
			status:  http.StatusGatewayTimeout,
			message: "Request timed out.",
		},
		{
			name:    "unclassified",
			err:     errUnexpected,
			status:  http.StatusInternalServerError,
			message: "Internal server error.",
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			testServer := newTestServer(t, &mockCloner{err: testCase.err}, server.Options{})

			resp := postClone(t, testServer.URL, map[string]string{"target_text": "Hello"}, []byte("clip"))
			assert.Equal(t, testCase.status, resp.StatusCode)
			assert.Equal(t, testCase.message, decodeError(t, resp))
		})
	}
}

func TestDownload_NotFound(t *testing.T) {
	t.Parallel()

	testServer := newTestServer(t, &mockCloner{}, server.Options{})

	resp, err := http.Get(testServer.URL + "/download_audio/generated_missing.wav")
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Audio file not found.", decodeError(t, resp))
}

func TestDownload_OnlyServesGeneratedAudio(t *testing.T) {
	t.Parallel()

	store, err := objectstore.NewFileStore(t.TempDir())
	require.NoError(t, err)

	generated := "generated_" + uuid.NewString() + ".wav"
	hidden := []string{
		"voice.wav",
		"chapter-1.txt",
		"." + uuid.NewString() + ".tmp",
		"generated_" + uuid.NewString() + ".txt",
		"generated_not-a-uuid.wav",
		"generated_" + strings.ToUpper(uuid.NewString()) + ".wav",
	}

	for _, key := range append([]string{generated}, hidden...) {
		require.NoError(t, store.Upload(context.Background(), key, []byte("RIFF....WAVE")))
	}

	testServer := newStoreServer(t, &mockCloner{}, store, server.Options{})

	for _, key := range hidden {
		t.Run(key, func(t *testing.T) {
			t.Parallel()

			resp, err := http.Get(testServer.URL + "/download_audio/" + key)
			require.NoError(t, err)

			defer func() { _ = resp.Body.Close() }()

			assert.Equal(t, http.StatusNotFound, resp.StatusCode)
			assert.Equal(t, "Audio file not found.", decodeError(t, resp))
		})
	}

	resp, err := http.Get(testServer.URL + "/download_audio/" + generated)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	t.Parallel()

	testLogger, err := logger.New(t.TempDir(), "server-test.log")
	require.NoError(t, err)

	defer func() { _ = testLogger.Close() }()

	tests := []struct {
		state  modelState
		name   string
		want   server.HealthResponse
		status int
	}{
		{
			name:   "loaded",
			state:  modelState{loaded: true, device: "cpu"},
			status: http.StatusOK,
			want:   server.HealthResponse{Status: "ok", Device: "cpu", ModelLoaded: true},
		},
		{
			name:   "not loaded",
			state:  modelState{},
			status: http.StatusServiceUnavailable,
			want:   server.HealthResponse{Status: "loading"},
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			handler := server.New(&mockCloner{}, nil, testCase.state, server.Options{}, testLogger)

			recorder := httptest.NewRecorder()
			handler.Router().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, testCase.status, recorder.Code)

			var body server.HealthResponse

			require.NoError(t, json.NewDecoder(recorder.Body).Decode(&body))
			assert.Equal(t, testCase.want, body)
		})
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	t.Parallel()

	testServer := newTestServer(t, &mockCloner{}, server.Options{
		AllowedOrigins: []string{"https://app.example.com"},
		RequestTimeout: time.Second,
	})

	req, err := http.NewRequest(http.MethodOptions, testServer.URL+"/clone_voice/", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}
