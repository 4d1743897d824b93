// Package worker provides a NATS worker that clones voices on request.
//
// A request is an events.TextProcessedEvent: TextKey names the target text and
// Voice names the reference clip, both in the object store. The generated WAV is
// uploaded to the same store and announced in an events.AudioChunkCreatedEvent
// reply.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/voice-clone-service/internal/audio"
	"github.com/book-expert/voice-clone-service/internal/core"
	"github.com/book-expert/voice-clone-service/internal/generation"
	"github.com/book-expert/voice-clone-service/internal/pipeline"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// HeaderError carries the failure message on error replies.
const HeaderError = "Voice-Clone-Error"

const (
	defaultHandleTimeout = 300 * time.Second
	audioKeyPrefix       = "generated_"
	audioKeySuffix       = ".wav"
)

var (
	// ErrSubjectEmpty indicates that no request subject was configured.
	ErrSubjectEmpty = errors.New("request subject cannot be empty")
	// ErrTextKeyEmpty indicates that the event names no target text.
	ErrTextKeyEmpty = errors.New("text key cannot be empty")
	// ErrVoiceEmpty indicates that the event names no reference clip.
	ErrVoiceEmpty = errors.New("voice cannot be empty")
)

// Cloner runs the voice-cloning pipeline.
type Cloner interface {
	CloneVoice(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// NatsWorker listens for clone requests on a NATS subject.
type NatsWorker struct {
	natsConnection *nats.Conn
	store          core.ObjectStore
	cloner         Cloner
	log            *logger.Logger
	subject        string
	timeout        time.Duration
}

// NewNatsWorker creates a worker. A non-positive timeout uses the default.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	store core.ObjectStore,
	cloner Cloner,
	timeout time.Duration,
	log *logger.Logger,
) (*NatsWorker, error) {
	if subject == "" {
		return nil, ErrSubjectEmpty
	}

	if timeout <= 0 {
		timeout = defaultHandleTimeout
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		store:          store,
		cloner:         cloner,
		timeout:        timeout,
		log:            log,
	}, nil
}

// Run subscribes and blocks until ctx is done, then drains the subscription.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	w.log.Info("Listening for clone requests on %s", w.subject)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	event, err := parseAndValidateEvent(msg)
	if err != nil {
		w.log.Error("Failed to parse and validate event: %v", err)
		w.respondError(msg, err)

		return
	}

	audioKey, err := w.processCloneJob(ctx, event)
	if err != nil {
		w.log.Error("Failed to clone voice for workflow %s: %v", event.Header.WorkflowID, err)
		w.respondError(msg, err)

		return
	}

	replyEvent := &events.AudioChunkCreatedEvent{
		Header:     event.Header,
		AudioKey:   audioKey,
		PageNumber: event.PageNumber,
		TotalPages: event.TotalPages,
	}

	err = publishReplyEvent(msg, replyEvent)
	if err != nil {
		w.log.Error("Failed to publish reply event for workflow %s: %v", event.Header.WorkflowID, err)
	}
}

// processCloneJob downloads the text and the reference clip, clones the voice
// and uploads the WAV. It returns the audio key.
func (w *NatsWorker) processCloneJob(ctx context.Context, event *events.TextProcessedEvent) (string, error) {
	textData, err := w.store.Download(ctx, event.TextKey)
	if err != nil {
		return "", fmt.Errorf("failed to download text data for key '%s': %w", event.TextKey, err)
	}

	voiceData, err := w.store.Download(ctx, event.Voice)
	if err != nil {
		return "", fmt.Errorf("failed to download reference clip for key '%s': %w", event.Voice, err)
	}

	result, err := w.cloner.CloneVoice(ctx, pipeline.Request{
		TargetText:     string(textData),
		ReferenceAudio: voiceData,
		Sampling:       samplingFrom(event),
	})
	if err != nil {
		return "", fmt.Errorf("failed to clone voice: %w", err)
	}

	audioData, err := audio.EncodeWAV(result.Waveform)
	if err != nil {
		return "", fmt.Errorf("failed to encode audio: %w", err)
	}

	audioKey := audioKeyPrefix + uuid.NewString() + audioKeySuffix

	err = w.store.Upload(ctx, audioKey, audioData)
	if err != nil {
		return "", fmt.Errorf("failed to upload audio data for key '%s': %w", audioKey, err)
	}

	w.log.Info("Cloned voice for workflow %s into %s (%d symbols)",
		event.Header.WorkflowID, audioKey, result.Stats.GeneratedSymbols)

	return audioKey, nil
}

// samplingFrom maps the event's sampling fields; zero values keep the defaults.
func samplingFrom(event *events.TextProcessedEvent) *generation.Sampling {
	if event.TopP == 0 && event.Temperature == 0 {
		return nil
	}

	return &generation.Sampling{
		TopP:        float64(event.TopP),
		Temperature: float64(event.Temperature),
	}
}

func (w *NatsWorker) respondError(msg *nats.Msg, cause error) {
	if msg.Reply == "" {
		return
	}

	reply := nats.NewMsg(msg.Reply)
	reply.Header.Set(HeaderError, cause.Error())

	err := msg.RespondMsg(reply)
	if err != nil {
		w.log.Warn("Failed to send error reply: %v", err)
	}
}

// publishReplyEvent marshals and responds with the AudioChunkCreatedEvent.
func publishReplyEvent(msg *nats.Msg, replyEvent *events.AudioChunkCreatedEvent) error {
	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf("failed to publish reply event: %w", err)
	}

	return nil
}

func parseAndValidateEvent(msg *nats.Msg) (*events.TextProcessedEvent, error) {
	var event events.TextProcessedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	if event.TextKey == "" {
		return nil, ErrTextKeyEmpty
	}

	if event.Voice == "" {
		return nil, ErrVoiceEmpty
	}

	err = samplingFrom(&event).Validate()
	if err != nil {
		return nil, err
	}

	return &event, nil
}
