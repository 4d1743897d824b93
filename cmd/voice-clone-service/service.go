package main

import (
	"context"
	"fmt"
	"os"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-clone-service/internal/audio"
	"github.com/book-expert/voice-clone-service/internal/config"
	"github.com/book-expert/voice-clone-service/internal/core"
	"github.com/book-expert/voice-clone-service/internal/generation"
	"github.com/book-expert/voice-clone-service/internal/model"
	"github.com/book-expert/voice-clone-service/internal/model/inference"
	"github.com/book-expert/voice-clone-service/internal/objectstore"
	"github.com/book-expert/voice-clone-service/internal/pipeline"
	"github.com/book-expert/voice-clone-service/internal/speechcodec"
	"github.com/book-expert/voice-clone-service/internal/textnorm"
	"github.com/book-expert/voice-clone-service/internal/transcribe"
	"github.com/book-expert/voice-clone-service/internal/worker"
	"github.com/nats-io/nats.go"
)

// service holds everything run needs after startup.
type service struct {
	bundle         *model.Bundle
	pipeline       *pipeline.Pipeline
	store          core.ObjectStore
	worker         *worker.NatsWorker
	natsConnection *nats.Conn
}

func newService(ctx context.Context, cfg *config.Config, log *logger.Logger) (*service, error) {
	client := inference.NewClient(cfg.Models.BackendURL, cfg.ModelTimeout(), inference.ModelNames{
		Tokenizer:     cfg.Models.Tokenizer,
		LanguageModel: cfg.Models.LanguageModel,
		Codec:         cfg.Models.Codec,
	}, cfg.Models.RateLimitPerSecond)

	err := client.HealthCheck(ctx)
	if err != nil {
		return nil, fmt.Errorf("model backend at %s is not reachable: %w", cfg.Models.BackendURL, err)
	}

	bundle := model.NewBundle(client, cfg.Models.Device, log)

	err = bundle.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load models: %w", err)
	}

	log.Info("Models loaded on %s", bundle.Device())

	svc := &service{bundle: bundle}
	svc.pipeline = newPipeline(cfg, bundle, log)

	if cfg.NATS.URL != "" {
		err = svc.connectNATS(cfg, log)
		if err != nil {
			svc.close()

			return nil, err
		}
	}

	if cfg.Storage.Backend == config.StorageBackendFile {
		fileStore, storeErr := objectstore.NewFileStore(cfg.Storage.OutputDir)
		if storeErr != nil {
			svc.close()

			return nil, fmt.Errorf("failed to create output store: %w", storeErr)
		}

		svc.store = fileStore
	}

	return svc, nil
}

func newPipeline(cfg *config.Config, bundle *model.Bundle, log *logger.Logger) *pipeline.Pipeline {
	normalizer := audio.NewNormalizer(
		cfg.Audio.TargetSampleRate,
		audio.PolyphaseResampler{},
		audio.NewFFmpegDecoder(cfg.Audio.FFmpegPath, log),
	)

	engine := generation.NewEngine(bundle, generation.Options{
		PromptText:         cfg.Generation.PromptText,
		MaxLength:          cfg.Generation.MaxLength,
		TopP:               cfg.Generation.TopP,
		Temperature:        cfg.Generation.Temperature,
		IncludePromptCodes: cfg.Generation.IncludePromptCodes,
	}, log)

	var opts []pipeline.Option

	if cfg.Generation.NormalizeText {
		opts = append(opts, pipeline.WithTextNormalizer(textnorm.New()))
	}

	if cfg.Transcription.Enabled {
		transcriber, err := transcribe.New(
			os.Getenv(cfg.Transcription.APIKeyEnv),
			cfg.Transcription.BaseURL,
			cfg.Transcription.Model,
			cfg.Transcription.Language,
			cfg.ModelTimeout(),
		)
		if err != nil {
			log.Warn("Prompt transcription disabled: %v", err)
		} else {
			opts = append(opts, pipeline.WithTranscriber(transcriber))
		}
	}

	return pipeline.New(normalizer, speechcodec.NewBridge(bundle, cfg.Audio.TargetSampleRate), engine, log, opts...)
}

// connectNATS opens the JetStream object store and the clone worker. With the
// nats storage backend the object store also holds HTTP output.
func (s *service) connectNATS(cfg *config.Config, log *logger.Logger) error {
	natsConnection, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}

	s.natsConnection = natsConnection

	js, err := natsConnection.JetStream()
	if err != nil {
		return fmt.Errorf("failed to get JetStream context: %w", err)
	}

	natsStore, err := objectstore.NewNATSStore(js, cfg.NATS.AudioObjectStoreBucket)
	if err != nil {
		return err
	}

	if cfg.Storage.Backend == config.StorageBackendNATS {
		s.store = natsStore
	}

	s.worker, err = worker.NewNatsWorker(
		natsConnection,
		cfg.NATS.CloneRequestSubject,
		natsStore,
		s.pipeline,
		cfg.RequestTimeout(),
		log,
	)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	log.Info("Connected to NATS at %s (bucket %s)", cfg.NATS.URL, cfg.NATS.AudioObjectStoreBucket)

	return nil
}

func (s *service) close() {
	if s.natsConnection != nil {
		s.natsConnection.Close()
	}
}
