package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-clone-service/internal/fileutil"
)

const (
	filePermissions  = 0o600
	outputFileFormat = "chunk_%04d.wav"
)

// Static errors.
var (
	ErrChunksPathEmpty = errors.New("chunks path cannot be empty")
	ErrOutputDirEmpty  = errors.New("output directory cannot be empty")
	ErrOutputPathEmpty = errors.New("output path cannot be empty")
	ErrNoChunksFound   = errors.New("no chunks found")
)

const (
	logFmtGeneratedAudio        = "Generated audio: %s (%s)"
	logFmtChunkProcessingFailed = "Failed to process chunk %d: %v"
	logFmtChunkProcessed        = "Processed chunk %d/%d"
	errFmtChunkFailed           = "chunk %d failed: %w"
)

// Batch clones texts into local WAV files with one reference clip.
type Batch struct {
	client   *HTTPClient
	log      *logger.Logger
	template CloneRequest
	workers  int
}

// NewBatch creates a Batch. template carries the prompt and sampling shared by
// every text. The service serializes generation, so workers above one only
// overlap uploads and downloads.
func NewBatch(client *HTTPClient, template CloneRequest, workers int, log *logger.Logger) *Batch {
	if workers <= 0 {
		workers = 1
	}

	return &Batch{client: client, template: template, workers: workers, log: log}
}

// CloneToFile clones text and writes the WAV to outputPath.
func (b *Batch) CloneToFile(ctx context.Context, text, outputPath string) error {
	if outputPath == "" {
		return ErrOutputPathEmpty
	}

	req := b.template
	req.TargetText = text

	audioURL, err := b.client.CloneVoice(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to clone voice: %w", err)
	}

	audioData, err := b.client.Download(ctx, audioURL)
	if err != nil {
		return fmt.Errorf("failed to download generated audio: %w", err)
	}

	err = fileutil.EnsureDir(filepath.Dir(outputPath))
	if err != nil {
		return err
	}

	err = os.WriteFile(outputPath, audioData, filePermissions)
	if err != nil {
		return fmt.Errorf("failed to write audio file: %w", err)
	}

	b.log.Info(logFmtGeneratedAudio, outputPath, fileutil.FormatFileSize(int64(len(audioData))))

	return nil
}

// CloneChunks reads a JSON array of texts and writes chunk_0001.wav,
// chunk_0002.wav, ... into outputDir. Failed chunks are logged and the last
// failure is returned after every chunk has been tried.
func (b *Batch) CloneChunks(ctx context.Context, chunksPath, outputDir string) error {
	if chunksPath == "" {
		return ErrChunksPathEmpty
	}

	if outputDir == "" {
		return ErrOutputDirEmpty
	}

	chunks, err := ReadChunksFile(chunksPath)
	if err != nil {
		return err
	}

	err = fileutil.EnsureDir(outputDir)
	if err != nil {
		return err
	}

	var (
		waitGroup sync.WaitGroup
		mutex     sync.Mutex
		lastError error
	)

	workerPool := make(chan struct{}, b.workers)

	for chunkIndex, chunk := range chunks {
		waitGroup.Add(1)

		go func(index int, text string) {
			defer waitGroup.Done()

			workerPool <- struct{}{}

			defer func() { <-workerPool }()

			outputPath := filepath.Join(outputDir, fmt.Sprintf(outputFileFormat, index+1))

			chunkErr := b.CloneToFile(ctx, text, outputPath)
			if chunkErr != nil {
				mutex.Lock()
				lastError = fmt.Errorf(errFmtChunkFailed, index+1, chunkErr)
				mutex.Unlock()

				b.log.Error(logFmtChunkProcessingFailed, index+1, chunkErr)

				return
			}

			b.log.Info(logFmtChunkProcessed, index+1, len(chunks))
		}(chunkIndex, chunk)
	}

	waitGroup.Wait()

	return lastError
}

// ReadChunksFile parses a JSON array of strings.
func ReadChunksFile(chunksPath string) ([]string, error) {
	data, err := os.ReadFile(chunksPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunks file: %w", err)
	}

	var chunks []string

	err = json.Unmarshal(data, &chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to parse chunks JSON: %w", err)
	}

	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoChunksFound, chunksPath)
	}

	return chunks, nil
}
