package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-clone-service/internal/core"
	"github.com/google/uuid"
)

// FFmpegDecoder converts containers the native decoders do not handle by calling
// the ffmpeg binary.
type FFmpegDecoder struct {
	log        *logger.Logger
	binaryPath string
	tempDir    string
}

// NewFFmpegDecoder returns nil when binaryPath is empty, which disables the fallback.
func NewFFmpegDecoder(binaryPath string, log *logger.Logger) *FFmpegDecoder {
	if binaryPath == "" {
		return nil
	}

	return &FFmpegDecoder{binaryPath: binaryPath, tempDir: os.TempDir(), log: log}
}

// Convert transcodes raw audio to mono 16-bit PCM WAV at sampleRate and decodes it.
// Both temp files are removed on every path.
func (f *FFmpegDecoder) Convert(ctx context.Context, raw []byte, sampleRate int) (*pcm, error) {
	id := uuid.NewString()
	inputPath := filepath.Join(f.tempDir, "voice-clone-in-"+id)
	outputPath := filepath.Join(f.tempDir, "voice-clone-out-"+id+".wav")

	defer f.remove(inputPath)
	defer f.remove(outputPath)

	err := os.WriteFile(inputPath, raw, filePermissions)
	if err != nil {
		return nil, fmt.Errorf("failed to write ffmpeg input: %w", err)
	}

	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", inputPath,
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"-acodec", "pcm_s16le",
		"-f", "wav",
		outputPath,
	}

	// #nosec G204 -- binary path comes from configuration, file names are generated
	cmd := exec.CommandContext(ctx, f.binaryPath, args...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("%w: ffmpeg failed: %w - output: %s", core.ErrAudioDecode, err, string(output))
	}

	converted, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read ffmpeg output: %w", err)
	}

	return decodeWAV(converted)
}

func (f *FFmpegDecoder) remove(path string) {
	removeErr := os.Remove(path)
	if removeErr != nil && !os.IsNotExist(removeErr) {
		f.log.Warn("Failed to remove temp file '%s': %v", path, removeErr)
	}
}
