package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-clone-service/internal/client"
	"github.com/book-expert/voice-clone-service/internal/fileutil"
	"github.com/spf13/cobra"
)

const (
	defaultServerURL  = "http://localhost:8000"
	defaultTimeout    = 300 * time.Second
	defaultOutputFile = "output.wav"
	defaultOutputDir  = "output"
	logFileName       = "clone-client.log"
)

var (
	errEitherTextOrChunks = errors.New("either --text or --chunks must be provided")
	errCannotSpecifyBoth  = errors.New("cannot specify both --text and --chunks")
	errPromptRequired     = errors.New("--prompt is required")
)

// globalFlags are shared by every command.
type globalFlags struct {
	serverURL string
	logDir    string
	timeout   time.Duration
}

type cloneFlags struct {
	prompt      string
	text        string
	chunks      string
	output      string
	topP        float64
	temperature float64
	workers     int
}

func newRootCmd() *cobra.Command {
	globals := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           "clone-client",
		Short:         "Client for the voice-clone-service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&globals.serverURL, "server", "s", defaultServerURL, "voice-clone-service base URL")
	rootCmd.PersistentFlags().DurationVar(&globals.timeout, "timeout", defaultTimeout, "per-request timeout")
	rootCmd.PersistentFlags().StringVar(&globals.logDir, "log-dir", os.TempDir(), "directory for the client log")

	rootCmd.AddCommand(newCloneCmd(globals), newDownloadCmd(globals), newHealthCmd(globals))

	return rootCmd
}

func newCloneCmd(globals *globalFlags) *cobra.Command {
	flags := &cloneFlags{}

	cmd := &cobra.Command{
		Use:   "clone",
		Short: "Clone a voice",
		Long: `Clone the voice in a reference clip for one text or for a JSON array of texts.

Examples:
  clone-client clone --prompt speaker.wav --text "Hello there." -o hello.wav
  clone-client clone --prompt speaker.mp3 --chunks chapter.json -o chapter/`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := validateCloneFlags(flags)
			if err != nil {
				return err
			}

			log, err := logger.New(globals.logDir, logFileName)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}

			defer func() { _ = log.Close() }()

			promptAudio, err := os.ReadFile(flags.prompt)
			if err != nil {
				return fmt.Errorf("failed to read prompt audio: %w", err)
			}

			batch := client.NewBatch(
				client.NewHTTPClient(globals.serverURL, globals.timeout),
				client.CloneRequest{
					PromptName:  filepath.Base(flags.prompt),
					PromptAudio: promptAudio,
					TopP:        flags.topP,
					Temperature: flags.temperature,
				},
				flags.workers,
				log,
			)

			if flags.text != "" {
				outputPath := orDefault(flags.output, defaultOutputFile)

				err = batch.CloneToFile(cmd.Context(), flags.text, outputPath)
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Generated: %s\n", outputPath)

				return nil
			}

			outputDir := orDefault(flags.output, defaultOutputDir)

			err = batch.CloneChunks(cmd.Context(), flags.chunks, outputDir)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Generated audio files in: %s\n", outputDir)

			return nil
		},
	}

	cmd.Flags().StringVarP(&flags.prompt, "prompt", "p", "", "reference clip (wav, mp3, or anything ffmpeg reads on the server)")
	cmd.Flags().StringVarP(&flags.text, "text", "t", "", "text to speak")
	cmd.Flags().StringVar(&flags.chunks, "chunks", "", "JSON file containing an array of texts")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "output file (--text) or directory (--chunks)")
	cmd.Flags().Float64Var(&flags.topP, "top-p", 0, "nucleus sampling threshold (server default when 0)")
	cmd.Flags().Float64Var(&flags.temperature, "temperature", 0, "sampling temperature (server default when 0)")
	cmd.Flags().IntVar(&flags.workers, "workers", 1, "concurrent requests for --chunks")

	return cmd
}

func newDownloadCmd(globals *globalFlags) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "download <audio_url>",
		Short: "Download generated audio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			httpClient := client.NewHTTPClient(globals.serverURL, globals.timeout)

			audioData, err := httpClient.Download(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			outputPath := orDefault(output, filepath.Base(args[0]))

			err = os.WriteFile(outputPath, audioData, 0o600)
			if err != nil {
				return fmt.Errorf("failed to write %s: %w", outputPath, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s)\n", outputPath, fileutil.FormatFileSize(int64(len(audioData))))

			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (defaults to the URL's file name)")

	return cmd
}

func newHealthCmd(globals *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check service health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), globals.timeout)
			defer cancel()

			health, err := client.NewHTTPClient(globals.serverURL, globals.timeout).HealthCheck(ctx)
			if err != nil {
				return fmt.Errorf("voice-clone-service is not healthy: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "voice-clone-service is healthy (device %s)\n", health.Device)

			return nil
		},
	}
}

func validateCloneFlags(flags *cloneFlags) error {
	if flags.prompt == "" {
		return errPromptRequired
	}

	if flags.text == "" && flags.chunks == "" {
		return errEitherTextOrChunks
	}

	if flags.text != "" && flags.chunks != "" {
		return errCannotSpecifyBoth
	}

	return nil
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}

	return value
}
