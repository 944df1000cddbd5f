package cmd

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/intonelabs/intone/internal/pipeline"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "intone",
	Short: "intone - emotionally-inflected narration renderer",
	Long: `intone turns a JSON narration script into a single narrated audio
file. Each segment is synthesized with emotion-specific voice parameters,
segments are stitched together with the requested pauses, and the result is
loudness-normalized and encoded.

Commands:
  render   - render one script to an audio file
  serve    - run the render daemon (NATS + HTTP health/metrics)
  version  - print the build version`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the command tree and returns the process exit code:
// 0 success, 2 invalid script, 3 synthesis failure, 4 normalization or
// encoding failure, 1 anything else.
func Execute() int {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		return pipeline.ExitCode(err)
	}
	return 0
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to intone.yaml (optional)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug|info|warn|error")
}

func newLogger(w *os.File) *slog.Logger {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}
