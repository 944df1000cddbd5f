package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/intonelabs/intone/internal/config"
	"github.com/intonelabs/intone/internal/emotion"
	"github.com/intonelabs/intone/internal/finish"
	"github.com/intonelabs/intone/internal/pipeline"
	"github.com/intonelabs/intone/internal/synth"
)

var (
	renderInput    string
	renderOutput   string
	renderModel    string
	renderEmotions string
	renderFormat   string
	renderEngine   string
	renderCommand  string
	renderEndpoint string
	renderWorkers  int
	renderNoNorm   bool
	renderLUFS     float64
)

const timeRound = 10 * time.Millisecond

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render one narration script to an audio file",
	RunE:  runRender,
}

func init() {
	renderCmd.Flags().StringVarP(&renderInput, "input", "i", "", "Narration script JSON (required)")
	renderCmd.Flags().StringVarP(&renderOutput, "output", "o", "output.mp3", "Output audio file")
	renderCmd.Flags().StringVarP(&renderModel, "model", "m", "", "Voice model reference (path or name)")
	renderCmd.Flags().StringVarP(&renderEmotions, "emotions", "c", "", "Emotion config JSON (built-ins when omitted)")
	renderCmd.Flags().StringVarP(&renderFormat, "format", "f", "", "Output format: mp3|wav|ogg (default from output extension)")
	renderCmd.Flags().StringVar(&renderEngine, "engine", "", "Engine mode: mock|exec|wyoming")
	renderCmd.Flags().StringVar(&renderCommand, "engine-command", "", "Engine command line (mode=exec)")
	renderCmd.Flags().StringVar(&renderEndpoint, "engine-endpoint", "", "Piper Wyoming endpoint (mode=wyoming)")
	renderCmd.Flags().IntVar(&renderWorkers, "workers", 0, "Parallel synthesis workers (default from config)")
	renderCmd.Flags().BoolVar(&renderNoNorm, "no-normalize", false, "Skip loudness normalization")
	renderCmd.Flags().Float64Var(&renderLUFS, "target-lufs", 0, "Loudness target in LUFS (default from config)")
	_ = renderCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(renderCmd)
}

func runRender(cmd *cobra.Command, _ []string) error {
	logger := newLogger(os.Stderr)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	applyRenderFlags(&cfg)

	scriptJSON, err := os.ReadFile(renderInput)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}

	table, err := emotion.LoadTable(cfg.Emotions.Path, logger)
	if err != nil {
		return err
	}
	engine, err := synth.NewEngine(cfg.Engine)
	if err != nil {
		return err
	}
	if closer, ok := engine.(io.Closer); ok {
		defer closer.Close()
	}
	adapter := synth.NewAdapter(engine, cfg.Engine.SampleRate, cfg.Engine.Channels, cfg.Engine.Workers, logger)

	var normalizer finish.Normalizer = finish.NewFFmpegNormalizer(cfg.Output.FFmpegPath)
	if !cfg.Output.Normalize {
		normalizer = finish.NoopNormalizer{}
	}
	finisher := finish.NewFinisher(normalizer, finish.NewEncoder(cfg.Output.FFmpegPath), logger)

	runner := pipeline.NewRunner(table, adapter, finisher, nil,
		cfg.Engine.SampleRate, cfg.Engine.Channels, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := runner.Run(ctx, pipeline.Request{
		ScriptJSON: scriptJSON,
		Output: finish.Options{
			Format:    cfg.Output.Format,
			Path:      renderOutput,
			Normalize: cfg.Output.Normalize,
			Loudness: finish.Loudness{
				TargetLUFS: cfg.Output.TargetLUFS,
				TruePeak:   cfg.Output.TruePeak,
				LRA:        cfg.Output.LRA,
			},
		},
	})
	if err != nil {
		logger.Error("render failed", "error", err.Error())
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "rendered %d segments (%s) to %s\n",
		result.Segments, result.Duration.Round(timeRound), result.ArtifactPath)
	return nil
}

func applyRenderFlags(cfg *config.Config) {
	if renderModel != "" {
		cfg.Engine.ModelPath = renderModel
	}
	if renderEmotions != "" {
		cfg.Emotions.Path = renderEmotions
	}
	if renderEngine != "" {
		cfg.Engine.Mode = renderEngine
	}
	if renderCommand != "" {
		cfg.Engine.Command = renderCommand
		if renderEngine == "" {
			cfg.Engine.Mode = "exec"
		}
	}
	if renderEndpoint != "" {
		cfg.Engine.Endpoint = renderEndpoint
		if renderEngine == "" {
			cfg.Engine.Mode = "wyoming"
		}
	}
	if renderWorkers > 0 {
		cfg.Engine.Workers = renderWorkers
	}
	if renderNoNorm {
		cfg.Output.Normalize = false
	}
	if renderLUFS < 0 {
		cfg.Output.TargetLUFS = renderLUFS
	}
	switch {
	case renderFormat != "":
		cfg.Output.Format = renderFormat
	default:
		ext := strings.TrimPrefix(filepath.Ext(renderOutput), ".")
		if ext == "mp3" || ext == "wav" || ext == "ogg" {
			cfg.Output.Format = ext
		}
	}
}
