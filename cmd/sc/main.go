package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/KyungWonPark/Connectome/internal/app"
	"github.com/KyungWonPark/Connectome/internal/config"
)

func main() { // [flags] subjectDir outputDir
	configPath := flag.String("config", "", "YAML configuration file")
	workers := flag.Int("workers", 0, "compute goroutines (0: all CPUs)")
	concurrency := flag.Int("concurrency", 1, "runs processed at once")
	sessions := flag.Bool("sessions", true, "subject directory holds ses-* sessions")
	normalize := flag.Bool("normalize", true, "write the seed-weight normalized matrix")
	weighting := flag.String("weighting", config.WeightingNone, "streamline weighting: none or commit")
	seeds := flag.Float64("seeds-per-voxel", 10, "tractography seed density")
	frameCheck := flag.Bool("frame-check", true, "compare the tractogram frame with the parcellation")
	allowDegenerate := flag.Bool("allow-degenerate-weights", false, "keep NaN/Inf cells where a seed weight is zero")
	debug := flag.Bool("debug", false, "stage debug logs and symmetry checks")
	textfile := flag.String("metrics-textfile", "", "write prometheus metrics to this file")
	logLevel := flag.String("log-level", "info", "debug, info, warn or error")
	logFormat := flag.String("log-format", "text", "text or json")
	flag.Parse()

	if flag.NArg() != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] subjectDir outputDir\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[sc] %v\n", err)
		os.Exit(2)
	}

	// flags given on the command line win over the file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "workers":
			cfg.Pipeline.Workers = *workers
		case "concurrency":
			cfg.Pipeline.Concurrency = *concurrency
		case "sessions":
			cfg.Pipeline.HasSessions = *sessions
		case "normalize":
			cfg.Pipeline.Normalize = *normalize
		case "weighting":
			cfg.Pipeline.WeightingMode = *weighting
		case "seeds-per-voxel":
			cfg.Pipeline.SeedsPerVoxel = *seeds
		case "frame-check":
			cfg.Pipeline.FrameCheck = *frameCheck
		case "allow-degenerate-weights":
			cfg.Pipeline.AllowDegenerateWeights = *allowDegenerate
		case "debug":
			cfg.Pipeline.Debug = *debug
		case "metrics-textfile":
			cfg.Metrics.Textfile = *textfile
		case "log-level":
			cfg.Logging.Level = *logLevel
		case "log-format":
			cfg.Logging.Format = *logFormat
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := app.Setup(ctx, cfg, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[sc] %v\n", err)
		os.Exit(2)
	}

	subjectDir, outputDir := flag.Arg(0), flag.Arg(1)
	runErr := env.Driver.StructuralSubject(ctx, subjectDir, outputDir)
	if err := env.Close(context.Background()); err != nil {
		env.Log.Error("shutdown", "error", err)
	}

	if runErr != nil {
		env.Log.Error("structural connectivity finished with errors", "error", runErr)
		os.Exit(1)
	}
	env.Log.Info("structural connectivity matrices saved", "output", outputDir)

	return
}
