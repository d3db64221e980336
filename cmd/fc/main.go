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
	sessions := flag.Bool("sessions", true, "subject directory holds ses-* sessions")
	zscore := flag.Bool("zscore", false, "export z-scored region time series")
	frameCheck := flag.Bool("frame-check", true, "compare the BOLD affine with the parcellation")
	textfile := flag.String("metrics-textfile", "", "write prometheus metrics to this file")
	logLevel := flag.String("log-level", "info", "debug, info, warn or error")
	flag.Parse()

	if flag.NArg() != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] subjectDir outputDir\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[fc] %v\n", err)
		os.Exit(2)
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "workers":
			cfg.Pipeline.Workers = *workers
		case "sessions":
			cfg.Pipeline.HasSessions = *sessions
		case "zscore":
			cfg.FC.ZScore = *zscore
		case "frame-check":
			cfg.Pipeline.FrameCheck = *frameCheck
		case "metrics-textfile":
			cfg.Metrics.Textfile = *textfile
		case "log-level":
			cfg.Logging.Level = *logLevel
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := app.Setup(ctx, cfg, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[fc] %v\n", err)
		os.Exit(2)
	}

	subjectDir, outputDir := flag.Arg(0), flag.Arg(1)
	runErr := env.Driver.FunctionalSubject(ctx, subjectDir, outputDir)
	if err := env.Close(context.Background()); err != nil {
		env.Log.Error("shutdown", "error", err)
	}

	if runErr != nil {
		env.Log.Error("functional connectivity finished with errors", "error", runErr)
		os.Exit(1)
	}
	env.Log.Info("functional connectivity matrices saved", "output", outputDir)

	return
}
