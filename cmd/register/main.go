package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/KyungWonPark/Connectome/internal/ants"
	"github.com/KyungWonPark/Connectome/internal/config"
	"github.com/KyungWonPark/Connectome/internal/logging"
)

func main() {
	fixed := flag.String("fixed", "", "fixed (reference) image")
	moving := flag.String("moving", "", "moving image to register")
	prefix := flag.String("prefix", "", "output prefix of the transforms")
	apply := flag.String("apply", "", "image to resample through the transforms")
	output := flag.String("output", "", "resampled image path")
	label := flag.Bool("label", false, "the image to apply is a label map (nearest neighbour)")
	antsDir := flag.String("ants-bin", os.Getenv("ANTSPATH"), "directory of the ANTs tools")
	threads := flag.Int("threads", runtime.NumCPU(), "registration threads")
	logLevel := flag.String("log-level", "info", "debug, info, warn or error")
	flag.Parse()

	log, err := logging.New(os.Stderr, config.Logging{Level: *logLevel, Format: "text"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "[register] %v\n", err)
		os.Exit(2)
	}
	if *fixed == "" || (*moving == "" && *apply == "") || (*moving != "" && *prefix == "") || (*apply != "" && *output == "") {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := ants.New(*antsDir, *threads, log)

	var tr ants.Transforms
	if *moving != "" {
		if tr, err = engine.Register(ctx, *fixed, *moving, *prefix); err != nil {
			log.Error("registration failed", "error", err)
			os.Exit(1)
		}
		log.Info("registration done", "affine", tr.Affine, "warp", tr.Warp)
	} else {
		if *prefix == "" {
			fmt.Fprintln(os.Stderr, "[register] -apply without -moving needs -prefix of an earlier registration")
			os.Exit(2)
		}
		tr = ants.ForPrefix(*prefix)
	}

	if *apply != "" {
		if err := engine.Apply(ctx, *fixed, *apply, *output, tr, *label); err != nil {
			log.Error("apply transforms failed", "error", err)
			os.Exit(1)
		}
		log.Info("transformed image saved", "output", *output)
	}

	return
}
