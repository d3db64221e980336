// Package ants drives the external ANTs registration tools.
package ants

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
)

// Runner executes one external command.
type Runner func(ctx context.Context, name string, args ...string) error

// Exec runs the command and folds its combined output into the error.
func Exec(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w\n%s", name, err, tail(out.Bytes(), 2048))
	}
	return nil
}

func tail(b []byte, n int) []byte {
	if len(b) > n {
		return b[len(b)-n:]
	}
	return b
}

// Transforms are the files a SyN registration leaves behind.
type Transforms struct {
	Affine string // <prefix>0GenericAffine.mat
	Warp   string // <prefix>1Warp.nii.gz
	Warped string // moving image resampled into the fixed grid
}

// ForPrefix returns the transform names antsRegistrationSyN.sh uses for prefix.
func ForPrefix(prefix string) Transforms {
	return Transforms{
		Affine: prefix + "0GenericAffine.mat",
		Warp:   prefix + "1Warp.nii.gz",
		Warped: prefix + "Warped.nii.gz",
	}
}

// Engine locates the ANTs scripts and runs them.
type Engine struct {
	BinDir  string // empty means $PATH
	Threads int
	Run     Runner
	Log     *slog.Logger
}

// New returns an Engine that executes real processes.
func New(binDir string, threads int, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{BinDir: binDir, Threads: threads, Run: Exec, Log: logger.With(slog.String("component", "ants"))}
}

func (e *Engine) tool(name string) string {
	if e.BinDir == "" {
		return name
	}
	return filepath.Join(e.BinDir, name)
}

// Register runs SyN registration of moving onto fixed and checks the transforms were written.
func (e *Engine) Register(ctx context.Context, fixed, moving, prefix string) (Transforms, error) {
	if err := os.MkdirAll(filepath.Dir(prefix), 0o755); err != nil {
		return Transforms{}, fmt.Errorf("[Register] %w", err)
	}

	args := []string{"-d", "3", "-f", fixed, "-m", moving, "-o", prefix, "-t", "s"}
	if e.Threads > 0 {
		args = append(args, "-n", fmt.Sprint(e.Threads))
	}

	e.Log.Info("registering", slog.String("fixed", fixed), slog.String("moving", moving))
	if err := e.Run(ctx, e.tool("antsRegistrationSyN.sh"), args...); err != nil {
		return Transforms{}, fmt.Errorf("[Register] %w", err)
	}

	tr := ForPrefix(prefix)
	for _, p := range []string{tr.Affine, tr.Warp, tr.Warped} {
		if _, err := os.Stat(p); err != nil {
			return Transforms{}, fmt.Errorf("[Register] expected output: %w", err)
		}
	}

	return tr, nil
}

// Apply resamples input into the fixed grid through tr. Label images use
// nearest-neighbour interpolation so no new labels appear.
func (e *Engine) Apply(ctx context.Context, fixed, input, output string, tr Transforms, label bool) error {
	interp := "Linear"
	if label {
		interp = "NearestNeighbor"
	}

	args := []string{
		"-d", "3",
		"-i", input,
		"-r", fixed,
		"-o", output,
		"-n", interp,
		"-t", tr.Warp,
		"-t", tr.Affine,
	}

	e.Log.Info("applying transforms", slog.String("input", input), slog.String("interpolation", interp))
	if err := e.Run(ctx, e.tool("antsApplyTransforms"), args...); err != nil {
		return fmt.Errorf("[Apply] %w", err)
	}

	return nil
}
