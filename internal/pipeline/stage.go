package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Stage collects a run's artifacts in a hidden directory next to their final
// place. Commit moves them all in; Abort leaves the output directory untouched.
type Stage struct {
	final string
	dir   string
	files []string
}

// NewStage creates <outDir>/.staging-<uuid>.
func NewStage(outDir string) (*Stage, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("[NewStage] %w", err)
	}

	dir := filepath.Join(outDir, ".staging-"+uuid.NewString())
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, fmt.Errorf("[NewStage] %w", err)
	}

	return &Stage{final: outDir, dir: dir}, nil
}

// Path returns where to write rel inside the stage and registers it for Commit.
func (s *Stage) Path(rel string) (string, error) {
	p := filepath.Join(s.dir, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("[Stage.Path] %w", err)
	}
	s.files = append(s.files, rel)

	return p, nil
}

// Commit renames every staged file to its final path. If a rename fails the
// files already moved are taken back and the stage is discarded.
func (s *Stage) Commit() ([]string, error) {
	var moved []string
	for _, rel := range s.files {
		dst := filepath.Join(s.final, rel)
		err := os.MkdirAll(filepath.Dir(dst), 0o755)
		if err == nil {
			err = os.Rename(filepath.Join(s.dir, rel), dst)
		}
		if err != nil {
			for _, done := range moved {
				os.Remove(done)
			}
			s.Abort()
			return nil, fmt.Errorf("[Stage.Commit] %w", err)
		}
		moved = append(moved, dst)
	}

	s.Abort()
	return moved, nil
}

// Abort removes the staging directory.
func (s *Stage) Abort() {
	os.RemoveAll(s.dir)
}
