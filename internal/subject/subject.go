// Package subject finds the runs of a subject directory and names their outputs.
package subject

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/KyungWonPark/Connectome/internal/config"
)

// Kind says where a modality's runs live and how their parcellation is named.
type Kind struct {
	Dir        string // modality directory below the session, e.g. "dwi"
	ParcDir    string
	Suffix     string // run files end with this
	Replace    string // swapped for ParcSuffix in the run file name
	ParcSuffix string
}

// Structural is the tractogram layout.
func Structural(l config.Layout) Kind {
	return Kind{Dir: l.DWIDir, ParcDir: l.ParcDir, Suffix: l.RunSuffix, Replace: l.RunReplace, ParcSuffix: l.ParcSuffix}
}

// Functional is the BOLD layout.
func Functional(l config.Layout) Kind {
	return Kind{Dir: l.FuncDir, ParcDir: l.ParcDir, Suffix: l.BoldSuffix, Replace: l.BoldReplace, ParcSuffix: l.FuncParcSuffix}
}

// Run is one input file and the parcellation that goes with it.
type Run struct {
	Session      string // "ses-XX", empty without sessions
	SessionIndex int    // 1-based position among sessions
	Index        int    // 1-based position among the session's runs
	Path         string
	ParcPath     string
}

// ID returns the session/run part of the output names.
func (r Run) ID() string {
	if r.Session == "" {
		return fmt.Sprintf("run-%d", r.Index)
	}
	return fmt.Sprintf("ses-%d_run-%d", r.SessionIndex, r.Index)
}

// Prefix returns "<subject>_ses-<n>_run-<m>", or "<subject>_run-<m>" without sessions.
func (r Run) Prefix(subject string) string {
	return subject + "_" + r.ID()
}

// SessionPrefix names by the session directory instead of its position:
// "<subject>_<session>_run-<m>".
func (r Run) SessionPrefix(subject string) string {
	if r.Session == "" {
		return r.Prefix(subject)
	}
	return fmt.Sprintf("%s_%s_run-%d", subject, r.Session, r.Index)
}

// Name returns the subject identifier of a subject directory.
func Name(subjectDir string) string {
	return filepath.Base(filepath.Clean(subjectDir))
}

// Sessions lists the ses-* directories of a subject, sorted.
func Sessions(subjectDir string) ([]string, error) {
	entries, err := os.ReadDir(subjectDir)
	if err != nil {
		return nil, fmt.Errorf("[Sessions] %w", err)
	}

	var sessions []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), "ses-") {
			sessions = append(sessions, e.Name())
		}
	}
	sort.Strings(sessions)

	return sessions, nil
}

// Discover lists the runs of kind below subjectDir. A missing modality
// directory in a session yields no runs for it.
func Discover(subjectDir string, kind Kind, hasSessions bool) ([]Run, error) {
	if _, err := os.Stat(subjectDir); err != nil {
		return nil, fmt.Errorf("[Discover] %w", err)
	}

	sessions := []string{""}
	if hasSessions {
		var err error
		if sessions, err = Sessions(subjectDir); err != nil {
			return nil, err
		}
	}

	var runs []Run
	for s, session := range sessions {
		sessionDir := filepath.Join(subjectDir, session)
		files, err := runFiles(filepath.Join(sessionDir, kind.Dir), kind.Suffix)
		if err != nil {
			return nil, err
		}

		for i, name := range files {
			runs = append(runs, Run{
				Session:      session,
				SessionIndex: s + 1,
				Index:        i + 1,
				Path:         filepath.Join(sessionDir, kind.Dir, name),
				ParcPath:     filepath.Join(sessionDir, kind.ParcDir, parcName(name, kind)),
			})
		}
	}

	return runs, nil
}

func runFiles(dir, suffix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("[Discover] %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	return names, nil
}

func parcName(name string, kind Kind) string {
	if kind.Replace == "" {
		return name
	}
	return strings.Replace(name, kind.Replace, kind.ParcSuffix, 1)
}
