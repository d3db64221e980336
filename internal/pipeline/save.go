package pipeline

import (
	"path/filepath"

	"github.com/KyungWonPark/Connectome/internal/config"
	"github.com/KyungWonPark/Connectome/internal/fc"
	cio "github.com/KyungWonPark/Connectome/internal/io"
	"github.com/gonum/matrix/mat64"
)

type artifact struct {
	rel   string
	write func(path string) error
}

func npy(m *mat64.Dense) func(string) error {
	return func(path string) error { return cio.Mat64toNpy(path, m) }
}

func text(m *mat64.Dense, format cio.CSVFormat) func(string) error {
	return func(path string) error { return cio.Mat64toCSV(path, m, format) }
}

func labels(l []int32) func(string) error {
	return func(path string) error { return cio.WriteLabels(path, l) }
}

// saveAll writes every artifact into a stage, then runs the precommit hooks, and
// commits only if all of them succeeded.
func saveAll(outDir string, artifacts []artifact, precommit []func() error) ([]string, error) {
	stage, err := NewStage(outDir)
	if err != nil {
		return nil, err
	}

	for _, a := range artifacts {
		p, err := stage.Path(a.rel)
		if err == nil {
			err = a.write(p)
		}
		if err != nil {
			stage.Abort()
			return nil, err
		}
	}

	for _, hook := range precommit {
		if err := hook(); err != nil {
			stage.Abort()
			return nil, err
		}
	}

	return stage.Commit()
}

// SaveStructural writes <prefix>_sc_matrix.npy, _sc_length_matrix.npy,
// _sc_norm_matrix.npy (when normalized), the labels sidecar and the TVB
// exports as configured. precommit hooks run after every file is staged; an error
// from one of them discards the stage.
func SaveStructural(outDir, prefix string, res *Result, out config.Output, precommit ...func() error) ([]string, error) {
	artifacts := []artifact{
		{prefix + "_sc_matrix.npy", npy(res.Counts)},
		{prefix + "_sc_length_matrix.npy", npy(res.Lengths)},
	}
	if res.Normalized != nil {
		artifacts = append(artifacts, artifact{prefix + "_sc_norm_matrix.npy", npy(res.Normalized)})
	}
	if out.LabelsSidecar {
		artifacts = append(artifacts, artifact{prefix + "_sc_labels.json", labels(res.Regions.Labels())})
	}
	if out.TVBExport {
		artifacts = append(artifacts,
			artifact{filepath.Join("tvb", prefix+"_SC.csv"), text(res.Counts, cio.TVBCSV)},
			artifact{filepath.Join("tvb", prefix+"_SC_lengths.csv"), text(res.Lengths, cio.TVBCSV)},
		)
	}

	return saveAll(outDir, artifacts, precommit)
}

// SaveFunctional writes <prefix>_fc_matrix.npy with its labels and the TVB
// time series (time points by regions) and matrix.
func SaveFunctional(outDir, prefix string, res *fc.Result, out config.Output) ([]string, error) {
	artifacts := []artifact{
		{prefix + "_fc_matrix.npy", npy(res.Matrix)},
	}
	if out.LabelsSidecar {
		artifacts = append(artifacts, artifact{prefix + "_fc_matrix.json", labels(res.Regions.Labels())})
	}
	if out.TVBExport {
		artifacts = append(artifacts,
			artifact{filepath.Join("tvb", prefix+"_FC_ts.txt"), text(mat64.DenseCopyOf(res.TimeSeries.T()), cio.TVBText)},
			artifact{filepath.Join("tvb", prefix+"_FC.csv"), text(res.Matrix, cio.TVBCSV)},
		)
	}

	return saveAll(outDir, artifacts, nil)
}
