package io

import (
	"encoding/json"
	"fmt"
	"os"
)

// WriteLabels stores the region labels of a matrix, in matrix index order, as a JSON array.
func WriteLabels(path string, labels []int32) error {
	if labels == nil {
		labels = []int32{}
	}

	data, err := json.Marshal(labels)
	if err != nil {
		return fmt.Errorf("[WriteLabels] %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("[WriteLabels] failed to write %s: %w", path, err)
	}

	return nil
}

// ReadLabels loads a labels sidecar written by WriteLabels.
func ReadLabels(path string) ([]int32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("[ReadLabels] failed to read %s: %w", path, err)
	}

	var labels []int32
	if err := json.Unmarshal(data, &labels); err != nil {
		return nil, fmt.Errorf("[ReadLabels] %s: %w", path, err)
	}

	return labels, nil
}
