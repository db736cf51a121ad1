package inference

import (
	"fmt"
	"os"
	"strings"

	"github.com/khaledhikmat/vs-infer/model"
	"golang.org/x/xerrors"
)

// LoadLabels reads one label per line. Blank lines are dropped.
func LoadLabels(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading labels %s: %w: %w", path, err, model.ErrModelLoadFailure)
	}

	var labels []string
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			labels = append(labels, line)
		}
	}

	if len(labels) == 0 {
		return nil, xerrors.Errorf("no labels in %s: %w", path, model.ErrModelLoadFailure)
	}
	return labels, nil
}

// CheckModel fails with ErrModelLoadFailure when a model file is missing.
func CheckModel(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("no model exists at %s: %w: %w", path, err, model.ErrModelLoadFailure)
	}
	return nil
}
