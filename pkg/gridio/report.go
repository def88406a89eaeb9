package gridio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"labelfusion/internal/models"
)

// ConfusionReport is the YAML form of the per-observer confusion matrices.
type ConfusionReport struct {
	NumClasses int                 `yaml:"numClasses"`
	Observers  []ObserverConfusion `yaml:"observers"`
}

// ObserverConfusion holds one observer's matrix. Matrix[j][i] is the
// probability that the observer reports i when the true label is j.
type ObserverConfusion struct {
	Observer int         `yaml:"observer"`
	Matrix   [][]float64 `yaml:"matrix"`
}

// NewConfusionReport copies the matrices into a report.
func NewConfusionReport(matrices []*models.ConfusionMatrix) *ConfusionReport {
	r := &ConfusionReport{Observers: make([]ObserverConfusion, len(matrices))}
	for o, cm := range matrices {
		k := cm.NumClasses()
		r.NumClasses = k
		rows := make([][]float64, k)
		for truth := range rows {
			rows[truth] = append([]float64(nil), cm.Row(truth)...)
		}
		r.Observers[o] = ObserverConfusion{Observer: o, Matrix: rows}
	}
	return r
}

// WriteConfusionReport saves the matrices as YAML when path ends in .yaml or
// .yml. Any other path receives the raw float32 volume described by
// models.ConfusionVolume.
func (w *Writer) WriteConfusionReport(path string, matrices []*models.ConfusionMatrix) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return writeFloat32(path, models.ConfusionVolume(matrices))
	}

	data, err := yaml.Marshal(NewConfusionReport(matrices))
	if err != nil {
		return fmt.Errorf("error marshaling confusion report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing confusion report: %w", err)
	}
	return nil
}

// ReadConfusionReport loads a YAML confusion report.
func ReadConfusionReport(path string) (*ConfusionReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading confusion report: %w", err)
	}
	r := &ConfusionReport{}
	if err := yaml.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("error parsing confusion report: %w", err)
	}
	return r, nil
}
