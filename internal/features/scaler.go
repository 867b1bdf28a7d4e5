package features

import (
	"encoding/json"
	"fmt"
	"os"
)

// Scaler applies the linear normalization fitted during model training
// (per-column mean and scale). The artifact is exported at training time;
// its column order is the contract between training and inference, so
// loading fails if it does not match the codec's column order exactly.
type Scaler struct {
	columns []string
	mean    []float64
	scale   []float64
}

type scalerArtifact struct {
	Columns []string  `json:"columns"`
	Mean    []float64 `json:"mean"`
	Scale   []float64 `json:"scale"`
}

// LoadScaler reads a fitted scaler artifact from disk.
// A missing or malformed artifact is a fatal startup condition.
func LoadScaler(path string) (*Scaler, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scaler artifact: %w", err)
	}

	var art scalerArtifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, fmt.Errorf("parse scaler artifact: %w", err)
	}

	return NewScaler(art.Columns, art.Mean, art.Scale)
}

// NewScaler builds a scaler from fitted parameters, validating them against
// the numeric column contract.
func NewScaler(columns []string, mean, scale []float64) (*Scaler, error) {
	if len(columns) != NumericWidth {
		return nil, fmt.Errorf("scaler has %d columns, want %d", len(columns), NumericWidth)
	}
	if len(mean) != len(columns) || len(scale) != len(columns) {
		return nil, fmt.Errorf("scaler mean/scale length mismatch: columns=%d mean=%d scale=%d",
			len(columns), len(mean), len(scale))
	}
	for i, col := range columns {
		if col != NumericColumns[i] {
			return nil, fmt.Errorf("scaler column %d is %q, want %q: artifact order must match training order",
				i, col, NumericColumns[i])
		}
	}
	for i, s := range scale {
		if s == 0 {
			return nil, fmt.Errorf("scaler column %q has zero scale", columns[i])
		}
	}

	return &Scaler{columns: columns, mean: mean, scale: scale}, nil
}

// Transform normalizes the whole numeric block at once. The block is never
// scaled per-field; partial application would not reproduce training.
func (s *Scaler) Transform(block []float64) ([]float64, error) {
	if len(block) != len(s.columns) {
		return nil, fmt.Errorf("numeric block has %d fields, want %d", len(block), len(s.columns))
	}
	out := make([]float64, len(block))
	for i, v := range block {
		out[i] = (v - s.mean[i]) / s.scale[i]
	}
	return out, nil
}
