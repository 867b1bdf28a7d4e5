package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// MLP is a feedforward network loaded from a weights artifact exported at
// training time. Scoring is a plain forward pass; no state is mutated, so a
// loaded MLP is safe for concurrent use.
type MLP struct {
	inputWidth int
	layers     []layer
}

type layer struct {
	// weights[j][i] is the weight from input i to output unit j.
	weights    [][]float64
	bias       []float64
	activation string
}

type mlpArtifact struct {
	InputWidth int             `json:"input_width"`
	Layers     []layerArtifact `json:"layers"`
}

type layerArtifact struct {
	Weights    [][]float64 `json:"weights"`
	Bias       []float64   `json:"bias"`
	Activation string      `json:"activation"`
}

// Load reads a model artifact from disk and validates its shape.
// A missing or malformed artifact is a fatal startup condition; the service
// must not become ready without a loadable model.
func Load(path string) (*MLP, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model artifact: %w", err)
	}

	var art mlpArtifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, fmt.Errorf("parse model artifact: %w", err)
	}

	return New(art)
}

// New builds an MLP from artifact data, validating layer shape chaining.
func New(art mlpArtifact) (*MLP, error) {
	if art.InputWidth <= 0 {
		return nil, fmt.Errorf("model input_width must be positive, got %d", art.InputWidth)
	}
	if len(art.Layers) == 0 {
		return nil, fmt.Errorf("model has no layers")
	}

	m := &MLP{inputWidth: art.InputWidth}
	width := art.InputWidth
	for i, la := range art.Layers {
		if len(la.Weights) == 0 {
			return nil, fmt.Errorf("layer %d has no units", i)
		}
		if len(la.Bias) != len(la.Weights) {
			return nil, fmt.Errorf("layer %d bias length %d does not match %d units",
				i, len(la.Bias), len(la.Weights))
		}
		for j, row := range la.Weights {
			if len(row) != width {
				return nil, fmt.Errorf("layer %d unit %d expects %d inputs, got %d",
					i, j, width, len(row))
			}
		}
		switch la.Activation {
		case "relu", "sigmoid", "linear":
		default:
			return nil, fmt.Errorf("layer %d has unsupported activation %q", i, la.Activation)
		}
		m.layers = append(m.layers, layer{
			weights:    la.Weights,
			bias:       la.Bias,
			activation: la.Activation,
		})
		width = len(la.Weights)
	}

	if width != 1 {
		return nil, fmt.Errorf("model output width is %d, want a single probability", width)
	}
	if last := art.Layers[len(art.Layers)-1].Activation; last != "sigmoid" {
		return nil, fmt.Errorf("model output activation is %q, want sigmoid", last)
	}

	return m, nil
}

// InputWidth reports the feature vector width the model expects.
func (m *MLP) InputWidth() int {
	return m.inputWidth
}

// Score runs a forward pass and returns the fraud probability.
func (m *MLP) Score(_ context.Context, vector []float64) (float64, error) {
	if len(vector) != m.inputWidth {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrVectorWidth, len(vector), m.inputWidth)
	}

	current := vector
	for _, l := range m.layers {
		next := make([]float64, len(l.weights))
		for j, row := range l.weights {
			sum := l.bias[j]
			for i, w := range row {
				sum += w * current[i]
			}
			next[j] = activate(l.activation, sum)
		}
		current = next
	}

	p := current[0]
	// Sigmoid already bounds the output; clamp guards float edge cases.
	return math.Max(0, math.Min(1, p)), nil
}

func activate(name string, x float64) float64 {
	switch name {
	case "relu":
		return math.Max(0, x)
	case "sigmoid":
		return 1.0 / (1.0 + math.Exp(-x))
	default: // linear
		return x
	}
}
