// Package classifier wraps the trained fraud model behind a single scoring
// call. The model internals are opaque to the rest of the service: callers
// hand in a fixed-shape feature vector and get back a fraud probability.
package classifier

import (
	"context"
	"errors"
)

var (
	// ErrVectorWidth is returned when the input vector does not match the
	// width the model was trained on.
	ErrVectorWidth = errors.New("feature vector width does not match model input")
)

// Scorer scores a feature vector, returning a probability in [0, 1].
// Implementations must be deterministic and side-effect free: the same
// vector always yields the same probability.
type Scorer interface {
	Score(ctx context.Context, vector []float64) (float64, error)
}
