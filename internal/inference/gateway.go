package inference

import (
	"context"
	"errors"

	"github.com/stitts-dev/clutchfactor/internal/models"
)

// ErrModelUnavailable means no model artifact is loaded. It is a structural
// precondition failure: a replay session must not start without a model.
var ErrModelUnavailable = errors.New("no inference model available")

// Gateway is the black-box prediction capability used by the replay pipeline.
// Predict returns the home-team win probability in [0,1]; Explain returns
// ranked signed per-feature attributions for the same vector.
type Gateway interface {
	Predict(ctx context.Context, fv FeatureVector) (float64, error)
	Explain(ctx context.Context, fv FeatureVector, topN int) ([]models.ShapFeature, error)
	ModelVersion() string
	Ready() bool
}
