package inference

import (
	"context"
	"fmt"
	"time"

	"github.com/stitts-dev/clutchfactor/internal/models"
)

// DefaultInferenceTimeout bounds a single model call when none is configured
const DefaultInferenceTimeout = 2 * time.Second

// TimeoutGateway enforces a per-call deadline on the wrapped gateway so a
// stalled model backend cannot block the replay pipeline. Calls run on their
// own goroutine: the deadline holds even when the inner gateway ignores its
// context.
type TimeoutGateway struct {
	inner   Gateway
	timeout time.Duration
}

func NewTimeoutGateway(inner Gateway, timeout time.Duration) *TimeoutGateway {
	if timeout <= 0 {
		timeout = DefaultInferenceTimeout
	}
	return &TimeoutGateway{inner: inner, timeout: timeout}
}

func (g *TimeoutGateway) Predict(ctx context.Context, fv FeatureVector) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type result struct {
		wp  float64
		err error
	}
	done := make(chan result, 1)
	go func() {
		wp, err := g.inner.Predict(ctx, fv)
		done <- result{wp: wp, err: err}
	}()

	select {
	case r := <-done:
		return r.wp, r.err
	case <-ctx.Done():
		return 0, fmt.Errorf("inference timed out after %s: %w", g.timeout, ctx.Err())
	}
}

func (g *TimeoutGateway) Explain(ctx context.Context, fv FeatureVector, topN int) ([]models.ShapFeature, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type result struct {
		shap []models.ShapFeature
		err  error
	}
	done := make(chan result, 1)
	go func() {
		shap, err := g.inner.Explain(ctx, fv, topN)
		done <- result{shap: shap, err: err}
	}()

	select {
	case r := <-done:
		return r.shap, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("explanation timed out after %s: %w", g.timeout, ctx.Err())
	}
}

func (g *TimeoutGateway) ModelVersion() string {
	return g.inner.ModelVersion()
}

func (g *TimeoutGateway) Ready() bool {
	return g.inner.Ready()
}
