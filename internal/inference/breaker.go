package inference

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/stitts-dev/clutchfactor/internal/models"
)

// BreakerGateway wraps a Gateway with a circuit breaker so a failing model
// backend sheds load fast instead of stalling the replay loop on every play.
type BreakerGateway struct {
	inner   Gateway
	breaker *gobreaker.CircuitBreaker
}

func NewBreakerGateway(inner Gateway, maxFailures int, logger *logrus.Logger) *BreakerGateway {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "inference-gateway",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(maxFailures)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker":    name,
				"from_state": from.String(),
				"to_state":   to.String(),
			}).Warn("Inference circuit breaker state changed")
		},
	})
	return &BreakerGateway{inner: inner, breaker: cb}
}

func (g *BreakerGateway) Predict(ctx context.Context, fv FeatureVector) (float64, error) {
	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.inner.Predict(ctx, fv)
	})
	if err != nil {
		return 0, err
	}
	return result.(float64), nil
}

func (g *BreakerGateway) Explain(ctx context.Context, fv FeatureVector, topN int) ([]models.ShapFeature, error) {
	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.inner.Explain(ctx, fv, topN)
	})
	if err != nil {
		return nil, err
	}
	return result.([]models.ShapFeature), nil
}

func (g *BreakerGateway) ModelVersion() string {
	return g.inner.ModelVersion()
}

func (g *BreakerGateway) Ready() bool {
	return g.inner.Ready() && g.breaker.State() != gobreaker.StateOpen
}
