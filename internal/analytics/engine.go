package analytics

import (
	"context"
	"math"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/clutchfactor/internal/models"
	"github.com/stitts-dev/clutchfactor/internal/store"
)

// Engine computes the three post-hoc analytics products (momentum swings,
// clutch index, decision grades) from the persisted play and prediction
// history of a game. Results are derived on every call, never stored.
type Engine struct {
	store  store.RecordStore
	logger *logrus.Logger
}

func NewEngine(recordStore store.RecordStore, logger *logrus.Logger) *Engine {
	return &Engine{store: recordStore, logger: logger}
}

// PlayRef identifies a play in analytics output without dragging the full row
type PlayRef struct {
	PlayID           uuid.UUID `json:"play_id"`
	Sequence         int       `json:"sequence"`
	Quarter          int       `json:"quarter"`
	GameClockSeconds int       `json:"game_clock_seconds"`
	Description      *string   `json:"description"`
}

func playRef(play models.Play) PlayRef {
	return PlayRef{
		PlayID:           play.ID,
		Sequence:         play.Sequence,
		Quarter:          play.Quarter,
		GameClockSeconds: play.GameClockSeconds,
		Description:      play.Description,
	}
}

// loadPairs returns the shared analytics input: sequence-ordered
// (play, latest prediction) pairs for the game, restricted to plays with at
// least one prediction. Returns store.ErrNotFound for an unknown game.
func (e *Engine) loadPairs(ctx context.Context, gameID string) ([]store.PlayWithPrediction, *models.Game, error) {
	game, err := e.store.GetGame(ctx, gameID)
	if err != nil {
		return nil, nil, err
	}
	pairs, err := e.store.ListPlaysWithPredictions(ctx, gameID)
	if err != nil {
		return nil, nil, err
	}
	return pairs, game, nil
}

// clampTop bounds a caller-supplied top-N, substituting def when unset
func clampTop(n, def, max int) int {
	if n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
