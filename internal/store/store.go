package store

import (
	"context"
	"errors"

	"github.com/stitts-dev/clutchfactor/internal/models"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("record not found")

// GameFilter narrows ListGames results; nil fields match everything
type GameFilter struct {
	Season *int
	Week   *int
	Status *models.GameStatus
}

// PlayWithPrediction pairs a play with its most recent win-probability
// prediction and that prediction's attributions.
type PlayWithPrediction struct {
	Play         models.Play
	Prediction   models.WpPrediction
	Attributions []models.ShapValue
}

// RecordStore is the durable append/query surface for games, plays and
// predictions. ListPlaysWithPredictions returns pairs ordered by sequence,
// restricted to plays that have at least one prediction; the most recently
// produced prediction wins when a play has several.
type RecordStore interface {
	UpsertGame(ctx context.Context, game *models.Game) error
	GetGame(ctx context.Context, gameID string) (*models.Game, error)
	ListGames(ctx context.Context, filter GameFilter) ([]models.Game, error)
	SetGameStatus(ctx context.Context, gameID string, status models.GameStatus, homeScore, awayScore *int) error

	CreatePlay(ctx context.Context, play *models.Play, raw *models.PlayRaw) error
	CreatePrediction(ctx context.Context, pred *models.WpPrediction, attributions []models.ShapValue) error

	ListPlays(ctx context.Context, gameID string) ([]models.Play, error)
	CountPlays(ctx context.Context, gameID string) (int64, error)
	ListPlaysWithPredictions(ctx context.Context, gameID string) ([]PlayWithPrediction, error)

	// Transaction runs fn against a transactional view of the store; if fn
	// returns an error nothing it wrote becomes visible to readers.
	Transaction(ctx context.Context, fn func(tx RecordStore) error) error
}
