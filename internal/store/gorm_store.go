package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/stitts-dev/clutchfactor/internal/models"
)

// GormStore is the Postgres-backed RecordStore
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// AutoMigrate creates or updates the schema for all persisted entities
func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(
		&models.Game{},
		&models.Play{},
		&models.PlayRaw{},
		&models.WpPrediction{},
		&models.ShapValue{},
	)
}

func (s *GormStore) UpsertGame(ctx context.Context, game *models.Game) error {
	if err := s.db.WithContext(ctx).Save(game).Error; err != nil {
		return fmt.Errorf("failed to upsert game %s: %w", game.ID, err)
	}
	return nil
}

func (s *GormStore) GetGame(ctx context.Context, gameID string) (*models.Game, error) {
	var game models.Game
	err := s.db.WithContext(ctx).First(&game, "id = ?", gameID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load game %s: %w", gameID, err)
	}
	return &game, nil
}

func (s *GormStore) ListGames(ctx context.Context, filter GameFilter) ([]models.Game, error) {
	query := s.db.WithContext(ctx).Model(&models.Game{}).Order("created_at DESC")
	if filter.Season != nil {
		query = query.Where("season = ?", *filter.Season)
	}
	if filter.Week != nil {
		query = query.Where("week = ?", *filter.Week)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var games []models.Game
	if err := query.Find(&games).Error; err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	return games, nil
}

func (s *GormStore) SetGameStatus(ctx context.Context, gameID string, status models.GameStatus, homeScore, awayScore *int) error {
	updates := map[string]interface{}{"status": status}
	switch status {
	case models.GameStatusInProgress:
		updates["started_at"] = time.Now().UTC()
	case models.GameStatusFinal:
		if homeScore != nil {
			updates["final_home_score"] = *homeScore
		}
		if awayScore != nil {
			updates["final_away_score"] = *awayScore
		}
	}

	result := s.db.WithContext(ctx).Model(&models.Game{}).Where("id = ?", gameID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update game %s status: %w", gameID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) CreatePlay(ctx context.Context, play *models.Play, raw *models.PlayRaw) error {
	if err := s.db.WithContext(ctx).Create(play).Error; err != nil {
		return fmt.Errorf("failed to persist play seq=%d: %w", play.Sequence, err)
	}
	if raw != nil {
		if err := s.db.WithContext(ctx).Create(raw).Error; err != nil {
			return fmt.Errorf("failed to persist raw payload for play seq=%d: %w", play.Sequence, err)
		}
	}
	return nil
}

func (s *GormStore) CreatePrediction(ctx context.Context, pred *models.WpPrediction, attributions []models.ShapValue) error {
	if err := s.db.WithContext(ctx).Create(pred).Error; err != nil {
		return fmt.Errorf("failed to persist prediction: %w", err)
	}
	if len(attributions) > 0 {
		if err := s.db.WithContext(ctx).Create(&attributions).Error; err != nil {
			return fmt.Errorf("failed to persist attributions: %w", err)
		}
	}
	return nil
}

func (s *GormStore) ListPlays(ctx context.Context, gameID string) ([]models.Play, error) {
	var plays []models.Play
	err := s.db.WithContext(ctx).
		Where("game_id = ?", gameID).
		Order("sequence ASC").
		Find(&plays).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list plays for game %s: %w", gameID, err)
	}
	return plays, nil
}

func (s *GormStore) CountPlays(ctx context.Context, gameID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Play{}).
		Where("game_id = ?", gameID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count plays for game %s: %w", gameID, err)
	}
	return count, nil
}

func (s *GormStore) ListPlaysWithPredictions(ctx context.Context, gameID string) ([]PlayWithPrediction, error) {
	plays, err := s.ListPlays(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if len(plays) == 0 {
		return nil, nil
	}

	playIDs := make([]interface{}, 0, len(plays))
	for _, p := range plays {
		playIDs = append(playIDs, p.ID)
	}

	var preds []models.WpPrediction
	err = s.db.WithContext(ctx).
		Where("play_id IN ?", playIDs).
		Order("predicted_at ASC").
		Find(&preds).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load predictions for game %s: %w", gameID, err)
	}

	// Most recent prediction per play wins; the ASC scan leaves the latest one
	latest := make(map[string]models.WpPrediction, len(preds))
	for _, pred := range preds {
		latest[pred.PlayID.String()] = pred
	}

	predIDs := make([]interface{}, 0, len(latest))
	for _, pred := range latest {
		predIDs = append(predIDs, pred.ID)
	}

	shapByPred := make(map[string][]models.ShapValue)
	if len(predIDs) > 0 {
		var shap []models.ShapValue
		if err := s.db.WithContext(ctx).Where("wp_prediction_id IN ?", predIDs).Find(&shap).Error; err != nil {
			return nil, fmt.Errorf("failed to load attributions for game %s: %w", gameID, err)
		}
		for _, sv := range shap {
			key := sv.WpPredictionID.String()
			shapByPred[key] = append(shapByPred[key], sv)
		}
	}

	out := make([]PlayWithPrediction, 0, len(plays))
	for _, play := range plays {
		pred, ok := latest[play.ID.String()]
		if !ok {
			continue
		}
		out = append(out, PlayWithPrediction{
			Play:         play,
			Prediction:   pred,
			Attributions: shapByPred[pred.ID.String()],
		})
	}
	return out, nil
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx RecordStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}
