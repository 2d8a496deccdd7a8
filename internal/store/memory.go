package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/stitts-dev/clutchfactor/internal/models"
)

// MemoryStore is an in-process RecordStore used in development mode (no
// DATABASE_URL configured) and in tests. Semantics match the Postgres store:
// sequence-ordered reads, latest-prediction-wins, all-or-nothing transactions.
type MemoryStore struct {
	mu    sync.RWMutex
	txnMu sync.Mutex
	games map[string]models.Game
	plays map[string][]models.Play         // game id -> plays in insert order
	raws  map[string][]models.PlayRaw      // play id -> raw payloads
	preds map[string][]models.WpPrediction // play id -> predictions in insert order
	shap  map[string][]models.ShapValue    // prediction id -> attributions
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		games: make(map[string]models.Game),
		plays: make(map[string][]models.Play),
		raws:  make(map[string][]models.PlayRaw),
		preds: make(map[string][]models.WpPrediction),
		shap:  make(map[string][]models.ShapValue),
	}
}

func (s *MemoryStore) UpsertGame(_ context.Context, game *models.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if game.CreatedAt.IsZero() {
		game.CreatedAt = time.Now().UTC()
	}
	s.games[game.ID] = *game
	return nil
}

func (s *MemoryStore) GetGame(_ context.Context, gameID string) (*models.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	game, ok := s.games[gameID]
	if !ok {
		return nil, ErrNotFound
	}
	return &game, nil
}

func (s *MemoryStore) ListGames(_ context.Context, filter GameFilter) ([]models.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Game
	for _, game := range s.games {
		if filter.Season != nil && (game.Season == nil || *game.Season != *filter.Season) {
			continue
		}
		if filter.Week != nil && (game.Week == nil || *game.Week != *filter.Week) {
			continue
		}
		if filter.Status != nil && game.Status != *filter.Status {
			continue
		}
		out = append(out, game)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) SetGameStatus(_ context.Context, gameID string, status models.GameStatus, homeScore, awayScore *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	game, ok := s.games[gameID]
	if !ok {
		return ErrNotFound
	}
	game.Status = status
	switch status {
	case models.GameStatusInProgress:
		now := time.Now().UTC()
		game.StartedAt = &now
	case models.GameStatusFinal:
		game.FinalHomeScore = homeScore
		game.FinalAwayScore = awayScore
	}
	s.games[gameID] = game
	return nil
}

func (s *MemoryStore) CreatePlay(_ context.Context, play *models.Play, raw *models.PlayRaw) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if play.CreatedAt.IsZero() {
		play.CreatedAt = time.Now().UTC()
	}
	s.plays[play.GameID] = append(s.plays[play.GameID], *play)
	if raw != nil {
		s.raws[play.ID.String()] = append(s.raws[play.ID.String()], *raw)
	}
	return nil
}

func (s *MemoryStore) CreatePrediction(_ context.Context, pred *models.WpPrediction, attributions []models.ShapValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pred.PredictedAt.IsZero() {
		pred.PredictedAt = time.Now().UTC()
	}
	key := pred.PlayID.String()
	s.preds[key] = append(s.preds[key], *pred)
	if len(attributions) > 0 {
		pkey := pred.ID.String()
		s.shap[pkey] = append(s.shap[pkey], attributions...)
	}
	return nil
}

func (s *MemoryStore) ListPlays(_ context.Context, gameID string) ([]models.Play, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	plays := make([]models.Play, len(s.plays[gameID]))
	copy(plays, s.plays[gameID])
	sort.Slice(plays, func(i, j int) bool { return plays[i].Sequence < plays[j].Sequence })
	return plays, nil
}

func (s *MemoryStore) CountPlays(_ context.Context, gameID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.plays[gameID])), nil
}

func (s *MemoryStore) ListPlaysWithPredictions(ctx context.Context, gameID string) ([]PlayWithPrediction, error) {
	plays, err := s.ListPlays(ctx, gameID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]PlayWithPrediction, 0, len(plays))
	for _, play := range plays {
		preds := s.preds[play.ID.String()]
		if len(preds) == 0 {
			continue
		}
		latest := preds[0]
		for _, pred := range preds[1:] {
			if !pred.PredictedAt.Before(latest.PredictedAt) {
				latest = pred
			}
		}
		attrs := make([]models.ShapValue, len(s.shap[latest.ID.String()]))
		copy(attrs, s.shap[latest.ID.String()])
		out = append(out, PlayWithPrediction{
			Play:         play,
			Prediction:   latest,
			Attributions: attrs,
		})
	}
	return out, nil
}

// Transaction runs fn against a cloned view and adopts the clone only when fn
// succeeds, so failed per-play pipelines leave no partial rows behind.
//
// txnMu serializes the whole clone->fn->adopt cycle: concurrent sessions on
// different games would otherwise clone stale snapshots and the later adopt
// would erase rows the earlier one committed. Readers keep going off mu and
// never block on an open transaction.
func (s *MemoryStore) Transaction(_ context.Context, fn func(tx RecordStore) error) error {
	s.txnMu.Lock()
	defer s.txnMu.Unlock()

	s.mu.Lock()
	clone := s.cloneLocked()
	s.mu.Unlock()

	if err := fn(clone); err != nil {
		return err
	}

	s.mu.Lock()
	s.games = clone.games
	s.plays = clone.plays
	s.raws = clone.raws
	s.preds = clone.preds
	s.shap = clone.shap
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) cloneLocked() *MemoryStore {
	clone := NewMemoryStore()
	for k, v := range s.games {
		clone.games[k] = v
	}
	for k, v := range s.plays {
		clone.plays[k] = append([]models.Play(nil), v...)
	}
	for k, v := range s.raws {
		clone.raws[k] = append([]models.PlayRaw(nil), v...)
	}
	for k, v := range s.preds {
		clone.preds[k] = append([]models.WpPrediction(nil), v...)
	}
	for k, v := range s.shap {
		clone.shap[k] = append([]models.ShapValue(nil), v...)
	}
	return clone
}
