package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/stitts-dev/clutchfactor/internal/events"
	"github.com/stitts-dev/clutchfactor/internal/inference"
	"github.com/stitts-dev/clutchfactor/internal/models"
	"github.com/stitts-dev/clutchfactor/internal/providers"
	"github.com/stitts-dev/clutchfactor/internal/store"
)

var (
	// ErrReplayConflict means a session is already running for this game
	ErrReplayConflict = errors.New("replay already running for this game")
	// ErrReplayNotFound means no running session exists for this game
	ErrReplayNotFound = errors.New("no active replay for this game")
)

// SessionState is the lifecycle of one replay session
type SessionState int32

const (
	StateRunning SessionState = iota
	StateCompleted
	StateCancelled
	StateFailed
)

func (s SessionState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Session is the ephemeral in-memory record of one running orchestration.
// Its lifetime is the replay's lifetime, independent of the request that
// started it.
type Session struct {
	GameID    string
	StartedAt time.Time

	cancel    context.CancelFunc
	state     int32
	playCount int64
	done      chan struct{}
}

func (s *Session) State() SessionState {
	return SessionState(atomic.LoadInt32(&s.state))
}

func (s *Session) setState(state SessionState) {
	atomic.StoreInt32(&s.state, int32(state))
}

// PlayCount returns the number of plays fully processed so far
func (s *Session) PlayCount() int64 {
	return atomic.LoadInt64(&s.playCount)
}

// Done is closed when the session reaches a terminal state
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Orchestrator runs replay sessions: at most one per game id, each pulling
// plays from a provider and pushing (persist, predict, broadcast) per play.
type Orchestrator struct {
	mu       sync.Mutex
	sessions map[string]*Session

	store    store.RecordStore
	gateway  inference.Gateway
	bus      *events.Bus
	latest   events.LatestCache
	shapTopN int
	logger   *logrus.Logger
}

func NewOrchestrator(
	recordStore store.RecordStore,
	gateway inference.Gateway,
	bus *events.Bus,
	latest events.LatestCache,
	shapTopN int,
	logger *logrus.Logger,
) *Orchestrator {
	if shapTopN <= 0 {
		shapTopN = 5
	}
	return &Orchestrator{
		sessions: make(map[string]*Session),
		store:    recordStore,
		gateway:  gateway,
		bus:      bus,
		latest:   latest,
		shapTopN: shapTopN,
		logger:   logger,
	}
}

// Start launches a replay for gameID fed by provider. It returns
// ErrReplayConflict if a session is already running for the same id and
// inference.ErrModelUnavailable if no model is loaded. The returned session
// runs on its own goroutine with its own context; it outlives the caller.
func (o *Orchestrator) Start(gameID string, provider providers.Provider) (*Session, error) {
	if o.gateway == nil || !o.gateway.Ready() {
		return nil, inference.ErrModelUnavailable
	}

	o.mu.Lock()
	if existing, ok := o.sessions[gameID]; ok && existing.State() == StateRunning {
		o.mu.Unlock()
		return nil, ErrReplayConflict
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess := &Session{
		GameID:    gameID,
		StartedAt: time.Now().UTC(),
		cancel:    cancel,
		state:     int32(StateRunning),
		done:      make(chan struct{}),
	}
	o.sessions[gameID] = sess
	o.mu.Unlock()

	go o.run(ctx, sess, provider)
	return sess, nil
}

// Stop requests cooperative cancellation of a running session. Idempotent in
// the sense of the control surface: stopping a finished or unknown session
// returns ErrReplayNotFound, never a crash.
func (o *Orchestrator) Stop(gameID string) error {
	o.mu.Lock()
	sess, ok := o.sessions[gameID]
	o.mu.Unlock()

	if !ok || sess.State() != StateRunning {
		return ErrReplayNotFound
	}
	sess.cancel()
	return nil
}

// Session returns the current session for a game, if any
func (o *Orchestrator) Session(gameID string) (*Session, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	sess, ok := o.sessions[gameID]
	return sess, ok
}

func (o *Orchestrator) run(ctx context.Context, sess *Session, provider providers.Provider) {
	defer close(sess.done)
	defer sess.cancel()

	log := o.logger.WithField("game_id", sess.GameID)
	log.Info("Replay started")

	if err := o.beginGame(ctx, sess.GameID, provider); err != nil {
		log.WithError(err).Error("Failed to initialize game for replay")
		sess.setState(StateFailed)
		return
	}

	lastHome, lastAway := 0, 0
	for gs := range provider.Stream(ctx) {
		if err := o.processPlay(ctx, sess.GameID, gs, provider.Name()); err != nil {
			log.WithError(err).WithField("sequence", gs.Sequence).Error("Error processing play, skipping")
			continue
		}
		lastHome, lastAway = gs.ScoreHome, gs.ScoreAway
		atomic.AddInt64(&sess.playCount, 1)
	}

	if ctx.Err() != nil {
		sess.setState(StateCancelled)
		log.WithField("plays", sess.PlayCount()).Info("Replay cancelled")
		return
	}

	o.finishGame(sess.GameID, lastHome, lastAway)
	sess.setState(StateCompleted)
	log.WithField("plays", sess.PlayCount()).Info("Replay complete")
}

// beginGame upserts the game row from provider metadata and marks it live
func (o *Orchestrator) beginGame(ctx context.Context, gameID string, provider providers.Provider) error {
	meta, err := provider.Metadata()
	if err != nil {
		return fmt.Errorf("failed to resolve game metadata: %w", err)
	}

	game := &models.Game{
		ID:     gameID,
		Season: meta.Season,
		Week:   meta.Week,
		Status: models.GameStatusInProgress,
	}
	if meta.HomeTeam != nil {
		game.HomeTeam = *meta.HomeTeam
	}
	if meta.AwayTeam != nil {
		game.AwayTeam = *meta.AwayTeam
	}
	now := time.Now().UTC()
	game.StartedAt = &now

	if err := o.store.UpsertGame(ctx, game); err != nil {
		return err
	}

	o.publish(ctx, gameID, models.NewGameStatusEvent(gameID, models.GameStatusInProgress, 0, 0))
	return nil
}

// processPlay runs the per-play pipeline inside one transaction so a failure
// at any step leaves no partial rows visible to readers.
func (o *Orchestrator) processPlay(ctx context.Context, gameID string, gs providers.GameState, providerName string) error {
	playID := uuid.New()
	play := models.Play{
		ID:               playID,
		GameID:           gameID,
		PlayNumber:       gs.PlayNumber,
		Sequence:         gs.Sequence,
		Quarter:          gs.Quarter,
		GameClockSeconds: gs.GameClockSeconds,
		Down:             gs.Down,
		YardsToGo:        gs.YardsToGo,
		YardLineFromOwn:  gs.YardLineFromOwn,
		PosteamAbbr:      gs.PosteamAbbr,
		DefteamAbbr:      gs.DefteamAbbr,
		ScoreHome:        gs.ScoreHome,
		ScoreAway:        gs.ScoreAway,
		PlayType:         gs.PlayType,
		Description:      gs.Description,
		CreatedAt:        time.Now().UTC(),
	}

	var homeWP, awayWP float64
	var topShap []models.ShapFeature

	err := o.store.Transaction(ctx, func(tx store.RecordStore) error {
		raw, err := rawRecord(playID, providerName, gs.RawPayload)
		if err != nil {
			return err
		}
		if err := tx.CreatePlay(ctx, &play, raw); err != nil {
			return err
		}

		fv := inference.ExtractFeatures(gs)
		homeWP, err = o.gateway.Predict(ctx, fv)
		if err != nil {
			return fmt.Errorf("inference failed: %w", err)
		}
		awayWP = 1.0 - homeWP

		homeWP, awayWP = models.ClampFinal(homeWP, awayWP, gs.Quarter, gs.GameClockSeconds, gs.ScoreDifferential)

		topShap, err = o.gateway.Explain(ctx, fv, o.shapTopN)
		if err != nil {
			return fmt.Errorf("explanation failed: %w", err)
		}

		pred := models.WpPrediction{
			ID:           uuid.New(),
			PlayID:       playID,
			ModelVersion: o.gateway.ModelVersion(),
			HomeWP:       homeWP,
			AwayWP:       awayWP,
			PredictedAt:  time.Now().UTC(),
		}
		attrs := make([]models.ShapValue, 0, len(topShap))
		for _, sf := range topShap {
			attrs = append(attrs, models.ShapValue{
				ID:             uuid.New(),
				WpPredictionID: pred.ID,
				FeatureName:    sf.FeatureName,
				ShapVal:        sf.ShapValue,
			})
		}
		return tx.CreatePrediction(ctx, &pred, attrs)
	})
	if err != nil {
		return err
	}

	o.publish(ctx, gameID, models.NewPlayUpdateEvent(gameID, play, homeWP, awayWP, topShap))
	return nil
}

func (o *Orchestrator) finishGame(gameID string, homeScore, awayScore int) {
	// Terminal bookkeeping gets its own deadline, decoupled from the
	// session context.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := o.store.SetGameStatus(ctx, gameID, models.GameStatusFinal, &homeScore, &awayScore); err != nil {
		o.logger.WithError(err).WithField("game_id", gameID).Error("Failed to mark game final")
	}

	o.publish(ctx, gameID, models.NewGameStatusEvent(gameID, models.GameStatusFinal, homeScore, awayScore))
	o.publish(ctx, gameID, models.NewReplayCompleteEvent(gameID))
}

// publish serializes an event, fans it out, and refreshes the latest-event
// cache. Cache failures are logged, never escalated.
func (o *Orchestrator) publish(ctx context.Context, gameID string, event interface{}) {
	payload, err := json.Marshal(event)
	if err != nil {
		o.logger.WithError(err).WithField("game_id", gameID).Error("Failed to serialize event")
		return
	}
	o.bus.Publish(gameID, payload)
	if err := o.latest.SetLatest(ctx, gameID, payload); err != nil {
		o.logger.WithError(err).WithField("game_id", gameID).Warn("Failed to refresh latest-event cache")
	}
}

func rawRecord(playID uuid.UUID, providerName string, payload map[string]interface{}) (*models.PlayRaw, error) {
	if payload == nil {
		return nil, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize raw payload: %w", err)
	}
	return &models.PlayRaw{
		ID:        uuid.New(),
		PlayID:    playID,
		Provider:  providerName,
		Payload:   datatypes.JSON(data),
		CreatedAt: time.Now().UTC(),
	}, nil
}
