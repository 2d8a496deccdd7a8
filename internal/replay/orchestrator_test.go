package replay

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/clutchfactor/internal/events"
	"github.com/stitts-dev/clutchfactor/internal/inference"
	"github.com/stitts-dev/clutchfactor/internal/models"
	"github.com/stitts-dev/clutchfactor/internal/providers"
	"github.com/stitts-dev/clutchfactor/internal/store"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func strPtr(v string) *string { return &v }
func intPtr(v int) *int       { return &v }

type fakeProvider struct {
	states []providers.GameState
	delay  time.Duration
	meta   providers.GameMeta
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Metadata() (providers.GameMeta, error) {
	meta := p.meta
	meta.TotalPlays = len(p.states)
	return meta, nil
}

func (p *fakeProvider) Stream(ctx context.Context) <-chan providers.GameState {
	out := make(chan providers.GameState)
	go func() {
		defer close(out)
		for _, gs := range p.states {
			select {
			case out <- gs:
			case <-ctx.Done():
				return
			}
			if p.delay > 0 {
				select {
				case <-time.After(p.delay):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// flakyGateway fails Predict on selected call numbers (1-based)
type flakyGateway struct {
	inner  inference.Gateway
	calls  int64
	failOn map[int64]bool
}

func (g *flakyGateway) Predict(ctx context.Context, fv inference.FeatureVector) (float64, error) {
	n := atomic.AddInt64(&g.calls, 1)
	if g.failOn[n] {
		return 0, errors.New("model backend unavailable")
	}
	return g.inner.Predict(ctx, fv)
}

func (g *flakyGateway) Explain(ctx context.Context, fv inference.FeatureVector, topN int) ([]models.ShapFeature, error) {
	return g.inner.Explain(ctx, fv, topN)
}

func (g *flakyGateway) ModelVersion() string { return g.inner.ModelVersion() }
func (g *flakyGateway) Ready() bool          { return true }

type notReadyGateway struct{ inference.Gateway }

func (notReadyGateway) Ready() bool { return false }

func scriptedPlays(gameID string, n int) []providers.GameState {
	states := make([]providers.GameState, 0, n)
	for i := 0; i < n; i++ {
		states = append(states, providers.GameState{
			GameID:               gameID,
			PlayNumber:           i + 1,
			Sequence:             i,
			Quarter:              1,
			GameClockSeconds:     900 - i*30,
			GameSecondsRemaining: 3600 - i*30,
			HalfSecondsRemaining: 1800 - i*30,
			Down:                 intPtr(1),
			YardsToGo:            intPtr(10),
			Yardline100:          intPtr(75),
			PosteamAbbr:          strPtr("KC"),
			PosteamIsHome:        1,
			PlayType:             strPtr("pass"),
			Description:          strPtr("test play"),
			RawPayload:           map[string]interface{}{"seq": i},
		})
	}
	return states
}

func newTestOrchestrator(gw inference.Gateway) (*Orchestrator, *store.MemoryStore, *events.Bus, *events.MemoryLatestCache) {
	memStore := store.NewMemoryStore()
	bus := events.NewBus(500, testLogger())
	cache := events.NewMemoryLatestCache(time.Hour)
	orch := NewOrchestrator(memStore, gw, bus, cache, 5, testLogger())
	return orch, memStore, bus, cache
}

func waitForSession(t *testing.T, sess *Session) {
	t.Helper()
	select {
	case <-sess.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish in time")
	}
}

func TestReplayRunsToCompletion(t *testing.T) {
	orch, memStore, bus, cache := newTestOrchestrator(inference.NewBaselineModel())

	sub := bus.Subscribe("g1")
	defer bus.Unsubscribe("g1", sub)

	provider := &fakeProvider{
		states: scriptedPlays("g1", 5),
		meta:   providers.GameMeta{GameID: "g1", HomeTeam: strPtr("KC"), AwayTeam: strPtr("CIN")},
	}

	sess, err := orch.Start("g1", provider)
	require.NoError(t, err)
	waitForSession(t, sess)

	assert.Equal(t, StateCompleted, sess.State())
	assert.EqualValues(t, 5, sess.PlayCount())

	// Every play persisted with its prediction, in strictly increasing sequence
	ctx := context.Background()
	pairs, err := memStore.ListPlaysWithPredictions(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, pairs, 5)
	for i, pair := range pairs {
		assert.Equal(t, i, pair.Play.Sequence)
		assert.InDelta(t, 1.0, pair.Prediction.HomeWP+pair.Prediction.AwayWP, 1e-9)
		assert.NotEmpty(t, pair.Attributions)
		if i > 0 {
			assert.Greater(t, pair.Play.Sequence, pairs[i-1].Play.Sequence)
		}
	}

	// Game transitioned to final
	game, err := memStore.GetGame(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, models.GameStatusFinal, game.Status)
	assert.Equal(t, "KC", game.HomeTeam)

	// The terminal event reaches subscribers and the latest cache is fresh
	var sawComplete bool
	for len(sub.C) > 0 {
		var envelope struct {
			EventType models.EventType `json:"event_type"`
		}
		require.NoError(t, json.Unmarshal(<-sub.C, &envelope))
		if envelope.EventType == models.EventTypeReplayComplete {
			sawComplete = true
		}
	}
	assert.True(t, sawComplete, "replay_complete must be broadcast on exhaustion")

	payload, found, err := cache.GetLatest(ctx, "g1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.NotEmpty(t, payload)
}

func TestStartConflictAndStopNotFound(t *testing.T) {
	orch, _, _, _ := newTestOrchestrator(inference.NewBaselineModel())

	assert.ErrorIs(t, orch.Stop("g1"), ErrReplayNotFound, "stop before start reports not found")

	provider := &fakeProvider{states: scriptedPlays("g1", 50), delay: 20 * time.Millisecond}
	sess, err := orch.Start("g1", provider)
	require.NoError(t, err)

	_, err = orch.Start("g1", &fakeProvider{states: scriptedPlays("g1", 1)})
	assert.ErrorIs(t, err, ErrReplayConflict, "second start for the same game is rejected")

	require.NoError(t, orch.Stop("g1"))
	waitForSession(t, sess)
	assert.Equal(t, StateCancelled, sess.State())

	assert.ErrorIs(t, orch.Stop("g1"), ErrReplayNotFound, "stopping a finished session reports not found")

	// A new session for the same game may start once the old one is done
	sess2, err := orch.Start("g1", &fakeProvider{states: scriptedPlays("g1", 1)})
	require.NoError(t, err)
	waitForSession(t, sess2)
	assert.Equal(t, StateCompleted, sess2.State())
}

func TestStartRejectedWithoutModel(t *testing.T) {
	orch, _, _, _ := newTestOrchestrator(notReadyGateway{inference.NewBaselineModel()})
	_, err := orch.Start("g1", &fakeProvider{states: scriptedPlays("g1", 1)})
	assert.ErrorIs(t, err, inference.ErrModelUnavailable)
}

func TestSinglePlayFailureDoesNotAbortSession(t *testing.T) {
	gw := &flakyGateway{
		inner:  inference.NewBaselineModel(),
		failOn: map[int64]bool{3: true},
	}
	orch, memStore, _, _ := newTestOrchestrator(gw)

	sess, err := orch.Start("g1", &fakeProvider{states: scriptedPlays("g1", 5)})
	require.NoError(t, err)
	waitForSession(t, sess)

	assert.Equal(t, StateCompleted, sess.State())
	assert.EqualValues(t, 4, sess.PlayCount(), "the failed play is skipped, the rest survive")

	// The failed play left no partial rows: plays without predictions would
	// be filtered from the analytics read anyway, but nothing was written.
	plays, err := memStore.ListPlays(context.Background(), "g1")
	require.NoError(t, err)
	assert.Len(t, plays, 4)
	for _, p := range plays {
		assert.NotEqual(t, 2, p.Sequence, "sequence 2 failed inference and must not be visible")
	}
}

func TestEndOfGameClamp(t *testing.T) {
	states := scriptedPlays("g1", 2)
	// Final play of regulation with home up 7
	states[1].Quarter = 4
	states[1].GameClockSeconds = 0
	states[1].GameSecondsRemaining = 0
	states[1].ScoreHome = 27
	states[1].ScoreAway = 20
	states[1].ScoreDifferential = 7

	orch, memStore, _, _ := newTestOrchestrator(inference.NewBaselineModel())
	sess, err := orch.Start("g1", &fakeProvider{states: states})
	require.NoError(t, err)
	waitForSession(t, sess)

	pairs, err := memStore.ListPlaysWithPredictions(context.Background(), "g1")
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	assert.Equal(t, 1.0, pairs[1].Prediction.HomeWP)
	assert.Equal(t, 0.0, pairs[1].Prediction.AwayWP)
	assert.Less(t, pairs[0].Prediction.HomeWP, 1.0, "non-terminal plays are not clamped")
}

func TestClampGuards(t *testing.T) {
	// Q2 end-of-half row also has a zero clock but must not clamp
	home, away := models.ClampFinal(0.62, 0.38, 2, 0, 7)
	assert.Equal(t, 0.62, home)
	assert.Equal(t, 0.38, away)

	// Tie at 0:00 in Q4 means overtime, not a decided game
	home, away = models.ClampFinal(0.55, 0.45, 4, 0, 0)
	assert.Equal(t, 0.55, home)

	// Away leads: clamp flips the other way
	home, away = models.ClampFinal(0.30, 0.70, 4, 0, -3)
	assert.Equal(t, 0.0, home)
	assert.Equal(t, 1.0, away)
}
